package workflow

import (
	"context"
	"strings"

	"vizflow/internal/viz"
)

// UndoOutcome is the result of UndoLast. When Exhausted is set the service
// had nothing to undo and Artifact is the unchanged active artifact.
type UndoOutcome struct {
	Artifact  viz.Artifact
	Exhausted bool
}

// Editor relays edit, undo, explain and evaluate requests for the active
// artifact. Revision history lives on the service.
type Editor struct{ s *Session }

// editing moves the session into Editing for op and returns the
// ArtifactReady to restore or replace when the request completes.
func (e *Editor) editing(op string) (ArtifactReady, error) {
	st := e.s.Snapshot()
	ready, ok := st.(ArtifactReady)
	if !ok {
		return ArtifactReady{}, errState(op, st, "no rendered visualization")
	}
	e.s.setState(Editing{ArtifactReady: ready, Op: op})
	return ready, nil
}

// replace commits a new artifact derived from prev.
func (e *Editor) replace(prev ArtifactReady, r viz.Raster) viz.Artifact {
	a := viz.NewArtifact(r, prev.Artifact.SourceTitle, prev.Artifact.SourceGoal)
	prev.Artifact = a
	prev.Explanation = ""
	e.s.setState(prev)
	e.s.persist(a)
	return a
}

// EditByInstruction applies a natural-language instruction to the active
// artifact.
func (e *Editor) EditByInstruction(ctx context.Context, instruction string) (viz.Artifact, error) {
	const op = "edit visualization"
	var out viz.Artifact
	err := e.s.run(ctx, op, func(ctx context.Context) error {
		instruction = strings.TrimSpace(instruction)
		if instruction == "" {
			return viz.Validationf(op, "instruction is empty")
		}
		prev, err := e.editing(op)
		if err != nil {
			return err
		}
		r, err := e.s.gw.Edit(ctx, instruction)
		if err != nil {
			e.s.setState(prev)
			return err
		}
		out = e.replace(prev, r)
		e.s.log.Info("edit applied", "digest", out.Digest())
		return nil
	})
	return out, err
}

// UndoLast reverts the last edit held by the service.
func (e *Editor) UndoLast(ctx context.Context) (UndoOutcome, error) {
	const op = "undo edit"
	var out UndoOutcome
	err := e.s.run(ctx, op, func(ctx context.Context) error {
		prev, err := e.editing(op)
		if err != nil {
			return err
		}
		res, err := e.s.gw.Undo(ctx)
		if err != nil {
			e.s.setState(prev)
			return err
		}
		if res.Exhausted {
			e.s.setState(prev)
			out = UndoOutcome{Artifact: prev.Artifact, Exhausted: true}
			e.s.log.Info("nothing to undo")
			return nil
		}
		out = UndoOutcome{Artifact: e.replace(prev, res.Raster)}
		e.s.log.Info("edit undone", "digest", out.Artifact.Digest())
		return nil
	})
	return out, err
}

// Explain returns the service's explanation of the active artifact. The
// text is memoized until the artifact changes.
func (e *Editor) Explain(ctx context.Context) (string, error) {
	const op = "explain visualization"
	var out string
	err := e.s.run(ctx, op, func(ctx context.Context) error {
		if ready, ok := e.s.Snapshot().(ArtifactReady); ok && ready.Explanation != "" {
			out = ready.Explanation
			return nil
		}
		prev, err := e.editing(op)
		if err != nil {
			return err
		}
		text, err := e.s.gw.Explain(ctx)
		if err != nil {
			e.s.setState(prev)
			return err
		}
		prev.Explanation = text
		e.s.setState(prev)
		out = text
		return nil
	})
	return out, err
}

// EvaluateAndRepair asks the service to score the active artifact. The
// artifact is left unchanged.
func (e *Editor) EvaluateAndRepair(ctx context.Context) ([]viz.Evaluation, error) {
	const op = "evaluate visualization"
	var out []viz.Evaluation
	err := e.s.run(ctx, op, func(ctx context.Context) error {
		prev, err := e.editing(op)
		if err != nil {
			return err
		}
		defer e.s.setState(prev)
		evals, err := e.s.gw.Evaluate(ctx)
		if err != nil {
			return err
		}
		if evals == nil {
			return viz.DataShapef(op, "response has no evaluation")
		}
		out = evals
		if mean, ok := viz.MeanScore(evals); ok {
			e.s.log.Info("visualization evaluated", "dimensions", len(evals), "mean_score", mean)
		}
		return nil
	})
	return out, err
}

// Clear drops the service-held session, evicts the render cache and
// resets the workflow to Idle. If the service call fails nothing changes.
func (e *Editor) Clear(ctx context.Context) error {
	const op = "clear session"
	return e.s.run(ctx, op, func(ctx context.Context) error {
		if err := e.s.gw.ClearSession(ctx); err != nil {
			return err
		}
		if err := e.s.cache.Clear(); err != nil {
			e.s.log.Warn("render cache eviction failed", "error", err)
		}
		e.s.setState(Idle{})
		e.s.log.Info("session cleared")
		return nil
	})
}

// Current returns the active artifact.
func (e *Editor) Current() (viz.Artifact, bool) {
	switch s := e.s.Snapshot().(type) {
	case ArtifactReady:
		return s.Artifact, true
	case Editing:
		return s.Artifact, true
	}
	return viz.Artifact{}, false
}
