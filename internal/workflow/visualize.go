package workflow

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"

	"vizflow/internal/viz"
)

// Visualizer requests candidate titles and renders one of them.
type Visualizer struct{ s *Session }

// RequestTitles asks for visualizationCount titles for the selected goal,
// replacing any previous title set.
func (v *Visualizer) RequestTitles(ctx context.Context, visualizationCount int) (viz.TitleSet, error) {
	const op = "request titles"
	var out viz.TitleSet
	err := v.s.run(ctx, op, func(ctx context.Context) error {
		st := v.s.Snapshot()
		sel, ok := selectionOf(st)
		if !ok {
			return errState(op, st, "select a goal first")
		}
		if !viz.ValidCount(visualizationCount) {
			return viz.Validationf(op, "visualization count %d outside [%d,%d]", visualizationCount, viz.MinCount, viz.MaxCount)
		}
		titles, err := v.s.gw.GenerateTitles(ctx, visualizationCount)
		if err != nil {
			return err
		}
		if len(titles) == 0 {
			return viz.DataShapef(op, "service returned no titles")
		}
		sel.Count = visualizationCount
		out = viz.TitleSet{GoalID: sel.Goal.ID, Count: visualizationCount, Titles: titles}
		v.s.setState(TitlesLoaded{GoalSelected: sel, Titles: out})
		v.s.log.Info("titles loaded", "goal", sel.Goal.ID, "count", len(titles))
		return nil
	})
	return out, err
}

// SetCount changes the visualization count used for the next title
// request. A title set requested with a different count is dropped.
func (v *Visualizer) SetCount(n int) error {
	const op = "set visualization count"
	return v.s.run(context.Background(), op, func(context.Context) error {
		if !viz.ValidCount(n) {
			return viz.Validationf(op, "visualization count %d outside [%d,%d]", n, viz.MinCount, viz.MaxCount)
		}
		switch st := v.s.Snapshot().(type) {
		case GoalSelected:
			st.Count = n
			v.s.setState(st)
		case TitlesLoaded:
			sel := st.GoalSelected
			sel.Count = n
			if st.Titles.Count == n {
				st.GoalSelected = sel
				v.s.setState(st)
			} else {
				v.s.setState(sel)
			}
		case ArtifactReady:
			st.Count = n
			if st.Titles != nil && st.Titles.Count != n {
				st.Titles = nil
			}
			v.s.setState(st)
		default:
			v.s.setDefaultCount(n)
		}
		return nil
	})
}

// RequestRender renders title with the given renderer. Preconditions are
// checked locally before any request: a title set for the selected goal,
// title among its candidates, and a count equal to the set's count.
func (v *Visualizer) RequestRender(ctx context.Context, title string, renderer viz.Renderer, visualizationCount int) (viz.Artifact, error) {
	const op = "render visualization"
	var out viz.Artifact
	err := v.s.run(ctx, op, func(ctx context.Context) error {
		st := v.s.Snapshot()
		var loaded TitlesLoaded
		switch s := st.(type) {
		case TitlesLoaded:
			loaded = s
		case ArtifactReady:
			if s.Titles == nil {
				return errState(op, st, "request titles first")
			}
			loaded = TitlesLoaded{GoalSelected: s.GoalSelected, Titles: *s.Titles}
		default:
			return errState(op, st, "request titles first")
		}
		if loaded.Titles.GoalID != loaded.Goal.ID {
			return viz.Validationf(op, "titles belong to goal %q, selected goal is %q", loaded.Titles.GoalID, loaded.Goal.ID)
		}
		if !loaded.Titles.Contains(title) {
			if s, ok := suggest(title, loaded.Titles.Titles); ok {
				return viz.Validationf(op, "%q is not a candidate title; did you mean %q?", title, s)
			}
			return viz.Validationf(op, "%q is not a candidate title", title)
		}
		if visualizationCount != loaded.Titles.Count {
			return viz.Validationf(op, "visualization count %d does not match the %d the titles were requested with", visualizationCount, loaded.Titles.Count)
		}
		if !renderer.Valid() {
			return viz.Validationf(op, "unknown renderer %q", renderer)
		}

		loaded.Chosen = title
		if _, ok := st.(TitlesLoaded); ok {
			v.s.setState(loaded)
		}
		raster, err := v.s.gw.Render(ctx, viz.RenderRequest{
			Goal:               loaded.Goal,
			Renderer:           renderer,
			VisualizationCount: visualizationCount,
			Title:              title,
		})
		if err != nil {
			return err
		}
		ts := loaded.Titles
		out = viz.NewArtifact(raster, title, loaded.Goal)
		v.s.setState(ArtifactReady{GoalSelected: loaded.GoalSelected, Titles: &ts, Artifact: out})
		v.s.persist(out)
		v.s.log.Info("visualization rendered", "title", title, "renderer", renderer, "digest", out.Digest())
		return nil
	})
	return out, err
}

// BackToTitles drops the active artifact and returns to the title list it
// was rendered from.
func (v *Visualizer) BackToTitles() (viz.TitleSet, error) {
	const op = "back to titles"
	var out viz.TitleSet
	err := v.s.run(context.Background(), op, func(context.Context) error {
		st := v.s.Snapshot()
		ready, ok := st.(ArtifactReady)
		if !ok {
			return errState(op, st, "no rendered visualization")
		}
		if ready.Titles == nil {
			return errState(op, st, "no title list to return to; request titles first")
		}
		out = *ready.Titles
		v.s.setState(TitlesLoaded{GoalSelected: ready.GoalSelected, Titles: out, Chosen: ready.Artifact.SourceTitle})
		return nil
	})
	return out, err
}

// Titles returns the title set of the current state.
func (v *Visualizer) Titles() (viz.TitleSet, bool) {
	switch s := v.s.Snapshot().(type) {
	case TitlesLoaded:
		return s.Titles, true
	case ArtifactReady:
		if s.Titles != nil {
			return *s.Titles, true
		}
	case Editing:
		if s.Titles != nil {
			return *s.Titles, true
		}
	}
	return viz.TitleSet{}, false
}

// suggest returns the candidate closest to title by edit distance.
func suggest(title string, candidates []string) (string, bool) {
	best, bestDist := "", -1
	needle := strings.ToLower(strings.TrimSpace(title))
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(needle, strings.ToLower(c))
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 || bestDist > len(needle)/2+3 {
		return "", false
	}
	return best, true
}
