package workflow

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"vizflow/internal/viz"
)

// GoalCatalog generates, extends and selects analysis goals.
type GoalCatalog struct{ s *Session }

// Generate replaces the catalog with goalCount fresh goals and drops any
// selection, titles and artifact. A response with a different number of
// goals fails and keeps the previous catalog.
func (c *GoalCatalog) Generate(ctx context.Context, goalCount int) ([]viz.Goal, error) {
	const op = "generate goals"
	var out []viz.Goal
	err := c.s.run(ctx, op, func(ctx context.Context) error {
		if !viz.ValidCount(goalCount) {
			return viz.Validationf(op, "goal count %d outside [%d,%d]", goalCount, viz.MinCount, viz.MaxCount)
		}
		goals, err := c.s.gw.GenerateGoals(ctx, goalCount)
		if err != nil {
			return err
		}
		if len(goals) != goalCount {
			return &viz.ServiceError{
				Op:         op,
				StatusCode: http.StatusOK,
				Message:    fmt.Sprintf("service returned %d goals, requested %d", len(goals), goalCount),
			}
		}
		if id, dup := duplicateID(goals); dup {
			return viz.DataShapef(op, "duplicate goal id %q", id)
		}
		for i := range goals {
			goals[i].Icon = viz.IconFor(i)
		}
		c.s.setState(GoalsLoaded{Goals: goals})
		c.s.log.Info("goals generated", "count", len(goals))
		out = slices.Clone(goals)
		return nil
	})
	return out, err
}

// Add turns a free-text description into one more goal. The stage and the
// selection are unchanged; an Idle session moves to GoalsLoaded.
func (c *GoalCatalog) Add(ctx context.Context, description string, currentGoalCount int) (viz.Goal, error) {
	const op = "add goal"
	var out viz.Goal
	err := c.s.run(ctx, op, func(ctx context.Context) error {
		description = strings.TrimSpace(description)
		if description == "" {
			return viz.Validationf(op, "description is empty")
		}
		g, err := c.s.gw.AddGoal(ctx, description, currentGoalCount)
		if err != nil {
			return err
		}
		st := c.s.Snapshot()
		goals := goalsOf(st)
		if slices.ContainsFunc(goals, func(x viz.Goal) bool { return x.ID == g.ID }) {
			return viz.DataShapef(op, "service reused goal id %q", g.ID)
		}
		g.Icon = viz.IconFor(len(goals))
		c.s.setState(withGoals(st, append(slices.Clone(goals), g)))
		c.s.log.Info("goal added", "goal", g.ID)
		out = g
		return nil
	})
	return out, err
}

// Select makes id the selected goal. It always drops titles and the
// artifact, even when id is already selected.
func (c *GoalCatalog) Select(id viz.GoalID) (viz.Goal, error) {
	const op = "select goal"
	var out viz.Goal
	err := c.s.run(context.Background(), op, func(context.Context) error {
		st := c.s.Snapshot()
		goals := goalsOf(st)
		if len(goals) == 0 {
			return errState(op, st, "no goals loaded")
		}
		i := slices.IndexFunc(goals, func(g viz.Goal) bool { return g.ID == id })
		if i < 0 {
			return viz.Validationf(op, "unknown goal %q", id)
		}
		count := c.s.defaultCount()
		if sel, ok := selectionOf(st); ok {
			count = sel.Count
		}
		c.s.setState(GoalSelected{Goals: goals, Goal: goals[i], Count: count})
		out = goals[i]
		return nil
	})
	return out, err
}

// List returns the catalog.
func (c *GoalCatalog) List() []viz.Goal {
	return slices.Clone(goalsOf(c.s.Snapshot()))
}

// Selected returns the selected goal.
func (c *GoalCatalog) Selected() (viz.Goal, bool) {
	sel, ok := selectionOf(c.s.Snapshot())
	return sel.Goal, ok
}

func duplicateID(goals []viz.Goal) (viz.GoalID, bool) {
	seen := make(map[viz.GoalID]bool, len(goals))
	for _, g := range goals {
		if seen[g.ID] {
			return g.ID, true
		}
		seen[g.ID] = true
	}
	return "", false
}
