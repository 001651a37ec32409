package vizapi

import (
	"context"
	"net/http"

	"vizflow/internal/viz"
)

// GenerateGoals asks the service for goalCount analysis goals. Icons are
// assigned by position.
func (c *Client) GenerateGoals(ctx context.Context, goalCount int) ([]viz.Goal, error) {
	const op = "generate goals"
	var rs GoalsRS
	if err := c.doJSON(ctx, http.MethodPost, "/visualize/goalgenerator", op, GoalGenerationRQ{GoalCount: goalCount}, &rs); err != nil {
		return nil, err
	}
	if rs.Goals == nil {
		return nil, viz.DataShapef(op, "response has no goals field")
	}
	goals := make([]viz.Goal, 0, len(rs.Goals))
	for i, g := range rs.Goals {
		if g.ID == "" || g.Question == "" {
			return nil, viz.DataShapef(op, "goal %d lacks id or question", i)
		}
		goals = append(goals, viz.Goal{ID: g.ID, Question: g.Question, Icon: viz.IconFor(i)})
	}
	return goals, nil
}

// AddGoal asks the service to turn a free-text description into a goal.
// The returned goal has no icon; the catalog assigns it by position.
func (c *Client) AddGoal(ctx context.Context, description string, goalCount int) (viz.Goal, error) {
	const op = "add goal"
	var rs GoalRS
	if err := c.doJSON(ctx, http.MethodPost, "/visualize/goaladdition", op, GoalAdditionRQ{Description: description, GoalCount: goalCount}, &rs); err != nil {
		return viz.Goal{}, err
	}
	if rs.ID == "" || rs.Question == "" {
		return viz.Goal{}, viz.DataShapef(op, "response lacks id or question")
	}
	return viz.Goal{ID: rs.ID, Question: rs.Question}, nil
}
