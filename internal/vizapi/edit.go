package vizapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"vizflow/internal/viz"
)

// Edit applies a natural-language instruction to the service's current
// revision and returns the new rendering.
func (c *Client) Edit(ctx context.Context, instruction string) (viz.Raster, error) {
	const op = "apply edit"
	var rs VisualizationRS
	if err := c.doJSON(ctx, http.MethodPost, "/visualize/edit-visualization", op, EditRQ{NLPInput: instruction}, &rs); err != nil {
		return viz.Raster{}, err
	}
	return rasterOf(op, rs)
}

// undoExhaustedDetail is the service's message for an empty edit history.
// The service wraps it into a 500 detail, so it is matched as a substring.
const undoExhaustedDetail = "No previous edits to undo"

// Undo reverts the service to the revision before the last accepted edit.
//
// The service signals an empty history with historyExhausted=true in a
// success body, with HTTP 400/409, or with a 5xx whose detail carries
// undoExhaustedDetail; all map to UndoResult.Exhausted.
func (c *Client) Undo(ctx context.Context) (viz.UndoResult, error) {
	const op = "undo edit"
	var rs VisualizationRS
	err := c.doJSON(ctx, http.MethodGet, "/visualize/undo-edit", op, nil, &rs)
	if undoExhausted(err) {
		c.logger.InfoContext(ctx, "undo history exhausted", "operation", op, "error", err)
		return viz.UndoResult{Exhausted: true}, nil
	}
	if err != nil {
		return viz.UndoResult{}, err
	}
	if rs.HistoryExhausted {
		return viz.UndoResult{Exhausted: true}, nil
	}
	r, err := rasterOf(op, rs)
	if err != nil {
		return viz.UndoResult{}, err
	}
	return viz.UndoResult{Raster: r}, nil
}

func undoExhausted(err error) bool {
	var se *viz.ServiceError
	if !errors.As(err, &se) {
		return false
	}
	switch {
	case se.StatusCode == http.StatusBadRequest, se.StatusCode == http.StatusConflict:
		return true
	case se.StatusCode >= http.StatusInternalServerError:
		return strings.Contains(se.Message, undoExhaustedDetail)
	}
	return false
}

// Explain returns the service's explanation of the current revision.
func (c *Client) Explain(ctx context.Context) (string, error) {
	const op = "explain visualization"
	var rs ExplanationRS
	if err := c.doJSON(ctx, http.MethodGet, "/visualize/explain-visualization", op, nil, &rs); err != nil {
		return "", err
	}
	if rs.Explanation == nil {
		return "", viz.DataShapef(op, "response has no explanation")
	}
	return *rs.Explanation, nil
}

// Evaluate scores the current revision along the service's dimensions.
func (c *Client) Evaluate(ctx context.Context) ([]viz.Evaluation, error) {
	const op = "evaluate visualization"
	var rs EvaluationRS
	if err := c.doJSON(ctx, http.MethodGet, "/visualize/evaluate-visualization", op, nil, &rs); err != nil {
		return nil, err
	}
	if rs.Evaluation == nil {
		return nil, viz.DataShapef(op, "response has no evaluation")
	}
	return rs.Evaluation, nil
}

// ClearSession drops the service-held visualization state and history.
func (c *Client) ClearSession(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/visualize/clear-db", "clear session", nil, nil)
}
