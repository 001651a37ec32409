package vizapi

import (
	"context"
	"encoding/base64"
	"net/http"

	"vizflow/internal/viz"
)

// GenerateTitles asks for visualizationCount candidate titles for the goal
// the service currently has in context.
func (c *Client) GenerateTitles(ctx context.Context, visualizationCount int) ([]string, error) {
	const op = "generate titles"
	var rs TitlesRS
	if err := c.doJSON(ctx, http.MethodPost, "/visualize/visualization-titles", op, TitleGenerationRQ{VisualizationCount: visualizationCount}, &rs); err != nil {
		return nil, err
	}
	if rs.VisualizationTitles == nil {
		return nil, viz.DataShapef(op, "response has no visualizationTitles field")
	}
	return rs.VisualizationTitles, nil
}

// Render renders the chosen title. The service starts a fresh edit history
// for the rendered visualization.
func (c *Client) Render(ctx context.Context, r viz.RenderRequest) (viz.Raster, error) {
	const op = "render visualization"
	body := RenderRQ{
		Goal:                GoalRQ{ID: encodeGoalID(r.Goal.ID), Question: r.Goal.Question},
		VisualizationOption: string(r.Renderer),
		VisualizationCount:  r.VisualizationCount,
		VisualizationTitle:  r.Title,
	}
	var rs VisualizationRS
	if err := c.doJSON(ctx, http.MethodPost, "/visualize/visualizations", op, body, &rs); err != nil {
		return viz.Raster{}, err
	}
	return rasterOf(op, rs)
}

// rasterOf extracts the image from a render/edit/undo response.
func rasterOf(op string, rs VisualizationRS) (viz.Raster, error) {
	if rs.Visualization == nil {
		return viz.Raster{}, viz.DataShapef(op, "response has no visualization")
	}
	r := viz.NormalizeRaster(rs.Visualization.Type, rs.Visualization.Raster)
	if r.Data == "" {
		return viz.Raster{}, viz.DataShapef(op, "no valid image data found in the response")
	}
	if _, err := base64.StdEncoding.DecodeString(r.Data); err != nil {
		return viz.Raster{}, viz.DataShapef(op, "raster is not valid base64: %v", err)
	}
	return r, nil
}
