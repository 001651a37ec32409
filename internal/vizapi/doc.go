// Package vizapi is the HTTP client for the remote analysis service that
// generates goals, renders visualizations and keeps the edit history.
//
// Usage:
//
//	client, err := vizapi.New(baseURL, token, vizapi.WithTimeout(2*time.Minute))
//	goals, err := client.GenerateGoals(ctx, 5)
//	titles, err := client.GenerateTitles(ctx, 2)
//	raster, err := client.Render(ctx, viz.RenderRequest{Goal: goals[0], Title: titles[0], ...})
//	undo, err := client.Undo(ctx)
//
// The client only marshals requests, attaches the bearer credential and maps
// responses onto the viz error taxonomy. It holds no workflow state.
package vizapi
