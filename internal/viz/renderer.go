package viz

import (
	"fmt"
	"strings"
)

// Renderer selects the plotting backend the service renders with.
type Renderer string

const (
	RendererPrimary   Renderer = "matplotlib"
	RendererSecondary Renderer = "seaborn"
)

// ParseRenderer accepts the role names (primary, secondary) and the wire
// names (matplotlib, seaborn). Empty input selects the primary renderer.
func ParseRenderer(s string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "primary", string(RendererPrimary):
		return RendererPrimary, nil
	case "secondary", string(RendererSecondary):
		return RendererSecondary, nil
	}
	return "", fmt.Errorf("unknown renderer %q (want primary or secondary)", s)
}

// Valid reports whether r is a known renderer.
func (r Renderer) Valid() bool {
	return r == RendererPrimary || r == RendererSecondary
}

// RenderRequest names what to render.
type RenderRequest struct {
	Goal               Goal
	Renderer           Renderer
	VisualizationCount int
	Title              string
}
