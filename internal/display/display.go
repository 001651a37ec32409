// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output, MCP text and logs.
// Keep raw codes for JSON fields, map keys, and equality comparisons.
package display

import "strings"

// --- Workflow Stages ---

var stages = map[string]string{
	"idle":           "Idle",
	"goals_loaded":   "Goals Loaded",
	"goal_selected":  "Goal Selected",
	"titles_loaded":  "Titles Loaded",
	"artifact_ready": "Visualization Ready",
	"editing":        "Editing",
}

// Stage returns the human-readable name for a workflow stage code.
// "artifact_ready" -> "Visualization Ready".
func Stage(code string) string {
	if name, ok := stages[code]; ok {
		return name
	}
	return code
}

// StagePath converts a slice of stage codes to a human-readable path.
// ["idle", "goals_loaded"] -> "Idle → Goals Loaded"
func StagePath(codes []string) string {
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = Stage(c)
	}
	return strings.Join(names, " → ")
}

// --- Renderers ---

var renderers = map[string]string{
	"matplotlib": "primary",
	"seaborn":    "secondary",
}

// Renderer returns "matplotlib (primary)" for a wire renderer name.
func Renderer(code string) string {
	if role, ok := renderers[code]; ok {
		return code + " (" + role + ")"
	}
	return code
}

// --- Evaluation Dimensions ---

var dimensions = map[string]string{
	"bugs":           "Bugs",
	"transformation": "Data Transformation",
	"compliance":     "Goal Compliance",
	"type":           "Visualization Type",
	"encoding":       "Data Encoding",
	"aesthetics":     "Aesthetics",
}

// Dimension returns the human-readable name for an evaluation dimension.
// Unknown dimensions are title-cased.
func Dimension(code string) string {
	if name, ok := dimensions[strings.ToLower(code)]; ok {
		return name
	}
	if code == "" {
		return code
	}
	return strings.ToUpper(code[:1]) + code[1:]
}

// DimensionWithCode returns "Goal Compliance (compliance)" format.
func DimensionWithCode(code string) string {
	if name, ok := dimensions[strings.ToLower(code)]; ok {
		return name + " (" + code + ")"
	}
	return code
}

// --- Failure Kinds ---

var kinds = map[string]string{
	"validation": "Invalid Request",
	"network":    "Network Failure",
	"service":    "Service Error",
	"data_shape": "Unexpected Response",
	"busy":       "Busy",
	"internal":   "Internal Error",
}

// Kind returns the human-readable name for a failure kind.
func Kind(code string) string {
	if name, ok := kinds[code]; ok {
		return name
	}
	return code
}

// --- Goal Icons ---

var icons = map[string]string{
	"trending-up": "↗",
	"pie-chart":   "◔",
	"bar-chart":   "▥",
	"activity":    "∿",
}

// Icon returns a single-glyph rendering of a goal icon name.
func Icon(name string) string {
	if g, ok := icons[name]; ok {
		return g
	}
	return "•"
}
