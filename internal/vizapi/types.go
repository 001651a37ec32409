package vizapi

import (
	"encoding/json"
	"strconv"

	"vizflow/internal/viz"
)

// GoalGenerationRQ is the body of POST /visualize/goalgenerator.
type GoalGenerationRQ struct {
	GoalCount int `json:"goalCount"`
}

// GoalAdditionRQ is the body of POST /visualize/goaladdition.
type GoalAdditionRQ struct {
	Description string `json:"description"`
	GoalCount   int    `json:"goalCount"`
}

// GoalRS is one goal as the service sends it.
type GoalRS struct {
	ID       viz.GoalID `json:"id"`
	Question string     `json:"question"`
}

// GoalsRS is the response of POST /visualize/goalgenerator.
type GoalsRS struct {
	Goals []GoalRS `json:"goals"`
}

// TitleGenerationRQ is the body of POST /visualize/visualization-titles.
type TitleGenerationRQ struct {
	VisualizationCount int `json:"visualization_count"`
}

// TitlesRS is the response of POST /visualize/visualization-titles.
type TitlesRS struct {
	VisualizationTitles []string `json:"visualizationTitles"`
}

// GoalRQ is a goal echoed back to the service in a render request.
type GoalRQ struct {
	ID       json.RawMessage `json:"id"`
	Question string          `json:"question"`
}

// RenderRQ is the body of POST /visualize/visualizations.
type RenderRQ struct {
	Goal                GoalRQ `json:"goal"`
	VisualizationOption string `json:"visualization_option"`
	VisualizationCount  int    `json:"visualization_count"`
	VisualizationTitle  string `json:"visualization_title"`
}

// EditRQ is the body of POST /visualize/edit-visualization.
type EditRQ struct {
	NLPInput string `json:"nlpInput"`
}

// VisualizationResource is the image part of render, edit and undo responses.
type VisualizationResource struct {
	Type   string `json:"type"`
	Raster string `json:"raster"`
}

// VisualizationRS is the response of render, edit and undo.
// HistoryExhausted is only meaningful for undo.
type VisualizationRS struct {
	Visualization    *VisualizationResource `json:"visualization"`
	HistoryExhausted bool                   `json:"historyExhausted,omitempty"`
}

// ExplanationRS is the response of GET /visualize/explain-visualization.
type ExplanationRS struct {
	Explanation *string `json:"explanation"`
}

// EvaluationRS is the response of GET /visualize/evaluate-visualization.
type EvaluationRS struct {
	Evaluation []viz.Evaluation `json:"evaluation"`
}

// encodeGoalID sends numeric ids back as JSON numbers so the service sees
// the same type it issued.
func encodeGoalID(id viz.GoalID) json.RawMessage {
	s := string(id)
	if n, err := strconv.Atoi(s); err == nil && strconv.Itoa(n) == s {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}
