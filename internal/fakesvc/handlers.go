package fakesvc

import (
	"fmt"
	"net/http"
	"strings"
)

var questionTemplates = []string{
	"How do sales vary by region?",
	"What is the trend of revenue over time?",
	"Which product categories contribute most to profit?",
	"How are customer ages distributed?",
	"Is there a relationship between discount and quantity?",
	"Which months show the highest order volume?",
	"How does shipping mode affect delivery time?",
	"What share of orders comes from each segment?",
	"Are there outliers in unit price?",
	"How does profit margin differ across markets?",
}

var titleTemplates = []string{
	"Bar chart of %s",
	"Line chart of %s",
	"Scatter plot of %s",
	"Box plot of %s",
	"Histogram of %s",
	"Heatmap of %s",
	"Stacked area chart of %s",
	"Pie chart of %s",
	"Violin plot of %s",
	"Grouped bar chart of %s",
}

type goalRQ struct {
	GoalCount int `json:"goalCount"`
}

type addGoalRQ struct {
	Description string `json:"description"`
	GoalCount   int    `json:"goalCount"`
}

type titlesRQ struct {
	VisualizationCount int `json:"visualization_count"`
}

type renderRQ struct {
	Goal                map[string]any `json:"goal"`
	VisualizationOption string         `json:"visualization_option"`
	VisualizationCount  int            `json:"visualization_count"`
	VisualizationTitle  string         `json:"visualization_title"`
}

type editRQ struct {
	NLPInput string `json:"nlpInput"`
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request, sess *session) {
	var rq goalRQ
	if err := decodeBody(r, &rq); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if rq.GoalCount < 1 || rq.GoalCount > len(questionTemplates) {
		writeValidation(w, "goalCount", fmt.Sprintf("goalCount must be between 1 and %d", len(questionTemplates)))
		return
	}
	sess.goals = sess.goals[:0]
	out := make([]map[string]any, 0, rq.GoalCount)
	for i := 0; i < rq.GoalCount; i++ {
		sess.goals = append(sess.goals, questionTemplates[i])
		out = append(out, map[string]any{"id": i, "question": questionTemplates[i]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": out})
}

func (s *Server) handleAddGoal(w http.ResponseWriter, r *http.Request, sess *session) {
	var rq addGoalRQ
	if err := decodeBody(r, &rq); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	desc := strings.TrimSpace(rq.Description)
	if desc == "" {
		writeValidation(w, "description", "description must not be empty")
		return
	}
	id := len(sess.goals)
	sess.goals = append(sess.goals, desc)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "question": desc})
}

func (s *Server) handleTitles(w http.ResponseWriter, r *http.Request, sess *session) {
	var rq titlesRQ
	if err := decodeBody(r, &rq); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if rq.VisualizationCount < 1 || rq.VisualizationCount > len(titleTemplates) {
		writeValidation(w, "visualization_count", fmt.Sprintf("visualization_count must be between 1 and %d", len(titleTemplates)))
		return
	}
	subject := "the dataset"
	if n := len(sess.goals); n > 0 {
		subject = strings.TrimSuffix(strings.ToLower(sess.goals[n-1]), "?")
	}
	titles := make([]string, rq.VisualizationCount)
	for i := range titles {
		titles[i] = fmt.Sprintf(titleTemplates[i], subject)
	}
	writeJSON(w, http.StatusOK, map[string]any{"visualizationTitles": titles})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request, sess *session) {
	var rq renderRQ
	if err := decodeBody(r, &rq); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(rq.VisualizationTitle) == "" {
		writeValidation(w, "visualization_title", "visualization_title must not be empty")
		return
	}
	if rq.VisualizationOption != "matplotlib" && rq.VisualizationOption != "seaborn" {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("unsupported visualization option %q", rq.VisualizationOption))
		return
	}
	question, _ := rq.Goal["question"].(string)
	sess.start(revision{Title: rq.VisualizationTitle, Library: rq.VisualizationOption, Question: question})
	s.writeRevision(w, sess.current())
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request, sess *session) {
	var rq editRQ
	if err := decodeBody(r, &rq); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	instruction := strings.TrimSpace(rq.NLPInput)
	if instruction == "" {
		writeValidation(w, "nlpInput", "nlpInput must not be empty")
		return
	}
	if len(sess.history) == 0 {
		writeDetail(w, http.StatusNotFound, "No visualization history found")
		return
	}
	sess.push(instruction)
	s.writeRevision(w, sess.current())
}

// handleUndo reports history errors the way the analysis service does: the
// inner status and detail are folded into a 500 detail.
func (s *Server) handleUndo(w http.ResponseWriter, _ *http.Request, sess *session) {
	if len(sess.history) == 0 {
		writeUndoError(w, http.StatusNotFound, "No visualization history found")
		return
	}
	if len(sess.history) <= 1 {
		writeUndoError(w, http.StatusBadRequest, "No previous edits to undo")
		return
	}
	sess.pop()
	s.writeRevision(w, sess.current())
}

func writeUndoError(w http.ResponseWriter, status int, detail string) {
	writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Error during handle undo editing: %d: %s", status, detail))
}

func (s *Server) handleExplain(w http.ResponseWriter, _ *http.Request, sess *session) {
	if len(sess.history) == 0 {
		writeDetail(w, http.StatusNotFound, "No visualization history found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"explanation": sess.current().explain()})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, _ *http.Request, sess *session) {
	if len(sess.history) == 0 {
		writeDetail(w, http.StatusNotFound, "No visualization history found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evaluation": sess.current().evaluate()})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request, sess *session) {
	sess.reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) writeRevision(w http.ResponseWriter, rev revision) {
	raster, err := rev.raster()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("render failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"visualization": map[string]string{"type": "image/png", "raster": raster},
	})
}
