package format

import (
	"fmt"
	"strings"

	"vizflow/internal/display"
	"vizflow/internal/rendercache"
	"vizflow/internal/viz"
	"vizflow/internal/workflow"
)

// GoalsTable lists the goal catalog, marking the selected goal.
func GoalsTable(m Mode, goals []viz.Goal, selected viz.GoalID) string {
	tb := newSheet(m, "Goals", col(""), col("ID"), col(""), wrapped("Question", 80))
	for _, g := range goals {
		tb.row(mark(g.ID == selected), g.ID, display.Icon(string(g.Icon)), g.Question)
	}
	return tb.String()
}

// TitlesTable lists candidate titles, marking the chosen one.
func TitlesTable(m Mode, ts viz.TitleSet, chosen string) string {
	caption := fmt.Sprintf("Titles for goal %s (count %d)", ts.GoalID, ts.Count)
	tb := newSheet(m, caption, right("#"), col(""), wrapped("Title", 80))
	for i, t := range ts.Titles {
		tb.row(i+1, mark(t == chosen), t)
	}
	return tb.String()
}

// EvaluationTable lists evaluation dimensions with a mean-score footer.
func EvaluationTable(m Mode, evals []viz.Evaluation) string {
	tb := newSheet(m, "Evaluation", col("Dimension"), right("Score"), wrapped("Rationale", 72))
	for _, e := range evals {
		score := e.Score
		if v, err := e.Value(); err == nil {
			score = fmt.Sprintf("%g / 10", v)
		}
		tb.row(display.Dimension(e.Dimension), score, e.Rationale)
	}
	if mean, ok := viz.MeanScore(evals); ok {
		tb.footer("MEAN", fmt.Sprintf("%.1f / 10", mean), "")
	}
	return tb.String()
}

// NoticesTable lists undismissed notices.
func NoticesTable(m Mode, notices []workflow.Notice) string {
	tb := newSheet(m, "Notices", right("ID"), col("Kind"), col("Operation"), wrapped("Message", 72), col("At"))
	for _, n := range notices {
		tb.row(n.ID, display.Kind(string(n.Kind)), n.Op, n.Message, n.At.Format("15:04:05"))
	}
	return tb.String()
}

// StateSummary renders a session summary as aligned key/value lines.
func StateSummary(sum workflow.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stage:      %s\n", display.Stage(string(sum.Stage)))
	if sum.InFlight != "" {
		fmt.Fprintf(&b, "In flight:  %s\n", sum.InFlight)
	}
	fmt.Fprintf(&b, "Goals:      %d\n", len(sum.Goals))
	if sum.Selected != nil {
		fmt.Fprintf(&b, "Selected:   %s\n", sum.Selected)
		fmt.Fprintf(&b, "Count:      %d\n", sum.Count)
	}
	if len(sum.Titles) > 0 {
		fmt.Fprintf(&b, "Titles:     %d\n", len(sum.Titles))
	}
	if sum.Chosen != "" {
		fmt.Fprintf(&b, "Title:      %s\n", sum.Chosen)
	}
	if a := sum.Artifact; a != nil {
		fmt.Fprintf(&b, "Artifact:   %s %s (%s base64)\n", a.MimeType, a.Digest, FmtBytes(a.Bytes))
	}
	return b.String()
}

// CacheTable lists cached artifacts, one row per session key.
func CacheTable(m Mode, entries []rendercache.Entry) string {
	tb := newSheet(m, "Render cache", col("Session"), col("Title"), col("Goal"), col("Type"), right("Size"), col("Saved"))
	for _, e := range entries {
		saved := "-"
		if !e.SavedAt.IsZero() {
			saved = e.SavedAt.Local().Format("2006-01-02 15:04")
		}
		tb.row(e.SessionKey, Truncate(e.Artifact.SourceTitle, 48), e.Artifact.SourceGoal.ID,
			e.Artifact.MimeType, FmtBytes(len(e.Artifact.Payload)), saved)
	}
	return tb.String()
}
