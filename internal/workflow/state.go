package workflow

import (
	"vizflow/internal/viz"
)

// Stage names a workflow state.
type Stage string

const (
	StageIdle          Stage = "idle"
	StageGoalsLoaded   Stage = "goals_loaded"
	StageGoalSelected  Stage = "goal_selected"
	StageTitlesLoaded  Stage = "titles_loaded"
	StageArtifactReady Stage = "artifact_ready"
	StageEditing       Stage = "editing"
)

// State is one of Idle, GoalsLoaded, GoalSelected, TitlesLoaded,
// ArtifactReady or Editing. Values are never mutated in place; every
// transition builds a new one.
type State interface {
	Stage() Stage
	isState()
}

// Idle is the state of a fresh or cleared session.
type Idle struct{}

// GoalsLoaded holds a goal catalog with nothing selected.
type GoalsLoaded struct {
	Goals []viz.Goal
}

// GoalSelected is a catalog plus the goal that titles will be requested
// for. Count is the visualization count the next title request uses.
type GoalSelected struct {
	Goals []viz.Goal
	Goal  viz.Goal
	Count int
}

// TitlesLoaded holds candidate titles for the selected goal. Chosen is the
// title last picked for rendering, kept after a failed render so it can be
// retried.
type TitlesLoaded struct {
	GoalSelected
	Titles viz.TitleSet
	Chosen string
}

// ArtifactReady holds the active artifact. Titles is nil for a session
// resumed from the cache. Explanation memoizes Explain for this artifact.
type ArtifactReady struct {
	GoalSelected
	Titles      *viz.TitleSet
	Artifact    viz.Artifact
	Explanation string
}

// Editing is an ArtifactReady with an edit-session request in flight.
type Editing struct {
	ArtifactReady
	Op string
}

func (Idle) Stage() Stage          { return StageIdle }
func (GoalsLoaded) Stage() Stage   { return StageGoalsLoaded }
func (GoalSelected) Stage() Stage  { return StageGoalSelected }
func (TitlesLoaded) Stage() Stage  { return StageTitlesLoaded }
func (ArtifactReady) Stage() Stage { return StageArtifactReady }
func (Editing) Stage() Stage       { return StageEditing }

func (Idle) isState()          {}
func (GoalsLoaded) isState()   {}
func (GoalSelected) isState()  {}
func (TitlesLoaded) isState()  {}
func (ArtifactReady) isState() {}
func (Editing) isState()       {}

// goalsOf returns the catalog held by st.
func goalsOf(st State) []viz.Goal {
	switch s := st.(type) {
	case GoalsLoaded:
		return s.Goals
	case GoalSelected:
		return s.Goals
	case TitlesLoaded:
		return s.Goals
	case ArtifactReady:
		return s.Goals
	case Editing:
		return s.Goals
	}
	return nil
}

// selectionOf returns the selection embedded in st, if any.
func selectionOf(st State) (GoalSelected, bool) {
	switch s := st.(type) {
	case GoalSelected:
		return s, true
	case TitlesLoaded:
		return s.GoalSelected, true
	case ArtifactReady:
		return s.GoalSelected, true
	case Editing:
		return s.GoalSelected, true
	}
	return GoalSelected{}, false
}

// withGoals returns st with its catalog replaced, keeping the stage.
func withGoals(st State, goals []viz.Goal) State {
	switch s := st.(type) {
	case Idle, GoalsLoaded:
		return GoalsLoaded{Goals: goals}
	case GoalSelected:
		s.Goals = goals
		return s
	case TitlesLoaded:
		s.Goals = goals
		return s
	case ArtifactReady:
		s.Goals = goals
		return s
	case Editing:
		s.Goals = goals
		return s
	}
	return st
}

// Summary is a serializable view of a State.
type Summary struct {
	Stage       Stage            `json:"stage"`
	Goals       []viz.Goal       `json:"goals,omitempty"`
	Selected    *viz.Goal        `json:"selected,omitempty"`
	Count       int              `json:"visualization_count,omitempty"`
	Titles      []string         `json:"titles,omitempty"`
	Chosen      string           `json:"chosen_title,omitempty"`
	Artifact    *ArtifactSummary `json:"artifact,omitempty"`
	InFlight    string           `json:"in_flight,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
}

// ArtifactSummary describes an artifact without its payload.
type ArtifactSummary struct {
	MimeType    string     `json:"mime_type"`
	Digest      string     `json:"digest"`
	Bytes       int        `json:"size_base64"`
	SourceTitle string     `json:"source_title"`
	SourceGoal  viz.GoalID `json:"source_goal"`
}

// Summarize builds the Summary of st.
func Summarize(st State) Summary {
	sum := Summary{Stage: st.Stage(), Goals: goalsOf(st)}
	if sel, ok := selectionOf(st); ok {
		g := sel.Goal
		sum.Selected = &g
		sum.Count = sel.Count
	}
	var ready *ArtifactReady
	switch s := st.(type) {
	case TitlesLoaded:
		sum.Titles = s.Titles.Titles
		sum.Chosen = s.Chosen
	case ArtifactReady:
		ready = &s
	case Editing:
		ready = &s.ArtifactReady
		sum.InFlight = s.Op
	}
	if ready != nil {
		if ready.Titles != nil {
			sum.Titles = ready.Titles.Titles
		}
		sum.Chosen = ready.Artifact.SourceTitle
		sum.Explanation = ready.Explanation
		sum.Artifact = &ArtifactSummary{
			MimeType:    ready.Artifact.MimeType,
			Digest:      ready.Artifact.Digest(),
			Bytes:       len(ready.Artifact.Payload),
			SourceTitle: ready.Artifact.SourceTitle,
			SourceGoal:  ready.Artifact.SourceGoal.ID,
		}
	}
	return sum
}
