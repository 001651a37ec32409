package viz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// GoalID is the opaque identifier the analysis service assigns to a goal.
// The service may send it as a JSON number or a JSON string.
type GoalID string

// UnmarshalJSON accepts both numeric and string ids.
func (id *GoalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("goal id: %w", err)
		}
		*id = GoalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("goal id: %w", err)
	}
	*id = GoalID(n.String())
	return nil
}

// Icon is a presentation hint attached to a goal by catalog position.
type Icon string

const (
	IconTrendingUp Icon = "trending-up"
	IconPieChart   Icon = "pie-chart"
	IconBarChart   Icon = "bar-chart"
	IconActivity   Icon = "activity"
)

var iconCycle = []Icon{IconTrendingUp, IconPieChart, IconBarChart, IconActivity}

// IconFor returns the icon for the goal at the given catalog position.
func IconFor(position int) Icon {
	if position < 0 {
		position = -position
	}
	return iconCycle[position%len(iconCycle)]
}

// Goal is one analysis question the workflow can visualize.
type Goal struct {
	ID       GoalID `json:"id"`
	Question string `json:"question"`
	Icon     Icon   `json:"icon,omitempty"`
}

// IsZero reports whether g is the zero goal.
func (g Goal) IsZero() bool { return g.ID == "" && g.Question == "" }

// String returns "#<id> <question>".
func (g Goal) String() string {
	return "#" + string(g.ID) + " " + strings.TrimSpace(g.Question)
}

// Bounds for goal counts and visualization counts.
const (
	MinCount = 1
	MaxCount = 10
)

// ValidCount reports whether n is an accepted goal or visualization count.
func ValidCount(n int) bool { return n >= MinCount && n <= MaxCount }

// TitleSet is the ordered list of candidate titles for exactly one
// (goal, visualization count) pair.
type TitleSet struct {
	GoalID GoalID   `json:"goal_id"`
	Count  int      `json:"count"`
	Titles []string `json:"titles"`
}

// Empty reports whether the set holds no titles.
func (ts TitleSet) Empty() bool { return len(ts.Titles) == 0 }

// Contains reports whether title is one of the candidates.
func (ts TitleSet) Contains(title string) bool {
	for _, t := range ts.Titles {
		if t == title {
			return true
		}
	}
	return false
}

// For reports whether the set was requested for the given goal and count.
func (ts TitleSet) For(goal GoalID, count int) bool {
	return !ts.Empty() && ts.GoalID == goal && ts.Count == count
}
