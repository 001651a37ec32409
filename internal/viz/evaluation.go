package viz

import (
	"fmt"
	"regexp"
	"strconv"
)

// Evaluation is one scored dimension of an evaluate-and-repair response.
// Score keeps the service's text (e.g. "Score: 7 / 10").
type Evaluation struct {
	Dimension string `json:"dimension"`
	Score     string `json:"score"`
	Rationale string `json:"rationale"`
}

var scorePattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// Value extracts the numeric score. Scores outside 0-10 are rejected.
func (e Evaluation) Value() (float64, error) {
	m := scorePattern.FindString(e.Score)
	if m == "" {
		return 0, fmt.Errorf("evaluation %q: no numeric score in %q", e.Dimension, e.Score)
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, fmt.Errorf("evaluation %q: %w", e.Dimension, err)
	}
	if v < 0 || v > 10 {
		return 0, fmt.Errorf("evaluation %q: score %g outside 0-10", e.Dimension, v)
	}
	return v, nil
}

// MeanScore averages the parseable scores. ok is false when none parse.
func MeanScore(evals []Evaluation) (mean float64, ok bool) {
	var sum float64
	var n int
	for _, e := range evals {
		v, err := e.Value()
		if err != nil {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
