package fakesvc

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
)

// session is the service-side state for one credential.
type session struct {
	goals   []string
	history []revision
}

// revision is one entry of the edit history: the rendered title plus the
// chain of instructions applied on top of it.
type revision struct {
	Title    string
	Library  string
	Question string
	Edits    []string
}

func (s *session) start(rev revision) { s.history = []revision{rev} }

func (s *session) current() revision { return s.history[len(s.history)-1] }

func (s *session) push(instruction string) {
	cur := s.current()
	next := revision{
		Title:    cur.Title,
		Library:  cur.Library,
		Question: cur.Question,
		Edits:    append(append([]string(nil), cur.Edits...), instruction),
	}
	s.history = append(s.history, next)
}

func (s *session) pop() { s.history = s.history[:len(s.history)-1] }

func (s *session) reset() {
	s.goals = nil
	s.history = nil
}

func (r revision) key() string {
	return strings.Join(append([]string{r.Library, r.Title}, r.Edits...), "\x1f")
}

// raster renders an 8x8 PNG whose pixels are derived from the revision key.
func (r revision) raster() (string, error) {
	sum := sha256.Sum256([]byte(r.key()))
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			i := (y*8 + x) % (len(sum) - 2)
			img.Set(x, y, color.RGBA{R: sum[i], G: sum[i+1], B: sum[i+2], A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (r revision) explain() string {
	var b strings.Builder
	fmt.Fprintf(&b, "The chart %q is drawn with %s", r.Title, r.Library)
	if r.Question != "" {
		fmt.Fprintf(&b, " to answer %q", r.Question)
	}
	b.WriteString(".")
	if len(r.Edits) == 0 {
		b.WriteString(" It is the original rendering with no edits applied.")
		return b.String()
	}
	fmt.Fprintf(&b, " Applied edits: %s.", strings.Join(r.Edits, "; "))
	return b.String()
}

var dimensions = []string{"bugs", "transformation", "compliance", "type", "encoding", "aesthetics"}

func (r revision) evaluate() []map[string]string {
	sum := sha256.Sum256([]byte("eval\x1f" + r.key()))
	out := make([]map[string]string, len(dimensions))
	for i, d := range dimensions {
		score := 5 + int(sum[i])%6
		out[i] = map[string]string{
			"dimension": d,
			"score":     fmt.Sprintf("Score: %d / 10", score),
			"rationale": fmt.Sprintf("The %s of %q is rated %d.", d, r.Title, score),
			"separator": "**********************************",
		}
	}
	return out
}
