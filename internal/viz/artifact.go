package viz

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// DefaultMimeType is used when the service omits the raster type.
const DefaultMimeType = "image/png"

// Raster is an image payload as returned by the service, before the
// workflow binds it to the title and goal it was rendered for.
type Raster struct {
	MimeType string
	Data     string // base64, no data-URI header
}

// NormalizeRaster strips a data-URI header and surrounding whitespace from
// a base64 payload and defaults an empty mime type.
func NormalizeRaster(mimeType, data string) Raster {
	data = strings.TrimSpace(data)
	if i := strings.LastIndex(data, ","); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+1:]
	}
	data = strings.TrimSpace(data)
	if mimeType = strings.TrimSpace(mimeType); mimeType == "" {
		mimeType = DefaultMimeType
	}
	return Raster{MimeType: mimeType, Data: data}
}

// UndoResult is the gateway's answer to an undo request. Exhausted means
// the service holds no earlier revision; Raster is empty in that case.
type UndoResult struct {
	Raster    Raster
	Exhausted bool
}

// Artifact is a rendered visualization. Artifacts are values: every edit,
// undo or render produces a new one.
type Artifact struct {
	MimeType    string `json:"mime_type"`
	Payload     string `json:"payload"`
	SourceTitle string `json:"source_title"`
	SourceGoal  Goal   `json:"source_goal"`
}

// NewArtifact binds a raster to the title and goal it belongs to.
func NewArtifact(r Raster, title string, goal Goal) Artifact {
	return Artifact{
		MimeType:    r.MimeType,
		Payload:     r.Data,
		SourceTitle: title,
		SourceGoal:  goal,
	}
}

// IsZero reports whether a is the zero artifact.
func (a Artifact) IsZero() bool { return a.Payload == "" }

// DataURI returns the displayable image reference.
func (a Artifact) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", a.MimeType, a.Payload)
}

// Decode returns the raw image bytes.
func (a Artifact) Decode() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(a.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode artifact payload: %w", err)
	}
	return b, nil
}

// SameContent reports whether both artifacts carry the same image.
func (a Artifact) SameContent(b Artifact) bool {
	return a.MimeType == b.MimeType && a.Payload == b.Payload
}

// Digest is a short content hash used to tell artifacts apart in output.
func (a Artifact) Digest() string {
	sum := sha256.Sum256([]byte(a.MimeType + "\x00" + a.Payload))
	return hex.EncodeToString(sum[:6])
}

// Extension returns a file extension matching the mime type.
func (a Artifact) Extension() string {
	switch a.MimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/svg+xml":
		return ".svg"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
