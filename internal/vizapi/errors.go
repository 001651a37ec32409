package vizapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// errorBody covers the error envelopes the service may send: FastAPI's
// {"detail": "..."} or {"detail": [{"msg": ...}]}, and {"message": ...}.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

type detailItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// errorMessage extracts the structured error message from a failure body,
// falling back to a generic message when none is present.
func errorMessage(body []byte, operation, status string) string {
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		if msg := detailMessage(eb.Detail); msg != "" {
			return msg
		}
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	return fmt.Sprintf("%s failed (%s)", operation, status)
}

func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var items []detailItem
	if json.Unmarshal(raw, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg == "" {
				continue
			}
			if len(it.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%s: %s", joinLoc(it.Loc), it.Msg))
				continue
			}
			msgs = append(msgs, it.Msg)
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

func joinLoc(loc []any) string {
	parts := make([]string, len(loc))
	for i, p := range loc {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ".")
}
