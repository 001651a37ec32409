package logging

import (
	"log/slog"
	"strings"
)

var secretKeys = map[string]bool{
	"authorization": true,
	"token":         true,
	"bearer":        true,
	"api_key":       true,
	"apikey":        true,
	"secret":        true,
}

// RedactValue masks all but the last four characters of a secret. A
// "Bearer " prefix is preserved.
func RedactValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "bearer ") {
		return "Bearer " + mask(trimmed[7:])
	}
	return mask(trimmed)
}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if !secretKeys[strings.ToLower(a.Key)] {
		return a
	}
	return slog.String(a.Key, RedactValue(a.Value.String()))
}

func mask(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
