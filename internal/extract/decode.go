package extract

import (
	"encoding/json"
	"strings"
)

// responseEnvelope is the contract the prompt asks the backend to fulfill.
type responseEnvelope struct {
	Fields         map[string]any    `json:"fields"`
	Justifications map[string]string `json:"justifications"`
}

// decodeResponse parses a model response leniently: direct parse first, then
// with code fences stripped, then the outermost JSON object located by brace
// scanning. Returns false when no candidate could be recovered; the caller
// folds that into the correction loop as an unparseable_response violation.
func decodeResponse(raw string) (*responseEnvelope, bool) {
	for _, text := range []string{raw, stripFences(raw), outermostObject(raw)} {
		if text == "" {
			continue
		}
		var env responseEnvelope
		if err := json.Unmarshal([]byte(text), &env); err == nil && env.Fields != nil {
			if env.Justifications == nil {
				env.Justifications = map[string]string{}
			}
			return &env, true
		}
	}
	return nil, false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return ""
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func outermostObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
