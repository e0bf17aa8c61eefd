package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeObject extracts a JSON object from raw model output. Models often
// wrap JSON in markdown fences or add a sentence before it; everything
// outside the outermost braces is ignored. Parse failures wrap
// ErrMalformedOutput.
func DecodeObject(raw string) (map[string]any, error) {
	text := stripFences(strings.TrimSpace(raw))
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in output (%d bytes)", ErrMalformedOutput, len(raw))
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return out, nil
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.Index(text, "\n"); nl >= 0 {
		text = text[nl+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
