// Package llmjson decodes JSON objects out of model-generated text. Models
// wrap JSON in prose or code fences; Decode tolerates both.
package llmjson

import (
	"encoding/json"
	"strings"
)

// Decode parses text into T. It tries the whole text first, then the first
// balanced {...} object found in it. ok is false when neither parses.
func Decode[T any](text string) (v T, ok bool) {
	trimmed := strings.TrimSpace(stripFence(text))
	if trimmed == "" {
		return v, false
	}
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, true
	}
	obj := ExtractObject(trimmed)
	if obj == "" {
		return v, false
	}
	var out T
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return v, false
	}
	return out, true
}

// ExtractObject returns the first balanced JSON object in text, or "".
func ExtractObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func stripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(t), "```")
}
