package detect

import (
	"encoding/json"
	"errors"
	"strings"
)

type toolArguments struct {
	Detections []Detection `json:"detections"`
}

// ParseToolArguments decodes the arguments of a report_pest_detection call.
// Valid JSON that is not an object, or an object without detections, is an
// empty result, not an error.
func ParseToolArguments(raw string) ([]Detection, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if _, ok := v.(map[string]any); !ok {
		return []Detection{}, nil
	}

	var args toolArguments
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if args.Detections == nil {
		return []Detection{}, nil
	}
	return args.Detections, nil
}

// ParseContent decodes free-text model output after removing a surrounding
// markdown code fence. The payload may be a bare array or an object with a
// detections array. Empty content means no detections.
func ParseContent(raw string) ([]Detection, error) {
	text := StripCodeFence(raw)
	if text == "" {
		return []Detection{}, nil
	}

	data := []byte(text)
	switch data[0] {
	case '[':
		var ds []Detection
		if err := json.Unmarshal(data, &ds); err != nil {
			return nil, &ParseError{Raw: raw, Err: err}
		}
		if ds == nil {
			ds = []Detection{}
		}
		return ds, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, &ParseError{Raw: raw, Err: err}
		}
		if _, ok := obj["detections"]; !ok {
			return nil, &ParseError{Raw: raw, Err: errors.New("object has no detections key")}
		}
		return ParseToolArguments(text)
	default:
		return nil, &ParseError{Raw: raw, Err: errors.New("content is not a JSON array or object")}
	}
}

// StripCodeFence trims whitespace and removes one opening fence line
// (``` with an optional language tag) and one closing ``` fence.
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		nl := strings.IndexByte(text, '\n')
		if nl < 0 {
			// Single-line fence: ```json [...] ```
			text = strings.TrimPrefix(text, "```")
			text = strings.TrimLeftFunc(text, isLangTagRune)
		} else {
			text = text[nl+1:]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func isLangTagRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}
