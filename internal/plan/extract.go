package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// excerptLimit bounds the offending text carried by ExtractionError.
const excerptLimit = 200

// ErrExtractionFailed is matched by every *ExtractionError.
var ErrExtractionFailed = errors.New("plan extraction failed")

// ExtractionError reports text that held no parseable JSON object or array.
type ExtractionError struct {
	Reason  string
	Excerpt string // At most 200 characters of the source text
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract JSON from response (%s): %q", e.Reason, e.Excerpt)
}

func (e *ExtractionError) Unwrap() error { return ErrExtractionFailed }

func newExtractionError(reason, text string) *ExtractionError {
	return &ExtractionError{Reason: reason, Excerpt: excerpt(text)}
}

func excerpt(text string) string {
	r := []rune(text)
	if len(r) > excerptLimit {
		return string(r[:excerptLimit])
	}
	return text
}

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\r?\n?(.*?)```")

// Extract locates the JSON payload in a free-text model response.
// Fenced code blocks win; the first one holding valid JSON is returned.
// Otherwise the span from the first opening bracket to the last matching
// closing bracket is tried.
func Extract(text string) (json.RawMessage, error) {
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if !startsJSON(body) {
			continue
		}
		if json.Valid([]byte(body)) {
			return json.RawMessage(body), nil
		}
	}

	if raw, ok := bracketSpan(text); ok {
		return raw, nil
	}

	if !strings.ContainsAny(text, "{[") {
		return nil, newExtractionError("no JSON object or array found", text)
	}
	return nil, newExtractionError("no parseable JSON found", text)
}

// Decode extracts the JSON payload from text and unmarshals it into v.
func Decode(text string, v any) error {
	raw, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ExtractionError{Reason: err.Error(), Excerpt: excerpt(string(raw))}
	}
	return nil
}

func startsJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// bracketSpan tries the object and array spans, whichever opens first.
func bracketSpan(text string) (json.RawMessage, bool) {
	pairs := [][2]byte{{'{', '}'}, {'[', ']'}}
	if ai, oi := strings.IndexByte(text, '['), strings.IndexByte(text, '{'); ai >= 0 && (oi < 0 || ai < oi) {
		pairs[0], pairs[1] = pairs[1], pairs[0]
	}

	for _, p := range pairs {
		start := strings.IndexByte(text, p[0])
		end := strings.LastIndexByte(text, p[1])
		if start < 0 || end <= start {
			continue
		}
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), true
		}
	}
	return nil, false
}
