package toolcall

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrMalformedCall is wrapped by every per-instance parse failure.
var ErrMalformedCall = errors.New("malformed tool call")

// Dialect identifies the syntax a tool call was written in.
type Dialect int

const (
	DialectLegacy     Dialect = iota // TOOL_CALL:name(k=v, ...)
	DialectStructured                // {"tool": "name", "args": {...}}
)

func (d Dialect) String() string {
	switch d {
	case DialectLegacy:
		return "legacy"
	case DialectStructured:
		return "structured"
	default:
		return fmt.Sprintf("Dialect(%d)", int(d))
	}
}

// MarshalText renders the dialect name.
func (d Dialect) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Call is one tool invocation found in an agent response.
type Call struct {
	Name    string
	Args    map[string]any
	Dialect Dialect
	Raw     string // Matched source text
	Offset  int    // Byte offset of Raw in the response
}

// Command renders the call the way it is recorded in the context log.
func (c Call) Command() string {
	if c.Dialect == DialectLegacy {
		return strings.TrimPrefix(c.Raw, legacyPrefix)
	}
	args, _ := json.Marshal(c.Args)
	return fmt.Sprintf("%s(%s)", c.Name, args)
}

// ParseResult is either a Call or the reason one instance could not be parsed.
type ParseResult struct {
	Call Call
	Err  error
}

const legacyPrefix = "TOOL_CALL:"

var (
	legacyPattern     = regexp.MustCompile(`TOOL_CALL:\s*(\w+)\s*\(`)
	structuredPattern = regexp.MustCompile(`\{\s*"tool"\s*:`)
)

// Parse scans text for tool calls in both dialects. Results are ordered by
// their position in text. A malformed instance yields a result with Err set
// and never stops the scan.
func Parse(text string) []ParseResult {
	results := append(parseLegacy(text), parseStructured(text)...)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Call.Offset < results[j].Call.Offset
	})
	return results
}

func parseLegacy(text string) []ParseResult {
	var results []ParseResult
	for _, loc := range legacyPattern.FindAllStringSubmatchIndex(text, -1) {
		start, open := loc[0], loc[1]
		name := text[loc[2]:loc[3]]

		end := closingParen(text, open)
		if end < 0 {
			raw := firstLine(text[start:])
			results = append(results, malformed(name, DialectLegacy, raw, start, "unterminated argument list"))
			continue
		}

		raw := text[start : end+1]
		args, err := parseLegacyArgs(text[open:end])
		if err != nil {
			results = append(results, malformed(name, DialectLegacy, raw, start, err.Error()))
			continue
		}
		results = append(results, ParseResult{Call: Call{
			Name:    name,
			Args:    args,
			Dialect: DialectLegacy,
			Raw:     raw,
			Offset:  start,
		}})
	}
	return results
}

// closingParen returns the index of the ')' closing the list opened just
// before from, ignoring parentheses inside quotes.
func closingParen(text string, from int) int {
	end := -1
	walkArgs(text[from:], func(i int) bool {
		switch text[from+i] {
		case ')':
			end = from + i
			return false
		case '\n':
			return !strings.HasPrefix(text[from+i+1:], legacyPrefix)
		}
		return true
	})
	return end
}

// walkArgs calls visit with the index of every byte of an argument list
// that lies outside quotes, until visit returns false. A quote opens only
// as the first non-blank character of a key or value; anywhere else it is
// an ordinary character.
func walkArgs(s string, visit func(i int) bool) {
	var quote byte
	atStart := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		if atStart && (c == '"' || c == '\'') {
			quote = c
			atStart = false
			continue
		}
		if !visit(i) {
			return
		}
		switch c {
		case ',', '=':
			atStart = true
		case ' ', '\t', '\n', '\r':
		default:
			atStart = false
		}
	}
}

// parseLegacyArgs splits "k1=v1, k2='v, 2'" on commas outside quotes.
// Values stay strings with one layer of surrounding quotes removed.
func parseLegacyArgs(s string) (map[string]any, error) {
	args := make(map[string]any)
	for _, part := range splitOutsideQuotes(s, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("argument %q is not key=value", part)
		}
		key = unquote(strings.TrimSpace(key))
		if key == "" {
			return nil, fmt.Errorf("argument %q has empty key", part)
		}
		args[key] = unquote(strings.TrimSpace(value))
	}
	return args, nil
}

func splitOutsideQuotes(s string, sep byte) []string {
	var parts []string
	last := 0
	walkArgs(s, func(i int) bool {
		if s[i] == sep {
			parts = append(parts, s[last:i])
			last = i + 1
		}
		return true
	})
	return append(parts, s[last:])
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		inner := s[1 : len(s)-1]
		return strings.NewReplacer(`\`+string(s[0]), string(s[0]), `\\`, `\`).Replace(inner)
	}
	return s
}

// structuredCall is the JSON shape of the structured dialect.
type structuredCall struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

func parseStructured(text string) []ParseResult {
	var results []ParseResult
	consumed := 0
	for _, loc := range structuredPattern.FindAllStringIndex(text, -1) {
		start := loc[0]
		if start < consumed {
			continue // nested inside a call already decoded
		}

		dec := json.NewDecoder(strings.NewReader(text[start:]))
		var sc structuredCall
		if err := dec.Decode(&sc); err != nil {
			raw := firstLine(text[start:])
			results = append(results, malformed("", DialectStructured, raw, start, err.Error()))
			continue
		}
		end := start + int(dec.InputOffset())
		consumed = end
		raw := text[start:end]

		if strings.TrimSpace(sc.Tool) == "" {
			results = append(results, malformed("", DialectStructured, raw, start, `empty "tool" name`))
			continue
		}

		args := map[string]any{}
		if len(sc.Args) > 0 && string(sc.Args) != "null" {
			if err := json.Unmarshal(sc.Args, &args); err != nil {
				results = append(results, malformed(sc.Tool, DialectStructured, raw, start, `"args" must be an object`))
				continue
			}
		}

		results = append(results, ParseResult{Call: Call{
			Name:    sc.Tool,
			Args:    args,
			Dialect: DialectStructured,
			Raw:     raw,
			Offset:  start,
		}})
	}
	return results
}

func malformed(name string, dialect Dialect, raw string, offset int, reason string) ParseResult {
	return ParseResult{
		Call: Call{Name: name, Dialect: dialect, Raw: raw, Offset: offset},
		Err:  fmt.Errorf("%w: %s", ErrMalformedCall, reason),
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
