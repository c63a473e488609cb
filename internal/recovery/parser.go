package recovery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"studyforge/internal/services"
)

// Policy controls what Parse does when no records survive.
type Policy int

const (
	// RequireRecords fails with ErrNoRecords when nothing was recovered.
	RequireRecords Policy = iota
	// AllowEmpty returns an empty, valid result instead.
	AllowEmpty
)

// Method names the path that produced a result.
type Method string

const (
	MethodDirect   Method = "direct"
	MethodBalanced Method = "balanced"
	MethodSalvaged Method = "salvaged"
	MethodEmpty    Method = "empty"
)

// ErrNoRecords reports that no usable record could be recovered.
var ErrNoRecords = fmt.Errorf("%w: no structured records recovered", services.ErrValidation)

// Options configures Parse.
type Options struct {
	// Key names the array inside a wrapping object, e.g. "flashcards". When
	// empty the top-level array, or the first field of a top-level object
	// holding an array of records, is used.
	Key    string
	Policy Policy
}

// Result holds recovered records in source order.
type Result struct {
	Records []json.RawMessage
	Method  Method
	// Warning is set whenever the output needed repair.
	Warning string
}

// Recovered reports whether repair was needed.
func (r Result) Recovered() bool {
	return r.Method == MethodBalanced || r.Method == MethodSalvaged
}

// Parse extracts the target record array from raw generator text.
func Parse(raw string, opts Options) (Result, error) {
	text := StripArtifacts(raw)

	if records, ok := parseRecords(text, opts.Key); ok {
		return finish(records, MethodDirect, opts.Policy)
	}
	if balanced := balance(text); balanced != text {
		if records, ok := parseRecords(balanced, opts.Key); ok {
			return finish(dropUnclosed(records, text, opts.Key), MethodBalanced, opts.Policy)
		}
	}
	return finish(salvage(text, opts.Key), MethodSalvaged, opts.Policy)
}

// dropUnclosed trims records the balancer had to close itself, so a record
// cut off mid-way is never returned half-initialized.
func dropUnclosed(records []json.RawMessage, original, key string) []json.RawMessage {
	closed := salvage(original, key)
	if len(closed) < len(records) {
		return records[:len(closed)]
	}
	return records
}

func finish(records []json.RawMessage, method Method, policy Policy) (Result, error) {
	if len(records) == 0 {
		if policy == AllowEmpty {
			return Result{Records: []json.RawMessage{}, Method: MethodEmpty}, nil
		}
		return Result{Method: method}, ErrNoRecords
	}
	result := Result{Records: records, Method: method}
	if method != MethodDirect {
		result.Warning = fmt.Sprintf("recovered %d records via %s parse", len(records), method)
	}
	return result, nil
}

// StripArtifacts removes code fences and any prose before the first JSON
// opening character.
func StripArtifacts(raw string) string {
	text := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if idx := strings.Index(text, "```"); idx >= 0 && strings.IndexAny(text[:idx], "[{") < 0 {
		body := text[idx+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], "[{") {
			body = body[nl+1:]
		} else if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
			body = body[4:]
		}
		if end := strings.LastIndex(body, "```"); end >= 0 {
			body = body[:end]
		}
		text = strings.TrimSpace(body)
	}
	if start := strings.IndexAny(text, "[{"); start > 0 {
		text = text[start:]
	}
	return strings.TrimSpace(text)
}

// parseRecords decodes the first JSON value in text and extracts the target
// array. Trailing prose after the value is ignored.
func parseRecords(text, key string) ([]json.RawMessage, bool) {
	if text == "" {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(text))
	var value json.RawMessage
	if err := dec.Decode(&value); err != nil {
		return nil, false
	}
	return extractArray(value, key)
}

func extractArray(value json.RawMessage, key string) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 {
		return nil, false
	}
	switch trimmed[0] {
	case '[':
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, false
		}
		return records, true
	case '{':
		if key != "" {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(trimmed, &fields); err != nil {
				return nil, false
			}
			field, ok := fields[key]
			if !ok {
				return nil, false
			}
			return extractArray(field, "")
		}
		if field, ok := firstRecordArray(trimmed); ok {
			return extractArray(field, "")
		}
		// A lone object is a single record.
		return []json.RawMessage{trimmed}, true
	default:
		return nil, false
	}
}

// firstRecordArray returns the first field, in document order, whose value is
// an array of objects or arrays. salvage applies the same rule to truncated
// text so both paths agree on the target.
func firstRecordArray(object json.RawMessage) (json.RawMessage, bool) {
	dec := json.NewDecoder(bytes.NewReader(object))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, false
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return nil, false
		}
		var field json.RawMessage
		if err := dec.Decode(&field); err != nil {
			return nil, false
		}
		field = bytes.TrimSpace(field)
		if len(field) > 0 && field[0] == '[' && holdsRecords(string(field[1:])) {
			return field, true
		}
	}
	return nil, false
}

// holdsRecords reports whether the array body after '[' starts with an
// object or array element.
func holdsRecords(body string) bool {
	body = strings.TrimLeft(body, " \t\r\n")
	return len(body) > 0 && (body[0] == '{' || body[0] == '[')
}

// Decode unmarshals each record into T. Records that fail to decode are
// skipped and counted.
func Decode[T any](result Result) ([]T, int, error) {
	items := make([]T, 0, len(result.Records))
	skipped := 0
	for _, record := range result.Records {
		var item T
		if err := json.Unmarshal(record, &item); err != nil {
			skipped++
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 && skipped > 0 {
		return nil, skipped, fmt.Errorf("decode records: %w", ErrNoRecords)
	}
	return items, skipped, nil
}

// IncompleteError reports a recovery that returned too few records.
type IncompleteError struct {
	Got       int
	Requested int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("incomplete generation: got %d of %d requested records", e.Got, e.Requested)
}

// ErrorKind classifies the error for logging and retry decisions.
func (e *IncompleteError) ErrorKind() services.ErrorKind {
	return services.ErrorKindValidation
}

func (e *IncompleteError) Unwrap() error {
	return services.ErrValidation
}

// CheckCompleteness rejects results with fewer than half the requested
// records.
func CheckCompleteness(got, requested int) error {
	if requested <= 0 {
		return nil
	}
	if got*2 < requested {
		return &IncompleteError{Got: got, Requested: requested}
	}
	return nil
}

// IsIncomplete reports whether err came from CheckCompleteness.
func IsIncomplete(err error) bool {
	var incomplete *IncompleteError
	return errors.As(err, &incomplete)
}
