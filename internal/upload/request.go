// Package upload issues presigned write URLs for direct browser uploads.
// A client declares the file it wants to upload; the handler validates the
// declaration, applies the configured policy, picks a random object path and
// answers with the URL to PUT to and the URL the object will be served from.
package upload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Request is the body of an upload request. Size is whatever number the
// client declared; it is only bounded by a configured Policy.
type Request struct {
	Filename    string  `json:"filename" example:"avatar.png"`
	ContentType string  `json:"contentType" example:"image/png"`
	Size        float64 `json:"size" example:"48213"`
}

// ValidationError lists every problem found in an upload request, keyed by
// field. Errors holds problems with the body as a whole.
type ValidationError struct {
	Errors []string
	Fields map[string][]string
}

func (e *ValidationError) add(field, msg string) {
	if field == "" {
		e.Errors = append(e.Errors, msg)
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

func (e *ValidationError) empty() bool {
	return len(e.Errors) == 0 && len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	parts := append([]string(nil), e.Errors...)

	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e.Fields[f], ", "))
	}
	return "invalid upload request: " + strings.Join(parts, "; ")
}

// MarshalJSON renders the error keyed by field path:
//
//	{"_errors": [], "size": {"_errors": ["Required"]}}
func (e *ValidationError) MarshalJSON() ([]byte, error) {
	out := map[string]any{"_errors": nonNil(e.Errors)}
	for f, msgs := range e.Fields {
		out[f] = map[string][]string{"_errors": nonNil(msgs)}
	}
	return json.Marshal(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// DecodeRequest parses data as JSON and validates it. Malformed JSON is
// reported as a ValidationError like any other bad input.
func DecodeRequest(data []byte) (Request, *ValidationError) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Request{}, &ValidationError{Errors: []string{"Invalid JSON"}}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Request{}, &ValidationError{Errors: []string{"Invalid JSON"}}
	}
	return Validate(v)
}

// Validate checks that v, a value decoded by encoding/json, has the shape of
// a Request. It never returns both a usable Request and an error.
func Validate(v any) (Request, *ValidationError) {
	verr := &ValidationError{}

	obj, ok := v.(map[string]any)
	if !ok {
		verr.add("", fmt.Sprintf("Expected object, received %s", typeName(v)))
		return Request{}, verr
	}

	var req Request
	req.Filename = requireString(verr, obj, "filename")
	req.ContentType = requireString(verr, obj, "contentType")
	req.Size = requireNumber(verr, obj, "size")

	if !verr.empty() {
		return Request{}, verr
	}
	return req, nil
}

func requireString(verr *ValidationError, obj map[string]any, field string) string {
	raw, ok := obj[field]
	if !ok {
		verr.add(field, "Required")
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		verr.add(field, fmt.Sprintf("Expected string, received %s", typeName(raw)))
		return ""
	}
	if s == "" {
		verr.add(field, "String must contain at least 1 character(s)")
	}
	return s
}

func requireNumber(verr *ValidationError, obj map[string]any, field string) float64 {
	raw, ok := obj[field]
	if !ok {
		verr.add(field, "Required")
		return 0
	}

	switch n := raw.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			verr.add(field, "Number is out of range")
			return 0
		}
		return f
	case float64:
		return n
	default:
		verr.add(field, fmt.Sprintf("Expected number, received %s", typeName(raw)))
		return 0
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
