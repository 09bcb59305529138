package util

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrEmptyResponse = errors.New("empty response")

// StripCodeFences removes markdown code fences around a model response.
// Handles ```json and bare ``` fences, including doubled fences.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	for strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
	}
	for strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

// DecodeLenient decodes a model response that should be JSON but may arrive
// fenced or with trailing garbage: strip fences, try a strict unmarshal,
// and on failure decode only the leading well-formed value.
func DecodeLenient(raw string, v any) error {
	s := StripCodeFences(raw)
	if s == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	return dec.Decode(v)
}

// Truncate shortens s to at most n runes for raw-response excerpts in errors.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
