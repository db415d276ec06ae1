package airouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"talentscan/internal/domain"
)

var errNoJSON = errors.New("no JSON object or array found")

// ExtractJSON returns the first balanced JSON object or array in text.
// Models often wrap JSON in prose or code fences; both are skipped. Braces
// inside string literals do not count toward the balance.
//
// The scan is a single pass. A span that turns out mismatched or invalid is
// dropped as a whole and scanning resumes after it, so spans nested inside a
// rejected span are never candidates.
func ExtractJSON(text string) (string, error) {
	var stack []byte
	start := -1
	inString, escaped := false, false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if start < 0 {
			if c == '{' || c == '[' {
				start = i
				stack = append(stack[:0], closerOf(c))
			}
			continue
		}
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, closerOf(c))
		case '}', ']':
			if stack[len(stack)-1] != c {
				start = -1
				continue
			}
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				continue
			}
			if span := text[start : i+1]; json.Valid([]byte(span)) {
				return span, nil
			}
			start = -1
		}
	}
	return "", domain.NewResponseParseError("", text, errNoJSON)
}

func closerOf(open byte) byte {
	if open == '{' {
		return '}'
	}
	return ']'
}

// Generator is the part of Router that GenerateJSON needs.
type Generator interface {
	GenerateValidated(ctx context.Context, prompt string, task domain.TaskCategory, accept func(string) error) (domain.InvocationResult, error)
}

var _ Generator = (*Router)(nil)

// GenerateJSON routes prompt like Generate and decodes the response into T.
// A response without decodable JSON fails that attempt, so the next provider
// in the chain gets a chance.
func GenerateJSON[T any](ctx context.Context, r Generator, prompt string, task domain.TaskCategory) (T, domain.InvocationResult, error) {
	return GenerateJSONWith[T](ctx, r, prompt, task, nil)
}

// GenerateJSONWith is GenerateJSON with an extra check run on the extracted
// JSON before decoding. A check failure is a parse failure for that attempt.
func GenerateJSONWith[T any](ctx context.Context, r Generator, prompt string, task domain.TaskCategory, check func(span []byte) error) (T, domain.InvocationResult, error) {
	var out T
	accept := func(text string) error {
		span, err := ExtractJSON(text)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check([]byte(span)); err != nil {
				return domain.NewResponseParseError("", text, err)
			}
		}
		var v T
		if err := json.Unmarshal([]byte(span), &v); err != nil {
			return domain.NewResponseParseError("", text, fmt.Errorf("decode: %w", err))
		}
		out = v
		return nil
	}

	res, err := r.GenerateValidated(ctx, prompt, task, accept)
	if err != nil {
		var zero T
		return zero, res, err
	}
	return out, res, nil
}
