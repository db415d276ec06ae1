package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound             = fmt.Errorf("not found")
	ErrInvalidInput         = fmt.Errorf("invalid input")
	ErrTimeout              = fmt.Errorf("operation timed out")
	ErrConfigLoad           = fmt.Errorf("failed to load configuration")
	ErrDecryption           = fmt.Errorf("decryption failed")
	ErrProviderNotFound     = fmt.Errorf("llm provider not found")
	ErrProviderUnavailable  = fmt.Errorf("llm provider unavailable")
	ErrNoProvidersAvailable = fmt.Errorf("no providers available")
	ErrCircuitOpen          = fmt.Errorf("provider circuit open")

	// Resilience errors.
	ErrRateLimit      = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid    = fmt.Errorf("authentication failed")
	ErrContextLength  = fmt.Errorf("context window exceeded")
	ErrProviderServer = fmt.Errorf("provider server error")
	ErrEmptyResponse  = fmt.Errorf("provider returned empty response")
	ErrResponseParse  = fmt.Errorf("response could not be parsed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.Generate")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ProviderCallError records the failure of a single attempt against one provider.
// It always triggers fallback to the next candidate.
type ProviderCallError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderCallError) Unwrap() error { return e.Err }

// ResponseParseError reports that a provider's text could not be interpreted
// as the structured payload the caller expected.
type ResponseParseError struct {
	Provider string
	Snippet  string // leading part of the offending text
	Err      error
}

const maxSnippet = 120

// NewResponseParseError builds a ResponseParseError, truncating text to a
// short snippet for diagnostics.
func NewResponseParseError(provider, text string, err error) *ResponseParseError {
	snippet := strings.TrimSpace(text)
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet] + "..."
	}
	return &ResponseParseError{Provider: provider, Snippet: snippet, Err: err}
}

func (e *ResponseParseError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("%s: %v", ErrResponseParse, e.Err)
	}
	return fmt.Sprintf("%s from %s: %v", ErrResponseParse, e.Provider, e.Err)
}

// Is lets errors.Is(err, ErrResponseParse) match any ResponseParseError.
func (e *ResponseParseError) Is(target error) bool { return target == ErrResponseParse }

func (e *ResponseParseError) Unwrap() error { return e.Err }

// AllProvidersFailedError is returned once every candidate in the fallback
// chain has failed. Errors holds one entry per attempt, in attempt order.
type AllProvidersFailedError struct {
	Task   TaskCategory
	Errors []*ProviderCallError
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, pe := range e.Errors {
		parts[i] = pe.Error()
	}
	return fmt.Sprintf("all providers failed for task %s: [%s]", e.Task, strings.Join(parts, "; "))
}

// Unwrap exposes every attempt error to errors.Is and errors.As.
func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, pe := range e.Errors {
		errs[i] = pe
	}
	return errs
}

// Providers returns the attempted provider names in order.
func (e *AllProvidersFailedError) Providers() []string {
	names := make([]string, len(e.Errors))
	for i, pe := range e.Errors {
		names[i] = pe.Provider
	}
	return names
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeTimeout             ErrorCode = "TIMEOUT"
	CodeConfigLoad          ErrorCode = "CONFIG_LOAD"
	CodeDecryption          ErrorCode = "DECRYPTION"
	CodeProviderNotFound    ErrorCode = "PROVIDER_NOT_FOUND"
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeNoProviders         ErrorCode = "NO_PROVIDERS_AVAILABLE"
	CodeCircuitOpen         ErrorCode = "CIRCUIT_OPEN"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeContextLength       ErrorCode = "CONTEXT_LENGTH"
	CodeProviderServer      ErrorCode = "PROVIDER_SERVER"
	CodeEmptyResponse       ErrorCode = "EMPTY_RESPONSE"
	CodeResponseParse       ErrorCode = "RESPONSE_PARSE"
	CodeAllProvidersFailed  ErrorCode = "ALL_PROVIDERS_FAILED"
)

// errorCodes pairs sentinels with their codes. ErrorCodeOf walks it in
// order, so when an error wraps several sentinels the earliest entry wins.
// Parse failures come first since they commonly wrap another sentinel.
var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrResponseParse, CodeResponseParse},
	{ErrNoProvidersAvailable, CodeNoProviders},
	{ErrCircuitOpen, CodeCircuitOpen},
	{ErrTimeout, CodeTimeout},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrContextLength, CodeContextLength},
	{ErrProviderServer, CodeProviderServer},
	{ErrEmptyResponse, CodeEmptyResponse},
	{ErrProviderNotFound, CodeProviderNotFound},
	{ErrProviderUnavailable, CodeProviderUnavailable},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrDecryption, CodeDecryption},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrNotFound, CodeNotFound},
}

func sentinelCode(err error) (ErrorCode, bool) {
	for _, e := range errorCodes {
		if err == e.err {
			return e.code, true
		}
	}
	return CodeUnknown, false
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// An exhausted fallback chain always reports CodeAllProvidersFailed, even
// though the individual attempts carry their own codes.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var all *AllProvidersFailedError
	if errors.As(err, &all) {
		return CodeAllProvidersFailed
	}

	if code, ok := sentinelCode(err); ok {
		return code
	}
	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := sentinelCode(de.Err); ok {
			return code
		}
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	code, _ := sentinelCode(e.Err)
	return code
}
