package llm

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
	"talentscan/internal/infra/tracer"
)

const (
	maxResponseBody = 10 << 20
	maxErrorDetail  = 512
)

// contextLengthHints are substrings vendors put in a 400 body when the
// prompt does not fit the model window.
var contextLengthHints = []string{
	"context_length_exceeded",
	"maximum context length",
	"prompt is too long",
	"too many tokens",
}

// httpBackend holds what every JSON-over-HTTP adapter shares. headers is
// built once and already carries the credential.
type httpBackend struct {
	name     string
	model    string
	endpoint string
	headers  map[string]string
	client   *http.Client
	logger   *slog.Logger
}

// newHTTPBackend resolves the endpoint and merges auth into the configured
// extra headers. Auth entries with an empty value are skipped.
func newHTTPBackend(cfg config.ProviderConfig, defaultBase, path string, auth map[string]string, logger *slog.Logger) httpBackend {
	headers := maps.Clone(cfg.Headers)
	if headers == nil {
		headers = make(map[string]string, len(auth))
	}
	for k, v := range auth {
		if v != "" {
			headers[k] = v
		}
	}
	return httpBackend{
		name:     cfg.Name,
		model:    cfg.Model,
		endpoint: cmp.Or(strings.TrimRight(cfg.BaseURL, "/"), defaultBase) + path,
		headers:  headers,
		client:   NewHTTPClient(cfg),
		logger:   logger,
	}
}

// exchange posts body and hands the decoded reply to convert. It owns the
// llm.chat span and the completion log line.
func exchange[W any](ctx context.Context, b *httpBackend, model string, body any, convert func(W) (*domain.ChatResponse, error)) (*domain.ChatResponse, error) {
	ctx, span := chatSpan(ctx, b.name, model)
	defer span.End()

	resp, err := func() (*domain.ChatResponse, error) {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		raw, err := doJSONRequest(ctx, b.client, b.endpoint, payload, b.headers)
		if err != nil {
			return nil, err
		}
		var wire W
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		return convert(wire)
	}()
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	resp.Model = cmp.Or(resp.Model, model)
	setUsageAttrs(span, resp.Usage)
	tracer.SetOK(span)
	logChatCompleted(b.logger, b.name, resp)
	return resp, nil
}

// doJSONRequest POSTs body and returns the response body. Non-2xx statuses
// become domain errors via mapHTTPError.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, mapHTTPError(resp.StatusCode, data)
	}
	return data, nil
}

// mapHTTPError classifies a failed status so the router, breaker and error
// codes can tell outages from caller mistakes.
func mapHTTPError(status int, body []byte) error {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorDetail {
		text = text[:maxErrorDetail] + "..."
	}
	detail := fmt.Sprintf("API error %d: %s", status, text)

	var sentinel error
	switch {
	case status == http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		sentinel = domain.ErrAuthInvalid
	case status == http.StatusRequestEntityTooLarge:
		sentinel = domain.ErrContextLength
	case status == http.StatusBadRequest && mentionsContextLength(text):
		sentinel = domain.ErrContextLength
	case status == http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case status >= 500:
		sentinel = domain.ErrProviderServer
	default:
		return fmt.Errorf("%s", detail)
	}
	return fmt.Errorf("%w: %s", sentinel, detail)
}

func mentionsContextLength(body string) bool {
	lower := strings.ToLower(body)
	for _, hint := range contextLengthHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func logChatCompleted(logger *slog.Logger, provider string, resp *domain.ChatResponse) {
	logger.Debug("llm chat completed",
		"provider", provider,
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
	)
}

func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
}

// chatSpan starts the llm.chat span every adapter emits.
func chatSpan(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return tracer.StartSpan(ctx, "llm.chat", trace.WithAttributes(
		tracer.StringAttr("llm.provider", provider),
		tracer.StringAttr("llm.model", model),
	))
}
