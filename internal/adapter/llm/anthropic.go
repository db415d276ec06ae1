package llm

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
)

const (
	defaultAnthropicVersion   = "2023-06-01"
	defaultAnthropicMaxTokens = 4096
)

// AnthropicProvider calls the Anthropic Messages API. System messages are
// lifted into the top-level system field.
type AnthropicProvider struct {
	httpBackend
}

// NewAnthropicProvider builds the adapter for cfg. BaseURL defaults to
// api.anthropic.com.
func NewAnthropicProvider(cfg config.ProviderConfig, logger *slog.Logger) *AnthropicProvider {
	auth := map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": defaultAnthropicVersion,
	}
	return &AnthropicProvider{
		httpBackend: newHTTPBackend(cfg, "https://api.anthropic.com", "/v1/messages", auth, logger),
	}
}

// Chat implements domain.LLMProvider.
func (p *AnthropicProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	req.Model = cmp.Or(req.Model, p.model)
	return exchange(ctx, &p.httpBackend, req.Model, toAnthropicRequest(req), fromAnthropicResponse)
}

// Name implements domain.LLMProvider.
func (p *AnthropicProvider) Name() string { return p.name }

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func toAnthropicRequest(req domain.ChatRequest) anthropicRequest {
	out := anthropicRequest{
		Model:     req.Model,
		MaxTokens: cmp.Or(max(req.MaxTokens, 0), defaultAnthropicMaxTokens),
	}
	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}

	var system []string
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		out.Messages = append(out.Messages, anthropicMessage{
			Role:    m.Role,
			Content: []anthropicContent{{Type: "text", Text: m.Content}},
		})
	}
	out.System = strings.Join(system, "\n\n")
	return out
}

// fromAnthropicResponse joins the text blocks. A reply with none, such as a
// refusal or a reply cut off before any text, is ErrEmptyResponse.
func fromAnthropicResponse(resp anthropicResponse) (*domain.ChatResponse, error) {
	var text strings.Builder
	found := false
	for _, block := range resp.Content {
		if block.Type == "text" {
			found = true
			text.WriteString(block.Text)
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: no text blocks (stop_reason %q)", domain.ErrEmptyResponse, resp.StopReason)
	}

	in, out := resp.Usage.InputTokens, resp.Usage.OutputTokens
	return &domain.ChatResponse{
		ID:        resp.ID,
		Model:     resp.Model,
		Message:   domain.Message{Role: domain.RoleAssistant, Content: text.String()},
		Usage:     domain.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
		CreatedAt: time.Now(),
	}, nil
}
