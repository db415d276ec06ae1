package llm

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
)

// OpenAIProvider speaks the OpenAI chat-completions dialect. Groq, Together,
// the Hugging Face router and OpenAI itself all accept it, so one adapter
// serves every provider configured with type openai.
type OpenAIProvider struct {
	httpBackend
}

// NewOpenAIProvider builds the adapter for cfg. BaseURL defaults to the
// OpenAI API; an empty APIKey sends no Authorization header.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	var auth map[string]string
	if cfg.APIKey != "" {
		auth = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}
	return &OpenAIProvider{
		httpBackend: newHTTPBackend(cfg, "https://api.openai.com/v1", "/chat/completions", auth, logger),
	}
}

// Chat implements domain.LLMProvider. An empty req.Model uses the configured one.
func (p *OpenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	req.Model = cmp.Or(req.Model, p.model)
	return exchange(ctx, &p.httpBackend, req.Model, toOpenAIRequest(req), fromOpenAIResponse)
}

// Name implements domain.LLMProvider.
func (p *OpenAIProvider) Name() string { return p.name }

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
	Created int64          `json:"created"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func toOpenAIRequest(req domain.ChatRequest) openaiRequest {
	out := openaiRequest{
		Model:     req.Model,
		Messages:  make([]openaiMessage, len(req.Messages)),
		MaxTokens: max(req.MaxTokens, 0),
	}
	for i, m := range req.Messages {
		out.Messages[i] = openaiMessage{Role: m.Role, Content: m.Content}
	}
	if req.Temperature > 0 {
		out.Temperature = &req.Temperature
	}
	return out
}

func fromOpenAIResponse(resp openaiResponse) (*domain.ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", domain.ErrEmptyResponse)
	}
	created := time.Now()
	if resp.Created > 0 {
		created = time.Unix(resp.Created, 0)
	}
	msg := resp.Choices[0].Message
	return &domain.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Message: domain.Message{
			Role:    cmp.Or(msg.Role, domain.RoleAssistant),
			Content: msg.Content,
		},
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		CreatedAt: created,
	}, nil
}
