package llm

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
	"talentscan/internal/infra/tracer"
)

// geminiGenerateAPI abstracts the genai Models service for testability.
type geminiGenerateAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider implements domain.LLMProvider on top of the Google GenAI SDK.
type GeminiProvider struct {
	name   string
	model  string
	models geminiGenerateAPI
	logger *slog.Logger
}

// NewGeminiProvider creates a provider backed by the Gemini Developer API.
func NewGeminiProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: NewHTTPClient(cfg),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.BaseURL, "/") + "/"}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGeminiProviderWithClient(cfg.Name, cfg.Model, client.Models, logger), nil
}

// newGeminiProviderWithClient creates a GeminiProvider with an injected client (for testing).
func newGeminiProviderWithClient(name, model string, models geminiGenerateAPI, logger *slog.Logger) *GeminiProvider {
	return &GeminiProvider{
		name:   name,
		model:  model,
		models: models,
		logger: logger,
	}
}

// Chat implements domain.LLMProvider.
func (p *GeminiProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	req.Model = cmp.Or(req.Model, p.model)

	ctx, span := chatSpan(ctx, p.name, req.Model)
	defer span.End()

	contents, genCfg := toGeminiRequest(req)

	resp, err := p.models.GenerateContent(ctx, req.Model, contents, genCfg)
	if err != nil {
		err = mapGeminiError(err)
		tracer.RecordError(span, err)
		return nil, err
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		err := fmt.Errorf("%w: prompt blocked (%s)", domain.ErrEmptyResponse, fb.BlockReason)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := fromGeminiResponse(resp, req.Model)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// Name implements domain.LLMProvider.
func (p *GeminiProvider) Name() string { return p.name }

func toGeminiRequest(req domain.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	genCfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		genCfg.Temperature = &temp
	}

	var (
		contents []*genai.Content
		system   []string
	)
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		genCfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	return contents, genCfg
}

func fromGeminiResponse(resp *genai.GenerateContentResponse, requestedModel string) *domain.ChatResponse {
	result := &domain.ChatResponse{
		ID:        resp.ResponseID,
		Model:     resp.ModelVersion,
		Message:   domain.Message{Role: domain.RoleAssistant, Content: resp.Text()},
		CreatedAt: time.Now(),
	}
	if result.Model == "" {
		result.Model = requestedModel
	}
	if u := resp.UsageMetadata; u != nil {
		result.Usage = domain.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return result
}

// mapGeminiError maps SDK API errors onto the same sentinels as the HTTP adapters.
func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return domain.WrapOp("gemini", err)
	}

	var sentinel error
	switch code := apiErr.Code; {
	case code == http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimit
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		sentinel = domain.ErrAuthInvalid
	case code == http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case code >= 500:
		sentinel = domain.ErrProviderServer
	case code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "api key"):
		sentinel = domain.ErrAuthInvalid
	case code == http.StatusBadRequest && mentionsContextLength(apiErr.Message):
		sentinel = domain.ErrContextLength
	default:
		return fmt.Errorf("gemini API error %d: %s", code, apiErr.Message)
	}
	return fmt.Errorf("%w: %s", sentinel, apiErr.Message)
}
