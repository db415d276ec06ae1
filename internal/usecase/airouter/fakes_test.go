package airouter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"talentscan/internal/domain"
)

// fakeProvider is a scripted domain.LLMProvider.
type fakeProvider struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.calls.Add(1)
	return p.fn(ctx, req)
}

func replyWith(text string) func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return func(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		return textResponse(req.Model, text), nil
	}
}

func failWith(err error) func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, err
	}
}

func textResponse(model, text string) *domain.ChatResponse {
	return &domain.ChatResponse{
		Model:   model,
		Message: domain.Message{Role: domain.RoleAssistant, Content: text},
		Usage:   domain.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
	}
}

var errBoom = errors.New("boom")

func descriptor(name string, priority int) domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		Name:      name,
		Type:      "openai",
		Model:     name + "-model",
		Available: true,
		Priority:  priority,
		CostClass: domain.CostFree,
	}
}

// standardSet mirrors the shipped defaults: groq, gemini, together are free
// tier, anthropic is the paid fallback.
func standardSet() []domain.ProviderDescriptor {
	return []domain.ProviderDescriptor{
		descriptor("anthropic", 6),
		descriptor("groq", 1),
		descriptor("gemini", 2),
		descriptor("together", 3),
	}
}

// fakes builds one provider per descriptor, all answering "ok".
func fakes(descs []domain.ProviderDescriptor) (map[string]domain.LLMProvider, map[string]*fakeProvider) {
	providers := make(map[string]domain.LLMProvider, len(descs))
	byName := make(map[string]*fakeProvider, len(descs))
	for _, d := range descs {
		fp := &fakeProvider{name: d.Name, fn: replyWith("ok from " + d.Name)}
		providers[d.Name] = fp
		byName[d.Name] = fp
	}
	return providers, byName
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
