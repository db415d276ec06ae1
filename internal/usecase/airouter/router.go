// Package airouter picks an LLM provider for each generation request and
// falls back through the remaining providers when an attempt fails.
package airouter

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"talentscan/internal/domain"
	"talentscan/internal/infra/metrics"
	"talentscan/internal/infra/tracer"
)

// DefaultAttemptTimeout bounds one provider attempt when neither the
// descriptor nor WithDefaultTimeout sets a value.
const DefaultAttemptTimeout = 45 * time.Second

// Router routes generation requests across a fixed set of providers.
// A Router is safe for concurrent use; only its RateTracker mutates after New.
type Router struct {
	descriptors []domain.ProviderDescriptor          // all, sorted by (Priority, Name)
	available   []domain.ProviderDescriptor          // callable subset, same order
	byName      map[string]domain.ProviderDescriptor // available only
	providers   map[string]domain.LLMProvider
	table       RouteTable

	tracker        *RateTracker
	clock          Clock
	metrics        *metrics.Collector
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the clock used for the quota window and latency.
func WithClock(c Clock) Option {
	return func(r *Router) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithMetrics attaches a Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Router) { r.metrics = c }
}

// WithTable replaces the default route table.
func WithTable(t RouteTable) Option {
	return func(r *Router) {
		if t != nil {
			r.table = t.clone()
		}
	}
}

// WithDefaultTimeout sets the per-attempt timeout for descriptors without one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// New builds a router. Every available descriptor must have a matching entry
// in providers; unavailable descriptors are kept for reporting but never called.
// A router with no available providers is valid and fails every Generate.
func New(descriptors []domain.ProviderDescriptor, providers map[string]domain.LLMProvider, opts ...Option) (*Router, error) {
	r := &Router{
		byName:         make(map[string]domain.ProviderDescriptor),
		providers:      make(map[string]domain.LLMProvider, len(providers)),
		table:          DefaultRouteTable(),
		clock:          systemClock{},
		defaultTimeout: DefaultAttemptTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.tracker = NewRateTracker(r.clock)

	seen := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, domain.NewDomainError("airouter.New", domain.ErrInvalidInput, "provider descriptor without name")
		}
		if seen[d.Name] {
			return nil, domain.NewDomainError("airouter.New", domain.ErrInvalidInput, fmt.Sprintf("duplicate provider %q", d.Name))
		}
		seen[d.Name] = true
		r.descriptors = append(r.descriptors, d)
	}
	slices.SortFunc(r.descriptors, compareDescriptors)

	for _, d := range r.descriptors {
		if !d.Available {
			r.logger.Debug("provider excluded",
				"provider", d.Name, "error", domain.ErrProviderUnavailable)
			continue
		}
		p, ok := providers[d.Name]
		if !ok || p == nil {
			return nil, domain.NewDomainError("airouter.New", domain.ErrInvalidInput,
				fmt.Sprintf("available provider %q has no implementation", d.Name))
		}
		r.available = append(r.available, d)
		r.byName[d.Name] = d
		r.providers[d.Name] = p
	}

	for _, task := range domain.TaskCategories() {
		if name := r.table.Preferred(task); name != "" && !seen[name] {
			r.logger.Warn("route names unknown provider", "task", task, "provider", name)
		}
	}

	return r, nil
}

func compareDescriptors(a, b domain.ProviderDescriptor) int {
	if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

// ResolvePreferred returns the preferred provider name for task. It is a pure
// table lookup and ignores availability.
func (r *Router) ResolvePreferred(task domain.TaskCategory) string {
	return r.table.Preferred(task)
}

// Route returns the full routing entry for task.
func (r *Router) Route(task domain.TaskCategory) Route {
	return r.table.Resolve(task)
}

// Candidates returns provider names in the order Generate would try them.
func (r *Router) Candidates(task domain.TaskCategory) []string {
	chain := r.chain(task)
	names := make([]string, len(chain))
	for i, d := range chain {
		names[i] = d.Name
	}
	return names
}

// Descriptors returns a copy of every configured descriptor, available or not.
func (r *Router) Descriptors() []domain.ProviderDescriptor {
	return slices.Clone(r.descriptors)
}

// Tracker exposes the router's request counters.
func (r *Router) Tracker() *RateTracker {
	return r.tracker
}

// chain orders the available providers for task: preferred first, the rest by
// (Priority, Name), then any over-quota providers moved to the end.
func (r *Router) chain(task domain.TaskCategory) []domain.ProviderDescriptor {
	preferred := r.table.Preferred(task)

	ordered := make([]domain.ProviderDescriptor, 0, len(r.available))
	if d, ok := r.byName[preferred]; ok {
		ordered = append(ordered, d)
	}
	for _, d := range r.available {
		if d.Name != preferred {
			ordered = append(ordered, d)
		}
	}

	within := ordered[:0:0]
	var over []domain.ProviderDescriptor
	for _, d := range ordered {
		if r.tracker.OverQuota(d.Name, d.DailyRequestLimit) {
			over = append(over, d)
			continue
		}
		within = append(within, d)
	}
	return append(within, over...)
}

// Generate sends prompt to the best provider for task, falling back through
// the chain until one returns non-empty text.
func (r *Router) Generate(ctx context.Context, prompt string, task domain.TaskCategory) (domain.InvocationResult, error) {
	return r.GenerateValidated(ctx, prompt, task, nil)
}

// GenerateValidated is Generate with an accept check run on each response.
// A rejected response counts as a failed attempt and triggers fallback.
func (r *Router) GenerateValidated(ctx context.Context, prompt string, task domain.TaskCategory, accept func(string) error) (domain.InvocationResult, error) {
	if task == "" {
		task = domain.TaskGeneral
	}
	requestID := ulid.Make().String()
	route := r.table.Resolve(task)

	ctx, span := tracer.StartSpan(ctx, "airouter.generate")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("airouter.request_id", requestID),
		tracer.StringAttr("airouter.task", string(task)),
		tracer.StringAttr("airouter.preferred", route.Provider),
	)

	chain := r.chain(task)
	if len(chain) == 0 {
		err := domain.NewDomainError("Router.Generate", domain.ErrNoProvidersAvailable, fmt.Sprintf("task %s", task))
		tracer.RecordError(span, err)
		return domain.InvocationResult{}, err
	}

	var failures []*domain.ProviderCallError
	for i, d := range chain {
		if err := ctx.Err(); err != nil {
			return domain.InvocationResult{}, r.canceled(span, task, requestID, err)
		}

		result, callErr := r.attempt(ctx, d, route, prompt, task, requestID, accept)
		if callErr == nil {
			result.RequestID = requestID
			result.Attempts = i + 1

			n := r.tracker.Increment(d.Name)
			r.metrics.SetDailyRequests(d.Name, n)

			if d.Name != route.Provider {
				r.logger.Info("fallback succeeded",
					"request_id", requestID, "task", task,
					"provider", d.Name, "preferred", route.Provider, "attempts", result.Attempts)
				r.metrics.RecordFallback(string(task), d.Name)
			}
			span.SetAttributes(
				tracer.StringAttr("airouter.provider", d.Name),
				tracer.IntAttr("airouter.attempts", result.Attempts),
			)
			tracer.SetOK(span)
			return result, nil
		}

		// The caller gave up: report that instead of a provider failure.
		if err := ctx.Err(); err != nil {
			return domain.InvocationResult{}, r.canceled(span, task, requestID, err)
		}

		r.logger.Warn("provider attempt failed",
			"request_id", requestID, "task", task,
			"provider", d.Name, "attempt", i+1, "error", callErr.Err)
		failures = append(failures, callErr)
	}

	r.metrics.RecordExhausted(string(task))
	err := &domain.AllProvidersFailedError{Task: task, Errors: failures}
	r.logger.Error("all providers failed",
		"request_id", requestID, "task", task, "attempts", len(failures))
	tracer.RecordError(span, err)
	return domain.InvocationResult{}, err
}

func (r *Router) canceled(span trace.Span, task domain.TaskCategory, requestID string, err error) error {
	r.logger.Info("generation canceled", "request_id", requestID, "task", task, "error", err)
	derr := domain.NewDomainError("Router.Generate", err, fmt.Sprintf("task %s canceled", task))
	tracer.RecordError(span, derr)
	return derr
}

// attempt runs one provider call under its own timeout and converts every
// failure into a ProviderCallError.
func (r *Router) attempt(
	ctx context.Context,
	d domain.ProviderDescriptor,
	route Route,
	prompt string,
	task domain.TaskCategory,
	requestID string,
	accept func(string) error,
) (domain.InvocationResult, *domain.ProviderCallError) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	ctx, span := tracer.StartSpan(ctx, "airouter.attempt")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("llm.provider", d.Name),
		tracer.StringAttr("llm.model", d.Model),
	)

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := domain.ChatRequest{
		Model:       d.Model,
		Messages:    domain.UserPrompt(prompt),
		MaxTokens:   route.MaxTokens,
		Temperature: route.Temperature,
	}

	start := r.clock.Now()
	resp, err := r.providers[d.Name].Chat(attemptCtx, req)
	latency := r.clock.Now().Sub(start)

	fail := func(outcome string, err error) (domain.InvocationResult, *domain.ProviderCallError) {
		r.metrics.RecordAttempt(d.Name, string(task), outcome, latency)
		tracer.RecordError(span, err)
		return domain.InvocationResult{}, &domain.ProviderCallError{Provider: d.Name, Model: d.Model, Err: err}
	}

	if err != nil {
		switch {
		case ctx.Err() != nil:
			return fail(metrics.OutcomeCanceled, err)
		case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
			return fail(metrics.OutcomeTimeout, fmt.Errorf("%w after %s: %w", domain.ErrTimeout, timeout, err))
		default:
			return fail(metrics.OutcomeError, err)
		}
	}

	text := ""
	if resp != nil {
		text = resp.Message.Content
	}
	if strings.TrimSpace(text) == "" {
		return fail(metrics.OutcomeError, domain.ErrEmptyResponse)
	}

	if accept != nil {
		acceptErr := accept(text)
		// Validation runs after Chat returned; the attempt deadline still binds it.
		switch {
		case ctx.Err() != nil:
			return fail(metrics.OutcomeCanceled, ctx.Err())
		case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
			return fail(metrics.OutcomeTimeout, fmt.Errorf("%w after %s: validating response", domain.ErrTimeout, timeout))
		}
		if acceptErr != nil {
			var pe *domain.ResponseParseError
			if !errors.As(acceptErr, &pe) {
				pe = domain.NewResponseParseError(d.Name, text, acceptErr)
			} else if pe.Provider == "" {
				pe.Provider = d.Name
			}
			return fail(metrics.OutcomeParseError, pe)
		}
	}

	r.metrics.RecordAttempt(d.Name, string(task), metrics.OutcomeSuccess, latency)
	span.SetAttributes(tracer.Int64Attr("llm.latency_ms", latency.Milliseconds()))
	setUsage(span, resp.Usage)
	tracer.SetOK(span)
	r.logger.Debug("provider attempt succeeded",
		"request_id", requestID, "provider", d.Name, "latency", latency)

	model := resp.Model
	if model == "" {
		model = d.Model
	}
	return domain.InvocationResult{
		Text:     text,
		Provider: d.Name,
		Model:    model,
		Latency:  latency,
		Usage:    resp.Usage,
	}, nil
}

func setUsage(span trace.Span, u domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.usage.prompt_tokens", u.PromptTokens),
		tracer.IntAttr("llm.usage.completion_tokens", u.CompletionTokens),
	)
}
