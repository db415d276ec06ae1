package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// Missing credentials are not an error: such providers are simply unavailable.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateRouting(cfg, ve)
	validateGitHub(cfg, ve)
	validateAnalysis(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateMetrics(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validProviderTypes = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"gemini":    true,
	"bedrock":   true,
}

var validTaskCategories = map[string]bool{
	"code-analysis":      true,
	"profile-scan":       true,
	"skill-extraction":   true,
	"summary-generation": true,
	"general":            true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if len(cfg.LLM.Providers) == 0 {
		ve.Add("llm.providers must define at least one provider")
	}
	if cfg.LLM.DefaultTimeout <= 0 {
		ve.Add("llm.default_timeout must be > 0")
	}

	seen := make(map[string]bool)
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d] (%s): unsupported type %q", i, p.Name, p.Type)
		}
		if p.Model == "" {
			ve.Add("llm.providers[%d] (%s): model must not be empty", i, p.Name)
		}
		if p.BaseURL != "" {
			if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				ve.Add("llm.providers[%d] (%s): invalid base_url %q", i, p.Name, p.BaseURL)
			}
		}
		if p.Priority < 0 {
			ve.Add("llm.providers[%d] (%s): priority must be >= 0", i, p.Name)
		}
		if p.DailyRequestLimit < 0 {
			ve.Add("llm.providers[%d] (%s): daily_request_limit must be >= 0", i, p.Name)
		}
		if p.RequestsPerMinute < 0 {
			ve.Add("llm.providers[%d] (%s): requests_per_minute must be >= 0", i, p.Name)
		}
		switch p.CostClass {
		case "", "free", "paid":
		default:
			ve.Add("llm.providers[%d] (%s): cost_class must be free or paid", i, p.Name)
		}
		if p.Timeout < 0 {
			ve.Add("llm.providers[%d] (%s): timeout must be >= 0", i, p.Name)
		}
	}

	if cb := cfg.LLM.CircuitBreaker; cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validateRouting(cfg *Config, ve *ValidationError) {
	names := make(map[string]bool, len(cfg.LLM.Providers))
	for _, p := range cfg.LLM.Providers {
		names[p.Name] = true
	}
	for task, route := range cfg.Routing.Tasks {
		if !validTaskCategories[task] {
			ve.Add("routing.tasks: unknown task category %q", task)
		}
		if !names[route.Provider] {
			ve.Add("routing.tasks.%s: provider %q is not configured", task, route.Provider)
		}
		if route.Temperature != nil && (*route.Temperature < 0 || *route.Temperature > 2) {
			ve.Add("routing.tasks.%s: temperature must be within [0, 2]", task)
		}
		if route.MaxTokens < 0 {
			ve.Add("routing.tasks.%s: max_tokens must be >= 0", task)
		}
	}
}

func validateGitHub(cfg *Config, ve *ValidationError) {
	if cfg.GitHub.BaseURL == "" {
		ve.Add("github.base_url must not be empty")
	}
	if cfg.GitHub.MaxRepos <= 0 {
		ve.Add("github.max_repos must be > 0")
	}
	if cfg.GitHub.Timeout <= 0 {
		ve.Add("github.timeout must be > 0")
	}
}

func validateAnalysis(cfg *Config, ve *ValidationError) {
	if cfg.Analysis.Timeout <= 0 {
		ve.Add("analysis.timeout must be > 0")
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("logger.level %q is invalid", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want text or json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want noop or stdout)", cfg.Tracer.Exporter)
	}
	if r := cfg.Tracer.SampleRatio; r < 0 || r > 1 {
		ve.Add("tracer.sample_ratio must be within [0, 1]")
	}
}

func validateMetrics(cfg *Config, ve *ValidationError) {
	if !cfg.Metrics.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
		ve.Add("metrics.addr %q is invalid: %v", cfg.Metrics.Addr, err)
	}
	if cfg.Metrics.Namespace == "" {
		ve.Add("metrics.namespace must not be empty when metrics are enabled")
	}
}
