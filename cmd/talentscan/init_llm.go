package main

import (
	"context"
	"fmt"
	"log/slog"

	"talentscan/internal/adapter/llm"
	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
	"talentscan/internal/infra/metrics"
	"talentscan/internal/usecase/airouter"
)

// descriptorFor derives the static provider description from config.
// Availability is fixed here for the life of the process.
func descriptorFor(pc config.ProviderConfig) domain.ProviderDescriptor {
	cost := domain.CostClass(pc.CostClass)
	if cost == "" {
		cost = domain.CostFree
	}
	typ := pc.Type
	if typ == "" {
		typ = "openai"
	}
	return domain.ProviderDescriptor{
		Name:              pc.Name,
		Type:              typ,
		Model:             pc.Model,
		Available:         pc.HasCredential(),
		Priority:          pc.Priority,
		DailyRequestLimit: pc.DailyRequestLimit,
		CostClass:         cost,
		Timeout:           pc.Timeout,
	}
}

// initProviders builds a registry holding one adapter per available provider.
// A provider whose adapter cannot be built is reported unavailable rather
// than failing startup.
func initProviders(ctx context.Context, cfg *config.Config, log *slog.Logger) ([]domain.ProviderDescriptor, *llm.Registry) {
	registry := llm.NewRegistry()
	descriptors := make([]domain.ProviderDescriptor, 0, len(cfg.LLM.Providers))

	for _, pc := range cfg.LLM.Providers {
		d := descriptorFor(pc)
		if !d.Available {
			log.Debug("llm provider has no credential", "provider", pc.Name, "env", pc.APIKeyEnv)
			descriptors = append(descriptors, d)
			continue
		}

		p, err := llm.NewProvider(ctx, pc, log)
		if err != nil {
			log.Warn("llm provider disabled", "provider", pc.Name, "error", err)
			d.Available = false
			descriptors = append(descriptors, d)
			continue
		}
		p = llm.Wrap(p, pc, cfg.LLM.CircuitBreaker, log)
		if err := registry.Register(p); err != nil {
			log.Warn("llm provider disabled", "provider", pc.Name, "error", err)
			d.Available = false
		}
		descriptors = append(descriptors, d)
	}

	if cfg.LLM.CircuitBreaker.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cfg.LLM.CircuitBreaker.MaxFailures,
			"timeout", cfg.LLM.CircuitBreaker.Timeout)
	}
	return descriptors, registry
}

// routeTable applies config overrides to the built-in task table.
func routeTable(rc config.RoutingConfig) (airouter.RouteTable, error) {
	base := airouter.DefaultRouteTable()
	overrides := make(airouter.RouteTable, len(rc.Tasks))
	for name, tc := range rc.Tasks {
		task, err := domain.ParseTaskCategory(name)
		if err != nil {
			return nil, err
		}
		route := base.Resolve(task)
		if tc.Provider != "" {
			route.Provider = tc.Provider
		}
		if tc.Temperature != nil {
			route.Temperature = *tc.Temperature
		}
		if tc.MaxTokens > 0 {
			route.MaxTokens = tc.MaxTokens
		}
		overrides[task] = route
	}
	return base.Merge(overrides), nil
}

// initRouter wires providers, the route table and metrics into a Router.
func initRouter(ctx context.Context, cfg *config.Config, log *slog.Logger, collector *metrics.Collector) (*airouter.Router, *llm.Registry, error) {
	descriptors, registry := initProviders(ctx, cfg, log)

	table, err := routeTable(cfg.Routing)
	if err != nil {
		return nil, nil, fmt.Errorf("routing: %w", err)
	}

	router, err := airouter.New(descriptors, registry.Providers(),
		airouter.WithLogger(log),
		airouter.WithMetrics(collector),
		airouter.WithTable(table),
		airouter.WithDefaultTimeout(cfg.LLM.DefaultTimeout),
	)
	if err != nil {
		return nil, nil, err
	}

	log.Info("llm router ready", "providers", registry.List())
	return router, registry, nil
}
