// Package analysis assesses a candidate by chaining routed LLM calls. Each
// stage's JSON result is fed into the prompts of the stages after it.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"text/template"
	"time"

	"golang.org/x/sync/errgroup"

	"talentscan/internal/domain"
	"talentscan/internal/infra/tracer"
	"talentscan/internal/usecase/airouter"
)

// Options controls a Pipeline.
type Options struct {
	// UseDefaults substitutes a stage's default payload when every provider
	// failed for it, marking the stage as degraded, instead of failing.
	UseDefaults bool
	// Timeout bounds a whole Analyze call. Zero means no extra bound.
	Timeout time.Duration
}

// Pipeline runs the four analysis stages against a generator.
type Pipeline struct {
	gen    airouter.Generator
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(gen airouter.Generator, opts Options, logger *slog.Logger) *Pipeline {
	return &Pipeline{gen: gen, opts: opts, now: time.Now, logger: logger}
}

// Analyze runs code analysis and profile scan concurrently, then skill
// extraction, then the summary.
func (p *Pipeline) Analyze(ctx context.Context, profile domain.CandidateProfile) (*Report, error) {
	if profile.Username == "" {
		return nil, domain.NewDomainError("analysis.Analyze", domain.ErrInvalidInput, "profile has no username")
	}
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	ctx, span := tracer.StartSpan(ctx, "analysis.analyze")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("analysis.user", profile.Username))

	report := &Report{
		Username:    profile.Username,
		GeneratedAt: p.now().UTC(),
		Provenance:  make(map[string]Provenance),
	}
	data := promptData{Profile: profile}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := runStage(gctx, p, report, StageCodeAnalysis, domain.TaskCodeAnalysis, codePrompt, data, defaultCode())
		report.Code = v
		return err
	})
	g.Go(func() error {
		v, err := runStage(gctx, p, report, StageProfileScan, domain.TaskProfileScan, profilePrompt, data, defaultProfile())
		report.Profile = v
		return err
	})
	if err := g.Wait(); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	data.Code = report.Code
	data.ProfileScan = report.Profile

	skills, err := runStage(ctx, p, report, StageSkills, domain.TaskSkillExtraction, skillsPrompt, data, defaultSkills(profile))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	report.Skills = skills
	data.Skills = skills

	summary, err := runStage(ctx, p, report, StageSummary, domain.TaskSummaryGeneration, summaryPrompt, data, defaultSummary(profile.Username))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	report.Summary = summary

	span.SetAttributes(tracer.IntAttr("analysis.degraded", len(report.Degraded)))
	tracer.SetOK(span)
	p.logger.Info("analysis completed",
		"user", profile.Username, "degraded", report.Degraded)
	return report, nil
}

// runStage renders the stage prompt and decodes the routed response once it
// passes the stage schema. When the provider chain is exhausted and defaults
// are enabled, def is returned.
func runStage[T any](
	ctx context.Context,
	p *Pipeline,
	report *Report,
	stage string,
	task domain.TaskCategory,
	tmpl *template.Template,
	data promptData,
	def T,
) (T, error) {
	prompt, err := render(tmpl, data)
	if err != nil {
		var zero T
		return zero, domain.WrapOp("analysis."+stage, err)
	}

	v, res, err := airouter.GenerateJSONWith[T](ctx, p.gen, prompt, task, conform(stage))
	if err == nil {
		report.record(stage, res)
		p.logger.Debug("analysis stage done",
			"stage", stage, "provider", res.Provider, "attempts", res.Attempts)
		return v, nil
	}

	var all *domain.AllProvidersFailedError
	if p.opts.UseDefaults && errors.As(err, &all) {
		p.logger.Warn("analysis stage degraded to defaults",
			"stage", stage, "providers", all.Providers(), "error", err)
		report.degrade(stage)
		return def, nil
	}
	var zero T
	return zero, domain.WrapOp("analysis."+stage, err)
}
