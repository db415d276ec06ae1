package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentscan/internal/domain"
	"talentscan/internal/usecase/airouter"
)

// scriptedProvider answers each stage prompt with a canned reply and records
// the prompts it saw.
type scriptedProvider struct {
	name    string
	replies map[string]string // prompt marker -> reply
	err     error

	mu      sync.Mutex
	prompts []string
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	prompt := req.Messages[len(req.Messages)-1].Content
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	p.mu.Unlock()

	if p.err != nil {
		return nil, p.err
	}
	for marker, reply := range p.replies {
		if strings.Contains(prompt, marker) {
			return &domain.ChatResponse{Model: p.name + "-m", Message: domain.Message{Role: domain.RoleAssistant, Content: reply}}, nil
		}
	}
	return nil, errors.New("unexpected prompt")
}

func (p *scriptedProvider) seen(marker string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, pr := range p.prompts {
		if strings.Contains(pr, marker) {
			out = append(out, pr)
		}
	}
	return out
}

const (
	markCode    = "reviewing the public repositories"
	markProfile = "Scan this developer profile"
	markSkills  = "Extract the technical skills"
	markSummary = "recruiter-facing summary"
)

func goodReplies() map[string]string {
	return map[string]string{
		markCode:    "Here is my review:\n```json\n{\"quality\": 8, \"primary_languages\": [\"Go\"], \"strengths\": [\"tests\"], \"concerns\": []}\n```",
		markProfile: `{"seniority": "senior", "activity": "high", "highlights": ["maintainer"]}`,
		markSkills:  `{"skills": [{"name": "Go", "level": "expert", "evidence": "10 repos"}]}`,
		markSummary: `Sure. {"headline": "Go backend engineer", "overview": "Strong.", "score": 88, "recommendation": "interview"}`,
	}
}

func testProfile() domain.CandidateProfile {
	return domain.CandidateProfile{
		Username:  "octocat",
		Name:      "The Octocat",
		Followers: 10,
		CreatedAt: time.Date(2015, 5, 1, 0, 0, 0, 0, time.UTC),
		Repos: []domain.Repository{
			{Name: "router", Language: "Go", Stars: 12, Topics: []string{"llm", "cli"}},
			{Name: "site", Language: "TypeScript"},
		},
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRouter wires every provider under all routable names so each task
// resolves to a scripted backend.
func newRouter(t *testing.T, providers ...*scriptedProvider) *airouter.Router {
	t.Helper()
	descs := make([]domain.ProviderDescriptor, len(providers))
	impls := make(map[string]domain.LLMProvider, len(providers))
	for i, p := range providers {
		descs[i] = domain.ProviderDescriptor{Name: p.name, Model: p.name + "-m", Available: true, Priority: i + 1}
		impls[p.name] = p
	}
	r, err := airouter.New(descs, impls, airouter.WithLogger(discard()))
	require.NoError(t, err)
	return r
}

func TestAnalyzeFullPipeline(t *testing.T) {
	groq := &scriptedProvider{name: "groq", replies: goodReplies()}
	r := newRouter(t, groq)

	report, err := NewPipeline(r, Options{}, discard()).Analyze(context.Background(), testProfile())
	require.NoError(t, err)

	assert.Equal(t, "octocat", report.Username)
	assert.Equal(t, 8, report.Code.Quality)
	assert.Equal(t, "senior", report.Profile.Seniority)
	require.Len(t, report.Skills.Skills, 1)
	assert.Equal(t, "expert", report.Skills.Skills[0].Level)
	assert.Equal(t, 88, report.Summary.Score)
	assert.Empty(t, report.Degraded)

	require.Len(t, report.Provenance, 4)
	for stage, prov := range report.Provenance {
		assert.Equal(t, "groq", prov.Provider, stage)
		assert.Equal(t, 1, prov.Attempts, stage)
		assert.NotEmpty(t, prov.RequestID, stage)
	}
	assert.Equal(t, int64(4), r.Tracker().Count("groq"))
}

func TestAnalyzeThreadsEarlierResultsIntoLaterPrompts(t *testing.T) {
	groq := &scriptedProvider{name: "groq", replies: goodReplies()}
	r := newRouter(t, groq)

	_, err := NewPipeline(r, Options{}, discard()).Analyze(context.Background(), testProfile())
	require.NoError(t, err)

	code := groq.seen(markCode)
	require.Len(t, code, 1)
	assert.Contains(t, code[0], "router [Go] stars=12")
	assert.Contains(t, code[0], "topics=llm,cli")

	skills := groq.seen(markSkills)
	require.Len(t, skills, 1)
	assert.Contains(t, skills[0], `"quality":8`)
	assert.Contains(t, skills[0], `"seniority":"senior"`)
	assert.Contains(t, skills[0], "Go, TypeScript")

	summary := groq.seen(markSummary)
	require.Len(t, summary, 1)
	assert.Contains(t, summary[0], `"level":"expert"`)
}

func TestAnalyzeFallsBackOnGarbledStage(t *testing.T) {
	replies := goodReplies()
	replies[markProfile] = "I'd rather not say."
	groq := &scriptedProvider{name: "groq", replies: replies}
	gemini := &scriptedProvider{name: "gemini", replies: goodReplies()}
	r := newRouter(t, groq, gemini)

	report, err := NewPipeline(r, Options{}, discard()).Analyze(context.Background(), testProfile())
	require.NoError(t, err)

	prov := report.Provenance[StageProfileScan]
	assert.Equal(t, "gemini", prov.Provider)
	assert.Equal(t, 2, prov.Attempts)
	assert.Equal(t, "senior", report.Profile.Seniority)
}

func TestAnalyzeFailsWithoutDefaults(t *testing.T) {
	down := &scriptedProvider{name: "groq", err: errors.New("connection refused")}
	r := newRouter(t, down)

	_, err := NewPipeline(r, Options{}, discard()).Analyze(context.Background(), testProfile())
	require.Error(t, err)

	var all *domain.AllProvidersFailedError
	assert.True(t, errors.As(err, &all))
}

func TestAnalyzeUsesDefaultsWhenEnabled(t *testing.T) {
	replies := goodReplies()
	delete(replies, markCode)
	delete(replies, markSummary)
	groq := &scriptedProvider{name: "groq", replies: replies}
	r := newRouter(t, groq)

	report, err := NewPipeline(r, Options{UseDefaults: true}, discard()).Analyze(context.Background(), testProfile())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{StageCodeAnalysis, StageSummary}, report.Degraded)
	assert.True(t, report.IsDegraded(StageCodeAnalysis))
	assert.False(t, report.IsDegraded(StageSkills))

	assert.Equal(t, defaultCode(), report.Code)
	assert.Equal(t, defaultSummary("octocat"), report.Summary)
	assert.Equal(t, "senior", report.Profile.Seniority)

	_, ok := report.Provenance[StageCodeAnalysis]
	assert.False(t, ok, "degraded stages have no provenance")
	assert.Contains(t, report.Provenance, StageSkills)

	// The default code payload still reaches the later prompts.
	skills := groq.seen(markSkills)
	require.Len(t, skills, 1)
	assert.Contains(t, skills[0], "automated code analysis unavailable")
}

func TestAnalyzeDefaultsDoNotMaskCancellation(t *testing.T) {
	groq := &scriptedProvider{name: "groq", replies: goodReplies()}
	r := newRouter(t, groq)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPipeline(r, Options{UseDefaults: true}, discard()).Analyze(ctx, testProfile())
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzeNoProvidersIsNotDegradable(t *testing.T) {
	r, err := airouter.New(nil, nil, airouter.WithLogger(discard()))
	require.NoError(t, err)

	_, err = NewPipeline(r, Options{UseDefaults: true}, discard()).Analyze(context.Background(), testProfile())
	require.ErrorIs(t, err, domain.ErrNoProvidersAvailable)
}

func TestAnalyzeRejectsAnonymousProfile(t *testing.T) {
	r := newRouter(t, &scriptedProvider{name: "groq", replies: goodReplies()})
	_, err := NewPipeline(r, Options{}, discard()).Analyze(context.Background(), domain.CandidateProfile{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDefaultSkillsComeFromLanguages(t *testing.T) {
	set := defaultSkills(testProfile())
	require.Len(t, set.Skills, 2)
	assert.Equal(t, "Go", set.Skills[0].Name)
	assert.Equal(t, "TypeScript", set.Skills[1].Name)
}

func TestAnalyzeFallsBackOnOutOfRangeReply(t *testing.T) {
	replies := goodReplies()
	replies[markCode] = `{"quality": 42, "primary_languages": ["Go"]}`
	groq := &scriptedProvider{name: "groq", replies: replies}
	gemini := &scriptedProvider{name: "gemini", replies: goodReplies()}
	r := newRouter(t, groq, gemini)

	report, err := NewPipeline(r, Options{}, discard()).Analyze(context.Background(), testProfile())
	require.NoError(t, err)

	prov := report.Provenance[StageCodeAnalysis]
	assert.Equal(t, "gemini", prov.Provider)
	assert.Equal(t, 2, prov.Attempts)
	assert.Equal(t, 8, report.Code.Quality)
}
