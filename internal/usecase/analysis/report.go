package analysis

import (
	"sync"
	"time"

	"talentscan/internal/domain"
)

// Stage names, also used as keys in Report.Provenance.
const (
	StageCodeAnalysis = "code_analysis"
	StageProfileScan  = "profile_scan"
	StageSkills       = "skill_extraction"
	StageSummary      = "summary"
)

// CodeAssessment is the code-analysis stage payload.
type CodeAssessment struct {
	Quality          int      `json:"quality"` // 1-10
	PrimaryLanguages []string `json:"primary_languages"`
	Strengths        []string `json:"strengths"`
	Concerns         []string `json:"concerns"`
}

// ProfileAssessment is the profile-scan stage payload.
type ProfileAssessment struct {
	Seniority  string   `json:"seniority"` // junior, mid, senior, staff
	Activity   string   `json:"activity"`  // low, moderate, high
	Highlights []string `json:"highlights"`
}

// Skill is one extracted skill with supporting evidence.
type Skill struct {
	Name     string `json:"name"`
	Level    string `json:"level"` // beginner, intermediate, advanced, expert
	Evidence string `json:"evidence,omitempty"`
}

// SkillSet is the skill-extraction stage payload.
type SkillSet struct {
	Skills []Skill `json:"skills"`
}

// Summary is the summary-generation stage payload.
type Summary struct {
	Headline       string `json:"headline"`
	Overview       string `json:"overview"`
	Score          int    `json:"score"` // 0-100
	Recommendation string `json:"recommendation"`
}

// Provenance records which provider produced a stage result.
type Provenance struct {
	RequestID string `json:"request_id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Attempts  int    `json:"attempts"`
	LatencyMs int64  `json:"latency_ms"`
	Tokens    int    `json:"tokens"`
}

func provenanceOf(res domain.InvocationResult) Provenance {
	return Provenance{
		RequestID: res.RequestID,
		Provider:  res.Provider,
		Model:     res.Model,
		Attempts:  res.Attempts,
		LatencyMs: res.LatencyMs(),
		Tokens:    res.Usage.TotalTokens,
	}
}

// Report is the accumulated output of one candidate analysis.
type Report struct {
	Username    string                `json:"username"`
	GeneratedAt time.Time             `json:"generated_at"`
	Code        CodeAssessment        `json:"code"`
	Profile     ProfileAssessment     `json:"profile"`
	Skills      SkillSet              `json:"skills"`
	Summary     Summary               `json:"summary"`
	Provenance  map[string]Provenance `json:"provenance"`
	// Degraded lists stages whose payload is a built-in default because every
	// provider failed.
	Degraded []string `json:"degraded,omitempty"`

	mu sync.Mutex
}

func (r *Report) record(stage string, res domain.InvocationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Provenance[stage] = provenanceOf(res)
}

func (r *Report) degrade(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Degraded = append(r.Degraded, stage)
}

// IsDegraded reports whether stage fell back to its default payload.
func (r *Report) IsDegraded(stage string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.Degraded {
		if s == stage {
			return true
		}
	}
	return false
}

// Default payloads substituted when a stage exhausts every provider and the
// caller opted in. They are neutral rather than flattering.
func defaultCode() CodeAssessment {
	return CodeAssessment{Quality: 5, Concerns: []string{"automated code analysis unavailable"}}
}

func defaultProfile() ProfileAssessment {
	return ProfileAssessment{Seniority: "unknown", Activity: "unknown"}
}

func defaultSkills(p domain.CandidateProfile) SkillSet {
	var set SkillSet
	for _, lang := range p.Languages() {
		set.Skills = append(set.Skills, Skill{Name: lang, Level: "unknown", Evidence: "repository language"})
	}
	return set
}

func defaultSummary(username string) Summary {
	return Summary{
		Headline:       username,
		Overview:       "Automated summary unavailable; review the profile manually.",
		Score:          50,
		Recommendation: "manual review",
	}
}
