package domain

import (
	"fmt"
	"time"
)

// TaskCategory labels a generation request so the router can pick a
// preferred provider for it.
type TaskCategory string

// Known task categories.
const (
	TaskCodeAnalysis      TaskCategory = "code-analysis"
	TaskProfileScan       TaskCategory = "profile-scan"
	TaskSkillExtraction   TaskCategory = "skill-extraction"
	TaskSummaryGeneration TaskCategory = "summary-generation"
	TaskGeneral           TaskCategory = "general"
)

// TaskCategories lists every known category in a stable order.
func TaskCategories() []TaskCategory {
	return []TaskCategory{
		TaskCodeAnalysis,
		TaskProfileScan,
		TaskSkillExtraction,
		TaskSummaryGeneration,
		TaskGeneral,
	}
}

// ParseTaskCategory validates a category label.
func ParseTaskCategory(s string) (TaskCategory, error) {
	for _, t := range TaskCategories() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", NewDomainError("ParseTaskCategory", ErrInvalidInput, fmt.Sprintf("unknown task category %q", s))
}

// CostClass distinguishes free-tier backends from metered ones.
type CostClass string

const (
	CostFree CostClass = "free"
	CostPaid CostClass = "paid"
)

// ProviderDescriptor is the static description of one configured backend.
// Descriptors are built once at startup and never mutated.
type ProviderDescriptor struct {
	Name              string        `json:"name"`
	Type              string        `json:"type"`
	Model             string        `json:"model"`
	Available         bool          `json:"available"`
	Priority          int           `json:"priority"`
	DailyRequestLimit int           `json:"daily_request_limit"`
	CostClass         CostClass     `json:"cost_class"`
	Timeout           time.Duration `json:"timeout"`
}

// InvocationResult is the outcome of one successful routed generation.
type InvocationResult struct {
	RequestID string        `json:"request_id"`
	Text      string        `json:"text"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Latency   time.Duration `json:"latency"`
	Attempts  int           `json:"attempts"`
	Usage     Usage         `json:"usage"`
}

// LatencyMs returns the provider latency in whole milliseconds.
func (r InvocationResult) LatencyMs() int64 {
	return r.Latency.Milliseconds()
}
