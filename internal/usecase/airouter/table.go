package airouter

import (
	"talentscan/internal/domain"
)

// Route is one task table entry: the preferred provider plus the sampling
// settings sent with every attempt for that task. Zero values leave the
// provider's defaults in place.
type Route struct {
	Provider    string
	Temperature float64
	MaxTokens   int
}

// RouteTable maps task categories to routes. It is plain data; the router
// copies it at construction so later edits have no effect.
type RouteTable map[domain.TaskCategory]Route

// DefaultRouteTable sends reasoning-heavy work to the most capable backend
// and bulk work to the fast free tiers.
func DefaultRouteTable() RouteTable {
	return RouteTable{
		domain.TaskCodeAnalysis:      {Provider: "anthropic", Temperature: 0.2, MaxTokens: 2048},
		domain.TaskProfileScan:       {Provider: "groq", Temperature: 0.3, MaxTokens: 1024},
		domain.TaskSkillExtraction:   {Provider: "gemini", Temperature: 0.2, MaxTokens: 1024},
		domain.TaskSummaryGeneration: {Provider: "together", Temperature: 0.5, MaxTokens: 1024},
		domain.TaskGeneral:           {Provider: "groq", Temperature: 0.7, MaxTokens: 1024},
	}
}

// Resolve returns the route for task. Unknown or empty tasks resolve like
// TaskGeneral.
func (t RouteTable) Resolve(task domain.TaskCategory) Route {
	if r, ok := t[task]; ok {
		return r
	}
	return t[domain.TaskGeneral]
}

// Preferred returns the preferred provider name for task.
func (t RouteTable) Preferred(task domain.TaskCategory) string {
	return t.Resolve(task).Provider
}

// Merge returns a copy of t with overrides applied on top.
func (t RouteTable) Merge(overrides RouteTable) RouteTable {
	out := t.clone()
	for task, r := range overrides {
		out[task] = r
	}
	return out
}

func (t RouteTable) clone() RouteTable {
	out := make(RouteTable, len(t))
	for task, r := range t {
		out[task] = r
	}
	return out
}
