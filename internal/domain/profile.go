package domain

import "time"

// CandidateProfile is the public developer footprint a candidate is assessed on.
type CandidateProfile struct {
	Username    string       `json:"username"`
	Name        string       `json:"name,omitempty"`
	Bio         string       `json:"bio,omitempty"`
	Company     string       `json:"company,omitempty"`
	Location    string       `json:"location,omitempty"`
	Blog        string       `json:"blog,omitempty"`
	Followers   int          `json:"followers"`
	PublicRepos int          `json:"public_repos"`
	CreatedAt   time.Time    `json:"created_at"`
	Repos       []Repository `json:"repos"`
}

// Repository summarizes one source repository owned by the candidate.
type Repository struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Language    string    `json:"language,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	Fork        bool      `json:"fork"`
	PushedAt    time.Time `json:"pushed_at"`
}

// Languages returns the distinct primary languages across repos, ordered by
// first appearance.
func (p CandidateProfile) Languages() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range p.Repos {
		if r.Language == "" || seen[r.Language] {
			continue
		}
		seen[r.Language] = true
		out = append(out, r.Language)
	}
	return out
}
