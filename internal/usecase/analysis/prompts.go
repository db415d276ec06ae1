package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"talentscan/internal/domain"
)

var promptFuncs = template.FuncMap{
	"join": strings.Join,
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	},
}

func mustPrompt(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(promptFuncs).Parse(text))
}

var codePrompt = mustPrompt("code", `You are reviewing the public repositories of GitHub user {{.Profile.Username}}.

Repositories (most recently pushed first):
{{range .Profile.Repos}}- {{.Name}}{{if .Language}} [{{.Language}}]{{end}} stars={{.Stars}}{{if .Description}}: {{.Description}}{{end}}{{if .Topics}} topics={{join .Topics ","}}{{end}}
{{else}}(no public repositories)
{{end}}
Assess code quality and engineering practice from this evidence.
Respond with JSON only:
{"quality": <1-10>, "primary_languages": [..], "strengths": [..], "concerns": [..]}`)

var profilePrompt = mustPrompt("profile", `Scan this developer profile.

User: {{.Profile.Username}}{{if .Profile.Name}} ({{.Profile.Name}}){{end}}
Bio: {{.Profile.Bio}}
Company: {{.Profile.Company}}
Location: {{.Profile.Location}}
Followers: {{.Profile.Followers}}
Public repositories: {{.Profile.PublicRepos}}
Account created: {{.Profile.CreatedAt.Format "2006-01-02"}}

Respond with JSON only:
{"seniority": "junior|mid|senior|staff", "activity": "low|moderate|high", "highlights": [..]}`)

var skillsPrompt = mustPrompt("skills", `Extract the technical skills of GitHub user {{.Profile.Username}}.

Languages seen: {{join .Profile.Languages ", "}}
Code review: {{json .Code}}
Profile scan: {{json .ProfileScan}}

Respond with JSON only:
{"skills": [{"name": "..", "level": "beginner|intermediate|advanced|expert", "evidence": ".."}]}`)

var summaryPrompt = mustPrompt("summary", `Write a recruiter-facing summary for GitHub user {{.Profile.Username}}.

Code review: {{json .Code}}
Profile scan: {{json .ProfileScan}}
Skills: {{json .Skills}}

Respond with JSON only:
{"headline": "..", "overview": "..", "score": <0-100>, "recommendation": ".."}`)

// promptData is what every stage template sees. Later stages read the
// results of earlier ones.
type promptData struct {
	Profile     domain.CandidateProfile
	Code        CodeAssessment
	ProfileScan ProfileAssessment
	Skills      SkillSet
}

func render(t *template.Template, data promptData) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return b.String(), nil
}
