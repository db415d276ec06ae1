// Package github loads a candidate's public developer profile from the
// GitHub REST API or from a local JSON export.
package github

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
	"talentscan/internal/infra/tracer"
)

const (
	defaultBaseURL  = "https://api.github.com"
	defaultTimeout  = 15 * time.Second
	defaultMaxRepos = 10
	apiVersion      = "2022-11-28"
	maxResponseBody = 10 * 1024 * 1024
	maxErrorDetail  = 256
	reposPerPage    = 100
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)

// Client fetches profiles from the GitHub REST API.
type Client struct {
	baseURL  string
	token    string
	maxRepos int
	client   *http.Client
	logger   *slog.Logger
}

// NewClient creates a GitHub client. An empty token uses anonymous access,
// which GitHub limits to 60 requests per hour.
func NewClient(cfg config.GitHubConfig, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRepos := cfg.MaxRepos
	if maxRepos <= 0 {
		maxRepos = defaultMaxRepos
	}
	return &Client{
		baseURL:  baseURL,
		token:    cfg.Token,
		maxRepos: maxRepos,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type ghUser struct {
	Login       string    `json:"login"`
	Name        string    `json:"name"`
	Bio         string    `json:"bio"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Blog        string    `json:"blog"`
	Followers   int       `json:"followers"`
	PublicRepos int       `json:"public_repos"`
	CreatedAt   time.Time `json:"created_at"`
}

type ghRepo struct {
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Language        string    `json:"language"`
	Topics          []string  `json:"topics"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	Fork            bool      `json:"fork"`
	PushedAt        time.Time `json:"pushed_at"`
}

// FetchProfile loads the user and their most recently pushed repositories.
// Forks are dropped so the profile reflects the candidate's own work.
func (c *Client) FetchProfile(ctx context.Context, username string) (domain.CandidateProfile, error) {
	if !usernamePattern.MatchString(username) {
		return domain.CandidateProfile{}, domain.NewDomainError("github.FetchProfile", domain.ErrInvalidInput,
			fmt.Sprintf("invalid username %q", username))
	}

	ctx, span := tracer.StartSpan(ctx, "github.fetch_profile")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("github.user", username))

	var (
		user  ghUser
		repos []ghRepo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.get(gctx, "/users/"+url.PathEscape(username), nil, &user)
	})
	g.Go(func() error {
		q := url.Values{
			"sort":     {"pushed"},
			"type":     {"owner"},
			"per_page": {fmt.Sprint(reposPerPage)},
		}
		return c.get(gctx, "/users/"+url.PathEscape(username)+"/repos", q, &repos)
	})
	if err := g.Wait(); err != nil {
		tracer.RecordError(span, err)
		return domain.CandidateProfile{}, domain.WrapOp("github.FetchProfile", err)
	}

	profile := toProfile(user, repos, c.maxRepos)
	span.SetAttributes(tracer.IntAttr("github.repos", len(profile.Repos)))
	tracer.SetOK(span)
	c.logger.Debug("github profile fetched", "user", profile.Username, "repos", len(profile.Repos))
	return profile, nil
}

func toProfile(user ghUser, repos []ghRepo, maxRepos int) domain.CandidateProfile {
	own := make([]ghRepo, 0, len(repos))
	for _, r := range repos {
		if !r.Fork {
			own = append(own, r)
		}
	}
	slices.SortStableFunc(own, func(a, b ghRepo) int {
		return cmp.Compare(b.PushedAt.UnixNano(), a.PushedAt.UnixNano())
	})
	if len(own) > maxRepos {
		own = own[:maxRepos]
	}

	profile := domain.CandidateProfile{
		Username:    user.Login,
		Name:        user.Name,
		Bio:         user.Bio,
		Company:     user.Company,
		Location:    user.Location,
		Blog:        user.Blog,
		Followers:   user.Followers,
		PublicRepos: user.PublicRepos,
		CreatedAt:   user.CreatedAt,
		Repos:       make([]domain.Repository, len(own)),
	}
	for i, r := range own {
		profile.Repos[i] = domain.Repository{
			Name:        r.Name,
			Description: r.Description,
			Language:    r.Language,
			Topics:      r.Topics,
			Stars:       r.StargazersCount,
			Forks:       r.ForksCount,
			Fork:        r.Fork,
			PushedAt:    r.PushedAt,
		}
	}
	return profile
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", "talentscan")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return mapStatus(resp, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// mapStatus converts a GitHub error response to a domain sentinel.
func mapStatus(resp *http.Response, body []byte) error {
	detail := string(body)
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail] + "..."
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: github user or resource", domain.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return fmt.Errorf("%w: github (reset %s)", domain.ErrRateLimit, resp.Header.Get("X-RateLimit-Reset"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: github: %s", domain.ErrAuthInvalid, detail)
	default:
		return fmt.Errorf("github API error %d: %s", resp.StatusCode, detail)
	}
}

// LoadProfileFile reads a profile previously exported as JSON. It lets the
// analysis run offline or against data from another source.
func LoadProfileFile(path string) (domain.CandidateProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.CandidateProfile{}, fmt.Errorf("read profile: %w", err)
	}
	var p domain.CandidateProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.CandidateProfile{}, domain.NewDomainError("github.LoadProfileFile", domain.ErrInvalidInput, err.Error())
	}
	if p.Username == "" {
		return domain.CandidateProfile{}, domain.NewDomainError("github.LoadProfileFile", domain.ErrInvalidInput, "profile has no username")
	}
	return p, nil
}
