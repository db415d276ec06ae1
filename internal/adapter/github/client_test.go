package github

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC)
}

func fakeGitHub(t *testing.T, repos []ghRepo) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var authHeader atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/octocat", func(w http.ResponseWriter, r *http.Request) {
		authHeader.Store(r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		json.NewEncoder(w).Encode(ghUser{
			Login: "octocat", Name: "The Octocat", Bio: "mascot",
			Followers: 42, PublicRepos: len(repos), CreatedAt: day(1),
		})
	})
	mux.HandleFunc("GET /users/octocat/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pushed", r.URL.Query().Get("sort"))
		json.NewEncoder(w).Encode(repos)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &authHeader
}

func TestFetchProfile(t *testing.T) {
	repos := []ghRepo{
		{Name: "old", Language: "C", PushedAt: day(2), StargazersCount: 1},
		{Name: "forked", Language: "Rust", Fork: true, PushedAt: day(20)},
		{Name: "newest", Language: "Go", Topics: []string{"cli"}, PushedAt: day(10), StargazersCount: 50},
		{Name: "middle", Language: "Go", PushedAt: day(5)},
	}
	srv, auth := fakeGitHub(t, repos)

	c := NewClient(config.GitHubConfig{BaseURL: srv.URL, Token: "ghp_test", MaxRepos: 2}, testLogger())
	p, err := c.FetchProfile(context.Background(), "octocat")
	require.NoError(t, err)

	assert.Equal(t, "octocat", p.Username)
	assert.Equal(t, "The Octocat", p.Name)
	assert.Equal(t, 42, p.Followers)
	require.Len(t, p.Repos, 2)
	assert.Equal(t, "newest", p.Repos[0].Name)
	assert.Equal(t, 50, p.Repos[0].Stars)
	assert.Equal(t, []string{"cli"}, p.Repos[0].Topics)
	assert.Equal(t, "middle", p.Repos[1].Name)
	assert.Equal(t, []string{"Go"}, p.Languages())
	assert.Equal(t, "Bearer ghp_test", auth.Load())
}

func TestFetchProfileAnonymous(t *testing.T) {
	srv, auth := fakeGitHub(t, nil)
	c := NewClient(config.GitHubConfig{BaseURL: srv.URL}, testLogger())

	p, err := c.FetchProfile(context.Background(), "octocat")
	require.NoError(t, err)
	assert.Empty(t, p.Repos)
	assert.Equal(t, "", auth.Load())
}

func TestFetchProfileErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		want    error
	}{
		{"not found", http.StatusNotFound, nil, domain.ErrNotFound},
		{"rate limited", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, domain.ErrRateLimit},
		{"too many requests", http.StatusTooManyRequests, nil, domain.ErrRateLimit},
		{"bad token", http.StatusUnauthorized, nil, domain.ErrAuthInvalid},
		{"forbidden", http.StatusForbidden, nil, domain.ErrAuthInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				http.Error(w, `{"message":"nope"}`, tt.status)
			}))
			defer srv.Close()

			c := NewClient(config.GitHubConfig{BaseURL: srv.URL}, testLogger())
			_, err := c.FetchProfile(context.Background(), "octocat")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchProfileServerErrorIsNotASentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(config.GitHubConfig{BaseURL: srv.URL}, testLogger())
	_, err := c.FetchProfile(context.Background(), "octocat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github API error 502")
	assert.Equal(t, domain.CodeUnknown, domain.ErrorCodeOf(err))
}

func TestFetchProfileInvalidUsername(t *testing.T) {
	c := NewClient(config.GitHubConfig{BaseURL: "http://unused.invalid"}, testLogger())
	for _, name := range []string{"", "-leading", "has space", "../etc", "a-very-long-name-that-exceeds-github-limits"} {
		_, err := c.FetchProfile(context.Background(), name)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, name)
	}
}

func TestLoadProfileFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "profile.json")
	data, err := json.Marshal(domain.CandidateProfile{
		Username: "octocat",
		Repos:    []domain.Repository{{Name: "hello", Language: "Go"}},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(good, data, 0o600))

	p, err := LoadProfileFile(good)
	require.NoError(t, err)
	assert.Equal(t, "octocat", p.Username)
	assert.Len(t, p.Repos, 1)

	anon := filepath.Join(dir, "anon.json")
	require.NoError(t, os.WriteFile(anon, []byte(`{"repos":[]}`), 0o600))
	_, err = LoadProfileFile(anon)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{`), 0o600))
	_, err = LoadProfileFile(broken)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = LoadProfileFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
