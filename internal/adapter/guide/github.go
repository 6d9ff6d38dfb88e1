package guide

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arturoeanton/go-profile-hub/internal/domain"
	"github.com/arturoeanton/go-profile-hub/internal/port"
)

const defaultAPIBase = "https://api.github.com"

// GitHubSource implements port.GuideSource against the GitHub REST API.
// The guide repository publishes a single index.json at its root containing
// every definition; the branch head commit SHA is the version token.
type GitHubSource struct {
	apiBase    string
	token      string // optional, raises rate limits
	httpClient *http.Client
}

// Option configures a GitHubSource.
type Option func(*GitHubSource)

// WithAPIBase overrides the GitHub API base URL (used in tests).
func WithAPIBase(base string) Option {
	return func(s *GitHubSource) { s.apiBase = base }
}

// WithToken sets a bearer token for authenticated API calls.
func WithToken(token string) Option {
	return func(s *GitHubSource) { s.token = token }
}

// NewGitHubSource creates a guide source with a per-call timeout.
func NewGitHubSource(timeout time.Duration, opts ...Option) *GitHubSource {
	s := &GitHubSource{
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HeadVersion returns the branch head commit SHA via a lightweight metadata
// call, without downloading any content.
func (s *GitHubSource) HeadVersion(ctx context.Context, repo domain.RepoConfig) (domain.GuideVersion, error) {
	if err := validateRepo(repo); err != nil {
		return domain.GuideVersion{}, err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/commits/%s", s.apiBase, repo.Owner, repo.Name, repo.Branch)
	body, err := s.get(ctx, url, "application/vnd.github+json")
	if err != nil {
		return domain.GuideVersion{}, err
	}

	var commit struct {
		SHA string `json:"sha"`
	}
	if err := json.Unmarshal(body, &commit); err != nil {
		return domain.GuideVersion{}, &port.ParseError{Path: url, Err: err}
	}
	if commit.SHA == "" {
		return domain.GuideVersion{}, &port.ParseError{Path: url, Err: fmt.Errorf("response has no commit sha")}
	}

	return domain.GuideVersion{CommitSHA: commit.SHA, FetchedAt: time.Now()}, nil
}

// FetchDefinitions downloads the repository's index.json at the current head
// and returns every definition pinned to that head's version.
func (s *GitHubSource) FetchDefinitions(ctx context.Context, repo domain.RepoConfig) (domain.GuideVersion, []domain.CachedDefinition, error) {
	version, err := s.HeadVersion(ctx, repo)
	if err != nil {
		return domain.GuideVersion{}, nil, err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/contents/index.json?ref=%s", s.apiBase, repo.Owner, repo.Name, version.CommitSHA)
	body, err := s.get(ctx, url, "application/vnd.github.raw+json")
	if err != nil {
		return domain.GuideVersion{}, nil, err
	}

	var index struct {
		Definitions []struct {
			ID      string          `json:"id"`
			Kind    string          `json:"kind"`
			Payload json.RawMessage `json:"payload"`
		} `json:"definitions"`
	}
	if err := json.Unmarshal(body, &index); err != nil {
		return domain.GuideVersion{}, nil, &port.ParseError{Path: "index.json", Err: err}
	}

	defs := make([]domain.CachedDefinition, 0, len(index.Definitions))
	seen := make(map[string]bool, len(index.Definitions))
	for _, d := range index.Definitions {
		if d.ID == "" {
			return domain.GuideVersion{}, nil, &port.ParseError{Path: "index.json", Err: fmt.Errorf("definition with empty id")}
		}
		if seen[d.ID] {
			return domain.GuideVersion{}, nil, &port.ParseError{Path: "index.json", Err: fmt.Errorf("duplicate definition id %q", d.ID)}
		}
		seen[d.ID] = true
		switch d.Kind {
		case domain.DefinitionKindFormat, domain.DefinitionKindQualityProfile:
		default:
			return domain.GuideVersion{}, nil, &port.ParseError{Path: "index.json", Err: fmt.Errorf("definition %s has unknown kind %q", d.ID, d.Kind)}
		}
		defs = append(defs, domain.CachedDefinition{
			DefinitionID: d.ID,
			Kind:         d.Kind,
			Payload:      d.Payload,
			Version:      version.CommitSHA,
		})
	}

	return version, defs, nil
}

func (s *GitHubSource) get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &port.FetchError{Op: "create request", Err: err}
	}
	req.Header.Set("Accept", accept)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &port.FetchError{Op: "get " + url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &port.FetchError{Op: "read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &port.FetchError{Op: "get " + url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	return body, nil
}

func validateRepo(repo domain.RepoConfig) error {
	switch {
	case repo.Owner == "":
		return &port.NotConfiguredError{Missing: "owner"}
	case repo.Name == "":
		return &port.NotConfiguredError{Missing: "name"}
	case repo.Branch == "":
		return &port.NotConfiguredError{Missing: "branch"}
	}
	return nil
}
