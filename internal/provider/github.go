package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/Iron-Ham/monosplit/internal/config"
	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/retry"
)

const githubAPIURL = "https://api.github.com"

// GitHub creates repositories through the GitHub REST API.
type GitHub struct {
	apiURL string
	webURL string
	org    string
	client *client

	mu    sync.Mutex
	login string
}

type githubRepo struct {
	CloneURL string `json:"clone_url"`
}

type githubUser struct {
	Login string `json:"login"`
}

type githubCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
	AutoInit    bool   `json:"auto_init"`
}

// NewGitHub creates a GitHub adapter. org may be an organization or a user;
// when empty, repositories are created for the authenticated user.
func NewGitHub(cfg config.GitHubConfig, org string, opts ...Option) *GitHub {
	apiURL := strings.TrimRight(firstNonEmpty(cfg.APIURL, githubAPIURL), "/")
	token := cfg.Token
	return &GitHub{
		apiURL: apiURL,
		webURL: githubWebURL(apiURL),
		org:    org,
		client: newClient(config.ProviderGitHub, newSettings(opts), xRateLimit, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
			r.Header.Set("Accept", "application/vnd.github+json")
			r.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		}),
	}
}

// githubWebURL derives the web host from the API URL: api.github.com maps to
// github.com and Enterprise "/api/v3" endpoints map to their host.
func githubWebURL(apiURL string) string {
	if apiURL == githubAPIURL {
		return "https://github.com"
	}
	return strings.TrimSuffix(apiURL, "/api/v3")
}

// Name implements Provider.
func (g *GitHub) Name() string {
	return config.ProviderGitHub
}

// RateLimit implements Provider.
func (g *GitHub) RateLimit() retry.Quota {
	return g.client.Quota()
}

// CloneURL implements Provider.
func (g *GitHub) CloneURL(name string) string {
	g.mu.Lock()
	owner := firstNonEmpty(g.org, g.login)
	g.mu.Unlock()
	return joinURL(g.webURL, owner, Sanitize(name)) + ".git"
}

// CheckAccess implements Provider.
func (g *GitHub) CheckAccess(ctx context.Context) error {
	_, err := g.currentLogin(ctx)
	return err
}

// CreateRepository implements Provider.
func (g *GitHub) CreateRepository(ctx context.Context, name, description string, private bool) (CreateResult, error) {
	name = Sanitize(name)
	if res, ok := g.client.recall(name); ok {
		return res, nil
	}

	owner := g.org
	if owner == "" {
		login, err := g.currentLogin(ctx)
		if err != nil {
			return failed(err)
		}
		owner = login
	}

	resp, err := g.client.do(ctx, http.MethodGet, joinURL(g.apiURL, "repos", url.PathEscape(owner), url.PathEscape(name)), nil)
	if err != nil {
		return failed(err)
	}
	switch resp.status {
	case http.StatusOK:
		var repo githubRepo
		_ = resp.decode(&repo)
		return g.client.remember(name, firstNonEmpty(repo.CloneURL, g.CloneURL(name)), AlreadyExists), nil
	case http.StatusNotFound:
	default:
		return failed(g.client.statusError("check repository", name, resp))
	}

	payload := githubCreateRequest{
		Name:        name,
		Description: description,
		Private:     private,
	}

	endpoint := joinURL(g.apiURL, "user", "repos")
	if g.org != "" {
		endpoint = joinURL(g.apiURL, "orgs", url.PathEscape(g.org), "repos")
	}
	resp, err = g.client.do(ctx, http.MethodPost, endpoint, payload)
	if err == nil && resp.status == http.StatusNotFound && g.org != "" {
		// The owner is a user account, not an organization.
		resp, err = g.client.do(ctx, http.MethodPost, joinURL(g.apiURL, "user", "repos"), payload)
	}
	if err != nil {
		return failed(err)
	}

	switch {
	case resp.status == http.StatusCreated:
		var repo githubRepo
		if err := resp.decode(&repo); err != nil {
			return failed(errors.NewProviderError("malformed create response", errors.ProviderTransient, err).
				WithProvider(g.Name()).
				WithRepository(name))
		}
		return g.client.remember(name, firstNonEmpty(repo.CloneURL, g.CloneURL(name)), Created), nil
	case resp.status == http.StatusUnprocessableEntity && resp.contains("already exists"):
		return g.client.remember(name, g.CloneURL(name), AlreadyExists), nil
	default:
		return failed(g.client.statusError("create repository", name, resp))
	}
}

func (g *GitHub) currentLogin(ctx context.Context) (string, error) {
	g.mu.Lock()
	login := g.login
	g.mu.Unlock()
	if login != "" {
		return login, nil
	}

	resp, err := g.client.do(ctx, http.MethodGet, joinURL(g.apiURL, "user"), nil)
	if err != nil {
		return "", err
	}
	if resp.status != http.StatusOK {
		return "", g.client.statusError("get current user", "", resp)
	}
	var user githubUser
	if err := resp.decode(&user); err != nil || user.Login == "" {
		return "", errors.NewProviderError("malformed user response", errors.ProviderTransient, err).
			WithProvider(g.Name())
	}

	g.mu.Lock()
	g.login = user.Login
	g.mu.Unlock()
	return user.Login, nil
}
