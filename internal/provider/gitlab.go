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

const gitlabHost = "https://gitlab.com"

// GitLab creates projects through the GitLab REST API (v4).
type GitLab struct {
	host      string
	apiURL    string
	namespace string
	client    *client

	mu       sync.Mutex
	username string
}

type gitlabProject struct {
	HTTPURLToRepo string `json:"http_url_to_repo"`
	SSHURLToRepo  string `json:"ssh_url_to_repo"`
}

type gitlabNamespace struct {
	ID int `json:"id"`
}

type gitlabUser struct {
	Username string `json:"username"`
}

type gitlabCreateRequest struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	NamespaceID int    `json:"namespace_id,omitempty"`
	Visibility  string `json:"visibility"`
	Description string `json:"description,omitempty"`
}

// NewGitLab creates a GitLab adapter. namespace is the group (or user) path
// new projects live under; when empty the authenticated user's namespace is used.
func NewGitLab(cfg config.GitLabConfig, namespace string, opts ...Option) *GitLab {
	host := strings.TrimRight(firstNonEmpty(cfg.Host, gitlabHost), "/")
	token := cfg.Token
	headers := quotaHeaders{
		remaining: "RateLimit-Remaining",
		limit:     "RateLimit-Limit",
		reset:     "RateLimit-Reset",
	}
	return &GitLab{
		host:      host,
		apiURL:    host + "/api/v4",
		namespace: strings.Trim(namespace, "/"),
		client: newClient(config.ProviderGitLab, newSettings(opts), headers, func(r *http.Request) {
			r.Header.Set("PRIVATE-TOKEN", token)
		}),
	}
}

// Name implements Provider.
func (g *GitLab) Name() string {
	return config.ProviderGitLab
}

// RateLimit implements Provider.
func (g *GitLab) RateLimit() retry.Quota {
	return g.client.Quota()
}

// CloneURL implements Provider.
func (g *GitLab) CloneURL(name string) string {
	g.mu.Lock()
	ns := firstNonEmpty(g.namespace, g.username)
	g.mu.Unlock()
	return joinURL(g.host, ns, Sanitize(name)) + ".git"
}

// CheckAccess implements Provider.
func (g *GitLab) CheckAccess(ctx context.Context) error {
	_, err := g.currentUser(ctx)
	return err
}

// CreateRepository implements Provider.
func (g *GitLab) CreateRepository(ctx context.Context, name, description string, private bool) (CreateResult, error) {
	name = Sanitize(name)
	if res, ok := g.client.recall(name); ok {
		return res, nil
	}

	ns := g.namespace
	if ns == "" {
		user, err := g.currentUser(ctx)
		if err != nil {
			return failed(err)
		}
		ns = user
	}

	resp, err := g.client.do(ctx, http.MethodGet, joinURL(g.apiURL, "projects", url.PathEscape(ns+"/"+name)), nil)
	if err != nil {
		return failed(err)
	}
	switch resp.status {
	case http.StatusOK:
		var project gitlabProject
		_ = resp.decode(&project)
		return g.client.remember(name, g.preferredURL(project, name), AlreadyExists), nil
	case http.StatusNotFound:
	default:
		return failed(g.client.statusError("check project", name, resp))
	}

	visibility := "public"
	if private {
		visibility = "private"
	}
	payload := gitlabCreateRequest{
		Name:        name,
		Path:        name,
		NamespaceID: g.namespaceID(ctx),
		Visibility:  visibility,
		Description: description,
	}

	resp, err = g.client.do(ctx, http.MethodPost, joinURL(g.apiURL, "projects"), payload)
	if err != nil {
		return failed(err)
	}

	switch {
	case resp.status == http.StatusCreated:
		var project gitlabProject
		if err := resp.decode(&project); err != nil {
			return failed(errors.NewProviderError("malformed create response", errors.ProviderTransient, err).
				WithProvider(g.Name()).
				WithRepository(name))
		}
		return g.client.remember(name, g.preferredURL(project, name), Created), nil
	case resp.status == http.StatusConflict,
		resp.status == http.StatusBadRequest && resp.contains("has already been taken"):
		return g.client.remember(name, g.CloneURL(name), AlreadyExists), nil
	default:
		return failed(g.client.statusError("create project", name, resp))
	}
}

func (g *GitLab) preferredURL(p gitlabProject, name string) string {
	return firstNonEmpty(p.HTTPURLToRepo, p.SSHURLToRepo, g.CloneURL(name))
}

// namespaceID resolves the configured namespace. Zero lets GitLab pick the
// user's personal namespace.
func (g *GitLab) namespaceID(ctx context.Context) int {
	if g.namespace == "" {
		return 0
	}
	resp, err := g.client.do(ctx, http.MethodGet, joinURL(g.apiURL, "namespaces", url.PathEscape(g.namespace)), nil)
	if err != nil || resp.status != http.StatusOK {
		g.client.logger.Debug("namespace lookup failed, using default namespace", "namespace", g.namespace)
		return 0
	}
	var ns gitlabNamespace
	if err := resp.decode(&ns); err != nil {
		return 0
	}
	return ns.ID
}

func (g *GitLab) currentUser(ctx context.Context) (string, error) {
	g.mu.Lock()
	username := g.username
	g.mu.Unlock()
	if username != "" {
		return username, nil
	}

	resp, err := g.client.do(ctx, http.MethodGet, joinURL(g.apiURL, "user"), nil)
	if err != nil {
		return "", err
	}
	if resp.status != http.StatusOK {
		return "", g.client.statusError("get current user", "", resp)
	}
	var user gitlabUser
	if err := resp.decode(&user); err != nil || user.Username == "" {
		return "", errors.NewProviderError("malformed user response", errors.ProviderTransient, err).
			WithProvider(g.Name())
	}

	g.mu.Lock()
	g.username = user.Username
	g.mu.Unlock()
	return user.Username, nil
}
