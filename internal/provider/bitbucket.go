package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Iron-Ham/monosplit/internal/config"
	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/retry"
)

const bitbucketAPIURL = "https://api.bitbucket.org"

// Bitbucket creates repositories through the Bitbucket Cloud 2.0 API.
type Bitbucket struct {
	apiURL    string
	webURL    string
	workspace string
	client    *client
}

type bitbucketLink struct {
	Name string `json:"name"`
	Href string `json:"href"`
}

type bitbucketRepo struct {
	Links struct {
		Clone []bitbucketLink `json:"clone"`
	} `json:"links"`
}

type bitbucketCreateRequest struct {
	SCM         string `json:"scm"`
	IsPrivate   bool   `json:"is_private"`
	Description string `json:"description,omitempty"`
}

// NewBitbucket creates a Bitbucket adapter for workspace.
func NewBitbucket(cfg config.BitbucketConfig, workspace string, opts ...Option) *Bitbucket {
	apiURL := strings.TrimRight(firstNonEmpty(cfg.APIURL, bitbucketAPIURL), "/")
	webURL := apiURL
	if apiURL == bitbucketAPIURL {
		webURL = "https://bitbucket.org"
	}
	username, password := cfg.Username, cfg.AppPassword
	return &Bitbucket{
		apiURL:    apiURL + "/2.0",
		webURL:    webURL,
		workspace: workspace,
		client: newClient(config.ProviderBitbucket, newSettings(opts), xRateLimit, func(r *http.Request) {
			r.SetBasicAuth(username, password)
		}),
	}
}

// Name implements Provider.
func (b *Bitbucket) Name() string {
	return config.ProviderBitbucket
}

// RateLimit implements Provider.
func (b *Bitbucket) RateLimit() retry.Quota {
	return b.client.Quota()
}

// CloneURL implements Provider.
func (b *Bitbucket) CloneURL(name string) string {
	return joinURL(b.webURL, b.workspace, Sanitize(name)) + ".git"
}

// CheckAccess implements Provider.
func (b *Bitbucket) CheckAccess(ctx context.Context) error {
	resp, err := b.client.do(ctx, http.MethodGet, joinURL(b.apiURL, "user"), nil)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return b.client.statusError("get current user", "", resp)
	}
	return nil
}

// CreateRepository implements Provider.
func (b *Bitbucket) CreateRepository(ctx context.Context, name, description string, private bool) (CreateResult, error) {
	name = Sanitize(name)
	if res, ok := b.client.recall(name); ok {
		return res, nil
	}

	endpoint := joinURL(b.apiURL, "repositories", url.PathEscape(b.workspace), url.PathEscape(name))

	resp, err := b.client.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return failed(err)
	}
	switch resp.status {
	case http.StatusOK:
		var repo bitbucketRepo
		_ = resp.decode(&repo)
		return b.client.remember(name, b.preferredURL(repo, name), AlreadyExists), nil
	case http.StatusNotFound:
	default:
		return failed(b.client.statusError("check repository", name, resp))
	}

	payload := bitbucketCreateRequest{
		SCM:         "git",
		IsPrivate:   private,
		Description: description,
	}
	resp, err = b.client.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return failed(err)
	}

	switch {
	case resp.status == http.StatusOK, resp.status == http.StatusCreated:
		var repo bitbucketRepo
		if err := resp.decode(&repo); err != nil {
			return failed(errors.NewProviderError("malformed create response", errors.ProviderTransient, err).
				WithProvider(b.Name()).
				WithRepository(name))
		}
		return b.client.remember(name, b.preferredURL(repo, name), Created), nil
	case resp.status == http.StatusBadRequest && resp.contains("already exists"):
		return b.client.remember(name, b.CloneURL(name), AlreadyExists), nil
	default:
		return failed(b.client.statusError("create repository", name, resp))
	}
}

// preferredURL picks the https clone link, then any clone link.
func (b *Bitbucket) preferredURL(repo bitbucketRepo, name string) string {
	var fallback string
	for _, link := range repo.Links.Clone {
		if link.Name == "https" {
			return link.Href
		}
		if fallback == "" {
			fallback = link.Href
		}
	}
	return firstNonEmpty(fallback, b.CloneURL(name))
}
