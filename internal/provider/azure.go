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

const (
	azureAPIURL     = "https://dev.azure.com"
	azureAPIVersion = "7.0"
)

// Azure creates Git repositories in an Azure DevOps project.
type Azure struct {
	apiURL       string
	organization string
	project      string
	client       *client
}

type azureRepo struct {
	RemoteURL string `json:"remoteUrl"`
}

type azureCreateRequest struct {
	Name string `json:"name"`
}

// NewAzure creates an Azure DevOps adapter for organization and cfg.Project.
// Repository visibility follows the project, so the private flag is ignored.
func NewAzure(cfg config.AzureConfig, organization string, opts ...Option) *Azure {
	token := cfg.Token
	return &Azure{
		apiURL:       strings.TrimRight(firstNonEmpty(cfg.APIURL, azureAPIURL), "/"),
		organization: organization,
		project:      cfg.Project,
		client: newClient(config.ProviderAzure, newSettings(opts), xRateLimit, func(r *http.Request) {
			r.SetBasicAuth("", token)
		}),
	}
}

// Name implements Provider.
func (a *Azure) Name() string {
	return config.ProviderAzure
}

// RateLimit implements Provider.
func (a *Azure) RateLimit() retry.Quota {
	return a.client.Quota()
}

// CloneURL implements Provider.
func (a *Azure) CloneURL(name string) string {
	return joinURL(a.apiURL, url.PathEscape(a.organization), url.PathEscape(a.project), "_git", Sanitize(name))
}

// CheckAccess implements Provider.
func (a *Azure) CheckAccess(ctx context.Context) error {
	endpoint := joinURL(a.apiURL, url.PathEscape(a.organization), "_apis", "projects", url.PathEscape(a.project)) + a.version()
	resp, err := a.client.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return a.client.statusError("get project", "", resp)
	}
	return nil
}

// CreateRepository implements Provider.
func (a *Azure) CreateRepository(ctx context.Context, name, _ string, _ bool) (CreateResult, error) {
	name = Sanitize(name)
	if res, ok := a.client.recall(name); ok {
		return res, nil
	}

	repos := joinURL(a.apiURL, url.PathEscape(a.organization), url.PathEscape(a.project), "_apis", "git", "repositories")

	resp, err := a.client.do(ctx, http.MethodGet, joinURL(repos, url.PathEscape(name))+a.version(), nil)
	if err != nil {
		return failed(err)
	}
	switch resp.status {
	case http.StatusOK:
		var repo azureRepo
		_ = resp.decode(&repo)
		return a.client.remember(name, firstNonEmpty(repo.RemoteURL, a.CloneURL(name)), AlreadyExists), nil
	case http.StatusNotFound:
	default:
		return failed(a.client.statusError("check repository", name, resp))
	}

	resp, err = a.client.do(ctx, http.MethodPost, repos+a.version(), azureCreateRequest{Name: name})
	if err != nil {
		return failed(err)
	}

	switch resp.status {
	case http.StatusOK, http.StatusCreated:
		var repo azureRepo
		if err := resp.decode(&repo); err != nil {
			return failed(errors.NewProviderError("malformed create response", errors.ProviderTransient, err).
				WithProvider(a.Name()).
				WithRepository(name))
		}
		return a.client.remember(name, firstNonEmpty(repo.RemoteURL, a.CloneURL(name)), Created), nil
	case http.StatusConflict:
		return a.client.remember(name, a.CloneURL(name), AlreadyExists), nil
	default:
		return failed(a.client.statusError("create repository", name, resp))
	}
}

func (a *Azure) version() string {
	return "?api-version=" + azureAPIVersion
}
