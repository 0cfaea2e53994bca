// Package provider creates repositories on hosting services.
//
// Every backend implements Provider. The orchestrator only ever talks to
// that interface; New is the single place that looks at the configured
// provider name.
package provider

import (
	"context"
	"regexp"
	"strings"

	"github.com/Iron-Ham/monosplit/internal/config"
	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/retry"
)

// Outcome is the result of a create-repository call.
type Outcome int

const (
	// Failed means no repository is available under the requested name.
	Failed Outcome = iota
	// Created means a new repository was created.
	Created
	// AlreadyExists means the name was taken and the existing repository is reused.
	AlreadyExists
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return "failed"
	}
}

// CreateResult describes a create-repository call.
type CreateResult struct {
	Outcome  Outcome
	CloneURL string
	// Reason is set when Outcome is Failed.
	Reason string
}

// OK reports whether a repository is available at CloneURL.
func (r CreateResult) OK() bool {
	return r.Outcome == Created || r.Outcome == AlreadyExists
}

// Provider is a repository hosting backend.
type Provider interface {
	// Name returns the provider identifier (e.g. "github").
	Name() string

	// CreateRepository sanitizes name and creates the repository. A name that
	// is already taken is reported as AlreadyExists with the existing clone
	// URL, not as an error. A failure returns Outcome Failed together with a
	// *errors.ProviderError whose Kind tells the caller whether to retry.
	CreateRepository(ctx context.Context, name, description string, private bool) (CreateResult, error)

	// CheckAccess verifies that the credentials are accepted.
	CheckAccess(ctx context.Context) error

	// RateLimit returns the quota observed on the most recent response.
	RateLimit() retry.Quota

	// CloneURL returns the clone URL a repository named name would have,
	// without contacting the provider.
	CloneURL(name string) string
}

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9._-]+`)
	dashRuns         = regexp.MustCompile(`-{2,}`)
)

// Sanitize converts name into a repository name every provider accepts:
// lower case, characters outside [a-z0-9._-] replaced by "-", runs of "-"
// collapsed and "-", "." and "_" trimmed from both ends. An empty result
// becomes "repo". Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(name string) string {
	s := strings.ToLower(name)
	s = invalidNameChars.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-._")
	if s == "" {
		return "repo"
	}
	return s
}

// New builds the adapter selected by cfg.Provider.Name. When cfg.Split.DryRun
// is set the adapter is wrapped so that no request is ever sent.
func New(cfg *config.Config, opts ...Option) (Provider, error) {
	var p Provider
	switch cfg.Provider.Name {
	case config.ProviderGitHub:
		p = NewGitHub(cfg.Providers.GitHub, cfg.Provider.Org, opts...)
	case config.ProviderGitLab:
		p = NewGitLab(cfg.Providers.GitLab, cfg.Provider.Org, opts...)
	case config.ProviderBitbucket:
		p = NewBitbucket(cfg.Providers.Bitbucket, cfg.Provider.Org, opts...)
	case config.ProviderAzure:
		p = NewAzure(cfg.Providers.Azure, cfg.Provider.Org, opts...)
	default:
		return nil, errors.Wrapf(errors.ErrUnknownProvider, "%q", cfg.Provider.Name)
	}

	if cfg.Split.DryRun {
		return NewDryRun(p, newSettings(opts).logger), nil
	}
	return p, nil
}
