package provider

import (
	"context"

	"github.com/Iron-Ham/monosplit/internal/logging"
	"github.com/Iron-Ham/monosplit/internal/retry"
)

// DryRun wraps a Provider and never sends a request. CreateRepository
// reports Created with the clone URL the wrapped provider would assign.
type DryRun struct {
	inner  Provider
	logger *logging.Logger
}

// NewDryRun wraps inner. A nil logger discards output.
func NewDryRun(inner Provider, logger *logging.Logger) *DryRun {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &DryRun{inner: inner, logger: logger.WithProvider(inner.Name())}
}

// Name implements Provider.
func (d *DryRun) Name() string {
	return d.inner.Name()
}

// CreateRepository implements Provider.
func (d *DryRun) CreateRepository(ctx context.Context, name, _ string, private bool) (CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return failed(err)
	}
	name = Sanitize(name)
	cloneURL := d.inner.CloneURL(name)
	d.logger.Info("[dry run] would create repository", "repo", name, "private", private, "clone_url", cloneURL)
	return CreateResult{Outcome: Created, CloneURL: cloneURL}, nil
}

// CheckAccess implements Provider. Nothing is contacted.
func (d *DryRun) CheckAccess(context.Context) error {
	return nil
}

// RateLimit implements Provider. The quota is never known.
func (d *DryRun) RateLimit() retry.Quota {
	return retry.Quota{}
}

// CloneURL implements Provider.
func (d *DryRun) CloneURL(name string) string {
	return d.inner.CloneURL(name)
}
