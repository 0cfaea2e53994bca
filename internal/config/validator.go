package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "split.mode")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidModes returns the list of valid split modes
func ValidModes() []string {
	return []string{ModeAuto, ModeProject, ModeBranch}
}

// ValidProviders returns the list of supported hosting providers
func ValidProviders() []string {
	return []string{ProviderGitHub, ProviderGitLab, ProviderBitbucket, ProviderAzure}
}

// Validate checks the Config for invalid values and returns all validation errors found.
// It covers settings used by every command; ValidateForSplit adds the checks
// that only matter when repositories are about to be created.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateProvider()...)
	errors = append(errors, c.validateSplit()...)
	errors = append(errors, c.validateAnalysis()...)
	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateGit()...)
	errors = append(errors, c.validateReport()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// ValidateForSplit checks everything Validate does plus the source repository,
// mode inputs and, unless this is a dry run, the selected provider's credentials.
func (c *Config) ValidateForSplit() []ValidationError {
	errors := c.Validate()

	if strings.TrimSpace(c.Source.RepoURL) == "" {
		errors = append(errors, ValidationError{
			Field:   "source.repo_url",
			Value:   c.Source.RepoURL,
			Message: "is required to split",
		})
	}

	switch c.Split.Mode {
	case ModeProject:
		if len(c.Split.Projects) == 0 && c.Split.PlanFile == "" {
			errors = append(errors, ValidationError{
				Field:   "split.projects",
				Value:   c.Split.Projects,
				Message: "at least one project path is required in project mode",
			})
		}
	case ModeBranch:
		if len(c.Split.Branches) == 0 && c.Split.PlanFile == "" {
			errors = append(errors, ValidationError{
				Field:   "split.branches",
				Value:   c.Split.Branches,
				Message: "at least one branch is required in branch mode",
			})
		}
	}

	if c.Split.DryRun {
		return errors
	}

	if strings.TrimSpace(c.Provider.Org) == "" && c.Provider.Name != ProviderGitHub {
		errors = append(errors, ValidationError{
			Field:   "provider.org",
			Value:   c.Provider.Org,
			Message: fmt.Sprintf("is required for %s", c.Provider.Name),
		})
	}
	errors = append(errors, c.validateCredentials()...)

	return errors
}

func (c *Config) validateProvider() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidProviders(), c.Provider.Name) {
		errors = append(errors, ValidationError{
			Field:   "provider.name",
			Value:   c.Provider.Name,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidProviders(), ", ")),
		})
	}

	endpoints := map[string]string{
		"providers.github.api_url":    c.Providers.GitHub.APIURL,
		"providers.gitlab.host":       c.Providers.GitLab.Host,
		"providers.bitbucket.api_url": c.Providers.Bitbucket.APIURL,
		"providers.azure.api_url":     c.Providers.Azure.APIURL,
	}
	fields := make([]string, 0, len(endpoints))
	for field := range endpoints {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	for _, field := range fields {
		raw := endpoints[field]
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   raw,
				Message: "must be an absolute URL",
			})
		}
	}

	return errors
}

// validateCredentials checks only the selected provider's fields.
func (c *Config) validateCredentials() []ValidationError {
	var errors []ValidationError
	missing := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   "",
				Message: fmt.Sprintf("is required for provider %s", c.Provider.Name),
			})
		}
	}

	switch c.Provider.Name {
	case ProviderGitHub:
		missing("providers.github.token", c.Providers.GitHub.Token)
	case ProviderGitLab:
		missing("providers.gitlab.token", c.Providers.GitLab.Token)
	case ProviderBitbucket:
		missing("providers.bitbucket.username", c.Providers.Bitbucket.Username)
		missing("providers.bitbucket.app_password", c.Providers.Bitbucket.AppPassword)
	case ProviderAzure:
		missing("providers.azure.token", c.Providers.Azure.Token)
		missing("providers.azure.project", c.Providers.Azure.Project)
	}

	return errors
}

func (c *Config) validateSplit() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidModes(), c.Split.Mode) {
		errors = append(errors, ValidationError{
			Field:   "split.mode",
			Value:   c.Split.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidModes(), ", ")),
		})
	}

	templates := []struct {
		field, value string
	}{
		{"split.app_template", c.Split.AppTemplate},
		{"split.lib_template", c.Split.LibTemplate},
		{"split.branch_template", c.Split.BranchTemplate},
	}
	for _, tmpl := range templates {
		if !strings.Contains(tmpl.value, NamePlaceholder) {
			errors = append(errors, ValidationError{
				Field:   tmpl.field,
				Value:   tmpl.value,
				Message: fmt.Sprintf("must contain %s", NamePlaceholder),
			})
		}
	}

	if strings.TrimSpace(c.Split.DefaultBranch) == "" || strings.ContainsAny(c.Split.DefaultBranch, " ~^:?*[\\") {
		errors = append(errors, ValidationError{
			Field:   "split.default_branch",
			Value:   c.Split.DefaultBranch,
			Message: "must be a valid branch name",
		})
	}

	if c.Split.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "split.concurrency",
			Value:   c.Split.Concurrency,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateAnalysis() []ValidationError {
	var errors []ValidationError

	if c.Analysis.SubstantialSourceFiles < 0 {
		errors = append(errors, ValidationError{
			Field:   "analysis.substantial_source_files",
			Value:   c.Analysis.SubstantialSourceFiles,
			Message: "must be non-negative",
		})
	}

	if c.Analysis.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "analysis.workers",
			Value:   c.Analysis.Workers,
			Message: "must be at least 1",
		})
	}

	for i, pattern := range c.Analysis.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("analysis.exclude[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	for i, name := range c.Analysis.SkipDirs {
		if name == "" || strings.Contains(name, "/") {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("analysis.skip_dirs[%d]", i),
				Value:   name,
				Message: "must be a single directory name",
			})
		}
	}

	return errors
}

func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError

	if c.Retry.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_attempts",
			Value:   c.Retry.MaxAttempts,
			Message: "must be at least 1",
		})
	}

	if c.Retry.BaseDelay <= 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.base_delay",
			Value:   c.Retry.BaseDelay,
			Message: "must be positive",
		})
	}

	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errors = append(errors, ValidationError{
			Field:   "retry.max_delay",
			Value:   c.Retry.MaxDelay,
			Message: "must not be less than retry.base_delay",
		})
	}

	if c.Retry.RateLimitFloor < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.rate_limit_floor",
			Value:   c.Retry.RateLimitFloor,
			Message: "must be non-negative",
		})
	}

	if c.Retry.MaxRateLimitWaits < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_rate_limit_waits",
			Value:   c.Retry.MaxRateLimitWaits,
			Message: "must be non-negative",
		})
	}

	if c.Retry.BreakerThreshold < 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.breaker_threshold",
			Value:   c.Retry.BreakerThreshold,
			Message: "must be at least 1",
		})
	}

	if c.Retry.BreakerCooldown <= 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.breaker_cooldown",
			Value:   c.Retry.BreakerCooldown,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateGit() []ValidationError {
	var errors []ValidationError

	if c.Git.CommandTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "git.command_timeout",
			Value:   c.Git.CommandTimeout,
			Message: "must be positive",
		})
	}

	if strings.TrimSpace(c.Git.Binary) == "" {
		errors = append(errors, ValidationError{
			Field:   "git.binary",
			Value:   c.Git.Binary,
			Message: "cannot be empty",
		})
	}

	return errors
}

func (c *Config) validateReport() []ValidationError {
	var errors []ValidationError

	if !c.Report.S3.Enabled {
		return errors
	}

	required := []struct {
		field, value string
	}{
		{"report.s3.endpoint", c.Report.S3.Endpoint},
		{"report.s3.bucket", c.Report.S3.Bucket},
		{"report.s3.access_key", c.Report.S3.AccessKey},
		{"report.s3.secret_key", c.Report.S3.SecretKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errors = append(errors, ValidationError{
				Field:   r.field,
				Value:   "",
				Message: "is required when report.s3.enabled is true",
			})
		}
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
