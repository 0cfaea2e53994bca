package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete monosplit configuration
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Split     SplitConfig     `mapstructure:"split"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Git       GitConfig       `mapstructure:"git"`
	Report    ReportConfig    `mapstructure:"report"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SourceConfig identifies the monorepo being split
type SourceConfig struct {
	// RepoURL is the clone URL (or local path) of the monorepo. Required for split.
	RepoURL string `mapstructure:"repo_url"`
	// Path is the local working tree analyzed by "analyze" (default: ".")
	Path string `mapstructure:"path"`
}

// ProviderConfig selects the hosting provider for new repositories
type ProviderConfig struct {
	// Name is one of "github", "gitlab", "bitbucket", "azure" (default: "github")
	Name string `mapstructure:"name"`
	// Org is the owner of new repositories: GitHub org or user, GitLab group,
	// Bitbucket workspace, or Azure DevOps organization.
	Org string `mapstructure:"org"`
}

// ProvidersConfig holds per-provider credentials and endpoints.
// Each provider has its own credential fields; nothing is shared.
type ProvidersConfig struct {
	GitHub    GitHubConfig    `mapstructure:"github"`
	GitLab    GitLabConfig    `mapstructure:"gitlab"`
	Bitbucket BitbucketConfig `mapstructure:"bitbucket"`
	Azure     AzureConfig     `mapstructure:"azure"`
}

// GitHubConfig configures the GitHub REST adapter
type GitHubConfig struct {
	// Token is a personal access token with repo scope
	Token string `mapstructure:"token"`
	// APIURL is the REST base URL (default: "https://api.github.com")
	APIURL string `mapstructure:"api_url"`
}

// GitLabConfig configures the GitLab REST adapter
type GitLabConfig struct {
	// Token is a personal or group access token with api scope
	Token string `mapstructure:"token"`
	// Host is the GitLab instance (default: "https://gitlab.com")
	Host string `mapstructure:"host"`
}

// BitbucketConfig configures the Bitbucket Cloud adapter
type BitbucketConfig struct {
	// Username is the account used for basic auth
	Username string `mapstructure:"username"`
	// AppPassword is the app password paired with Username
	AppPassword string `mapstructure:"app_password"`
	// APIURL is the REST base URL (default: "https://api.bitbucket.org")
	APIURL string `mapstructure:"api_url"`
}

// AzureConfig configures the Azure DevOps adapter
type AzureConfig struct {
	// Token is a personal access token with Code (read, write) scope
	Token string `mapstructure:"token"`
	// Project is the Azure DevOps project that owns new repositories
	Project string `mapstructure:"project"`
	// APIURL is the REST base URL (default: "https://dev.azure.com")
	APIURL string `mapstructure:"api_url"`
}

// SplitConfig controls how units are selected, named and published
type SplitConfig struct {
	// Mode is "auto", "project" or "branch" (default: "auto")
	Mode string `mapstructure:"mode"`
	// Projects lists project paths for project mode
	Projects []string `mapstructure:"projects"`
	// CommonPath is an optional shared library path extracted in project mode
	CommonPath string `mapstructure:"common_path"`
	// Branches lists branch names for branch mode
	Branches []string `mapstructure:"branches"`
	// AppTemplate names repositories for projects (default: "{name}-app")
	AppTemplate string `mapstructure:"app_template"`
	// LibTemplate names repositories for common components (default: "{name}-lib")
	LibTemplate string `mapstructure:"lib_template"`
	// BranchTemplate names repositories for branches (default: "{name}")
	BranchTemplate string `mapstructure:"branch_template"`
	// DefaultBranch is the branch name pushed to new repositories (default: "main")
	DefaultBranch string `mapstructure:"default_branch"`
	// Private creates private repositories (default: true)
	Private bool `mapstructure:"private"`
	// DryRun records intended operations without creating or pushing anything
	DryRun bool `mapstructure:"dry_run"`
	// AllowCritical proceeds even when critical conflicts were detected
	AllowCritical bool `mapstructure:"allow_critical"`
	// Concurrency is the number of units processed at once (default: 1)
	Concurrency int `mapstructure:"concurrency"`
	// ForceUpdate re-extracts into repositories that already exist instead of creating them
	ForceUpdate bool `mapstructure:"force_update"`
	// PlanFile is an optional YAML file listing units explicitly
	PlanFile string `mapstructure:"plan_file"`
	// ScratchDir holds mirror and unit clones (default: a fresh temp dir)
	ScratchDir string `mapstructure:"scratch_dir"`
	// KeepScratch leaves ScratchDir in place after the run
	KeepScratch bool `mapstructure:"keep_scratch"`
	// PreparePackages rewrites package.json for standalone use (default: true)
	PreparePackages bool `mapstructure:"prepare_packages"`
}

// AnalysisConfig controls structure detection
type AnalysisConfig struct {
	// SubstantialSourceFiles is the number of source files a convention
	// directory must exceed to count as a project (default: 3)
	SubstantialSourceFiles int `mapstructure:"substantial_source_files"`
	// Workers bounds parallel file parsing (default: 8)
	Workers int `mapstructure:"workers"`
	// Exclude lists glob patterns removed from the scan
	Exclude []string `mapstructure:"exclude"`
	// SkipDirs names dependency and cache directories skipped at any depth
	SkipDirs []string `mapstructure:"skip_dirs"`
	// RespectGitignore skips files ignored by .gitignore (default: true)
	RespectGitignore bool `mapstructure:"respect_gitignore"`
}

// RetryConfig controls provider retries, rate limiting and circuit breaking
type RetryConfig struct {
	// MaxAttempts bounds transient-failure attempts per call (default: 3)
	MaxAttempts int `mapstructure:"max_attempts"`
	// BaseDelay is the first backoff delay, doubled per attempt (default: 1s)
	BaseDelay time.Duration `mapstructure:"base_delay"`
	// MaxDelay caps a single backoff delay (default: 60s)
	MaxDelay time.Duration `mapstructure:"max_delay"`
	// RateLimitFloor is the remaining-quota level that triggers waiting for reset (default: 10)
	RateLimitFloor int `mapstructure:"rate_limit_floor"`
	// DefaultRetryAfter is used when a throttle response has no Retry-After (default: 60s)
	DefaultRetryAfter time.Duration `mapstructure:"default_retry_after"`
	// MaxRateLimitWait caps a single quota wait (default: 15m)
	MaxRateLimitWait time.Duration `mapstructure:"max_rate_limit_wait"`
	// MaxRateLimitWaits bounds throttle retries per call (default: 3)
	MaxRateLimitWaits int `mapstructure:"max_rate_limit_waits"`
	// BreakerThreshold is the consecutive failures that open the circuit (default: 5)
	BreakerThreshold int `mapstructure:"breaker_threshold"`
	// BreakerCooldown is how long the circuit stays open (default: 60s)
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// GitConfig controls git subprocesses
type GitConfig struct {
	// CommandTimeout bounds every git invocation (default: 10m)
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	// Binary is the git executable (default: "git")
	Binary string `mapstructure:"binary"`
}

// ReportConfig controls where analysis reports are written
type ReportConfig struct {
	// Path is the local report file (default: "monorepo_analysis.json")
	Path string `mapstructure:"path"`
	// S3 optionally uploads reports to an S3-compatible bucket
	S3 S3Config `mapstructure:"s3"`
}

// S3Config configures the S3-compatible report store
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	// Prefix is prepended to object keys (default: "monosplit/")
	Prefix string `mapstructure:"prefix"`
}

// LoggingConfig controls debug logging
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where monosplit.log is written; empty logs to stderr
	Dir string `mapstructure:"dir"`
	// MaxSizeMB is the maximum size in MB before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// Split modes
const (
	ModeAuto    = "auto"
	ModeProject = "project"
	ModeBranch  = "branch"
)

// Provider names
const (
	ProviderGitHub    = "github"
	ProviderGitLab    = "gitlab"
	ProviderBitbucket = "bitbucket"
	ProviderAzure     = "azure"
)

// NamePlaceholder is substituted with the unit name in repository templates.
const NamePlaceholder = "{name}"

// DefaultSubstantialSourceFiles is the default source file count a
// convention directory must exceed to be reported as a project.
const DefaultSubstantialSourceFiles = 3

// DefaultSkipDirs returns the dependency and cache directory names skipped
// by default. Build output is left to .gitignore.
func DefaultSkipDirs() []string {
	return []string{
		"node_modules", "bower_components", "__pycache__",
		"venv", ".venv", ".tox", ".mypy_cache", ".pytest_cache",
		".next", ".nuxt",
	}
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Path: ".",
		},
		Provider: ProviderConfig{
			Name: ProviderGitHub,
		},
		Providers: ProvidersConfig{
			GitHub:    GitHubConfig{APIURL: "https://api.github.com"},
			GitLab:    GitLabConfig{Host: "https://gitlab.com"},
			Bitbucket: BitbucketConfig{APIURL: "https://api.bitbucket.org"},
			Azure:     AzureConfig{APIURL: "https://dev.azure.com"},
		},
		Split: SplitConfig{
			Mode:            ModeAuto,
			Projects:        []string{},
			Branches:        []string{},
			AppTemplate:     "{name}-app",
			LibTemplate:     "{name}-lib",
			BranchTemplate:  "{name}",
			DefaultBranch:   "main",
			Private:         true,
			Concurrency:     1,
			PreparePackages: true,
		},
		Analysis: AnalysisConfig{
			SubstantialSourceFiles: DefaultSubstantialSourceFiles,
			Workers:                8,
			Exclude:                []string{},
			SkipDirs:               DefaultSkipDirs(),
			RespectGitignore:       true,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			BaseDelay:         time.Second,
			MaxDelay:          60 * time.Second,
			RateLimitFloor:    10,
			DefaultRetryAfter: 60 * time.Second,
			MaxRateLimitWait:  15 * time.Minute,
			MaxRateLimitWaits: 3,
			BreakerThreshold:  5,
			BreakerCooldown:   60 * time.Second,
		},
		Git: GitConfig{
			CommandTimeout: 10 * time.Minute,
			Binary:         "git",
		},
		Report: ReportConfig{
			Path: "monorepo_analysis.json",
			S3: S3Config{
				UseSSL: true,
				Prefix: "monosplit/",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Source defaults
	viper.SetDefault("source.repo_url", defaults.Source.RepoURL)
	viper.SetDefault("source.path", defaults.Source.Path)

	// Provider defaults
	viper.SetDefault("provider.name", defaults.Provider.Name)
	viper.SetDefault("provider.org", defaults.Provider.Org)
	viper.SetDefault("providers.github.token", defaults.Providers.GitHub.Token)
	viper.SetDefault("providers.github.api_url", defaults.Providers.GitHub.APIURL)
	viper.SetDefault("providers.gitlab.token", defaults.Providers.GitLab.Token)
	viper.SetDefault("providers.gitlab.host", defaults.Providers.GitLab.Host)
	viper.SetDefault("providers.bitbucket.username", defaults.Providers.Bitbucket.Username)
	viper.SetDefault("providers.bitbucket.app_password", defaults.Providers.Bitbucket.AppPassword)
	viper.SetDefault("providers.bitbucket.api_url", defaults.Providers.Bitbucket.APIURL)
	viper.SetDefault("providers.azure.token", defaults.Providers.Azure.Token)
	viper.SetDefault("providers.azure.project", defaults.Providers.Azure.Project)
	viper.SetDefault("providers.azure.api_url", defaults.Providers.Azure.APIURL)

	// Split defaults
	viper.SetDefault("split.mode", defaults.Split.Mode)
	viper.SetDefault("split.projects", defaults.Split.Projects)
	viper.SetDefault("split.common_path", defaults.Split.CommonPath)
	viper.SetDefault("split.branches", defaults.Split.Branches)
	viper.SetDefault("split.app_template", defaults.Split.AppTemplate)
	viper.SetDefault("split.lib_template", defaults.Split.LibTemplate)
	viper.SetDefault("split.branch_template", defaults.Split.BranchTemplate)
	viper.SetDefault("split.default_branch", defaults.Split.DefaultBranch)
	viper.SetDefault("split.private", defaults.Split.Private)
	viper.SetDefault("split.dry_run", defaults.Split.DryRun)
	viper.SetDefault("split.allow_critical", defaults.Split.AllowCritical)
	viper.SetDefault("split.concurrency", defaults.Split.Concurrency)
	viper.SetDefault("split.force_update", defaults.Split.ForceUpdate)
	viper.SetDefault("split.plan_file", defaults.Split.PlanFile)
	viper.SetDefault("split.scratch_dir", defaults.Split.ScratchDir)
	viper.SetDefault("split.keep_scratch", defaults.Split.KeepScratch)
	viper.SetDefault("split.prepare_packages", defaults.Split.PreparePackages)

	// Analysis defaults
	viper.SetDefault("analysis.substantial_source_files", defaults.Analysis.SubstantialSourceFiles)
	viper.SetDefault("analysis.workers", defaults.Analysis.Workers)
	viper.SetDefault("analysis.exclude", defaults.Analysis.Exclude)
	viper.SetDefault("analysis.skip_dirs", defaults.Analysis.SkipDirs)
	viper.SetDefault("analysis.respect_gitignore", defaults.Analysis.RespectGitignore)

	// Retry defaults
	viper.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	viper.SetDefault("retry.base_delay", defaults.Retry.BaseDelay)
	viper.SetDefault("retry.max_delay", defaults.Retry.MaxDelay)
	viper.SetDefault("retry.rate_limit_floor", defaults.Retry.RateLimitFloor)
	viper.SetDefault("retry.default_retry_after", defaults.Retry.DefaultRetryAfter)
	viper.SetDefault("retry.max_rate_limit_wait", defaults.Retry.MaxRateLimitWait)
	viper.SetDefault("retry.max_rate_limit_waits", defaults.Retry.MaxRateLimitWaits)
	viper.SetDefault("retry.breaker_threshold", defaults.Retry.BreakerThreshold)
	viper.SetDefault("retry.breaker_cooldown", defaults.Retry.BreakerCooldown)

	// Git defaults
	viper.SetDefault("git.command_timeout", defaults.Git.CommandTimeout)
	viper.SetDefault("git.binary", defaults.Git.Binary)

	// Report defaults
	viper.SetDefault("report.path", defaults.Report.Path)
	viper.SetDefault("report.s3.enabled", defaults.Report.S3.Enabled)
	viper.SetDefault("report.s3.endpoint", defaults.Report.S3.Endpoint)
	viper.SetDefault("report.s3.region", defaults.Report.S3.Region)
	viper.SetDefault("report.s3.bucket", defaults.Report.S3.Bucket)
	viper.SetDefault("report.s3.access_key", defaults.Report.S3.AccessKey)
	viper.SetDefault("report.s3.secret_key", defaults.Report.S3.SecretKey)
	viper.SetDefault("report.s3.use_ssl", defaults.Report.S3.UseSSL)
	viper.SetDefault("report.s3.prefix", defaults.Report.S3.Prefix)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// credentialEnv maps config keys to the conventional environment variables
// each provider's tooling already uses.
var credentialEnv = map[string][]string{
	"source.repo_url":                  {"SOURCE_REPO_URL"},
	"provider.org":                     {"ORG"},
	"providers.github.token":           {"GITHUB_TOKEN", "GH_TOKEN"},
	"providers.gitlab.token":           {"GITLAB_TOKEN"},
	"providers.gitlab.host":            {"GITLAB_HOST"},
	"providers.bitbucket.username":     {"BITBUCKET_USERNAME"},
	"providers.bitbucket.app_password": {"BITBUCKET_APP_PASSWORD"},
	"providers.azure.token":            {"AZURE_DEVOPS_PAT", "AZURE_DEVOPS_TOKEN"},
	"providers.azure.project":          {"AZURE_DEVOPS_PROJECT"},
	"report.s3.access_key":             {"AWS_ACCESS_KEY_ID"},
	"report.s3.secret_key":             {"AWS_SECRET_ACCESS_KEY"},
}

// BindEnv enables MONOSPLIT_-prefixed environment overrides for every key
// and binds the conventional credential variables (GITHUB_TOKEN and friends).
// The prefixed variable wins when both are set.
func BindEnv() {
	viper.SetEnvPrefix("MONOSPLIT")
	// e.g. MONOSPLIT_SPLIT_DEFAULT_BRANCH for split.default_branch
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for key, names := range credentialEnv {
		prefixed := "MONOSPLIT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = viper.BindEnv(append([]string{key, prefixed}, names...)...)
	}
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "monosplit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".monosplit"
	}
	return filepath.Join(home, ".config", "monosplit")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ApplyTemplate substitutes name into a repository template.
func ApplyTemplate(template, name string) string {
	return strings.ReplaceAll(template, NamePlaceholder, name)
}
