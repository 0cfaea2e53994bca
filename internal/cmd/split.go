package cmd

import (
	"encoding/json"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/git"
	"github.com/Iron-Ham/monosplit/internal/provider"
	"github.com/Iron-Ham/monosplit/internal/retry"
	"github.com/Iron-Ham/monosplit/internal/split"
)

var splitCmd = &cobra.Command{
	Use:   "split [path]",
	Short: "Split a monorepo into standalone repositories",
	Long: `Split analyzes the monorepo, selects units and, for each one, creates a
repository on the configured provider, extracts the unit's history and
pushes it.

Units are selected by mode:
  auto     every detected project (as {name}-app) and common component (as {name}-lib)
  project  the paths given with --projects, plus --common-path as a library
  branch   one repository per branch given with --branches
A --plan file lists units explicitly and overrides the mode.

The split is refused when the analysis found critical conflicts; rerun with
--force to proceed anyway. Use --dry-run to print the intended operations
without creating or pushing anything.

Exit status: 0 all units done, 1 configuration or analysis error,
2 blocked by critical conflicts, 3 one or more units failed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSplit,
}

var splitJSON bool

// splitFlags maps flag names to the configuration keys they override.
var splitFlags = map[string]string{
	"repo-url":         "source.repo_url",
	"provider":         "provider.name",
	"org":              "provider.org",
	"mode":             "split.mode",
	"projects":         "split.projects",
	"common-path":      "split.common_path",
	"branches":         "split.branches",
	"plan":             "split.plan_file",
	"app-template":     "split.app_template",
	"lib-template":     "split.lib_template",
	"branch-template":  "split.branch_template",
	"default-branch":   "split.default_branch",
	"private":          "split.private",
	"dry-run":          "split.dry_run",
	"force":            "split.allow_critical",
	"force-update":     "split.force_update",
	"concurrency":      "split.concurrency",
	"scratch-dir":      "split.scratch_dir",
	"keep-scratch":     "split.keep_scratch",
	"prepare-packages": "split.prepare_packages",
}

func init() {
	f := splitCmd.Flags()
	f.String("repo-url", "", "clone URL or local path of the monorepo")
	f.String("provider", "", "hosting provider: github, gitlab, bitbucket, azure")
	f.String("org", "", "owner of new repositories (org, group, workspace or organization)")
	f.String("mode", "", "unit selection: auto, project, branch")
	f.StringSlice("projects", nil, "project paths for project mode")
	f.String("common-path", "", "shared library path extracted in project mode")
	f.StringSlice("branches", nil, "branches for branch mode")
	f.String("plan", "", "YAML file listing units explicitly")
	f.String("app-template", "", "repository name template for projects, e.g. '{name}-app'")
	f.String("lib-template", "", "repository name template for common components")
	f.String("branch-template", "", "repository name template for branches")
	f.String("default-branch", "", "branch pushed to new repositories")
	f.Bool("private", true, "create private repositories")
	f.Bool("dry-run", false, "print intended operations without creating or pushing anything")
	f.Bool("force", false, "split even when critical conflicts were detected")
	f.Bool("force-update", false, "push into repositories that already exist without creating them")
	f.Int("concurrency", 0, "units processed at once")
	f.String("scratch-dir", "", "directory for the mirror and unit clones")
	f.Bool("keep-scratch", false, "keep the scratch directory after the run")
	f.Bool("prepare-packages", true, "rewrite package.json for standalone use")
	f.BoolVar(&splitJSON, "json", false, "print the split report JSON instead of the summary")

	for flag, key := range splitFlags {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}
}

func runSplit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Source.Path = args[0]
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	out := newPrinter(cmd.OutOrStdout())

	result, _, err := analyze(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// A blocked split stops before any provider or git preflight.
	if err := split.CheckConflicts(result.Conflicts, cfg.Split.AllowCritical); err != nil {
		out.conflicts(result.Conflicts)
		return err
	}

	units, err := split.BuildUnits(cfg.Split, afero.NewOsFs(), split.Source{
		Files:      result.Files,
		Projects:   result.Projects,
		Components: result.Components,
	}, logger)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidInput) {
			return errors.Wrap(err, "invalid split units")
		}
		return err
	}
	if len(units) == 0 {
		logger.Warn("no units selected, nothing to split", "mode", cfg.Split.Mode)
		out.printf("No units selected for mode %q, nothing to split.\n", cfg.Split.Mode)
		return nil
	}

	p, err := provider.New(cfg, provider.WithLogger(logger))
	if err != nil {
		return err
	}

	// A nil Git makes the orchestrator record operations instead of running them.
	var g git.Git
	if !cfg.Split.DryRun {
		runner := git.NewRunner(cfg.Git.Binary, cfg.Git.CommandTimeout, logger)
		if split.NeedsFilterRepo(units) {
			if err := runner.CheckFilterRepo(ctx); err != nil {
				return err
			}
		}
		if err := p.CheckAccess(ctx); err != nil {
			return errors.Wrapf(err, "cannot access %s", p.Name())
		}
		g = runner
	}

	opts := split.OptionsFromConfig(cfg)
	opts.RunID = result.RunID
	executor := retry.NewExecutorFromConfig(p.Name(), cfg.Retry, logger)

	rep, err := split.New(p, g, executor, afero.NewOsFs(), opts, logger).Run(ctx, units, result.Conflicts)
	if err != nil {
		return err
	}

	if splitJSON {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		out.printf("%s\n", data)
	} else {
		out.splitReport(rep)
	}

	if !rep.OK() {
		return errors.Wrapf(errUnitsFailed, "%d of %d units failed", rep.Failed, len(rep.Units))
	}
	return nil
}
