package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/monosplit/internal/analysis"
	"github.com/Iron-Ham/monosplit/internal/config"
	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/git"
	"github.com/Iron-Ham/monosplit/internal/logging"
	"github.com/Iron-Ham/monosplit/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze the structure of a monorepo",
	Long: `Analyze scans a monorepo working tree, detects projects and shared
components, extracts their dependencies and classifies conflicts between
them. The report is written to report.path (default monorepo_analysis.json)
and, when configured, uploaded to an S3-compatible bucket.

The path defaults to source.path from the configuration (".").`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

var analyzeJSON bool

func init() {
	analyzeCmd.Flags().StringP("output", "o", "", "report file path (default monorepo_analysis.json)")
	analyzeCmd.Flags().StringSlice("exclude", nil, "glob patterns to skip, e.g. 'docs/**'")
	analyzeCmd.Flags().Int("substantial", 0, "source files a convention directory must exceed to count as a project")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the report JSON instead of the summary")
	_ = viper.BindPFlag("report.path", analyzeCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("analysis.exclude", analyzeCmd.Flags().Lookup("exclude"))
	_ = viper.BindPFlag("analysis.substantial_source_files", analyzeCmd.Flags().Lookup("substantial"))
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
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

	result, locations, err := analyze(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	if analyzeJSON {
		data, err := result.MarshalReport()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	newPrinter(cmd.OutOrStdout()).analysisSummary(result, locations)
	return nil
}

// analyze runs the analysis pipeline over cfg.Source.Path and persists the
// report to every configured store.
func analyze(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*analysis.Result, []string, error) {
	root, err := filepath.Abs(cfg.Source.Path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "resolve %s", cfg.Source.Path)
	}

	runner := git.NewRunner(cfg.Git.Binary, cfg.Git.CommandTimeout, logger)
	opts := analysis.OptionsFromConfig(cfg.Analysis, runner)

	result, err := analysis.New(afero.NewOsFs(), root, opts, logger).Run(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "analysis failed")
	}

	data, err := result.MarshalReport()
	if err != nil {
		return nil, nil, errors.Wrap(err, "encode analysis report")
	}
	stores, err := report.NewFromConfig(cfg.Report)
	if err != nil {
		return nil, nil, err
	}
	locations, err := stores.Locations(ctx, result.RunID, data)
	if err != nil {
		return result, locations, errors.Wrap(err, "write analysis report")
	}
	return result, locations, nil
}
