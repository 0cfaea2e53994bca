package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/monosplit/internal/config"
	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect hosting provider access",
}

var providersCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify credentials for the configured provider",
	Long: `Check makes one authenticated read call against the configured provider
and reports the remaining API quota. Nothing is created.`,
	Args: cobra.NoArgs,
	RunE: runProvidersCheck,
}

var checkProvider string

func init() {
	providersCheckCmd.Flags().StringVar(&checkProvider, "provider", "", "provider to check instead of provider.name")
	providersCmd.AddCommand(providersCheckCmd)
}

func runProvidersCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	if checkProvider != "" {
		cfg.Provider.Name = checkProvider
	}
	// A dry-run wrapper would answer without asking the provider.
	cfg.Split.DryRun = false

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	p, err := provider.New(cfg, provider.WithLogger(logger))
	if err != nil {
		return err
	}

	out := newPrinter(cmd.OutOrStdout())
	if err := p.CheckAccess(cmd.Context()); err != nil {
		out.printf("%s %s: %s\n", out.render(errorStyle, "✗"), p.Name(), err)
		return errors.Wrapf(err, "%s credentials rejected", p.Name())
	}

	out.printf("%s %s: credentials accepted\n", out.render(okStyle, "✓"), p.Name())
	if owner := cfg.Provider.Org; owner != "" {
		out.printf("  owner:      %s\n", owner)
	}
	out.printf("  clone URLs: %s\n", p.CloneURL("example"))
	if q := p.RateLimit(); q.Known {
		out.printf("  quota:      %d of %d remaining", q.Remaining, q.Limit)
		if !q.Reset.IsZero() {
			out.printf(", resets %s", q.Reset.Local().Format(time.Kitchen))
		}
		out.printf("\n")
	}
	if cfg.Provider.Name == config.ProviderAzure {
		out.printf("  %s\n", out.render(mutedStyle, "azure repositories inherit project visibility"))
	}
	return nil
}
