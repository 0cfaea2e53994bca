package cmd

import (
	"github.com/Iron-Ham/monosplit/internal/config"
	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/logging"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitBlocked     = 2
	ExitUnitsFailed = 3
)

// errUnitsFailed is returned by split when the run finished but at least one
// unit did not reach done.
var errUnitsFailed = errors.New("one or more units failed")

// ExitCode maps an error returned by Execute to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errors.ErrCriticalConflicts):
		return ExitBlocked
	case errors.Is(err, errUnitsFailed):
		return ExitUnitsFailed
	default:
		return ExitError
	}
}

// loadConfig reads and validates the configuration. forSplit adds the checks
// that only matter when repositories are created.
func loadConfig(forSplit bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if forSplit {
		if errs := cfg.ValidateForSplit(); len(errs) > 0 {
			return nil, errors.Wrap(config.ValidationErrors(errs), "invalid configuration")
		}
	}
	return cfg, nil
}

// newLogger builds the run logger from the logging section.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	rotation := logging.DefaultRotationConfig()
	if cfg.Logging.MaxSizeMB > 0 {
		rotation.MaxSizeMB = cfg.Logging.MaxSizeMB
	}
	if cfg.Logging.MaxBackups > 0 {
		rotation.MaxBackups = cfg.Logging.MaxBackups
	}
	return logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level, rotation)
}
