// Package config provides CLI commands for managing monosplit configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appconfig "github.com/Iron-Ham/monosplit/internal/config"
)

// Wrapper functions for exec to allow testing
var execLookPath = exec.LookPath
var execCommand = exec.Command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify monosplit configuration",
	Long: `View or modify monosplit configuration.

Without arguments, displays the effective configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets redacted",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  monosplit config set provider.name gitlab
  monosplit config set provider.org acme
  monosplit config set split.concurrency 4

Valid keys:
  source.repo_url         - Clone URL or local path of the monorepo
  provider.name           - Hosting provider: github, gitlab, bitbucket, azure
  provider.org            - Owner of new repositories
  split.mode              - Unit selection: auto, project, branch
  split.app_template      - Repository name template for projects
  split.lib_template      - Repository name template for common components
  split.branch_template   - Repository name template for branches
  split.default_branch    - Branch pushed to new repositories
  split.private           - Create private repositories (true/false)
  split.concurrency       - Units processed at once
  split.prepare_packages  - Rewrite package.json for standalone use (true/false)
  report.path             - Analysis report file
  logging.level           - Log level: debug, info, warn, error
  logging.dir             - Directory for monosplit.log

Credentials are best kept in the environment (GITHUB_TOKEN, GITLAB_TOKEN,
BITBUCKET_APP_PASSWORD, AZURE_DEVOPS_PAT) or a .env file.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/monosplit/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in your editor",
	Long: `Open the config file in your preferred editor.

Uses $EDITOR environment variable, or falls back to common editors (vim, nano, vi).
If no config file exists, creates one with default values first.`,
	RunE: runConfigEdit,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)
}

// Register adds all config-related commands to the given parent command.
// This is the main entry point for integrating the config subpackage with
// the root command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

// secretKeys are leaf keys whose values are never printed.
var secretKeys = []string{"token", "app_password", "secret_key", "access_key"}

// redact replaces non-empty secret values in a nested settings map.
func redact(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		switch val := v.(type) {
		case map[string]any:
			out[k] = redact(val)
		default:
			if slices.Contains(secretKeys, k) && fmt.Sprint(val) != "" {
				out[k] = "********"
			} else {
				out[k] = val
			}
		}
	}
	return out
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	return showConfig(cmd.OutOrStdout(), viper.AllSettings())
}

func showConfig(w io.Writer, settings map[string]any) error {
	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		_, _ = fmt.Fprintf(w, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		_, _ = fmt.Fprintf(w, "# Config file: (none - using defaults)\n")
	}

	// Flag-only bookkeeping keys are not configuration.
	delete(settings, "config")
	delete(settings, "env_file")

	data, err := yaml.Marshal(redact(settings))
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// settableKeys maps each key accepted by "config set" to its value kind.
var settableKeys = map[string]string{
	"source.repo_url":        "string",
	"provider.name":          "provider",
	"provider.org":           "string",
	"split.mode":             "mode",
	"split.app_template":     "template",
	"split.lib_template":     "template",
	"split.branch_template":  "template",
	"split.default_branch":   "string",
	"split.private":          "bool",
	"split.concurrency":      "int",
	"split.prepare_packages": "bool",
	"report.path":            "string",
	"logging.level":          "level",
	"logging.dir":            "string",
}

// parseSetting validates value for key and returns it typed.
func parseSetting(key, value string) (any, error) {
	keyType, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'monosplit config set --help' to see valid keys", key)
	}

	oneOf := func(valid []string) (any, error) {
		if !slices.Contains(valid, value) {
			return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s", key, value, strings.Join(valid, ", "))
		}
		return value, nil
	}

	switch keyType {
	case "provider":
		return oneOf(appconfig.ValidProviders())
	case "mode":
		return oneOf(appconfig.ValidModes())
	case "level":
		return oneOf(appconfig.ValidLogLevels())
	case "template":
		if !strings.Contains(value, appconfig.NamePlaceholder) {
			return nil, fmt.Errorf("invalid value for %s: template must contain %s", key, appconfig.NamePlaceholder)
		}
		return value, nil
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 1 {
			return nil, fmt.Errorf("invalid value for %s: must be at least 1", key)
		}
		return intVal, nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	typedValue, err := parseSetting(key, args[1])
	if err != nil {
		return err
	}

	// Ensure config directory exists
	configDir := appconfig.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set the value in viper
	viper.Set(key, typedValue)

	// Write to config file
	configFile := appconfig.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	_, _ = fmt.Fprintf(out, "Config saved to %s\n", configFile)

	return nil
}

// defaultConfigContent is written by "config init".
const defaultConfigContent = `# monosplit configuration
# Every key can be overridden with MONOSPLIT_<SECTION>_<KEY>, e.g.
# MONOSPLIT_SPLIT_DEFAULT_BRANCH. Credentials are read from GITHUB_TOKEN,
# GITLAB_TOKEN, BITBUCKET_USERNAME/BITBUCKET_APP_PASSWORD and AZURE_DEVOPS_PAT.

source:
  # Clone URL or local path of the monorepo (required for split)
  repo_url: ""
  # Working tree analyzed by "monosplit analyze"
  path: .

provider:
  # Options: github, gitlab, bitbucket, azure
  name: github
  # GitHub org or user, GitLab group, Bitbucket workspace, Azure organization
  org: ""

providers:
  github:
    api_url: https://api.github.com
  gitlab:
    host: https://gitlab.com
  bitbucket:
    username: ""
    api_url: https://api.bitbucket.org
  azure:
    project: ""
    api_url: https://dev.azure.com

split:
  # Options: auto, project, branch
  mode: auto
  projects: []
  common_path: ""
  branches: []
  app_template: "{name}-app"
  lib_template: "{name}-lib"
  branch_template: "{name}"
  default_branch: main
  private: true
  concurrency: 1
  prepare_packages: true

analysis:
  # Source files a convention directory must exceed to count as a project
  substantial_source_files: 3
  workers: 8
  exclude: []
  # Directory names skipped at any depth
  skip_dirs: [node_modules, bower_components, __pycache__, venv, .venv, .tox, .mypy_cache, .pytest_cache, .next, .nuxt]
  respect_gitignore: true

retry:
  max_attempts: 3
  base_delay: 1s
  max_delay: 60s
  rate_limit_floor: 10
  default_retry_after: 60s
  max_rate_limit_wait: 15m
  max_rate_limit_waits: 3
  breaker_threshold: 5
  breaker_cooldown: 60s

git:
  command_timeout: 10m
  binary: git

report:
  path: monorepo_analysis.json
  s3:
    enabled: false
    endpoint: ""
    region: ""
    bucket: ""
    use_ssl: true
    prefix: monosplit/

logging:
  # Options: debug, info, warn, error
  level: info
  # Empty logs to stderr
  dir: ""
  max_size_mb: 10
  max_backups: 3
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := appconfig.ConfigDir()
	configFile := appconfig.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'monosplit config set' to modify values", configFile)
	}

	// Create config directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Created config file at %s\n", configFile)
	_, _ = fmt.Fprintln(out, "Edit this file to customize monosplit's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := appconfig.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		_, _ = fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		_, _ = fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	_, _ = fmt.Fprintln(out, "\nSearch paths:")
	_, _ = fmt.Fprintf(out, "  1. %s\n", filepath.Join(appconfig.ConfigDir(), "config.yaml"))
	_, _ = fmt.Fprintf(out, "  2. $HOME/.config/monosplit/config.yaml\n")
	_, _ = fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")

	vars := make([]string, 0, 4)
	for _, name := range []string{"GITHUB_TOKEN", "GITLAB_TOKEN", "BITBUCKET_APP_PASSWORD", "AZURE_DEVOPS_PAT"} {
		if os.Getenv(name) != "" {
			vars = append(vars, name)
		}
	}
	sort.Strings(vars)
	_, _ = fmt.Fprintln(out, "\nEnvironment variables: MONOSPLIT_* (e.g., MONOSPLIT_SPLIT_DEFAULT_BRANCH)")
	if len(vars) > 0 {
		_, _ = fmt.Fprintf(out, "Credentials found in environment: %s\n", strings.Join(vars, ", "))
	}

	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configFile := appconfig.ConfigFile()

	// Check if config file exists, if not create it
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Config file doesn't exist, creating with defaults...")
		if err := runConfigInit(cmd, args); err != nil {
			return err
		}
	}

	// Find an editor
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		// Try common editors
		for _, e := range []string{"vim", "nano", "vi"} {
			if _, err := execLookPath(e); err == nil {
				editor = e
				break
			}
		}
	}
	if editor == "" {
		return fmt.Errorf("no editor found. Set $EDITOR environment variable")
	}

	// Open the editor
	editorCmd := execCommand(editor, configFile)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}
	return nil
}
