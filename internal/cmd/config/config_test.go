package config

import (
	"bytes"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	appconfig "github.com/Iron-Ham/monosplit/internal/config"
)

func TestDefaultConfigContentMatchesDefaults(t *testing.T) {
	var doc struct {
		Provider struct {
			Name string `yaml:"name"`
		} `yaml:"provider"`
		Split struct {
			Mode          string `yaml:"mode"`
			AppTemplate   string `yaml:"app_template"`
			LibTemplate   string `yaml:"lib_template"`
			DefaultBranch string `yaml:"default_branch"`
			Private       bool   `yaml:"private"`
			Concurrency   int    `yaml:"concurrency"`
		} `yaml:"split"`
		Analysis struct {
			SubstantialSourceFiles int      `yaml:"substantial_source_files"`
			SkipDirs               []string `yaml:"skip_dirs"`
		} `yaml:"analysis"`
		Report struct {
			Path string `yaml:"path"`
		} `yaml:"report"`
	}
	if err := yaml.Unmarshal([]byte(defaultConfigContent), &doc); err != nil {
		t.Fatalf("default config is not valid YAML: %v", err)
	}

	want := appconfig.Default()
	if doc.Provider.Name != want.Provider.Name {
		t.Errorf("provider.name = %q, want %q", doc.Provider.Name, want.Provider.Name)
	}
	if doc.Split.Mode != want.Split.Mode {
		t.Errorf("split.mode = %q, want %q", doc.Split.Mode, want.Split.Mode)
	}
	if doc.Split.AppTemplate != want.Split.AppTemplate || doc.Split.LibTemplate != want.Split.LibTemplate {
		t.Errorf("templates = %q/%q, want %q/%q", doc.Split.AppTemplate, doc.Split.LibTemplate,
			want.Split.AppTemplate, want.Split.LibTemplate)
	}
	if doc.Split.DefaultBranch != want.Split.DefaultBranch {
		t.Errorf("split.default_branch = %q, want %q", doc.Split.DefaultBranch, want.Split.DefaultBranch)
	}
	if doc.Split.Private != want.Split.Private || doc.Split.Concurrency != want.Split.Concurrency {
		t.Errorf("split.private/concurrency = %v/%d, want %v/%d", doc.Split.Private, doc.Split.Concurrency,
			want.Split.Private, want.Split.Concurrency)
	}
	if doc.Analysis.SubstantialSourceFiles != want.Analysis.SubstantialSourceFiles {
		t.Errorf("analysis.substantial_source_files = %d, want %d",
			doc.Analysis.SubstantialSourceFiles, want.Analysis.SubstantialSourceFiles)
	}
	if strings.Join(doc.Analysis.SkipDirs, ",") != strings.Join(want.Analysis.SkipDirs, ",") {
		t.Errorf("analysis.skip_dirs = %v, want %v", doc.Analysis.SkipDirs, want.Analysis.SkipDirs)
	}
	if doc.Report.Path != want.Report.Path {
		t.Errorf("report.path = %q, want %q", doc.Report.Path, want.Report.Path)
	}
}

func TestRedact(t *testing.T) {
	settings := map[string]any{
		"providers": map[string]any{
			"github":    map[string]any{"token": "ghp_secret", "api_url": "https://api.github.com"},
			"bitbucket": map[string]any{"username": "me", "app_password": ""},
		},
		"report": map[string]any{"s3": map[string]any{"secret_key": "abc", "bucket": "reports"}},
	}

	got := redact(settings)

	github := got["providers"].(map[string]any)["github"].(map[string]any)
	if github["token"] != "********" {
		t.Errorf("token = %v, want redacted", github["token"])
	}
	if github["api_url"] != "https://api.github.com" {
		t.Errorf("api_url = %v, want unchanged", github["api_url"])
	}
	bitbucket := got["providers"].(map[string]any)["bitbucket"].(map[string]any)
	if bitbucket["app_password"] != "" {
		t.Errorf("empty app_password should stay empty, got %v", bitbucket["app_password"])
	}
	s3 := got["report"].(map[string]any)["s3"].(map[string]any)
	if s3["secret_key"] != "********" || s3["bucket"] != "reports" {
		t.Errorf("s3 = %v", s3)
	}

	// the input is not modified
	if settings["providers"].(map[string]any)["github"].(map[string]any)["token"] != "ghp_secret" {
		t.Error("redact modified its input")
	}
}

func TestShowConfig(t *testing.T) {
	var buf bytes.Buffer
	err := showConfig(&buf, map[string]any{
		"config":   "/tmp/x.yaml",
		"provider": map[string]any{"name": "gitlab"},
		"providers": map[string]any{
			"gitlab": map[string]any{"token": "glpat-123"},
		},
	})
	if err != nil {
		t.Fatalf("showConfig() error = %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "glpat-123") {
		t.Errorf("output leaks a token:\n%s", out)
	}
	if !strings.Contains(out, "name: gitlab") {
		t.Errorf("output missing provider name:\n%s", out)
	}
	if strings.Contains(out, "/tmp/x.yaml") {
		t.Errorf("flag bookkeeping key printed as configuration:\n%s", out)
	}
}

func TestParseSetting(t *testing.T) {
	tests := []struct {
		key, value string
		want       any
		wantErr    bool
	}{
		{"provider.name", "gitlab", "gitlab", false},
		{"provider.name", "sourceforge", nil, true},
		{"split.mode", "branch", "branch", false},
		{"split.mode", "everything", nil, true},
		{"split.app_template", "svc-{name}", "svc-{name}", false},
		{"split.app_template", "static", nil, true},
		{"split.private", "false", false, false},
		{"split.private", "no", nil, true},
		{"split.concurrency", "4", 4, false},
		{"split.concurrency", "0", nil, true},
		{"split.concurrency", "four", nil, true},
		{"logging.level", "debug", "debug", false},
		{"logging.level", "trace", nil, true},
		{"provider.org", "acme", "acme", false},
		{"providers.github.token", "x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := parseSetting(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSetting() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseSetting() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}
