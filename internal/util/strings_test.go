package util

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestTruncateANSI(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxWidth int
		expected string
	}{
		{"short string unchanged", "hello", 10, "hello"},
		{"exact width unchanged", "hello", 5, "hello"},
		{"long string truncated", "hello world", 8, "hello..."},
		{"small width returns ellipsis", "hello", 3, "..."},
		{"zero width returns ellipsis", "hello", 0, "..."},
		{"wide characters measured by column", "日本語テキスト", 7, "日本..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateANSI(tt.input, tt.maxWidth); got != tt.expected {
				t.Errorf("TruncateANSI(%q, %d) = %q, want %q", tt.input, tt.maxWidth, got, tt.expected)
			}
		})
	}
}

func TestTruncateANSI_StyledText(t *testing.T) {
	styled := lipgloss.NewStyle().Bold(true).Render("version mismatch for react across web and admin")

	got := TruncateANSI(styled, 20)
	if w := lipgloss.Width(got); w > 20 {
		t.Errorf("visual width = %d, want <= 20 (%q)", w, got)
	}
}

func TestJoinLimited(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		limit int
		want  string
	}{
		{"empty", nil, 3, ""},
		{"under limit", []string{"web", "admin"}, 3, "web, admin"},
		{"at limit", []string{"web", "admin", "api"}, 3, "web, admin, api"},
		{"over limit", []string{"web", "admin", "api", "docs", "cli"}, 2, "web, admin and 3 more"},
		{"no limit", []string{"web", "admin", "api"}, 0, "web, admin, api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinLimited(tt.items, tt.limit); got != tt.want {
				t.Errorf("JoinLimited() = %q, want %q", got, tt.want)
			}
		})
	}
}
