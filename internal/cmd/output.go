package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Iron-Ham/monosplit/internal/analysis"
	"github.com/Iron-Ham/monosplit/internal/conflict"
	"github.com/Iron-Ham/monosplit/internal/split"
	"github.com/Iron-Ham/monosplit/internal/util"
)

var (
	primaryColor = lipgloss.Color("#A78BFA")
	okColor      = lipgloss.Color("#10B981")
	warnColor    = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#F87171")
	mutedColor   = lipgloss.Color("#9CA3AF")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	okStyle    = lipgloss.NewStyle().Foreground(okColor)
	warnStyle  = lipgloss.NewStyle().Foreground(warnColor)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(errorColor)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
)

const (
	defaultWidth = 80
	// maxUsedBy is how many consumers are named per common component.
	maxUsedBy = 5
)

// printer renders command summaries. Styling is applied only when writing
// to a terminal.
type printer struct {
	w     io.Writer
	color bool
	width int
}

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w, width: defaultWidth}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.color = os.Getenv("NO_COLOR") == ""
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			p.width = width
		}
	}
	return p
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *printer) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) title(text string) {
	p.printf("%s\n%s\n", p.render(titleStyle, text), p.render(mutedStyle, strings.Repeat("─", min(len(text), p.width))))
}

func severityStyle(s conflict.Severity) lipgloss.Style {
	switch s {
	case conflict.SeverityCritical:
		return errorStyle
	case conflict.SeverityHigh:
		return warnStyle
	default:
		return mutedStyle
	}
}

// analysisSummary prints the human summary of an analysis run.
func (p *printer) analysisSummary(r *analysis.Result, locations []string) {
	p.title("Monorepo analysis")
	p.printf("Root:       %s\n", r.Root)
	p.printf("Files:      %d\n", r.FileCount)
	if r.Workspace != nil {
		p.printf("Workspace:  %s (%s)\n", r.Workspace.Manager, r.Workspace.ConfigFile)
	}
	p.printf("\n")

	p.printf("Projects (%d)\n", len(r.Projects))
	for _, proj := range r.Projects {
		p.printf("  %-24s %-10s %s %s\n", proj.Name, proj.Kind, proj.Path,
			p.render(mutedStyle, fmt.Sprintf("(%d files, %d deps)", proj.Size(), len(proj.Dependencies))))
	}
	p.printf("\nCommon components (%d)\n", len(r.Components))
	for _, c := range r.Components {
		usedBy := "unused"
		if c.UsageCount() > 0 {
			usedBy = "used by " + util.JoinLimited(c.UsedBy, maxUsedBy)
		}
		p.printf("  %-24s %s %s\n", c.Name, c.Path, p.render(mutedStyle, "("+usedBy+")"))
	}

	p.conflicts(r.Conflicts)

	if recs := analysis.Recommendations(r); len(recs) > 0 {
		p.printf("\nRecommendations\n")
		for _, rec := range recs {
			p.printf("  • %s\n", rec)
		}
	}
	if len(locations) > 0 {
		p.printf("\nReport written to %s\n", strings.Join(locations, ", "))
	}
}

// conflicts prints conflicts grouped by severity, most severe first.
func (p *printer) conflicts(list []conflict.DependencyConflict) {
	counts := conflict.CountBySeverity(list)
	p.printf("\nConflicts (%d)", len(list))
	if len(list) == 0 {
		p.printf(" %s\n", p.render(okStyle, "none"))
		return
	}
	parts := make([]string, 0, len(conflict.Severities))
	for i := len(conflict.Severities) - 1; i >= 0; i-- {
		s := conflict.Severities[i]
		parts = append(parts, p.render(severityStyle(s), fmt.Sprintf("%s=%d", s, counts[s])))
	}
	p.printf(" %s\n", strings.Join(parts, " "))

	for _, c := range conflict.Filter(list, conflict.SeverityLow) {
		line := fmt.Sprintf("  %s %s", p.render(severityStyle(c.Severity), fmt.Sprintf("[%s]", c.Severity)), c.Description)
		p.printf("%s\n", util.TruncateANSI(line, p.width))
	}
}

// splitReport prints the per-unit outcome of a split run.
func (p *printer) splitReport(r *split.Report) {
	heading := "Split results"
	if r.DryRun {
		heading += " (dry run)"
	}
	p.title(heading)
	p.printf("Run:       %s\n", r.RunID)
	p.printf("Provider:  %s\n\n", r.Provider)

	for _, u := range r.Units {
		mark := p.render(okStyle, "✓")
		if !u.OK() {
			mark = p.render(errorStyle, "✗")
		}
		p.printf("%s %-24s %-14s %s\n", mark, u.Unit.RepoName, u.State, u.CloneURL)
		if u.Error != "" {
			p.printf("    %s\n", p.render(errorStyle, u.Error))
		}
		if u.Attempts > 1 || u.RateLimitWaits > 0 {
			p.printf("    %s\n", p.render(mutedStyle,
				fmt.Sprintf("create took %d attempts, %d rate limit waits", u.Attempts, u.RateLimitWaits)))
		}
		if r.DryRun {
			for _, op := range u.Operations {
				p.printf("    %s\n", p.render(mutedStyle, op))
			}
		}
	}

	if len(r.FailedCalls) > 0 {
		p.printf("\n%s %s\n", p.render(warnStyle, "Failed provider calls:"), util.JoinLimited(r.FailedCalls, maxUsedBy))
	}

	summary := fmt.Sprintf("\n%d succeeded, %d failed", r.Succeeded, r.Failed)
	if r.OK() {
		p.printf("%s\n", p.render(okStyle, summary))
	} else {
		p.printf("%s\n", p.render(errorStyle, summary))
	}
}
