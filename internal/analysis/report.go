package analysis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Iron-Ham/monosplit/internal/conflict"
	"github.com/Iron-Ham/monosplit/internal/detect"
)

// ReportFileName is the default name of the persisted analysis report.
const ReportFileName = "monorepo_analysis.json"

// ProjectEntry is a project as it appears in the report.
type ProjectEntry struct {
	Path         string   `json:"path"`
	Type         string   `json:"type"`
	Size         int      `json:"size"`
	Dependencies []string `json:"dependencies"`
}

// ComponentEntry is a common component as it appears in the report.
type ComponentEntry struct {
	Path       string   `json:"path"`
	Files      int      `json:"files"`
	UsageCount int      `json:"usage_count"`
	UsedBy     []string `json:"used_by"`
}

// Document is the structured analysis report written once per run.
type Document struct {
	RunID                 string                        `json:"run_id"`
	Timestamp             string                        `json:"timestamp"`
	Root                  string                        `json:"root"`
	TotalProjects         int                           `json:"total_projects"`
	TotalCommonComponents int                           `json:"total_common_components"`
	Projects              map[string]ProjectEntry       `json:"projects"`
	CommonComponents      map[string]ComponentEntry     `json:"common_components"`
	Conflicts             []conflict.DependencyConflict `json:"conflicts"`
	ConflictSummary       map[conflict.Severity]int     `json:"conflict_summary"`
	Workspace             *detect.Workspace             `json:"workspace,omitempty"`
	Recommendations       []string                      `json:"recommendations"`
}

// Document builds the report for r.
func (r *Result) Document() Document {
	doc := Document{
		RunID:                 r.RunID,
		Timestamp:             r.Timestamp.Format(time.RFC3339),
		Root:                  r.Root,
		TotalProjects:         len(r.Projects),
		TotalCommonComponents: len(r.Components),
		Projects:              make(map[string]ProjectEntry, len(r.Projects)),
		CommonComponents:      make(map[string]ComponentEntry, len(r.Components)),
		Conflicts:             r.Conflicts,
		ConflictSummary:       conflict.CountBySeverity(r.Conflicts),
		Workspace:             r.Workspace,
		Recommendations:       Recommendations(r),
	}
	if doc.Conflicts == nil {
		doc.Conflicts = []conflict.DependencyConflict{}
	}

	for _, p := range r.Projects {
		dependencies := p.Dependencies
		if dependencies == nil {
			dependencies = []string{}
		}
		doc.Projects[p.Name] = ProjectEntry{
			Path:         p.Path,
			Type:         p.Kind,
			Size:         p.Size(),
			Dependencies: dependencies,
		}
	}
	for _, c := range r.Components {
		usedBy := c.UsedBy
		if usedBy == nil {
			usedBy = []string{}
		}
		doc.CommonComponents[c.Name] = ComponentEntry{
			Path:       c.Path,
			Files:      len(c.Files),
			UsageCount: c.UsageCount(),
			UsedBy:     usedBy,
		}
	}
	return doc
}

// MarshalReport renders the report as indented JSON.
func (r *Result) MarshalReport() ([]byte, error) {
	data, err := json.MarshalIndent(r.Document(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Recommendations derives the operator guidance list from a result.
func Recommendations(r *Result) []string {
	recs := []string{}

	if n := len(r.Projects); n > 1 {
		recs = append(recs, fmt.Sprintf("Split %d detected projects into separate repositories", n))
	}
	if n := len(r.Components); n > 0 {
		recs = append(recs, fmt.Sprintf("Extract %d common components into shared libraries", n))
	}
	if len(r.Projects) > 5 {
		recs = append(recs, "Consider creating a shared library for common utilities")
	}

	byType := conflict.CountByType(r.Conflicts)
	if n := r.CriticalConflicts(); n > 0 {
		recs = append(recs, fmt.Sprintf("Resolve %d critical conflicts before splitting, or rerun the split with --force", n))
	}
	if n := byType[conflict.VersionMismatch]; n > 0 {
		recs = append(recs, fmt.Sprintf("Align versions of %d dependencies pinned differently across projects", n))
	}
	if n := byType[conflict.SharedDependency]; n > 0 {
		recs = append(recs, fmt.Sprintf("Coordinate upgrades of %d dependencies shared by several projects", n))
	}

	for _, c := range r.Components {
		if c.UsageCount() > 1 {
			recs = append(recs, fmt.Sprintf("Publish '%s' as a versioned package; it is used by %d projects", c.Name, c.UsageCount()))
		}
	}

	if r.Workspace != nil {
		recs = append(recs, fmt.Sprintf("Extracted packages drop the %s workspace configuration; verify each builds standalone", r.Workspace.Manager))
	}
	return recs
}
