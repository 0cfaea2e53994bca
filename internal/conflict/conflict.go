// Package conflict classifies cross-project dependency problems that a
// repository split would expose.
//
// Detection runs four independent passes over immutable inputs:
// version mismatches, severed internal dependencies, circular project
// references and shared third-party dependencies. Severities are fixed per
// conflict type.
package conflict

import (
	"sort"
)

// Type names a conflict class.
type Type string

const (
	VersionMismatch    Type = "version_mismatch"
	MissingDependency  Type = "missing_dependency"
	CircularDependency Type = "circular_dependency"
	SharedDependency   Type = "shared_dependency"
)

// Severity is ordered low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists all severities in ascending order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	for i, v := range Severities {
		if v == s {
			return i
		}
	}
	return -1
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// SeverityOf returns the fixed severity of a conflict type.
func SeverityOf(t Type) Severity {
	switch t {
	case CircularDependency, MissingDependency:
		return SeverityCritical
	case VersionMismatch:
		return SeverityHigh
	case SharedDependency:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// MultipleProjects is the source of conflicts that concern a dependency
// rather than a single project.
const MultipleProjects = "multiple"

// DependencyConflict is one detected cross-project problem. For version and
// shared conflicts TargetProject is the dependency name.
type DependencyConflict struct {
	Type                  Type     `json:"type"`
	SourceProject         string   `json:"source"`
	TargetProject         string   `json:"target"`
	Severity              Severity `json:"severity"`
	Description           string   `json:"description"`
	ResolutionSuggestions []string `json:"resolution_suggestions"`
}

// Critical returns the number of critical conflicts.
func Critical(conflicts []DependencyConflict) int {
	n := 0
	for _, c := range conflicts {
		if c.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// CountBySeverity tallies conflicts per severity. Every severity is present.
func CountBySeverity(conflicts []DependencyConflict) map[Severity]int {
	counts := make(map[Severity]int, len(Severities))
	for _, s := range Severities {
		counts[s] = 0
	}
	for _, c := range conflicts {
		counts[c.Severity]++
	}
	return counts
}

// CountByType tallies conflicts per type.
func CountByType(conflicts []DependencyConflict) map[Type]int {
	counts := make(map[Type]int)
	for _, c := range conflicts {
		counts[c.Type]++
	}
	return counts
}

// Filter returns the conflicts at or above min severity, most severe first.
// The relative order of equally severe conflicts is preserved.
func Filter(conflicts []DependencyConflict, min Severity) []DependencyConflict {
	out := make([]DependencyConflict, 0, len(conflicts))
	for _, c := range conflicts {
		if c.Severity.AtLeast(min) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.Rank() > out[j].Severity.Rank()
	})
	return out
}
