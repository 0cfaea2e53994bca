package split

import (
	"time"
)

// UnitResult is the outcome of one unit. Attempts and RateLimitWaits
// describe the repository creation call.
type UnitResult struct {
	Unit           Unit              `json:"unit"`
	State          State             `json:"state"`
	Outcome        string            `json:"outcome,omitempty"`
	CloneURL       string            `json:"clone_url,omitempty"`
	Error          string            `json:"error,omitempty"`
	Operations     []string          `json:"operations,omitempty"`
	Attempts       int               `json:"create_attempts,omitempty"`
	RateLimitWaits int               `json:"rate_limit_waits,omitempty"`
	History        []StateTransition `json:"history"`
	Duration       time.Duration     `json:"duration"`
}

// OK reports whether the unit reached Done.
func (r UnitResult) OK() bool {
	return r.State == StateDone
}

// CreatedRepo is a repository available after the run.
type CreatedRepo struct {
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	CloneURL string `json:"clone_url"`
	Outcome  string `json:"outcome"`
	State    State  `json:"state"`
}

// Report summarizes a split run. FailedCalls lists provider calls that
// never succeeded, e.g. "create:web-app".
type Report struct {
	RunID       string        `json:"run_id"`
	Provider    string        `json:"provider"`
	DryRun      bool          `json:"dry_run"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Setup       []string      `json:"setup,omitempty"`
	Units       []UnitResult  `json:"units"`
	Created     []CreatedRepo `json:"created"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	FailedCalls []string      `json:"failed_calls,omitempty"`
}

// OK reports whether every unit reached Done.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Unit returns the result for the unit named name.
func (r *Report) Unit(name string) (UnitResult, bool) {
	for _, u := range r.Units {
		if u.Unit.Name == name {
			return u, true
		}
	}
	return UnitResult{}, false
}

func (r *Report) finish(results []UnitResult, at time.Time) {
	r.Units = results
	r.Created = sortedCreated(results)
	r.Succeeded, r.Failed = 0, 0
	for _, u := range results {
		if u.OK() {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
	r.FinishedAt = at
}
