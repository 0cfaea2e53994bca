package split

import (
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/monosplit/internal/errors"
)

// State is a unit's position in the split lifecycle.
type State string

const (
	// StatePending is the initial state; nothing has been done yet.
	StatePending State = "pending"

	// StateRepoCreated means the target repository exists on the provider.
	StateRepoCreated State = "repo_created"

	// StateExtracted means the unit's history has been isolated in scratch storage.
	StateExtracted State = "extracted"

	// StatePublished means the extracted history was pushed to the target.
	StatePublished State = "published"

	// StateDone is the terminal success state.
	StateDone State = "done"

	// StateFailed is the terminal failure state.
	StateFailed State = "failed"
)

// ValidTransitions defines which state transitions are allowed.
// Failed is reachable from every non-terminal state.
var ValidTransitions = map[State][]State{
	StatePending:     {StateRepoCreated, StateFailed},
	StateRepoCreated: {StateExtracted, StateFailed},
	StateExtracted:   {StatePublished, StateFailed},
	StatePublished:   {StateDone, StateFailed},
	StateDone:        {},
	StateFailed:      {},
}

// CanTransition checks whether a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	return slices.Contains(ValidTransitions[from], to)
}

// IsTerminal returns true for Done and Failed.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// StateTransition captures a single state change of a unit.
type StateTransition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// tracker holds a unit's current state and its history.
type tracker struct {
	state   State
	history []StateTransition
	now     func() time.Time
}

func newTracker(now func() time.Time) *tracker {
	return &tracker{state: StatePending, now: now}
}

// transition moves to the target state, rejecting anything ValidTransitions
// does not allow.
func (t *tracker) transition(to State, reason string) error {
	if !CanTransition(t.state, to) {
		return errors.Wrap(errors.ErrInvalidTransition, fmt.Sprintf("%s -> %s", t.state, to))
	}
	t.history = append(t.history, StateTransition{
		From:      t.state,
		To:        to,
		Timestamp: t.now(),
		Reason:    reason,
	})
	t.state = to
	return nil
}
