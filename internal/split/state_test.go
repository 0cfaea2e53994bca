package split

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/monosplit/internal/errors"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StatePending, StateRepoCreated, true},
		{StateRepoCreated, StateExtracted, true},
		{StateExtracted, StatePublished, true},
		{StatePublished, StateDone, true},
		{StatePending, StateExtracted, false},
		{StatePending, StateDone, false},
		{StateRepoCreated, StatePublished, false},
		{StateExtracted, StateRepoCreated, false},
		{StateDone, StateFailed, false},
		{StateFailed, StatePending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestFailedReachableFromEveryNonTerminalState(t *testing.T) {
	for state := range ValidTransitions {
		if state.IsTerminal() {
			assert.Empty(t, ValidTransitions[state], "terminal state %s has transitions", state)
			continue
		}
		assert.True(t, CanTransition(state, StateFailed), "failed not reachable from %s", state)
	}
}

func TestTracker(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := newTracker(func() time.Time { return at })
	assert.Equal(t, StatePending, tr.state)

	require.NoError(t, tr.transition(StateRepoCreated, "created"))
	err := tr.transition(StatePublished, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidTransition)
	assert.Equal(t, StateRepoCreated, tr.state, "rejected transition must not change state")

	require.NoError(t, tr.transition(StateFailed, "boom"))
	assert.True(t, tr.state.IsTerminal())
	assert.ErrorIs(t, tr.transition(StateDone, ""), errors.ErrInvalidTransition)

	require.Len(t, tr.history, 2)
	assert.Equal(t, StateTransition{From: StatePending, To: StateRepoCreated, Timestamp: at, Reason: "created"}, tr.history[0])
	assert.Equal(t, StateFailed, tr.history[1].To)
}
