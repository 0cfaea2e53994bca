// Package retry provides the resilience primitives used when talking to
// hosting providers: exponential backoff, a per-run circuit breaker, a
// rate-limit gate, and per-call attempt tracking for reporting.
//
// Nothing in this package is global. A run constructs one Executor (with its
// Breaker, Gate and Manager) and passes it to whatever needs it.
package retry

import (
	"sort"
	"sync"
)

// CallState tracks attempts for one logical call, e.g. "web-app/create".
type CallState struct {
	Key            string `json:"key"`
	Attempts       int    `json:"attempts"`
	MaxAttempts    int    `json:"max_attempts"`
	RateLimitWaits int    `json:"rate_limit_waits,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	Succeeded      bool   `json:"succeeded,omitempty"`
}

// Manager records attempt state per call key.
// It is thread-safe and can be used concurrently.
type Manager struct {
	mu     sync.RWMutex
	states map[string]*CallState
}

// NewManager creates a new attempt manager.
func NewManager() *Manager {
	return &Manager{
		states: make(map[string]*CallState),
	}
}

// GetOrCreateState returns or creates state for key.
func (m *Manager) GetOrCreateState(key string, maxAttempts int) *CallState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.states[key]
	if !exists {
		state = &CallState{
			Key:         key,
			MaxAttempts: maxAttempts,
		}
		m.states[key] = state
	}
	return state
}

// GetState returns a copy of the state for key, or nil if not found.
func (m *Manager) GetState(key string) *CallState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[key]
	if !ok {
		return nil
	}
	cp := *state
	return &cp
}

// RecordAttempt counts an attempt for key. A successful attempt also marks
// the call as succeeded.
func (m *Manager) RecordAttempt(key string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.states[key]
	if !exists {
		return
	}
	state.Attempts++
	if success {
		state.Succeeded = true
		state.LastError = ""
	}
}

// RecordRateLimitWait counts a throttle wait for key. Waits do not consume attempts.
func (m *Manager) RecordRateLimitWait(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.states[key]
	if !exists {
		return 0
	}
	state.RateLimitWaits++
	return state.RateLimitWaits
}

// SetLastError sets the last error message for key.
func (m *Manager) SetLastError(key string, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.states[key]
	if !exists {
		return
	}
	state.LastError = errMsg
}

// GetFailedCalls returns the sorted keys of calls that never succeeded.
func (m *Manager) GetFailedCalls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var failed []string
	for key, state := range m.states {
		if !state.Succeeded && state.Attempts > 0 {
			failed = append(failed, key)
		}
	}
	sort.Strings(failed)
	return failed
}
