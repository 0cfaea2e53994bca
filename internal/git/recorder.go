package git

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Operation is one recorded step of an extraction: a git invocation or a
// non-git action such as rewriting a manifest.
type Operation struct {
	Dir  string
	Args []string
	Note string
}

// String renders the operation the way an operator would type it.
func (o Operation) String() string {
	if o.Note != "" {
		return o.Note
	}
	return "git " + strings.Join(o.Args, " ")
}

// Recorder implements Git by recording every call. With a nil inner Git it
// simulates success (exit 0, empty output), which is how dry runs produce
// the same operation sequence as live runs without touching anything.
type Recorder struct {
	mu    sync.Mutex
	inner Git
	ops   []Operation
}

// NewRecorder wraps inner. Pass nil for a dry run.
func NewRecorder(inner Git) *Recorder {
	return &Recorder{inner: inner}
}

// DryRun reports whether calls are simulated.
func (r *Recorder) DryRun() bool {
	return r.inner == nil
}

// Run records the call and delegates to the inner Git when present.
func (r *Recorder) Run(ctx context.Context, dir string, mustSucceed bool, args ...string) (Result, error) {
	r.record(Operation{Dir: dir, Args: append([]string(nil), args...)})
	if r.inner == nil {
		if err := ctx.Err(); err != nil {
			return Result{ExitCode: -1}, err
		}
		return Result{}, nil
	}
	return r.inner.Run(ctx, dir, mustSucceed, args...)
}

// Note records a non-git action.
func (r *Recorder) Note(dir, format string, args ...any) {
	r.record(Operation{Dir: dir, Note: fmt.Sprintf(format, args...)})
}

func (r *Recorder) record(op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

// Operations returns a copy of the recorded operations in call order.
func (r *Recorder) Operations() []Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Operation, len(r.ops))
	copy(out, r.ops)
	return out
}
