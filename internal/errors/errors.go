// Package errors provides centralized error definitions and error handling utilities
// for monosplit. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent errors from specific subsystems:
//   - ScanError: a file or directory could not be read during analysis
//   - ConflictBlockedError: critical dependency conflicts prevent a split
//   - ProviderError: a hosting provider call failed (auth, transient, rate limited)
//   - ExtractionError: a unit's path or branch could not be extracted
//   - GitError: a git subprocess failed
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or configuration
//   - TimeoutError: operation timed out
//   - CircuitOpenError: a provider circuit breaker rejected the call
//
// # Usage
//
//	err := errors.NewProviderError("create repository", errors.ProviderAuth, cause).
//		WithProvider("github").WithStatus(401)
//
//	if errors.Is(err, errors.ErrUnauthorized) { ... }
//
//	var provErr *errors.ProviderError
//	if errors.As(err, &provErr) && provErr.Kind == errors.ProviderRateLimited { ... }
//
//	if errors.IsRetryable(err) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Analysis-related sentinel errors
var (
	// ErrCriticalConflicts indicates that critical dependency conflicts were found.
	ErrCriticalConflicts = New("critical dependency conflicts")
)

// Provider-related sentinel errors
var (
	// ErrUnauthorized indicates that provider credentials were rejected.
	ErrUnauthorized = New("provider rejected credentials")
	// ErrRateLimited indicates that the provider throttled the request.
	ErrRateLimited = New("provider rate limit exceeded")
	// ErrProviderUnavailable indicates a transient provider or network failure.
	ErrProviderUnavailable = New("provider unavailable")
	// ErrCircuitOpen indicates that a circuit breaker is rejecting calls.
	ErrCircuitOpen = New("circuit breaker is open")
	// ErrUnknownProvider indicates an unsupported provider name.
	ErrUnknownProvider = New("unknown provider")
)

// Extraction-related sentinel errors
var (
	// ErrPathMissing indicates that a unit's path does not exist in the source tree.
	ErrPathMissing = New("extraction path does not exist")
	// ErrBranchNotFound indicates that a branch could not be found locally or remotely.
	ErrBranchNotFound = New("branch not found")
	// ErrInvalidTransition indicates an illegal unit state change.
	ErrInvalidTransition = New("invalid state transition")
)

// Git-related sentinel errors
var (
	// ErrGitCommandFailed indicates that git exited with a non-zero status.
	ErrGitCommandFailed = New("git command failed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// MonosplitError is the base interface for all monosplit errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type MonosplitError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// formatWithPrefix renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) formatWithPrefix(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// ScanError represents an unreadable file or directory encountered while
// scanning or parsing. It never aborts an analysis run.
//
// Example:
//
//	err := errors.NewScanError("read manifest", cause).WithPath("apps/web/package.json")
//	fmt.Println(err) // "scan error [path=apps/web/package.json]: read manifest: ..."
type ScanError struct {
	baseError
	Path string
}

// NewScanError creates a new ScanError.
func NewScanError(message string, cause error) *ScanError {
	return &ScanError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityDebug,
			retryable:  false,
			userFacing: false,
		},
	}
}

// WithPath adds the offending path to the error context.
func (e *ScanError) WithPath(path string) *ScanError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *ScanError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.formatWithPrefix("scan error", parts)
}

// Is checks if this error matches the target.
func (e *ScanError) Is(target error) bool {
	if _, ok := target.(*ScanError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ConflictBlockedError is returned when a split is refused because critical
// dependency conflicts were detected and no override was given.
//
// Example:
//
//	err := errors.NewConflictBlockedError(3)
//	fmt.Println(err) // "conflict blocked [critical=3]: split refused, rerun with --force to override"
type ConflictBlockedError struct {
	baseError
	Critical int
}

// NewConflictBlockedError creates a new ConflictBlockedError.
func NewConflictBlockedError(critical int) *ConflictBlockedError {
	return &ConflictBlockedError{
		baseError: baseError{
			message:    "split refused, rerun with --force to override",
			cause:      ErrCriticalConflicts,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
		Critical: critical,
	}
}

// Error returns the formatted error message.
func (e *ConflictBlockedError) Error() string {
	return fmt.Sprintf("conflict blocked [critical=%d]: %s", e.Critical, e.message)
}

// Is checks if this error matches the target.
func (e *ConflictBlockedError) Is(target error) bool {
	if _, ok := target.(*ConflictBlockedError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ProviderErrorKind classifies a provider failure.
type ProviderErrorKind int

const (
	// ProviderTransient covers 5xx responses and network failures.
	ProviderTransient ProviderErrorKind = iota
	// ProviderAuth covers rejected or missing credentials.
	ProviderAuth
	// ProviderRateLimited covers throttled requests.
	ProviderRateLimited
	// ProviderRejected covers other 4xx responses that will not succeed on retry.
	ProviderRejected
)

// String returns the string representation of the kind.
func (k ProviderErrorKind) String() string {
	switch k {
	case ProviderTransient:
		return "transient"
	case ProviderAuth:
		return "auth"
	case ProviderRateLimited:
		return "rate_limited"
	case ProviderRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ProviderError represents a failed call to a repository hosting provider.
//
// Example:
//
//	err := errors.NewProviderError("create repository", errors.ProviderRateLimited, nil).
//		WithProvider("github").WithRetryAfter(30 * time.Second)
type ProviderError struct {
	baseError
	Kind       ProviderErrorKind
	Provider   string
	Repository string
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

// NewProviderError creates a new ProviderError. Transient and rate limited
// errors are retryable; auth and rejected errors are not.
func NewProviderError(message string, kind ProviderErrorKind, cause error) *ProviderError {
	severity := SeverityError
	if kind == ProviderAuth {
		severity = SeverityCritical
	}
	return &ProviderError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   severity,
			retryable:  kind == ProviderTransient || kind == ProviderRateLimited,
			userFacing: true,
		},
		Kind: kind,
	}
}

// WithProvider adds the provider name to the error context.
func (e *ProviderError) WithProvider(name string) *ProviderError {
	e.Provider = name
	return e
}

// WithRepository adds the repository name to the error context.
func (e *ProviderError) WithRepository(name string) *ProviderError {
	e.Repository = name
	return e
}

// WithStatus adds the HTTP status code to the error context.
func (e *ProviderError) WithStatus(code int) *ProviderError {
	e.StatusCode = code
	return e
}

// WithRetryAfter sets how long the provider asked callers to wait.
func (e *ProviderError) WithRetryAfter(d time.Duration) *ProviderError {
	e.RetryAfter = d
	return e
}

// WithBody adds the response body to the error context.
func (e *ProviderError) WithBody(body string) *ProviderError {
	e.Body = body
	return e
}

// Error returns the formatted error message.
func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("kind=%s", e.Kind)}
	if e.Provider != "" {
		parts = append(parts, fmt.Sprintf("provider=%s", e.Provider))
	}
	if e.Repository != "" {
		parts = append(parts, fmt.Sprintf("repo=%s", e.Repository))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.RetryAfter > 0 {
		parts = append(parts, fmt.Sprintf("retry_after=%s", e.RetryAfter))
	}
	msg := e.formatWithPrefix("provider error", parts)
	if e.Body != "" {
		msg = fmt.Sprintf("%s\nresponse: %s", msg, e.Body)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *ProviderError) Is(target error) bool {
	if _, ok := target.(*ProviderError); ok {
		return true
	}
	switch {
	case target == ErrUnauthorized:
		return e.Kind == ProviderAuth
	case target == ErrRateLimited:
		return e.Kind == ProviderRateLimited
	case target == ErrProviderUnavailable:
		return e.Kind == ProviderTransient
	}
	return e.baseError.Is(target)
}

// ExtractionError represents a failure to isolate a unit's history.
//
// Example:
//
//	err := errors.NewExtractionError("path not found", errors.ErrPathMissing).
//		WithUnit("api").WithPath("services/api")
type ExtractionError struct {
	baseError
	Unit   string
	Path   string
	Branch string
}

// NewExtractionError creates a new ExtractionError.
func NewExtractionError(message string, cause error) *ExtractionError {
	return &ExtractionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithUnit adds the unit name to the error context.
func (e *ExtractionError) WithUnit(name string) *ExtractionError {
	e.Unit = name
	return e
}

// WithPath adds the source path to the error context.
func (e *ExtractionError) WithPath(path string) *ExtractionError {
	e.Path = path
	return e
}

// WithBranch adds the source branch to the error context.
func (e *ExtractionError) WithBranch(branch string) *ExtractionError {
	e.Branch = branch
	return e
}

// Error returns the formatted error message.
func (e *ExtractionError) Error() string {
	var parts []string
	if e.Unit != "" {
		parts = append(parts, fmt.Sprintf("unit=%s", e.Unit))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	return e.formatWithPrefix("extraction error", parts)
}

// Is checks if this error matches the target.
func (e *ExtractionError) Is(target error) bool {
	if _, ok := target.(*ExtractionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// GitError represents errors related to git operations.
//
// Example:
//
//	err := errors.NewGitError("push failed", errors.ErrGitCommandFailed).
//		WithArgs([]string{"push", "origin"}).WithExitCode(128).WithGitOutput(stderr)
type GitError struct {
	baseError
	Args       []string
	Dir        string
	ExitCode   int
	GitOutput  string // Captured stderr, verbatim
	Repository string
}

// NewGitError creates a new GitError.
func NewGitError(message string, cause error) *GitError {
	return &GitError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithArgs records the git arguments that failed.
func (e *GitError) WithArgs(args []string) *GitError {
	e.Args = args
	return e
}

// WithDir records the working directory of the failed command.
func (e *GitError) WithDir(dir string) *GitError {
	e.Dir = dir
	return e
}

// WithExitCode records the exit status of the failed command.
func (e *GitError) WithExitCode(code int) *GitError {
	e.ExitCode = code
	return e
}

// WithRepository adds a repository path or URL to the error context.
func (e *GitError) WithRepository(path string) *GitError {
	e.Repository = path
	return e
}

// WithGitOutput adds git command output to the error context.
func (e *GitError) WithGitOutput(output string) *GitError {
	e.GitOutput = output
	return e
}

// Error returns the formatted error message.
func (e *GitError) Error() string {
	var parts []string
	if len(e.Args) > 0 {
		parts = append(parts, fmt.Sprintf("cmd=git %s", strings.Join(e.Args, " ")))
	}
	if e.Dir != "" {
		parts = append(parts, fmt.Sprintf("dir=%s", e.Dir))
	}
	if e.ExitCode != 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	if e.Repository != "" {
		parts = append(parts, fmt.Sprintf("repo=%s", e.Repository))
	}

	msg := e.formatWithPrefix("git error", parts)
	if e.GitOutput != "" {
		msg = fmt.Sprintf("%s\ngit output: %s", msg, e.GitOutput)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("token is required").WithField("providers.github.token")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.formatWithPrefix("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("git clone --mirror", 5*time.Minute)
//	fmt.Println(err) // "timeout error: git clone --mirror (timeout: 5m0s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// CircuitOpenError is returned by a circuit breaker that is rejecting calls.
type CircuitOpenError struct {
	baseError
	Name    string
	RetryIn time.Duration
}

// NewCircuitOpenError creates a new CircuitOpenError.
func NewCircuitOpenError(name string, retryIn time.Duration) *CircuitOpenError {
	return &CircuitOpenError{
		baseError: baseError{
			message:    "calls suspended after repeated failures",
			cause:      ErrCircuitOpen,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Name:    name,
		RetryIn: retryIn,
	}
}

// Error returns the formatted error message.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open [name=%s, retry_in=%s]: %s", e.Name, e.RetryIn, e.message)
}

// Is checks if this error matches the target.
func (e *CircuitOpenError) Is(target error) bool {
	if _, ok := target.(*CircuitOpenError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing MonosplitError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var msErr MonosplitError
	if As(err, &msErr) {
		return msErr.IsRetryable()
	}

	if Is(err, ErrTimeout) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var msErr MonosplitError
	if As(err, &msErr) {
		return msErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement MonosplitError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var msErr MonosplitError
	if As(err, &msErr) {
		return msErr.Severity()
	}

	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message. The wrapped error
// stays reachable through Is and As.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
