// Package errors provides centralized error definitions and error
// handling utilities for taskctl.
//
// # Error Types
//
// The package provides two categories of errors:
//
// External errors wrap failures of outside collaborators:
//   - GitError: a git command failed (carries the command and stderr)
//   - ForgeError: a gh command failed or returned something unusable
//   - PlannerError: the LLM planner produced unusable output
//
// Domain errors represent violated rules of the task model:
//   - NotFoundError: entity lookup found nothing
//   - AmbiguousError: a prefix lookup matched more than one entity
//   - AlreadyExistsError: unique constraint at the domain level
//   - InvalidTransitionError: a status change outside the lifecycle
//   - CycleError: the dependency edge set contains a cycle
//   - StoreError: persistence failures (Conflict or Backend)
//   - TimeoutError: an external operation exceeded its deadline
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewGitError("git checkout", stderr, cause).WithRepository(path)
//	err := errors.NewNotFoundError("task", "01ARZ3ND")
//
// Checking errors:
//
//	var gitErr *errors.GitError
//	if errors.As(err, &gitErr) { ... }
//
//	os.Exit(errors.ExitCode(err))
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience so callers can
// import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Exit codes for the taskctl binary.
const (
	ExitOK       = 0 // success
	ExitUser     = 1 // user error: not found, invalid argument, bad state
	ExitExternal = 2 // git, forge, or LLM failure
	ExitInternal = 3 // internal invariant violation, storage backend failure
)

// Sentinel errors for conditions callers branch on.
var (
	// ErrNotFound indicates an entity could not be found.
	ErrNotFound = New("not found")
	// ErrAmbiguous indicates a prefix matched more than one entity.
	ErrAmbiguous = New("ambiguous prefix")
	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = New("already exists")
	// ErrInvalidTransition indicates a status change outside the lifecycle.
	ErrInvalidTransition = New("invalid status transition")
	// ErrCycle indicates a dependency cycle.
	ErrCycle = New("dependency cycle detected")
	// ErrDependencyUnmet indicates a task was acted on before its dependencies completed.
	ErrDependencyUnmet = New("dependency not completed")
	// ErrConflict indicates a unique or foreign key constraint violation.
	ErrConflict = New("constraint violation")
	// ErrBackend indicates an underlying storage failure.
	ErrBackend = New("storage backend failure")
	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrBranchOwned indicates a branch already belongs to a different task.
	ErrBranchOwned = New("branch owned by another task")
)

// -----------------------------------------------------------------------------
// External Errors
// -----------------------------------------------------------------------------

// GitError represents a failed git invocation. Command is the full
// command line that failed; Stderr is its captured diagnostic output.
type GitError struct {
	Command    string
	Stderr     string
	Repository string
	Branch     string
	Worktree   string
	cause      error
}

// NewGitError creates a GitError for a failed command.
func NewGitError(command, stderr string, cause error) *GitError {
	return &GitError{Command: command, Stderr: stderr, cause: cause}
}

// WithRepository adds the repository path to the error context.
func (e *GitError) WithRepository(path string) *GitError {
	e.Repository = path
	return e
}

// WithBranch adds a branch name to the error context.
func (e *GitError) WithBranch(branch string) *GitError {
	e.Branch = branch
	return e
}

// WithWorktree adds a worktree path to the error context.
func (e *GitError) WithWorktree(path string) *GitError {
	e.Worktree = path
	return e
}

// Error returns the formatted error message.
func (e *GitError) Error() string {
	var parts []string
	if e.Repository != "" {
		parts = append(parts, fmt.Sprintf("repo=%s", e.Repository))
	}
	if e.Branch != "" {
		parts = append(parts, fmt.Sprintf("branch=%s", e.Branch))
	}
	if e.Worktree != "" {
		parts = append(parts, fmt.Sprintf("worktree=%s", e.Worktree))
	}

	prefix := "git error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("git error [%s]", strings.Join(parts, ", "))
	}

	msg := fmt.Sprintf("%s: %s", prefix, e.Command)
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s\nstderr: %s", msg, strings.TrimSpace(e.Stderr))
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *GitError) Unwrap() error { return e.cause }

// Is reports whether this error matches the target.
func (e *GitError) Is(target error) bool {
	if _, ok := target.(*GitError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// ForgeError represents a failed gh invocation or an unusable response.
type ForgeError struct {
	Command  string
	Output   string
	PRNumber int
	cause    error
}

// NewForgeError creates a ForgeError for a failed command.
func NewForgeError(command, output string, cause error) *ForgeError {
	return &ForgeError{Command: command, Output: output, cause: cause}
}

// WithPRNumber adds the pull request number to the error context.
func (e *ForgeError) WithPRNumber(n int) *ForgeError {
	e.PRNumber = n
	return e
}

// Error returns the formatted error message.
func (e *ForgeError) Error() string {
	prefix := "forge error"
	if e.PRNumber > 0 {
		prefix = fmt.Sprintf("forge error [pr=#%d]", e.PRNumber)
	}
	msg := fmt.Sprintf("%s: %s", prefix, e.Command)
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.Output != "" {
		msg = fmt.Sprintf("%s\noutput: %s", msg, strings.TrimSpace(e.Output))
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ForgeError) Unwrap() error { return e.cause }

// Is reports whether this error matches the target.
func (e *ForgeError) Is(target error) bool {
	if _, ok := target.(*ForgeError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// PlannerKind classifies planner failures.
type PlannerKind string

const (
	// PlannerParse indicates the response was not valid JSON.
	PlannerParse PlannerKind = "parse"
	// PlannerSchema indicates the response was missing required structure.
	PlannerSchema PlannerKind = "schema"
	// PlannerDependency indicates the returned dependency graph was invalid.
	PlannerDependency PlannerKind = "dependency"
	// PlannerCall indicates the LLM call itself failed.
	PlannerCall PlannerKind = "call"
)

// PlannerError represents an unusable planner response. None of these
// mutate the store; the plan is restored to draft by the caller.
type PlannerError struct {
	Kind    PlannerKind
	Message string
	cause   error
}

// NewPlannerError creates a PlannerError of the given kind.
func NewPlannerError(kind PlannerKind, message string, cause error) *PlannerError {
	return &PlannerError{Kind: kind, Message: message, cause: cause}
}

// Error returns the formatted error message.
func (e *PlannerError) Error() string {
	msg := fmt.Sprintf("planner error [%s]: %s", e.Kind, e.Message)
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *PlannerError) Unwrap() error { return e.cause }

// Is reports whether this error matches the target.
func (e *PlannerError) Is(target error) bool {
	if _, ok := target.(*PlannerError); ok {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Domain Errors
// -----------------------------------------------------------------------------

// NotFoundError represents an entity that could not be found.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Entity, e.ID)
}

// Is reports whether this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return target == ErrNotFound
}

// AmbiguousError represents a prefix lookup that matched more than one
// entity. Matches holds the short ids of every candidate so the user
// can disambiguate.
type AmbiguousError struct {
	Entity  string
	Prefix  string
	Matches []string
}

// NewAmbiguousError creates an AmbiguousError.
func NewAmbiguousError(entity, prefix string, matches []string) *AmbiguousError {
	return &AmbiguousError{Entity: entity, Prefix: prefix, Matches: matches}
}

// Error returns the formatted error message.
func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s prefix '%s' is ambiguous: matches %s",
		e.Entity, e.Prefix, strings.Join(e.Matches, ", "))
}

// Is reports whether this error matches the target.
func (e *AmbiguousError) Is(target error) bool {
	if _, ok := target.(*AmbiguousError); ok {
		return true
	}
	return target == ErrAmbiguous
}

// AlreadyExistsError represents an entity that already exists.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

// NewAlreadyExistsError creates an AlreadyExistsError.
func NewAlreadyExistsError(entity, id string) *AlreadyExistsError {
	return &AlreadyExistsError{Entity: entity, ID: id}
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.Entity, e.ID)
}

// Is reports whether this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return target == ErrAlreadyExists
}

// InvalidTransitionError represents a status change that the entity's
// lifecycle does not permit.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
	Reason string
}

// NewInvalidTransitionError creates an InvalidTransitionError.
func NewInvalidTransitionError(entity, from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{Entity: entity, From: from, To: to}
}

// WithReason attaches the cross-entity rule that failed.
func (e *InvalidTransitionError) WithReason(reason string) *InvalidTransitionError {
	e.Reason = reason
	return e
}

// Error returns the formatted error message.
func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition: %s -> %s", e.Entity, e.From, e.To)
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	return msg
}

// Is reports whether this error matches the target.
func (e *InvalidTransitionError) Is(target error) bool {
	if _, ok := target.(*InvalidTransitionError); ok {
		return true
	}
	return target == ErrInvalidTransition
}

// CycleError represents a dependency cycle. Involving names one task
// on the cycle, deterministically the first one the traversal visited.
type CycleError struct {
	Involving string
}

// NewCycleError creates a CycleError.
func NewCycleError(involving string) *CycleError {
	return &CycleError{Involving: involving}
}

// Error returns the formatted error message.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving task %s", e.Involving)
}

// Is reports whether this error matches the target.
func (e *CycleError) Is(target error) bool {
	if _, ok := target.(*CycleError); ok {
		return true
	}
	return target == ErrCycle
}

// StoreKind classifies persistence failures.
type StoreKind string

const (
	// StoreConflict is a unique or foreign key violation. Fatal to the
	// current operation but the process continues.
	StoreConflict StoreKind = "conflict"
	// StoreBackend is an underlying I/O or driver failure. The process
	// exits with ExitInternal.
	StoreBackend StoreKind = "backend"
)

// StoreError represents a persistence failure.
type StoreError struct {
	Kind  StoreKind
	Op    string
	cause error
}

// NewStoreError creates a StoreError.
func NewStoreError(kind StoreKind, op string, cause error) *StoreError {
	return &StoreError{Kind: kind, Op: op, cause: cause}
}

// Error returns the formatted error message.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("store error [%s]: %s", e.Kind, e.Op)
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.cause }

// Is reports whether this error matches the target.
func (e *StoreError) Is(target error) bool {
	if _, ok := target.(*StoreError); ok {
		return true
	}
	switch target {
	case ErrConflict:
		return e.Kind == StoreConflict
	case ErrBackend:
		return e.Kind == StoreBackend
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// TimeoutError represents an external operation that exceeded its
// deadline. Distinct from a true failure so callers can tell an aborted
// operation apart from a failing one.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{Operation: operation, Duration: duration}
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s (limit: %s)", e.Operation, e.Duration)
}

// Is reports whether this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	return target == ErrTimeout
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsExternal reports whether the error came from an outside
// collaborator (git, forge, LLM). External errors are never retried
// silently; the user sees the failing command and its output.
func IsExternal(err error) bool {
	if err == nil {
		return false
	}
	var gitErr *GitError
	var forgeErr *ForgeError
	var plannerErr *PlannerError
	return As(err, &gitErr) || As(err, &forgeErr) || As(err, &plannerErr)
}

// IsDomain reports whether the error represents a violated rule of the
// task model rather than an infrastructure failure.
func IsDomain(err error) bool {
	if err == nil {
		return false
	}
	var notFound *NotFoundError
	var ambiguous *AmbiguousError
	var exists *AlreadyExistsError
	var transition *InvalidTransitionError
	var cycle *CycleError
	return As(err, &notFound) || As(err, &ambiguous) || As(err, &exists) ||
		As(err, &transition) || As(err, &cycle) || Is(err, ErrDependencyUnmet)
}

// ExitCode maps an error to the taskctl process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var storeErr *StoreError
	if As(err, &storeErr) && storeErr.Kind == StoreBackend {
		return ExitInternal
	}
	if IsExternal(err) || Is(err, ErrTimeout) || Is(err, ErrCanceled) {
		return ExitExternal
	}
	return ExitUser
}

// Wrap wraps an error with additional context.
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
