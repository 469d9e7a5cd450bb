package errors

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// GitError Tests
// -----------------------------------------------------------------------------

func TestGitError(t *testing.T) {
	base := New("exit status 128")
	err := NewGitError("git worktree add /tmp/wt", "fatal: not a git repository", base).
		WithRepository("/repo").
		WithBranch("feature/x").
		WithWorktree("/tmp/wt")

	msg := err.Error()
	for _, want := range []string{"git error", "repo=/repo", "branch=feature/x",
		"worktree=/tmp/wt", "git worktree add", "fatal: not a git repository"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() missing %q in %q", want, msg)
		}
	}

	if !Is(err, base) {
		t.Error("Is() should match the wrapped cause")
	}
	var gitErr *GitError
	if !As(err, &gitErr) {
		t.Error("As() should match *GitError")
	}
}

func TestGitErrorMatchesOtherGitErrors(t *testing.T) {
	a := NewGitError("git push", "", nil)
	b := NewGitError("git fetch", "", nil)
	if !Is(a, b) {
		t.Error("two GitErrors should match via Is")
	}
}

// -----------------------------------------------------------------------------
// ForgeError Tests
// -----------------------------------------------------------------------------

func TestForgeError(t *testing.T) {
	err := NewForgeError("gh pr merge 42", "merge conflict", nil).WithPRNumber(42)

	msg := err.Error()
	if !strings.Contains(msg, "pr=#42") {
		t.Errorf("Error() missing PR number in %q", msg)
	}
	if !strings.Contains(msg, "merge conflict") {
		t.Errorf("Error() missing output in %q", msg)
	}
}

// -----------------------------------------------------------------------------
// PlannerError Tests
// -----------------------------------------------------------------------------

func TestPlannerError(t *testing.T) {
	tests := []struct {
		kind PlannerKind
		want string
	}{
		{PlannerParse, "planner error [parse]"},
		{PlannerSchema, "planner error [schema]"},
		{PlannerDependency, "planner error [dependency]"},
		{PlannerCall, "planner error [call]"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewPlannerError(tt.kind, "bad response", nil)
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Error() = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Domain Error Tests
// -----------------------------------------------------------------------------

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("task", "01ARZ3ND")
	if err.Error() != "task '01ARZ3ND' not found" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !Is(err, ErrNotFound) {
		t.Error("should match ErrNotFound sentinel")
	}
}

func TestAmbiguousError(t *testing.T) {
	err := NewAmbiguousError("plan", "01AR", []string{"01ARZ3ND", "01ARB9XK"})
	msg := err.Error()
	if !strings.Contains(msg, "01ARZ3ND") || !strings.Contains(msg, "01ARB9XK") {
		t.Errorf("Error() should list all matches: %q", msg)
	}
	if !Is(err, ErrAmbiguous) {
		t.Error("should match ErrAmbiguous sentinel")
	}
}

func TestInvalidTransitionError(t *testing.T) {
	err := NewInvalidTransitionError("task", "pending", "completed").
		WithReason("dependencies not completed")

	msg := err.Error()
	if !strings.Contains(msg, "pending -> completed") {
		t.Errorf("Error() = %q", msg)
	}
	if !strings.Contains(msg, "dependencies not completed") {
		t.Errorf("Error() missing reason: %q", msg)
	}
	if !Is(err, ErrInvalidTransition) {
		t.Error("should match ErrInvalidTransition sentinel")
	}
}

func TestCycleError(t *testing.T) {
	err := NewCycleError("task-a")
	if !strings.Contains(err.Error(), "task-a") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !Is(err, ErrCycle) {
		t.Error("should match ErrCycle sentinel")
	}
}

func TestStoreError(t *testing.T) {
	conflict := NewStoreError(StoreConflict, "insert task", nil)
	backend := NewStoreError(StoreBackend, "open database", fmt.Errorf("disk full"))

	if !Is(conflict, ErrConflict) {
		t.Error("conflict should match ErrConflict")
	}
	if Is(conflict, ErrBackend) {
		t.Error("conflict should not match ErrBackend")
	}
	if !Is(backend, ErrBackend) {
		t.Error("backend should match ErrBackend")
	}
	if !strings.Contains(backend.Error(), "disk full") {
		t.Errorf("Error() = %q", backend.Error())
	}
}

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("git pull", 300*time.Second)
	if !strings.Contains(err.Error(), "5m0s") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !Is(err, ErrTimeout) {
		t.Error("should match ErrTimeout sentinel")
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestIsExternal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"git", NewGitError("git push", "", nil), true},
		{"forge", NewForgeError("gh pr view", "", nil), true},
		{"planner", NewPlannerError(PlannerParse, "x", nil), true},
		{"wrapped git", Wrap(NewGitError("git push", "", nil), "assign failed"), true},
		{"not found", NewNotFoundError("task", "x"), false},
		{"plain", New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExternal(tt.err); got != tt.want {
				t.Errorf("IsExternal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDomain(t *testing.T) {
	if !IsDomain(NewCycleError("a")) {
		t.Error("CycleError should be domain")
	}
	if !IsDomain(NewInvalidTransitionError("slot", "available", "completed")) {
		t.Error("InvalidTransitionError should be domain")
	}
	if IsDomain(NewGitError("git push", "", nil)) {
		t.Error("GitError should not be domain")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"not found", NewNotFoundError("plan", "x"), ExitUser},
		{"ambiguous", NewAmbiguousError("plan", "01", nil), ExitUser},
		{"invalid transition", NewInvalidTransitionError("task", "a", "b"), ExitUser},
		{"conflict", NewStoreError(StoreConflict, "insert", nil), ExitUser},
		{"git", NewGitError("git push", "", nil), ExitExternal},
		{"forge", NewForgeError("gh pr create", "", nil), ExitExternal},
		{"planner", NewPlannerError(PlannerCall, "x", nil), ExitExternal},
		{"timeout", NewTimeoutError("gh pr view", time.Minute), ExitExternal},
		{"backend", NewStoreError(StoreBackend, "open", nil), ExitInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should be nil")
	}

	base := NewNotFoundError("task", "abc")
	wrapped := Wrapf(base, "loading plan %s", "xyz")
	if !Is(wrapped, ErrNotFound) {
		t.Error("wrapping should preserve sentinel matching")
	}
	if !strings.Contains(wrapped.Error(), "loading plan xyz") {
		t.Errorf("Error() = %q", wrapped.Error())
	}
}
