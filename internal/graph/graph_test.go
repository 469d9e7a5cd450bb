package graph

import (
	"testing"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/types"
)

func mkTasks(ids ...string) []*types.Task {
	out := make([]*types.Task, len(ids))
	for i, id := range ids {
		out[i] = &types.Task{ID: id, PlanID: "plan-1", Title: id, Status: types.TaskPending}
	}
	return out
}

// edge reads "from depends on to".
func edge(from, to string) *types.TaskDependency {
	return &types.TaskDependency{TaskID: from, DependsOnID: to}
}

func mustBuild(t *testing.T, tasks []*types.Task, edges []*types.TaskDependency) *Graph {
	t.Helper()
	g, err := Build(tasks, edges)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return g
}

func TestBuildEmpty(t *testing.T) {
	g := mustBuild(t, nil, nil)
	if g.Size() != 0 {
		t.Errorf("Size() = %d, want 0", g.Size())
	}
	if g.MaxLevel() != 0 {
		t.Errorf("MaxLevel() = %d, want 0", g.MaxLevel())
	}
	if path := g.CriticalPath(); path != nil {
		t.Errorf("CriticalPath() = %v, want nil", path)
	}
	if ready := g.ReadySet(nil); len(ready) != 0 {
		t.Errorf("ReadySet() = %v, want empty", ready)
	}
}

func TestBuildSingleTask(t *testing.T) {
	g := mustBuild(t, mkTasks("a"), nil)
	if got := g.Level("a"); got != 0 {
		t.Errorf("Level(a) = %d, want 0", got)
	}
	if path := g.CriticalPath(); len(path) != 1 || path[0] != "a" {
		t.Errorf("CriticalPath() = %v, want [a]", path)
	}
}

func TestBuildLinearChain(t *testing.T) {
	// a <- b <- c <- d
	g := mustBuild(t, mkTasks("a", "b", "c", "d"), []*types.TaskDependency{
		edge("b", "a"), edge("c", "b"), edge("d", "c"),
	})

	for i, id := range []string{"a", "b", "c", "d"} {
		if got := g.Level(id); got != i {
			t.Errorf("Level(%s) = %d, want %d", id, got, i)
		}
	}
	if g.MaxLevel() != 3 {
		t.Errorf("MaxLevel() = %d, want 3", g.MaxLevel())
	}

	path := g.CriticalPath()
	want := []string{"a", "b", "c", "d"}
	if len(path) != len(want) {
		t.Fatalf("CriticalPath() = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("CriticalPath() = %v, want %v", path, want)
		}
	}
}

func TestBuildDiamond(t *testing.T) {
	// b and c depend on a; d depends on b and c.
	g := mustBuild(t, mkTasks("a", "b", "c", "d"), []*types.TaskDependency{
		edge("b", "a"), edge("c", "a"), edge("d", "b"), edge("d", "c"),
	})

	wantLevels := map[string]int{"a": 0, "b": 1, "c": 1, "d": 2}
	for id, want := range wantLevels {
		if got := g.Level(id); got != want {
			t.Errorf("Level(%s) = %d, want %d", id, got, want)
		}
	}

	if got := g.AtLevel(1); len(got) != 2 {
		t.Errorf("AtLevel(1) = %v, want two tasks", got)
	}

	// After a completes, b and c become ready; d still waits.
	ready := g.ReadySet(map[string]bool{"a": true})
	if len(ready) != 2 || ready[0] != "b" || ready[1] != "c" {
		t.Errorf("ReadySet() = %v, want [b c]", ready)
	}

	// ReadySet is pure: a second call returns the same answer.
	again := g.ReadySet(map[string]bool{"a": true})
	if len(again) != len(ready) {
		t.Errorf("ReadySet() not idempotent: %v then %v", ready, again)
	}
}

func TestReadySetExcludesNonPending(t *testing.T) {
	tasks := mkTasks("a", "b")
	tasks[0].Status = types.TaskInProgress
	g := mustBuild(t, tasks, nil)

	ready := g.ReadySet(nil)
	if len(ready) != 1 || ready[0] != "b" {
		t.Errorf("ReadySet() = %v, want [b]", ready)
	}
}

func TestReadySetOrder(t *testing.T) {
	// Two roots plus one level-1 task whose dependency completed: the
	// level-0 tasks come first, sorted by id.
	g := mustBuild(t, mkTasks("z", "m", "a"), []*types.TaskDependency{
		edge("m", "z"),
	})

	ready := g.ReadySet(map[string]bool{"z": true})
	want := []string{"a", "z", "m"}
	if len(ready) != len(want) {
		t.Fatalf("ReadySet() = %v, want %v", ready, want)
	}
	for i := range want {
		if ready[i] != want[i] {
			t.Fatalf("ReadySet() = %v, want %v", ready, want)
		}
	}
}

func TestBuildCycle(t *testing.T) {
	_, err := Build(mkTasks("a", "b", "c"), []*types.TaskDependency{
		edge("a", "b"), edge("b", "c"), edge("c", "a"),
	})
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errors.Is(err, errors.ErrCycle) {
		t.Errorf("error should match ErrCycle, got %v", err)
	}

	// Deterministic: the error names the first task the traversal saw.
	var cycleErr *errors.CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("error should be *CycleError, got %T", err)
	}
	if cycleErr.Involving != "a" {
		t.Errorf("Involving = %q, want %q", cycleErr.Involving, "a")
	}
}

func TestValidateEdges(t *testing.T) {
	tasks := mkTasks("a", "b")

	tests := []struct {
		name     string
		edges    []*types.TaskDependency
		wantErr  bool
		sentinel error
	}{
		{"valid", []*types.TaskDependency{edge("b", "a")}, false, nil},
		{"unknown from", []*types.TaskDependency{edge("x", "a")}, true, errors.ErrNotFound},
		{"unknown to", []*types.TaskDependency{edge("a", "x")}, true, errors.ErrNotFound},
		{"self edge", []*types.TaskDependency{edge("a", "a")}, true, errors.ErrCycle},
		{"duplicate", []*types.TaskDependency{edge("b", "a"), edge("b", "a")}, true, errors.ErrAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEdges(tasks, tt.edges)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateEdges() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Errorf("error %v should match sentinel %v", err, tt.sentinel)
			}
		})
	}
}

func TestBuildRejectsDuplicateTask(t *testing.T) {
	tasks := append(mkTasks("a"), mkTasks("a")...)
	if _, err := Build(tasks, nil); !errors.Is(err, errors.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCriticalPathTieBreak(t *testing.T) {
	// Two chains of equal length; the first-seen max-level task starts
	// the walk, and the first-seen highest-level dependency wins ties.
	g := mustBuild(t, mkTasks("a", "b", "c", "d"), []*types.TaskDependency{
		edge("c", "a"), edge("c", "b"), edge("d", "c"),
	})

	path := g.CriticalPath()
	want := []string{"a", "c", "d"}
	if len(path) != len(want) {
		t.Fatalf("CriticalPath() = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("CriticalPath() = %v, want %v", path, want)
		}
	}
}

func TestUnblockedBy(t *testing.T) {
	g := mustBuild(t, mkTasks("a", "b", "c", "d"), []*types.TaskDependency{
		edge("b", "a"), edge("c", "a"), edge("d", "b"), edge("d", "c"),
	})

	got := g.UnblockedBy("a", map[string]bool{"a": true})
	if len(got) != 2 {
		t.Fatalf("UnblockedBy(a) = %v, want two tasks", got)
	}

	// d needs both b and c; completing only b unblocks nothing.
	if got := g.UnblockedBy("b", map[string]bool{"a": true, "b": true}); len(got) != 0 {
		t.Errorf("UnblockedBy(b) = %v, want empty", got)
	}
}

func TestDependenciesAndDependents(t *testing.T) {
	g := mustBuild(t, mkTasks("a", "b", "c"), []*types.TaskDependency{
		edge("b", "a"), edge("c", "a"),
	})

	if deps := g.Dependencies("b"); len(deps) != 1 || deps[0] != "a" {
		t.Errorf("Dependencies(b) = %v, want [a]", deps)
	}
	if deps := g.Dependents("a"); len(deps) != 2 {
		t.Errorf("Dependents(a) = %v, want two tasks", deps)
	}
	if deps := g.Dependencies("a"); len(deps) != 0 {
		t.Errorf("Dependencies(a) = %v, want empty", deps)
	}
}
