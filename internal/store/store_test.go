package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "taskctl.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProject(t *testing.T, s *Store) *types.Project {
	t.Helper()

	p := &types.Project{
		Name:          "demo",
		RepoPath:      filepath.Join(t.TempDir(), "repo"),
		MainBranch:    "main",
		MaxConcurrent: 3,
	}
	if err := s.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("CreateProject() error: %v", err)
	}
	return p
}

func seedPlan(t *testing.T, s *Store, projectID string) *types.Plan {
	t.Helper()

	p := &types.Plan{
		ProjectID:    projectID,
		Title:        "add caching layer",
		SourceBranch: "main",
	}
	if err := s.CreatePlan(context.Background(), p); err != nil {
		t.Fatalf("CreatePlan() error: %v", err)
	}
	return p
}

func TestOpenAppliesSchema(t *testing.T) {
	s := setupTestStore(t)

	// A fresh database accepts writes against every table.
	if _, err := s.ListProjects(context.Background()); err != nil {
		t.Fatalf("ListProjects() on fresh database: %v", err)
	}
}

func TestOpenSecondProcessConflicts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskctl.db")
	ctx := context.Background()

	first, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer first.Close()

	if _, err := Open(ctx, path); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("second Open() = %v, want ErrConflict", err)
	}
}

func TestOpenReleasesLockOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskctl.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	again, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen after Close() error: %v", err)
	}
	again.Close()
}

func TestProjectRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	if p.ID == "" {
		t.Fatal("CreateProject should assign an id")
	}

	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject() error: %v", err)
	}
	if got.Name != p.Name || got.RepoPath != p.RepoPath || got.MaxConcurrent != 3 {
		t.Errorf("GetProject() = %+v, want %+v", got, p)
	}

	byPath, err := s.GetProjectByPath(ctx, p.RepoPath)
	if err != nil {
		t.Fatalf("GetProjectByPath() error: %v", err)
	}
	if byPath.ID != p.ID {
		t.Errorf("GetProjectByPath() id = %s, want %s", byPath.ID, p.ID)
	}
}

func TestProjectDuplicatePathConflicts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	dup := &types.Project{Name: "other", RepoPath: p.RepoPath}
	if err := s.CreateProject(ctx, dup); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("duplicate repo_path error = %v, want ErrConflict", err)
	}
}

func TestProjectNotFound(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.GetProject(context.Background(), "missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetProject(missing) = %v, want ErrNotFound", err)
	}
}

func TestFindPlanByPrefix(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s)

	a := &types.Plan{ID: "AAAA1111BBBB", ProjectID: project.ID, Title: "a", SourceBranch: "main"}
	b := &types.Plan{ID: "AAAA2222CCCC", ProjectID: project.ID, Title: "b", SourceBranch: "main"}
	for _, p := range []*types.Plan{a, b} {
		if err := s.CreatePlan(ctx, p); err != nil {
			t.Fatalf("CreatePlan() error: %v", err)
		}
	}

	// Unique prefix resolves, case-insensitively.
	got, err := s.FindPlan(ctx, "aaaa1111")
	if err != nil {
		t.Fatalf("FindPlan() error: %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("FindPlan() id = %s, want %s", got.ID, a.ID)
	}

	// Shared prefix is ambiguous.
	if _, err := s.FindPlan(ctx, "AAAA"); !errors.Is(err, errors.ErrAmbiguous) {
		t.Errorf("FindPlan(AAAA) = %v, want ErrAmbiguous", err)
	}

	// No match.
	if _, err := s.FindPlan(ctx, "ZZZZ"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("FindPlan(ZZZZ) = %v, want ErrNotFound", err)
	}
}

func TestFindPlanTreatsWildcardsLiterally(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s)

	plan := &types.Plan{ID: "AAAA1111BBBB", ProjectID: project.ID, Title: "a", SourceBranch: "main"}
	if err := s.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("CreatePlan() error: %v", err)
	}

	// LIKE metacharacters in a ref must not act as wildcards.
	for _, ref := range []string{"%", "_AAA", "AAAA%", `\`} {
		if _, err := s.FindPlan(ctx, ref); !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("FindPlan(%q) = %v, want ErrNotFound", ref, err)
		}
	}
}

func TestListPlansFilters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s)
	plan := seedPlan(t, s, project.ID)

	if err := s.ArchivePlan(ctx, plan.ID); err != nil {
		t.Fatalf("ArchivePlan() error: %v", err)
	}
	seedPlan(t, s, project.ID)

	all, err := s.ListPlans(ctx, project.ID, "")
	if err != nil {
		t.Fatalf("ListPlans() error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListPlans(all) = %d plans, want 2", len(all))
	}

	archived, err := s.ListPlans(ctx, project.ID, types.PlanArchived)
	if err != nil {
		t.Fatalf("ListPlans(archived) error: %v", err)
	}
	if len(archived) != 1 || archived[0].ID != plan.ID {
		t.Errorf("ListPlans(archived) = %+v, want only %s", archived, plan.ID)
	}
}

func TestPlanStatusLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s)
	plan := seedPlan(t, s, project.ID)

	// Illegal jump.
	if err := s.UpdatePlanStatus(ctx, plan.ID, types.PlanCompleted); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("draft -> completed = %v, want ErrInvalidTransition", err)
	}

	// Legal walk, including the planning -> draft restore.
	for _, to := range []types.PlanStatus{
		types.PlanPlanning, types.PlanDraft, types.PlanPlanning, types.PlanReady,
	} {
		if err := s.UpdatePlanStatus(ctx, plan.ID, to); err != nil {
			t.Fatalf("UpdatePlanStatus(%s) error: %v", to, err)
		}
	}

	got, err := s.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetPlan() error: %v", err)
	}
	if got.Status != types.PlanReady {
		t.Errorf("status = %s, want ready", got.Status)
	}
}

func TestCreateTasksAndEdges(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s)
	plan := seedPlan(t, s, project.ID)

	tasks := []*types.Task{
		{ID: "T0AAAAAA0001", PlanID: plan.ID, Title: "schema", Level: 0},
		{ID: "T0AAAAAA0002", PlanID: plan.ID, Title: "api", Level: 1},
		{ID: "T0AAAAAA0003", PlanID: plan.ID, Title: "docs", Level: 1},
	}
	edges := []*types.TaskDependency{
		{TaskID: "T0AAAAAA0002", DependsOnID: "T0AAAAAA0001"},
		{TaskID: "T0AAAAAA0003", DependsOnID: "T0AAAAAA0001"},
	}
	if err := s.CreateTasks(ctx, tasks, edges); err != nil {
		t.Fatalf("CreateTasks() error: %v", err)
	}

	// Level 0 inserted ready, deeper levels pending.
	got, err := s.ListTasks(ctx, plan.ID, "")
	if err != nil {
		t.Fatalf("ListTasks() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListTasks() = %d tasks, want 3", len(got))
	}
	if got[0].Status != types.TaskReady {
		t.Errorf("level-0 task status = %s, want ready", got[0].Status)
	}
	if got[1].Status != types.TaskPending || got[2].Status != types.TaskPending {
		t.Errorf("level-1 statuses = %s, %s, want pending", got[1].Status, got[2].Status)
	}

	deps, err := s.Dependencies(ctx, "T0AAAAAA0002")
	if err != nil {
		t.Fatalf("Dependencies() error: %v", err)
	}
	if len(deps) != 1 || deps[0].ID != "T0AAAAAA0001" {
		t.Errorf("Dependencies() = %+v, want [T0AAAAAA0001]", deps)
	}

	dependents, err := s.Dependents(ctx, "T0AAAAAA0001")
	if err != nil {
		t.Fatalf("Dependents() error: %v", err)
	}
	if len(dependents) != 2 {
		t.Errorf("Dependents() = %d tasks, want 2", len(dependents))
	}

	allEdges, err := s.PlanEdges(ctx, plan.ID)
	if err != nil {
		t.Fatalf("PlanEdges() error: %v", err)
	}
	if len(allEdges) != 2 {
		t.Errorf("PlanEdges() = %d edges, want 2", len(allEdges))
	}
}

func TestListTasksAtLevel(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s)
	plan := seedPlan(t, s, project.ID)

	tasks := []*types.Task{
		{ID: "TLAAAAAA0001", PlanID: plan.ID, Title: "schema", Level: 0},
		{ID: "TLAAAAAA0002", PlanID: plan.ID, Title: "api", Level: 1},
		{ID: "TLAAAAAA0003", PlanID: plan.ID, Title: "docs", Level: 1},
	}
	edges := []*types.TaskDependency{
		{TaskID: "TLAAAAAA0002", DependsOnID: "TLAAAAAA0001"},
		{TaskID: "TLAAAAAA0003", DependsOnID: "TLAAAAAA0001"},
	}
	if err := s.CreateTasks(ctx, tasks, edges); err != nil {
		t.Fatalf("CreateTasks() error: %v", err)
	}

	level1, err := s.ListTasksAtLevel(ctx, plan.ID, 1, "")
	if err != nil {
		t.Fatalf("ListTasksAtLevel() error: %v", err)
	}
	if len(level1) != 2 {
		t.Fatalf("ListTasksAtLevel(1) = %d tasks, want 2", len(level1))
	}
	for _, task := range level1 {
		if task.Level != 1 {
			t.Errorf("task %s level = %d, want 1", task.ID, task.Level)
		}
	}

	// Level and status filters combine.
	pending, err := s.ListTasksAtLevel(ctx, plan.ID, 1, types.TaskPending)
	if err != nil {
		t.Fatalf("ListTasksAtLevel(1, pending) error: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("ListTasksAtLevel(1, pending) = %d tasks, want 2", len(pending))
	}
	ready, err := s.ListTasksAtLevel(ctx, plan.ID, 1, types.TaskReady)
	if err != nil {
		t.Fatalf("ListTasksAtLevel(1, ready) error: %v", err)
	}
	if len(ready) != 0 {
		t.Errorf("ListTasksAtLevel(1, ready) = %d tasks, want 0", len(ready))
	}
}

func TestCreateTasksRollsBackOnBadEdge(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s)
	plan := seedPlan(t, s, project.ID)

	tasks := []*types.Task{{ID: "T0BBBBBB0001", PlanID: plan.ID, Title: "only"}}
	edges := []*types.TaskDependency{{TaskID: "T0BBBBBB0001", DependsOnID: "missing"}}

	if err := s.CreateTasks(ctx, tasks, edges); !errors.Is(err, errors.ErrConflict) {
		t.Fatalf("CreateTasks() = %v, want ErrConflict", err)
	}

	// The task insert must not survive the failed edge.
	got, err := s.ListTasks(ctx, plan.ID, "")
	if err != nil {
		t.Fatalf("ListTasks() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListTasks() after rollback = %d tasks, want 0", len(got))
	}
}

func TestDeletePlanCascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s)
	plan := seedPlan(t, s, project.ID)

	tasks := []*types.Task{{ID: "T0CCCCCC0001", PlanID: plan.ID, Title: "t"}}
	if err := s.CreateTasks(ctx, tasks, nil); err != nil {
		t.Fatalf("CreateTasks() error: %v", err)
	}

	if err := s.DeletePlan(ctx, plan.ID); err != nil {
		t.Fatalf("DeletePlan() error: %v", err)
	}
	if _, err := s.GetTask(ctx, "T0CCCCCC0001"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("task should cascade with plan, got %v", err)
	}
}

func TestSlotRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s)

	sl := &types.Slot{ProjectID: project.ID, Name: "slot-1", Path: filepath.Join(os.TempDir(), "wt1")}
	if err := s.CreateSlot(ctx, sl); err != nil {
		t.Fatalf("CreateSlot() error: %v", err)
	}
	if sl.Status != types.SlotAvailable {
		t.Errorf("new slot status = %s, want available", sl.Status)
	}

	// Same name in the same project conflicts.
	dup := &types.Slot{ProjectID: project.ID, Name: "slot-1", Path: "/elsewhere"}
	if err := s.CreateSlot(ctx, dup); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("duplicate slot name = %v, want ErrConflict", err)
	}

	// Find by name, then by id prefix.
	byName, err := s.FindSlot(ctx, project.ID, "slot-1")
	if err != nil {
		t.Fatalf("FindSlot(name) error: %v", err)
	}
	if byName.ID != sl.ID {
		t.Errorf("FindSlot(name) id = %s, want %s", byName.ID, sl.ID)
	}

	byPrefix, err := s.FindSlot(ctx, project.ID, sl.ID[:8])
	if err != nil {
		t.Fatalf("FindSlot(prefix) error: %v", err)
	}
	if byPrefix.ID != sl.ID {
		t.Errorf("FindSlot(prefix) id = %s, want %s", byPrefix.ID, sl.ID)
	}

	if err := s.DeleteSlot(ctx, sl.ID); err != nil {
		t.Fatalf("DeleteSlot() error: %v", err)
	}
	if _, err := s.GetSlot(ctx, sl.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetSlot after delete = %v, want ErrNotFound", err)
	}
}

func TestTaskByBranchAndSession(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s)
	plan := seedPlan(t, s, project.ID)

	tasks := []*types.Task{{ID: "T0DDDDDD0001", PlanID: plan.ID, Title: "t"}}
	if err := s.CreateTasks(ctx, tasks, nil); err != nil {
		t.Fatalf("CreateTasks() error: %v", err)
	}

	// No owner yet: nil without error.
	got, err := s.TaskByBranch(ctx, "feature/none")
	if err != nil {
		t.Fatalf("TaskByBranch() error: %v", err)
	}
	if got != nil {
		t.Errorf("TaskByBranch() = %+v, want nil", got)
	}

	sl := &types.Slot{ProjectID: project.ID, Name: "slot-1", Path: "/tmp/wt1"}
	if err := s.CreateSlot(ctx, sl); err != nil {
		t.Fatalf("CreateSlot() error: %v", err)
	}
	if err := s.AssignTask(ctx, "T0DDDDDD0001", sl.ID, "feature/x/t-one"); err != nil {
		t.Fatalf("AssignTask() error: %v", err)
	}
	if err := s.StartTask(ctx, "T0DDDDDD0001", "session-9"); err != nil {
		t.Fatalf("StartTask() error: %v", err)
	}

	byBranch, err := s.TaskByBranch(ctx, "feature/x/t-one")
	if err != nil {
		t.Fatalf("TaskByBranch() error: %v", err)
	}
	if byBranch == nil || byBranch.ID != "T0DDDDDD0001" {
		t.Errorf("TaskByBranch() = %+v, want T0DDDDDD0001", byBranch)
	}

	bySession, err := s.TaskBySession(ctx, "session-9")
	if err != nil {
		t.Fatalf("TaskBySession() error: %v", err)
	}
	if bySession == nil || bySession.ID != "T0DDDDDD0001" {
		t.Errorf("TaskBySession() = %+v, want T0DDDDDD0001", bySession)
	}
}
