package store

import (
	"context"
	"testing"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/types"
)

// seedPipeline creates a project, a ready plan, a two-level task chain
// (t1 <- t2), and one slot.
func seedPipeline(t *testing.T, s *Store) (*types.Project, *types.Plan, *types.Slot) {
	t.Helper()
	ctx := context.Background()

	project := seedProject(t, s)
	plan := seedPlan(t, s, project.ID)
	for _, to := range []types.PlanStatus{types.PlanPlanning, types.PlanReady} {
		if err := s.UpdatePlanStatus(ctx, plan.ID, to); err != nil {
			t.Fatalf("UpdatePlanStatus(%s) error: %v", to, err)
		}
	}

	tasks := []*types.Task{
		{ID: "TXAAAAAA0001", PlanID: plan.ID, Title: "first", Level: 0},
		{ID: "TXAAAAAA0002", PlanID: plan.ID, Title: "second", Level: 1},
	}
	edges := []*types.TaskDependency{
		{TaskID: "TXAAAAAA0002", DependsOnID: "TXAAAAAA0001"},
	}
	if err := s.CreateTasks(ctx, tasks, edges); err != nil {
		t.Fatalf("CreateTasks() error: %v", err)
	}

	slot := &types.Slot{ProjectID: project.ID, Name: "slot-1", Path: "/tmp/wt1"}
	if err := s.CreateSlot(ctx, slot); err != nil {
		t.Fatalf("CreateSlot() error: %v", err)
	}
	return project, plan, slot
}

func TestAssignTaskPairsRows(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, _, slot := seedPipeline(t, s)

	if err := s.AssignTask(ctx, "TXAAAAAA0001", slot.ID, "feature/p/first"); err != nil {
		t.Fatalf("AssignTask() error: %v", err)
	}

	task, err := s.GetTask(ctx, "TXAAAAAA0001")
	if err != nil {
		t.Fatalf("GetTask() error: %v", err)
	}
	if task.Status != types.TaskAssigned || task.SlotID != slot.ID || task.BranchName != "feature/p/first" {
		t.Errorf("task after assign = %+v", task)
	}

	got, err := s.GetSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("GetSlot() error: %v", err)
	}
	if got.Status != types.SlotAssigned || got.TaskID != task.ID || got.Branch != task.BranchName {
		t.Errorf("slot after assign = %+v", got)
	}
}

func TestAssignTaskRejectsUnmetDeps(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, _, slot := seedPipeline(t, s)

	// TXAAAAAA0002 depends on the unfinished TXAAAAAA0001.
	err := s.AssignTask(ctx, "TXAAAAAA0002", slot.ID, "feature/p/second")
	if !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("AssignTask(dependent) = %v, want ErrInvalidTransition", err)
	}
}

func TestAssignTaskRejectsOccupiedSlot(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	project, plan, slot := seedPipeline(t, s)
	_ = project

	extra := []*types.Task{{ID: "TXAAAAAA0003", PlanID: plan.ID, Title: "third", Level: 0}}
	if err := s.CreateTasks(ctx, extra, nil); err != nil {
		t.Fatalf("CreateTasks() error: %v", err)
	}

	if err := s.AssignTask(ctx, "TXAAAAAA0001", slot.ID, "feature/p/first"); err != nil {
		t.Fatalf("AssignTask() error: %v", err)
	}
	err := s.AssignTask(ctx, "TXAAAAAA0003", slot.ID, "feature/p/third")
	if !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("AssignTask(occupied slot) = %v, want ErrInvalidTransition", err)
	}
}

func TestStartTaskMovesPlanInProgress(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, plan, slot := seedPipeline(t, s)

	if err := s.AssignTask(ctx, "TXAAAAAA0001", slot.ID, "feature/p/first"); err != nil {
		t.Fatalf("AssignTask() error: %v", err)
	}
	if err := s.StartTask(ctx, "TXAAAAAA0001", ""); err != nil {
		t.Fatalf("StartTask() error: %v", err)
	}

	task, _ := s.GetTask(ctx, "TXAAAAAA0001")
	if task.Status != types.TaskInProgress {
		t.Errorf("task status = %s, want in_progress", task.Status)
	}
	got, _ := s.GetSlot(ctx, slot.ID)
	if got.Status != types.SlotInProgress {
		t.Errorf("slot status = %s, want in_progress", got.Status)
	}
	p, _ := s.GetPlan(ctx, plan.ID)
	if p.Status != types.PlanInProgress {
		t.Errorf("plan status = %s, want in_progress", p.Status)
	}
}

func TestRecordPRMovesTaskAndSlot(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, _, slot := seedPipeline(t, s)

	if err := s.AssignTask(ctx, "TXAAAAAA0001", slot.ID, "feature/p/first"); err != nil {
		t.Fatalf("AssignTask() error: %v", err)
	}
	if err := s.StartTask(ctx, "TXAAAAAA0001", ""); err != nil {
		t.Fatalf("StartTask() error: %v", err)
	}

	pr := &types.PullRequest{
		TaskID:     "TXAAAAAA0001",
		Number:     7,
		URL:        "https://example.com/pr/7",
		Status:     types.PROpen,
		BaseBranch: "main",
		HeadBranch: "feature/p/first",
	}
	if err := s.RecordPR(ctx, pr); err != nil {
		t.Fatalf("RecordPR() error: %v", err)
	}

	task, _ := s.GetTask(ctx, "TXAAAAAA0001")
	if task.Status != types.TaskPRCreated {
		t.Errorf("task status = %s, want pr_created", task.Status)
	}
	got, _ := s.GetSlot(ctx, slot.ID)
	if got.Status != types.SlotPRPending {
		t.Errorf("slot status = %s, want pr_pending", got.Status)
	}

	// A second PR for the same task is a conflict.
	dup := &types.PullRequest{TaskID: "TXAAAAAA0001", Number: 8, Status: types.PROpen,
		BaseBranch: "main", HeadBranch: "feature/p/first"}
	if err := s.RecordPR(ctx, dup); !errors.Is(err, errors.ErrConflict) {
		t.Errorf("second RecordPR() = %v, want ErrConflict", err)
	}
}

// runToMerged drives a task through assign, start, PR, and merge.
func runToMerged(t *testing.T, s *Store, taskID, slotID, branch string) *types.PullRequest {
	t.Helper()
	ctx := context.Background()

	if err := s.AssignTask(ctx, taskID, slotID, branch); err != nil {
		t.Fatalf("AssignTask(%s) error: %v", taskID, err)
	}
	if err := s.StartTask(ctx, taskID, ""); err != nil {
		t.Fatalf("StartTask(%s) error: %v", taskID, err)
	}
	pr := &types.PullRequest{TaskID: taskID, Number: 1, Status: types.PROpen,
		BaseBranch: "main", HeadBranch: branch}
	if err := s.RecordPR(ctx, pr); err != nil {
		t.Fatalf("RecordPR(%s) error: %v", taskID, err)
	}
	if err := s.SyncPR(ctx, pr.ID, types.PRMerged); err != nil {
		t.Fatalf("SyncPR(%s, merged) error: %v", taskID, err)
	}
	return pr
}

func TestCompleteTaskReleasesSlotAndPromotesDependents(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, plan, slot := seedPipeline(t, s)

	runToMerged(t, s, "TXAAAAAA0001", slot.ID, "feature/p/first")

	if err := s.CompleteTask(ctx, "TXAAAAAA0001", false); err != nil {
		t.Fatalf("CompleteTask() error: %v", err)
	}

	task, _ := s.GetTask(ctx, "TXAAAAAA0001")
	if task.Status != types.TaskCompleted || task.BranchName != "" || task.SlotID != "" {
		t.Errorf("completed task = %+v, want cleared branch and slot", task)
	}

	got, _ := s.GetSlot(ctx, slot.ID)
	if got.Status != types.SlotAvailable || got.TaskID != "" || got.Branch != "" {
		t.Errorf("slot after completion = %+v, want available and cleared", got)
	}

	// The dependent was promoted to ready.
	dep, _ := s.GetTask(ctx, "TXAAAAAA0002")
	if dep.Status != types.TaskReady {
		t.Errorf("dependent status = %s, want ready", dep.Status)
	}

	// Finish the second task: the plan completes.
	runToMerged(t, s, "TXAAAAAA0002", slot.ID, "feature/p/second")
	if err := s.CompleteTask(ctx, "TXAAAAAA0002", false); err != nil {
		t.Fatalf("CompleteTask(second) error: %v", err)
	}
	p, _ := s.GetPlan(ctx, plan.ID)
	if p.Status != types.PlanCompleted {
		t.Errorf("plan status = %s, want completed", p.Status)
	}
}

func TestCompleteTaskRequiresMergedPR(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, _, slot := seedPipeline(t, s)

	if err := s.AssignTask(ctx, "TXAAAAAA0001", slot.ID, "feature/p/first"); err != nil {
		t.Fatalf("AssignTask() error: %v", err)
	}
	if err := s.StartTask(ctx, "TXAAAAAA0001", ""); err != nil {
		t.Fatalf("StartTask() error: %v", err)
	}

	err := s.CompleteTask(ctx, "TXAAAAAA0001", false)
	if !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("CompleteTask(no PR) = %v, want ErrInvalidTransition", err)
	}

	// Force bypasses the merged-PR requirement and still frees the slot.
	if err := s.CompleteTask(ctx, "TXAAAAAA0001", true); err != nil {
		t.Fatalf("CompleteTask(force) error: %v", err)
	}
	got, _ := s.GetSlot(ctx, slot.ID)
	if got.Status != types.SlotAvailable {
		t.Errorf("slot status after force = %s, want available", got.Status)
	}
}

func TestReleaseTaskRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, _, slot := seedPipeline(t, s)

	if err := s.AssignTask(ctx, "TXAAAAAA0001", slot.ID, "feature/p/first"); err != nil {
		t.Fatalf("AssignTask() error: %v", err)
	}
	if err := s.ReleaseTask(ctx, "TXAAAAAA0001"); err != nil {
		t.Fatalf("ReleaseTask() error: %v", err)
	}

	task, _ := s.GetTask(ctx, "TXAAAAAA0001")
	if task.Status != types.TaskReady || task.BranchName != "" || task.SlotID != "" {
		t.Errorf("released task = %+v, want ready and cleared", task)
	}
	got, _ := s.GetSlot(ctx, slot.ID)
	if got.Status != types.SlotAvailable || got.TaskID != "" {
		t.Errorf("slot after release = %+v, want available", got)
	}
}

func TestSyncPRDrivesReview(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, _, slot := seedPipeline(t, s)

	if err := s.AssignTask(ctx, "TXAAAAAA0001", slot.ID, "feature/p/first"); err != nil {
		t.Fatalf("AssignTask() error: %v", err)
	}
	if err := s.StartTask(ctx, "TXAAAAAA0001", ""); err != nil {
		t.Fatalf("StartTask() error: %v", err)
	}
	pr := &types.PullRequest{TaskID: "TXAAAAAA0001", Number: 1, Status: types.PROpen,
		BaseBranch: "main", HeadBranch: "feature/p/first"}
	if err := s.RecordPR(ctx, pr); err != nil {
		t.Fatalf("RecordPR() error: %v", err)
	}

	// Changes requested: the task follows into in_review.
	if err := s.SyncPR(ctx, pr.ID, types.PRInReview); err != nil {
		t.Fatalf("SyncPR(in_review) error: %v", err)
	}
	task, _ := s.GetTask(ctx, "TXAAAAAA0001")
	if task.Status != types.TaskInReview {
		t.Errorf("task status = %s, want in_review", task.Status)
	}

	// Re-observing the same state is a no-op.
	if err := s.SyncPR(ctx, pr.ID, types.PRInReview); err != nil {
		t.Fatalf("SyncPR(same) error: %v", err)
	}

	// Terminal PR states reject further observations.
	if err := s.SyncPR(ctx, pr.ID, types.PRMerged); err != nil {
		t.Fatalf("SyncPR(merged) error: %v", err)
	}
	if err := s.SyncPR(ctx, pr.ID, types.PROpen); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("SyncPR(reopen merged) = %v, want ErrInvalidTransition", err)
	}
}

func TestUpdateTaskStatusGuards(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	seedPipeline(t, s)

	// pending -> ready is refused while the dependency is unfinished.
	err := s.UpdateTaskStatus(ctx, "TXAAAAAA0002", types.TaskReady, false)
	if !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("UpdateTaskStatus(ready, unmet deps) = %v, want ErrInvalidTransition", err)
	}

	// pending -> blocked is always available.
	if err := s.UpdateTaskStatus(ctx, "TXAAAAAA0002", types.TaskBlocked, false); err != nil {
		t.Fatalf("UpdateTaskStatus(blocked) error: %v", err)
	}
	task, _ := s.GetTask(ctx, "TXAAAAAA0002")
	if task.Status != types.TaskBlocked {
		t.Errorf("task status = %s, want blocked", task.Status)
	}
}
