// Package scheduler decides which ready tasks run where. Planning is
// pure: NextBatch computes assignments from a snapshot without touching
// git or the store, so a dry run costs nothing. Applying an assignment
// creates the branch, points the slot's worktree at it, and writes the
// paired task/slot rows in one store transaction.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/git"
	"github.com/hotter6163/taskctl/internal/graph"
	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/store"
	"github.com/hotter6163/taskctl/internal/types"
)

// Scheduler coordinates task assignment for one project.
type Scheduler struct {
	store *store.Store
	git   *git.Client
	log   *slog.Logger
}

// New creates a scheduler.
func New(st *store.Store, gitClient *git.Client, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{store: st, git: gitClient, log: log}
}

// Assignment pairs a ready task with an available slot under a branch
// name. Produced by NextBatch, applied by Assign.
type Assignment struct {
	Task   *types.Task
	Slot   *types.Slot
	Branch string
}

// -----------------------------------------------------------------------------
// Batch Planning
// -----------------------------------------------------------------------------

// NextBatch computes the next set of assignments for a plan: ready
// tasks (level ascending, id ascending within a level) paired with
// available slots (name ascending), capped by the project's concurrency
// limit minus the tasks already occupying slots. Pure and idempotent:
// calling it twice without state changes yields the same batch.
func (s *Scheduler) NextBatch(ctx context.Context, planID string) ([]Assignment, error) {
	plan, err := s.store.FindPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, plan.ProjectID)
	if err != nil {
		return nil, err
	}

	tasks, err := s.store.ListTasks(ctx, plan.ID, "")
	if err != nil {
		return nil, err
	}
	edges, err := s.store.PlanEdges(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	g, err := graph.Build(tasks, edges)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]bool)
	active := 0
	for _, t := range tasks {
		if t.Status == types.TaskCompleted {
			completed[t.ID] = true
		}
		if t.Status.IsActive() {
			active++
		}
	}

	ready := g.ReadySet(completed)

	slots, err := s.store.ListSlots(ctx, project.ID, types.SlotAvailable)
	if err != nil {
		return nil, err
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Name < slots[j].Name })

	budget := project.MaxConcurrent - active
	if budget < 0 {
		budget = 0
	}
	n := min(budget, len(slots), len(ready))

	batch := make([]Assignment, 0, n)
	for i := 0; i < n; i++ {
		task := g.Task(ready[i])
		batch = append(batch, Assignment{
			Task:   task,
			Slot:   slots[i],
			Branch: BranchName(plan.ID, task.ID, task.Title),
		})
	}
	return batch, nil
}

// -----------------------------------------------------------------------------
// Applying Assignments
// -----------------------------------------------------------------------------

// Assign applies one assignment: the task branch is created from the
// plan's source branch (or adopted if it already exists unowned), the
// slot's worktree is checked out to it, and the task and slot rows move
// to assigned in a single transaction. A git failure before the store
// write leaves no state behind.
func (s *Scheduler) Assign(ctx context.Context, planID string, a Assignment) error {
	plan, err := s.store.FindPlan(ctx, planID)
	if err != nil {
		return err
	}

	if s.git.BranchExists(ctx, a.Branch) {
		// A leftover branch is only reusable when no other task owns it.
		owner, err := s.store.TaskByBranch(ctx, a.Branch)
		if err != nil {
			return err
		}
		if owner != nil && owner.ID != a.Task.ID {
			return errors.Wrapf(errors.ErrBranchOwned,
				"branch %s is owned by task %s", a.Branch, owner.ID)
		}
		s.log.Warn("reusing existing branch", "branch", a.Branch, "task", id.Short(a.Task.ID))
	} else {
		if err := s.git.CreateBranch(ctx, a.Branch, plan.SourceBranch); err != nil {
			return err
		}
	}

	if err := s.git.Checkout(ctx, a.Slot.Path, a.Branch); err != nil {
		return err
	}

	if err := s.store.AssignTask(ctx, a.Task.ID, a.Slot.ID, a.Branch); err != nil {
		return err
	}

	s.log.Info("task assigned",
		"task", id.Short(a.Task.ID),
		"slot", a.Slot.Name,
		"branch", a.Branch)
	return nil
}

// AssignBatch plans and applies the next batch, returning the
// assignments that were made. The batch is all-or-nothing: a failure
// releases the pairings already applied, so callers never observe a
// half-assigned batch. Branches created before the failure are left in
// place and adopted on the next attempt.
func (s *Scheduler) AssignBatch(ctx context.Context, planID string) ([]Assignment, error) {
	batch, err := s.NextBatch(ctx, planID)
	if err != nil {
		return nil, err
	}
	for i, a := range batch {
		if err := s.Assign(ctx, planID, a); err != nil {
			for _, applied := range batch[:i] {
				if relErr := s.store.ReleaseTask(ctx, applied.Task.ID); relErr != nil {
					s.log.Warn("batch unwind failed to release task",
						"task", id.Short(applied.Task.ID), "error", relErr)
				}
			}
			return nil, err
		}
	}
	return batch, nil
}

// Start marks an assigned task as actively being worked on.
func (s *Scheduler) Start(ctx context.Context, taskID, sessionID string) error {
	return s.store.StartTask(ctx, taskID, sessionID)
}

// Complete finishes a task and reports which tasks became ready.
func (s *Scheduler) Complete(ctx context.Context, taskID string, force bool) ([]*types.Task, error) {
	task, err := s.store.FindTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.store.CompleteTask(ctx, task.ID, force); err != nil {
		return nil, err
	}

	unblocked, err := s.store.Dependents(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	var ready []*types.Task
	for _, t := range unblocked {
		if t.Status == types.TaskReady {
			ready = append(ready, t)
		}
	}

	s.log.Info("task completed", "task", id.Short(task.ID), "unblocked", len(ready))
	return ready, nil
}

// -----------------------------------------------------------------------------
// Plan Inspection
// -----------------------------------------------------------------------------

// HasWorkAvailable reports whether any task of the plan could still be
// scheduled now or later.
func (s *Scheduler) HasWorkAvailable(ctx context.Context, planID string) (bool, error) {
	tasks, err := s.store.ListTasks(ctx, planID, "")
	if err != nil {
		return false, err
	}
	for _, t := range tasks {
		if t.Status != types.TaskCompleted && t.Status != types.TaskBlocked {
			return true, nil
		}
	}
	return false, nil
}

// IsComplete reports whether every task of the plan is completed.
func (s *Scheduler) IsComplete(ctx context.Context, planID string) (bool, error) {
	tasks, err := s.store.ListTasks(ctx, planID, "")
	if err != nil {
		return false, err
	}
	for _, t := range tasks {
		if t.Status != types.TaskCompleted {
			return false, nil
		}
	}
	return len(tasks) > 0, nil
}

// Progress summarizes the plan's task counts.
func (s *Scheduler) Progress(ctx context.Context, planID string) (types.Progress, error) {
	tasks, err := s.store.ListTasks(ctx, planID, "")
	if err != nil {
		return types.Progress{}, err
	}
	return types.ComputeProgress(tasks), nil
}

// -----------------------------------------------------------------------------
// Branch Naming
// -----------------------------------------------------------------------------

// BranchName derives the canonical task branch:
// feature/<plan-short>/<task-short>-<slug>.
func BranchName(planID, taskID, title string) string {
	return "feature/" + id.Short(planID) + "/" + id.Short(taskID) + "-" + Slug(title)
}

// Slug normalises a title for use in a branch name: lowercased, runs of
// non-alphanumerics collapsed to single hyphens, trimmed, at most 30
// characters.
func Slug(title string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	s := strings.Trim(b.String(), "-")
	if len(s) > 30 {
		s = strings.Trim(s[:30], "-")
	}
	if s == "" {
		s = "task"
	}
	return s
}
