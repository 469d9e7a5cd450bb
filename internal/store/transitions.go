package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/state"
	"github.com/hotter6163/taskctl/internal/types"
)

// This file holds the multi-row transitions: every operation that moves
// a task and its slot (and sometimes its plan or PR) changes all rows in
// one transaction, validating each edge and the assignment symmetry
// before commit. A failure anywhere rolls the whole change back.

// AssignTask binds a ready task to an available slot under the given
// branch name: task ready -> assigned, slot available -> assigned.
func (s *Store) AssignTask(ctx context.Context, taskID, slotID, branch string) error {
	now := s.now()
	return s.withTx(ctx, "assign task", func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		sl, err := getSlot(ctx, tx, slotID)
		if err != nil {
			return err
		}
		// Same-status slot writes are idempotent in the lifecycle table,
		// so occupancy is checked here.
		if sl.Status != types.SlotAvailable {
			return errors.NewInvalidTransitionError("slot", string(sl.Status), string(types.SlotAssigned)).
				WithReason("slot is not available")
		}

		nextTask := *t
		nextTask.Status = types.TaskAssigned
		nextTask.BranchName = branch
		nextTask.SlotID = slotID
		nextTask.UpdatedAt = now

		nextSlot := *sl
		nextSlot.Status = types.SlotAssigned
		nextSlot.TaskID = taskID
		nextSlot.Branch = branch
		nextSlot.UpdatedAt = now

		done, err := depsCompleted(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if err := state.ValidateTaskChange(t.Status, state.TaskGuard{Next: &nextTask, DepsCompleted: done}); err != nil {
			return err
		}
		if err := state.ValidateSlotChange(sl.Status, &nextSlot); err != nil {
			return err
		}
		if err := state.ValidateAssignmentSymmetry(&nextTask, &nextSlot); err != nil {
			return err
		}

		if err := writeTask(ctx, tx, &nextTask); err != nil {
			return err
		}
		return writeSlot(ctx, tx, &nextSlot)
	})
}

// StartTask moves an assigned task and its slot to in_progress, and the
// owning plan to in_progress on the first start. An optional session id
// is recorded on the task.
func (s *Store) StartTask(ctx context.Context, taskID, sessionID string) error {
	now := s.now()
	return s.withTx(ctx, "start task", func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, taskID)
		if err != nil {
			return err
		}

		nextTask := *t
		nextTask.Status = types.TaskInProgress
		if sessionID != "" {
			nextTask.SessionID = sessionID
		}
		nextTask.UpdatedAt = now

		if err := state.ValidateTaskChange(t.Status, state.TaskGuard{Next: &nextTask}); err != nil {
			return err
		}
		if err := writeTask(ctx, tx, &nextTask); err != nil {
			return err
		}

		if t.SlotID != "" {
			if err := s.moveSlot(ctx, tx, t.SlotID, types.SlotInProgress, now); err != nil {
				return err
			}
		}

		p, err := getPlan(ctx, tx, t.PlanID)
		if err != nil {
			return err
		}
		if p.Status == types.PlanReady {
			if err := updatePlanStatus(ctx, tx, now, p.ID, types.PlanInProgress); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordPR stores a freshly created pull request and moves the task to
// pr_created and its slot to pr_pending, all in one transaction.
func (s *Store) RecordPR(ctx context.Context, pr *types.PullRequest) error {
	now := s.now()
	pr.CreatedAt = now
	pr.UpdatedAt = now
	return s.withTx(ctx, "record pull request", func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, pr.TaskID)
		if err != nil {
			return err
		}

		if err := insertPR(ctx, tx, pr); err != nil {
			return err
		}

		nextTask := *t
		nextTask.Status = types.TaskPRCreated
		nextTask.UpdatedAt = now

		if err := state.ValidateTaskChange(t.Status, state.TaskGuard{Next: &nextTask, PR: pr}); err != nil {
			return err
		}
		if err := writeTask(ctx, tx, &nextTask); err != nil {
			return err
		}

		if t.SlotID != "" {
			return s.moveSlot(ctx, tx, t.SlotID, types.SlotPRPending, now)
		}
		return nil
	})
}

// CompleteTask finishes a task: the task moves to completed and drops
// its branch, slot, and session; the slot passes through completed and
// is released back to available; tasks whose dependencies just all
// completed are promoted from pending to ready; the plan moves to
// completed when no unfinished task remains. Force bypasses the
// merged-PR requirement.
func (s *Store) CompleteTask(ctx context.Context, taskID string, force bool) error {
	now := s.now()
	return s.withTx(ctx, "complete task", func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, taskID)
		if err != nil {
			return err
		}

		pr, err := getPRByTask(ctx, tx, taskID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}

		nextTask := *t
		nextTask.Status = types.TaskCompleted
		nextTask.BranchName = ""
		nextTask.SlotID = ""
		nextTask.SessionID = ""
		nextTask.UpdatedAt = now

		if err := state.ValidateTaskChange(t.Status, state.TaskGuard{Next: &nextTask, PR: pr, Force: force}); err != nil {
			return err
		}
		if err := writeTask(ctx, tx, &nextTask); err != nil {
			return err
		}

		// The slot passes through completed and returns to available in
		// the same transaction, so observers never see a stale binding.
		// A force-completed task may leave its slot before pr_pending, in
		// which case the slot is released directly.
		if t.SlotID != "" {
			sl, err := getSlot(ctx, tx, t.SlotID)
			if err != nil {
				return err
			}
			if sl.Status == types.SlotPRPending {
				if err := s.moveSlot(ctx, tx, t.SlotID, types.SlotCompleted, now); err != nil {
					return err
				}
			}
			if err := s.moveSlot(ctx, tx, t.SlotID, types.SlotAvailable, now); err != nil {
				return err
			}
		}

		if err := promoteReady(ctx, tx, taskID, now); err != nil {
			return err
		}
		return refreshPlanStatus(ctx, tx, t.PlanID, now)
	})
}

// ReleaseTask rolls an assigned or in_progress task back to ready and
// frees its slot, typically after an interrupted run.
func (s *Store) ReleaseTask(ctx context.Context, taskID string) error {
	now := s.now()
	return s.withTx(ctx, "release task", func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, taskID)
		if err != nil {
			return err
		}

		nextTask := *t
		nextTask.Status = types.TaskReady
		nextTask.BranchName = ""
		nextTask.SlotID = ""
		nextTask.SessionID = ""
		nextTask.UpdatedAt = now

		done, err := depsCompleted(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if err := state.ValidateTaskChange(t.Status, state.TaskGuard{Next: &nextTask, DepsCompleted: done}); err != nil {
			return err
		}
		if err := writeTask(ctx, tx, &nextTask); err != nil {
			return err
		}

		if t.SlotID != "" {
			return s.moveSlot(ctx, tx, t.SlotID, types.SlotAvailable, now)
		}
		return nil
	})
}

// SyncPR applies a forge-observed status to a stored pull request and
// derives the task-side transition: in_review when review starts, and
// nothing on merge (completion goes through CompleteTask so slots and
// dependents are handled). A same-status observation is a no-op.
func (s *Store) SyncPR(ctx context.Context, prID string, observed types.PRStatus) error {
	now := s.now()
	return s.withTx(ctx, "sync pull request", func(tx *sql.Tx) error {
		pr, err := scanPR(tx.QueryRowContext(ctx,
			`SELECT `+prColumns+` FROM prs WHERE id = ?`, prID))
		if err == sql.ErrNoRows {
			return errors.NewNotFoundError("pull request", prID)
		}
		if err != nil {
			return mapError("get pull request", err)
		}
		if pr.Status == observed {
			return nil
		}

		if err := state.ValidatePR(pr.Status, observed); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE prs SET status = ?, updated_at = ? WHERE id = ?`, observed, now, prID); err != nil {
			return mapError("sync pull request", err)
		}

		if observed != types.PRInReview {
			return nil
		}

		t, err := getTask(ctx, tx, pr.TaskID)
		if err != nil {
			return err
		}
		if t.Status != types.TaskPRCreated {
			return nil
		}
		nextTask := *t
		nextTask.Status = types.TaskInReview
		nextTask.UpdatedAt = now
		if err := state.ValidateTaskChange(t.Status, state.TaskGuard{Next: &nextTask, PR: pr}); err != nil {
			return err
		}
		return writeTask(ctx, tx, &nextTask)
	})
}

// -----------------------------------------------------------------------------
// Shared Transaction Steps
// -----------------------------------------------------------------------------

// moveSlot transitions a slot inside an existing transaction, clearing
// the binding when the destination is available.
func (s *Store) moveSlot(ctx context.Context, tx *sql.Tx, slotID string, to types.SlotStatus, now time.Time) error {
	sl, err := getSlot(ctx, tx, slotID)
	if err != nil {
		return err
	}

	next := *sl
	next.Status = to
	next.UpdatedAt = now
	if to == types.SlotAvailable {
		next.TaskID = ""
		next.Branch = ""
	}

	if err := state.ValidateSlotChange(sl.Status, &next); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE slots SET branch = ?, status = ?, task_id = ?, updated_at = ? WHERE id = ?`,
		next.Branch, next.Status, next.TaskID, now, next.ID)
	return mapError("move slot", err)
}

// promoteReady moves every pending dependent of a just-completed task
// whose dependencies are now all completed to ready.
func promoteReady(ctx context.Context, tx *sql.Tx, completedID string, now time.Time) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT d.task_id FROM task_deps d
		JOIN tasks t ON t.id = d.task_id
		WHERE d.depends_on_id = ? AND t.status = ?`, completedID, types.TaskPending)
	if err != nil {
		return mapError("promote ready", err)
	}
	var candidates []string
	for rows.Next() {
		var tid string
		if err := rows.Scan(&tid); err != nil {
			rows.Close()
			return mapError("promote ready", err)
		}
		candidates = append(candidates, tid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapError("promote ready", err)
	}

	for _, tid := range candidates {
		done, err := depsCompleted(ctx, tx, tid)
		if err != nil {
			return err
		}
		if !done {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
			types.TaskReady, now, tid); err != nil {
			return mapError("promote ready", err)
		}
	}
	return nil
}

// refreshPlanStatus completes a plan when none of its tasks remain
// unfinished.
func refreshPlanStatus(ctx context.Context, tx *sql.Tx, planID string, now time.Time) error {
	var remaining int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE plan_id = ? AND status != ?`,
		planID, types.TaskCompleted).Scan(&remaining)
	if err != nil {
		return mapError("refresh plan status", err)
	}
	if remaining > 0 {
		return nil
	}

	p, err := getPlan(ctx, tx, planID)
	if err != nil {
		return err
	}
	if p.Status.IsTerminal() {
		return nil
	}
	return updatePlanStatus(ctx, tx, now, planID, types.PlanCompleted)
}
