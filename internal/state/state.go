// Package state encodes the lifecycle of every entity as an explicit
// transition table and validates cross-entity consistency rules:
// branch-to-task, slot-to-task, and PR-to-task.
//
// Every status change in the system goes through this package. The
// store calls the validators inside its transactions so that an
// out-of-band change is rejected before anything is written.
package state

import (
	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/types"
)

// -----------------------------------------------------------------------------
// Transition Tables
// -----------------------------------------------------------------------------

var planTransitions = map[types.PlanStatus][]types.PlanStatus{
	types.PlanDraft:      {types.PlanPlanning, types.PlanArchived},
	types.PlanPlanning:   {types.PlanReady, types.PlanDraft, types.PlanArchived},
	types.PlanReady:      {types.PlanInProgress, types.PlanCompleted, types.PlanArchived},
	types.PlanInProgress: {types.PlanCompleted, types.PlanReady, types.PlanArchived},
	types.PlanCompleted:  {},
	types.PlanArchived:   {},
}

var taskTransitions = map[types.TaskStatus][]types.TaskStatus{
	types.TaskPending: {types.TaskReady, types.TaskBlocked},
	types.TaskReady:   {types.TaskAssigned, types.TaskPending, types.TaskBlocked},
	// The reverse edges back to ready roll back an interrupted
	// assignment so a later initialise can reschedule cleanly.
	types.TaskAssigned:   {types.TaskInProgress, types.TaskReady},
	types.TaskInProgress: {types.TaskPRCreated, types.TaskReady, types.TaskCompleted},
	types.TaskPRCreated:  {types.TaskInReview, types.TaskCompleted, types.TaskInProgress},
	types.TaskInReview:   {types.TaskCompleted, types.TaskPRCreated},
	types.TaskBlocked:    {types.TaskPending, types.TaskReady},
	types.TaskCompleted:  {},
}

var slotTransitions = map[types.SlotStatus][]types.SlotStatus{
	types.SlotAvailable:  {types.SlotAssigned, types.SlotError},
	types.SlotAssigned:   {types.SlotInProgress, types.SlotAvailable, types.SlotError},
	types.SlotInProgress: {types.SlotPRPending, types.SlotAvailable, types.SlotError},
	types.SlotPRPending:  {types.SlotCompleted, types.SlotError},
	types.SlotCompleted:  {types.SlotAvailable, types.SlotError},
	types.SlotError:      {types.SlotAvailable},
}

// PR transitions are driven by observations of forge state during sync,
// so forward jumps (e.g. draft straight to merged) are legal.
var prTransitions = map[types.PRStatus][]types.PRStatus{
	types.PRDraft:    {types.PROpen, types.PRInReview, types.PRApproved, types.PRMerged, types.PRClosed},
	types.PROpen:     {types.PRDraft, types.PRInReview, types.PRApproved, types.PRMerged, types.PRClosed},
	types.PRInReview: {types.PROpen, types.PRApproved, types.PRMerged, types.PRClosed},
	types.PRApproved: {types.PRInReview, types.PRMerged, types.PRClosed},
	types.PRMerged:   {},
	types.PRClosed:   {},
}

func contains[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Per-Entity Validators
// -----------------------------------------------------------------------------

// ValidatePlan checks a plan status transition against the lifecycle.
// Same-status writes are allowed (idempotent updates).
func ValidatePlan(from, to types.PlanStatus) error {
	if from == to {
		return nil
	}
	if !contains(planTransitions[from], to) {
		return errors.NewInvalidTransitionError("plan", string(from), string(to))
	}
	return nil
}

// ValidateTask checks a task status transition against the lifecycle.
func ValidateTask(from, to types.TaskStatus) error {
	if from == to {
		return nil
	}
	if !contains(taskTransitions[from], to) {
		return errors.NewInvalidTransitionError("task", string(from), string(to))
	}
	return nil
}

// ValidateSlot checks a slot status transition against the lifecycle.
func ValidateSlot(from, to types.SlotStatus) error {
	if from == to {
		return nil
	}
	if !contains(slotTransitions[from], to) {
		return errors.NewInvalidTransitionError("slot", string(from), string(to))
	}
	return nil
}

// ValidatePR checks a pull request status transition against the
// lifecycle.
func ValidatePR(from, to types.PRStatus) error {
	if from == to {
		return nil
	}
	if !contains(prTransitions[from], to) {
		return errors.NewInvalidTransitionError("pull_request", string(from), string(to))
	}
	return nil
}

// -----------------------------------------------------------------------------
// Cross-Entity Guards
// -----------------------------------------------------------------------------

// TaskGuard carries the related rows a task transition is checked
// against. The store populates it inside the same transaction that
// applies the change.
type TaskGuard struct {
	// Next is the task as it will be written.
	Next *types.Task

	// PR is the pull request bound to the task, if any.
	PR *types.PullRequest

	// DepsCompleted is true when every dependency of the task is
	// completed.
	DepsCompleted bool

	// Force permits completing a task without a merged PR; reserved for
	// administrative paths.
	Force bool
}

// ValidateTaskChange checks both the lifecycle edge and the
// cross-entity rules for a task moving from its current status to
// g.Next.Status.
func ValidateTaskChange(current types.TaskStatus, g TaskGuard) error {
	next := g.Next
	if err := ValidateTask(current, next.Status); err != nil {
		return err
	}

	switch next.Status {
	case types.TaskReady:
		if !g.DepsCompleted {
			return errors.NewInvalidTransitionError("task", string(current), string(next.Status)).
				WithReason("not all dependencies are completed")
		}

	case types.TaskAssigned:
		if current != types.TaskAssigned && !g.DepsCompleted {
			return errors.NewInvalidTransitionError("task", string(current), string(next.Status)).
				WithReason("not all dependencies are completed")
		}
		if next.SlotID == "" && next.SessionID == "" {
			return errors.NewInvalidTransitionError("task", string(current), string(next.Status)).
				WithReason("assignment requires a slot or session")
		}

	case types.TaskPRCreated:
		if g.PR == nil || g.PR.TaskID != next.ID {
			return errors.NewInvalidTransitionError("task", string(current), string(next.Status)).
				WithReason("no pull request recorded for task")
		}

	case types.TaskCompleted:
		if !g.Force && (g.PR == nil || g.PR.Status != types.PRMerged) {
			return errors.NewInvalidTransitionError("task", string(current), string(next.Status)).
				WithReason("pull request is not merged")
		}
	}

	// Invariant: branch name set while active, cleared otherwise.
	if next.Status.RequiresBranch() && next.BranchName == "" {
		return errors.NewInvalidTransitionError("task", string(current), string(next.Status)).
			WithReason("active task must carry a branch name")
	}
	if !next.Status.RequiresBranch() && next.BranchName != "" {
		return errors.NewInvalidTransitionError("task", string(current), string(next.Status)).
			WithReason("inactive task must not carry a branch name")
	}
	if !next.Status.IsActive() && next.SlotID != "" {
		return errors.NewInvalidTransitionError("task", string(current), string(next.Status)).
			WithReason("inactive task must not reference a slot")
	}

	return nil
}

// ValidateSlotChange checks both the lifecycle edge and the slot-side
// consistency rules for a slot being rewritten as next.
func ValidateSlotChange(current types.SlotStatus, next *types.Slot) error {
	if err := ValidateSlot(current, next.Status); err != nil {
		return err
	}

	if next.Status == types.SlotAvailable {
		if next.TaskID != "" || next.Branch != "" {
			return errors.NewInvalidTransitionError("slot", string(current), string(next.Status)).
				WithReason("available slot must clear task_id and branch")
		}
		return nil
	}

	if next.Status.IsActive() && next.TaskID == "" {
		return errors.NewInvalidTransitionError("slot", string(current), string(next.Status)).
			WithReason("active slot must reference a task")
	}

	return nil
}

// ValidateAssignmentSymmetry checks invariant 2: the task references the
// slot, the slot references the task, and both sides are in the active
// set. Called after a paired update before the transaction commits.
func ValidateAssignmentSymmetry(task *types.Task, slot *types.Slot) error {
	if task.SlotID != slot.ID || slot.TaskID != task.ID {
		return errors.NewInvalidTransitionError("assignment", string(task.Status), string(slot.Status)).
			WithReason("task/slot references are not symmetric")
	}
	if !task.Status.IsActive() || !slot.Status.IsActive() {
		return errors.NewInvalidTransitionError("assignment", string(task.Status), string(slot.Status)).
			WithReason("both sides of an assignment must be active")
	}
	return nil
}
