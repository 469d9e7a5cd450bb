// Package types defines the entities taskctl persists and coordinates:
// projects, plans, tasks, dependency edges, slots, and pull requests.
//
// These are pure data types. Lifecycle rules live in internal/state;
// persistence lives in internal/store.
package types

import "time"

// -----------------------------------------------------------------------------
// Project
// -----------------------------------------------------------------------------

// Project is one managed repository. Created on init, destroyed on
// explicit remove (which cascades to plans and slots).
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	RepoPath      string    `json:"repo_path"`
	RemoteURL     string    `json:"remote_url,omitempty"`
	MainBranch    string    `json:"main_branch"`
	MaxConcurrent int       `json:"max_concurrent"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// Plan
// -----------------------------------------------------------------------------

// PlanStatus represents the lifecycle state of a plan.
type PlanStatus string

const (
	// PlanDraft is a newly created plan with no tasks yet.
	PlanDraft PlanStatus = "draft"

	// PlanPlanning indicates the planner is decomposing the request.
	PlanPlanning PlanStatus = "planning"

	// PlanReady indicates tasks exist and scheduling can begin.
	PlanReady PlanStatus = "ready"

	// PlanInProgress indicates at least one task has started or finished.
	PlanInProgress PlanStatus = "in_progress"

	// PlanCompleted indicates every task is completed.
	PlanCompleted PlanStatus = "completed"

	// PlanArchived is a terminal sink reachable from any non-terminal state.
	PlanArchived PlanStatus = "archived"
)

// String returns the string representation of the plan status.
func (s PlanStatus) String() string { return string(s) }

// IsTerminal returns true if this status represents a final state.
func (s PlanStatus) IsTerminal() bool {
	return s == PlanCompleted || s == PlanArchived
}

// Plan is a cohesive unit of work owned by a project. Task branches
// fork from its source branch.
type Plan struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	SourceBranch string     `json:"source_branch"`
	Status       PlanStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// Task
// -----------------------------------------------------------------------------

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	// TaskPending indicates the task is waiting on incomplete dependencies.
	TaskPending TaskStatus = "pending"

	// TaskReady indicates every dependency is completed and the task can
	// be scheduled.
	TaskReady TaskStatus = "ready"

	// TaskAssigned indicates the task has a slot and a branch but work
	// has not started.
	TaskAssigned TaskStatus = "assigned"

	// TaskInProgress indicates the implementer is actively working.
	TaskInProgress TaskStatus = "in_progress"

	// TaskPRCreated indicates a pull request exists for the task.
	TaskPRCreated TaskStatus = "pr_created"

	// TaskInReview indicates the pull request is under review.
	TaskInReview TaskStatus = "in_review"

	// TaskCompleted indicates the pull request merged.
	TaskCompleted TaskStatus = "completed"

	// TaskBlocked indicates a dependency became infeasible.
	TaskBlocked TaskStatus = "blocked"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string { return string(s) }

// IsTerminal returns true if this status represents a final state.
func (s TaskStatus) IsTerminal() bool { return s == TaskCompleted }

// IsActive returns true while the task occupies a slot: from assignment
// until its pull request merges.
func (s TaskStatus) IsActive() bool {
	switch s {
	case TaskAssigned, TaskInProgress, TaskPRCreated, TaskInReview:
		return true
	}
	return false
}

// RequiresBranch returns true for statuses in which the task must carry
// a branch name.
func (s TaskStatus) RequiresBranch() bool { return s.IsActive() }

// Task is the unit of scheduling; each task corresponds to one pull
// request. Level is the DAG depth computed from the dependency edges.
type Task struct {
	ID             string     `json:"id"`
	PlanID         string     `json:"plan_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         TaskStatus `json:"status"`
	Level          int        `json:"level"`
	EstimatedLines int        `json:"estimated_lines,omitempty"`
	BranchName     string     `json:"branch_name,omitempty"`
	SlotID         string     `json:"slot_id,omitempty"`
	SessionID      string     `json:"session_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TaskDependency is a directed edge: the task identified by TaskID
// depends on the task identified by DependsOnID. Both tasks belong to
// the same plan; the edge set of a plan is acyclic.
type TaskDependency struct {
	TaskID      string    `json:"task_id"`
	DependsOnID string    `json:"depends_on_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// -----------------------------------------------------------------------------
// Slot
// -----------------------------------------------------------------------------

// SlotStatus represents the lifecycle state of an execution slot.
type SlotStatus string

const (
	// SlotAvailable indicates the slot can accept a task.
	SlotAvailable SlotStatus = "available"

	// SlotAssigned indicates a task is bound but work has not started.
	SlotAssigned SlotStatus = "assigned"

	// SlotInProgress indicates the bound task is being worked on.
	SlotInProgress SlotStatus = "in_progress"

	// SlotPRPending indicates the bound task has an open pull request.
	SlotPRPending SlotStatus = "pr_pending"

	// SlotCompleted indicates the bound task finished; the slot returns
	// to available immediately afterwards.
	SlotCompleted SlotStatus = "completed"

	// SlotError indicates the slot needs manual attention.
	SlotError SlotStatus = "error"
)

// String returns the string representation of the slot status.
func (s SlotStatus) String() string { return string(s) }

// IsActive returns true while a task occupies the slot.
func (s SlotStatus) IsActive() bool {
	switch s {
	case SlotAssigned, SlotInProgress, SlotPRPending:
		return true
	}
	return false
}

// Slot is a reusable execution workspace: a git worktree bound to a
// project. A slot references at most one task; the task's back
// reference is kept symmetric inside store transactions.
type Slot struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	Branch    string     `json:"branch,omitempty"`
	Status    SlotStatus `json:"status"`
	TaskID    string     `json:"task_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// Pull Request
// -----------------------------------------------------------------------------

// PRStatus represents the lifecycle state of a pull request as taskctl
// tracks it. Values are derived from forge state via the translation
// table in internal/forge.
type PRStatus string

const (
	// PRDraft is a draft pull request.
	PRDraft PRStatus = "draft"

	// PROpen is an open pull request with no review decision.
	PROpen PRStatus = "open"

	// PRInReview indicates changes were requested.
	PRInReview PRStatus = "in_review"

	// PRApproved indicates the review decision is approved.
	PRApproved PRStatus = "approved"

	// PRMerged indicates the pull request merged.
	PRMerged PRStatus = "merged"

	// PRClosed indicates the pull request was closed without merging.
	PRClosed PRStatus = "closed"
)

// String returns the string representation of the PR status.
func (s PRStatus) String() string { return string(s) }

// IsTerminal returns true if this status represents a final state.
func (s PRStatus) IsTerminal() bool { return s == PRMerged || s == PRClosed }

// PullRequest is the forge-side artefact bound 1:1 to a task. Its head
// branch equals the task's branch name at creation time; its base
// branch equals the plan's source branch.
type PullRequest struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	Number     int       `json:"number"`
	URL        string    `json:"url"`
	Status     PRStatus  `json:"status"`
	BaseBranch string    `json:"base_branch"`
	HeadBranch string    `json:"head_branch"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// -----------------------------------------------------------------------------
// Progress
// -----------------------------------------------------------------------------

// Progress summarizes a plan's task counts. Pending counts every task
// that is neither completed nor active.
type Progress struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	InProgress int     `json:"in_progress"`
	Pending    int     `json:"pending"`
	Percent    float64 `json:"percent"`
}

// ComputeProgress derives a Progress summary from a task list.
func ComputeProgress(tasks []*Task) Progress {
	p := Progress{Total: len(tasks)}
	for _, t := range tasks {
		switch {
		case t.Status == TaskCompleted:
			p.Completed++
		case t.Status.IsActive():
			p.InProgress++
		default:
			p.Pending++
		}
	}
	if p.Total > 0 {
		p.Percent = float64(p.Completed) / float64(p.Total) * 100
	}
	return p
}
