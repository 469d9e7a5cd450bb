// Package query serves the read-only views shared by the CLI and the
// MCP server: plans with progress, tasks with their neighbourhood, and
// the current-task lookup used by implementer sessions. All entity
// references accept full ids or unique short prefixes.
package query

import (
	"context"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/graph"
	"github.com/hotter6163/taskctl/internal/store"
	"github.com/hotter6163/taskctl/internal/types"
)

// Service answers read-only queries against the store.
type Service struct {
	store *store.Store
}

// New creates a query service.
func New(st *store.Store) *Service {
	return &Service{store: st}
}

// -----------------------------------------------------------------------------
// Plan Views
// -----------------------------------------------------------------------------

// PlanDetail is a plan with its tasks, dependency edges, progress, and
// critical path.
type PlanDetail struct {
	Plan         *types.Plan             `json:"plan"`
	Tasks        []*types.Task           `json:"tasks"`
	Edges        []*types.TaskDependency `json:"edges,omitempty"`
	Progress     types.Progress          `json:"progress"`
	CriticalPath []string                `json:"critical_path,omitempty"`
	MaxLevel     int                     `json:"max_level"`
}

// GetPlan resolves a plan reference and assembles its detail view.
func (s *Service) GetPlan(ctx context.Context, ref string) (*PlanDetail, error) {
	plan, err := s.store.FindPlan(ctx, ref)
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

	detail := &PlanDetail{
		Plan:     plan,
		Tasks:    tasks,
		Edges:    edges,
		Progress: types.ComputeProgress(tasks),
	}
	if len(tasks) > 0 {
		g, err := graph.Build(tasks, edges)
		if err != nil {
			return nil, err
		}
		detail.CriticalPath = g.CriticalPath()
		detail.MaxLevel = g.MaxLevel()
	}
	return detail, nil
}

// ListPlans returns plans, optionally filtered by project and status.
func (s *Service) ListPlans(ctx context.Context, projectID string, status types.PlanStatus) ([]*types.Plan, error) {
	return s.store.ListPlans(ctx, projectID, status)
}

// -----------------------------------------------------------------------------
// Task Views
// -----------------------------------------------------------------------------

// TaskDetail is a task with its plan header, dependency neighbourhood,
// and PR.
type TaskDetail struct {
	Task         *types.Task        `json:"task"`
	Plan         *types.Plan        `json:"plan"`
	Dependencies []*types.Task      `json:"dependencies,omitempty"`
	Dependents   []*types.Task      `json:"dependents,omitempty"`
	PullRequest  *types.PullRequest `json:"pull_request,omitempty"`
}

// GetTask resolves a task reference and assembles its detail view.
func (s *Service) GetTask(ctx context.Context, ref string) (*TaskDetail, error) {
	task, err := s.store.FindTask(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.taskDetail(ctx, task)
}

func (s *Service) taskDetail(ctx context.Context, task *types.Task) (*TaskDetail, error) {
	plan, err := s.store.GetPlan(ctx, task.PlanID)
	if err != nil {
		return nil, err
	}
	deps, err := s.store.Dependencies(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	dependents, err := s.store.Dependents(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	pr, err := s.store.GetPRByTask(ctx, task.ID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	return &TaskDetail{
		Task:         task,
		Plan:         plan,
		Dependencies: deps,
		Dependents:   dependents,
		PullRequest:  pr,
	}, nil
}

// ListTasks returns a plan's tasks, optionally filtered by status and
// dependency level. A negative level matches all levels.
func (s *Service) ListTasks(ctx context.Context, planRef string, status types.TaskStatus, level int) ([]*types.Task, error) {
	plan, err := s.store.FindPlan(ctx, planRef)
	if err != nil {
		return nil, err
	}
	if level >= 0 {
		return s.store.ListTasksAtLevel(ctx, plan.ID, level, status)
	}
	return s.store.ListTasks(ctx, plan.ID, status)
}

// CurrentTask resolves the task an implementer session is working on:
// the session id binding wins, then branch ownership. Returns nil when
// neither matches; a session may legitimately sit outside any task.
func (s *Service) CurrentTask(ctx context.Context, sessionID, branch string) (*TaskDetail, error) {
	if sessionID != "" {
		task, err := s.store.TaskBySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return s.taskDetail(ctx, task)
		}
	}
	if branch != "" {
		task, err := s.store.TaskByBranch(ctx, branch)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return s.taskDetail(ctx, task)
		}
	}
	return nil, nil
}
