package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hotter6163/taskctl/internal/query"
	"github.com/hotter6163/taskctl/internal/types"
)

// NewDefaultRegistry builds a registry with the standard read-only tools
// backed by the given query service.
func NewDefaultRegistry(svc *query.Service) (*Registry, error) {
	registry := NewRegistry()
	tools := []Tool{
		&getPlanTool{svc: svc},
		&listPlansTool{svc: svc},
		&getTaskTool{svc: svc},
		&listTasksTool{svc: svc},
		&getCurrentTaskTool{svc: svc},
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// -----------------------------------------------------------------------------
// get_plan
// -----------------------------------------------------------------------------

type getPlanTool struct {
	svc *query.Service
}

func (t *getPlanTool) Name() string { return "get_plan" }

func (t *getPlanTool) Description() string {
	return "Get a plan with its tasks, progress, and critical path. Accepts a full plan id or a unique short prefix."
}

func (t *getPlanTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"plan": {"type": "string", "description": "Plan id or unique short prefix"}
		},
		"required": ["plan"]
	}`)
}

func (t *getPlanTool) Execute(ctx context.Context, args json.RawMessage) (*ToolsCallResult, error) {
	var params struct {
		Plan string `json:"plan"`
	}
	if err := unmarshalArgs(args, &params); err != nil {
		return nil, err
	}
	if params.Plan == "" {
		return ErrorResult("plan is required"), nil
	}

	detail, err := t.svc.GetPlan(ctx, params.Plan)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return JSONResult(detail)
}

// -----------------------------------------------------------------------------
// list_plans
// -----------------------------------------------------------------------------

type listPlansTool struct {
	svc *query.Service
}

func (t *listPlansTool) Name() string { return "list_plans" }

func (t *listPlansTool) Description() string {
	return "List plans, optionally filtered by status (draft, planning, ready, in_progress, completed, archived)."
}

func (t *listPlansTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"status": {"type": "string", "description": "Optional plan status filter"}
		}
	}`)
}

func (t *listPlansTool) Execute(ctx context.Context, args json.RawMessage) (*ToolsCallResult, error) {
	var params struct {
		Status string `json:"status"`
	}
	if err := unmarshalArgs(args, &params); err != nil {
		return nil, err
	}

	plans, err := t.svc.ListPlans(ctx, "", types.PlanStatus(params.Status))
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return JSONResult(map[string]any{"plans": plans})
}

// -----------------------------------------------------------------------------
// get_task
// -----------------------------------------------------------------------------

type getTaskTool struct {
	svc *query.Service
}

func (t *getTaskTool) Name() string { return "get_task" }

func (t *getTaskTool) Description() string {
	return "Get a task with its dependencies, dependents, and pull request. Accepts a full task id or a unique short prefix."
}

func (t *getTaskTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task": {"type": "string", "description": "Task id or unique short prefix"}
		},
		"required": ["task"]
	}`)
}

func (t *getTaskTool) Execute(ctx context.Context, args json.RawMessage) (*ToolsCallResult, error) {
	var params struct {
		Task string `json:"task"`
	}
	if err := unmarshalArgs(args, &params); err != nil {
		return nil, err
	}
	if params.Task == "" {
		return ErrorResult("task is required"), nil
	}

	detail, err := t.svc.GetTask(ctx, params.Task)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return JSONResult(detail)
}

// -----------------------------------------------------------------------------
// list_tasks
// -----------------------------------------------------------------------------

type listTasksTool struct {
	svc *query.Service
}

func (t *listTasksTool) Name() string { return "list_tasks" }

func (t *listTasksTool) Description() string {
	return "List a plan's tasks in dependency-level order, optionally filtered by status and level."
}

func (t *listTasksTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"plan": {"type": "string", "description": "Plan id or unique short prefix"},
			"status": {"type": "string", "description": "Optional task status filter"},
			"level": {"type": "integer", "description": "Optional dependency level filter"}
		},
		"required": ["plan"]
	}`)
}

func (t *listTasksTool) Execute(ctx context.Context, args json.RawMessage) (*ToolsCallResult, error) {
	var params struct {
		Plan   string `json:"plan"`
		Status string `json:"status"`
		Level  *int   `json:"level"`
	}
	if err := unmarshalArgs(args, &params); err != nil {
		return nil, err
	}
	if params.Plan == "" {
		return ErrorResult("plan is required"), nil
	}

	level := -1
	if params.Level != nil {
		if *params.Level < 0 {
			return ErrorResult("level must not be negative"), nil
		}
		level = *params.Level
	}
	tasks, err := t.svc.ListTasks(ctx, params.Plan, types.TaskStatus(params.Status), level)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return JSONResult(map[string]any{"tasks": tasks})
}

// -----------------------------------------------------------------------------
// get_current_task
// -----------------------------------------------------------------------------

type getCurrentTaskTool struct {
	svc *query.Service
}

func (t *getCurrentTaskTool) Name() string { return "get_current_task" }

func (t *getCurrentTaskTool) Description() string {
	return "Resolve the task the calling session is working on, by session id or by current branch. Returns null when neither matches."
}

func (t *getCurrentTaskTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"session_id": {"type": "string", "description": "Implementer session id"},
			"branch": {"type": "string", "description": "Current git branch"}
		}
	}`)
}

func (t *getCurrentTaskTool) Execute(ctx context.Context, args json.RawMessage) (*ToolsCallResult, error) {
	var params struct {
		SessionID string `json:"session_id"`
		Branch    string `json:"branch"`
	}
	if err := unmarshalArgs(args, &params); err != nil {
		return nil, err
	}

	detail, err := t.svc.CurrentTask(ctx, params.SessionID, params.Branch)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	if detail == nil {
		return JSONResult(map[string]any{"task": nil})
	}
	return JSONResult(detail)
}

// unmarshalArgs decodes tool arguments, treating absent arguments as an
// empty object.
func unmarshalArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
