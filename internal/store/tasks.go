package store

import (
	"context"
	"database/sql"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/state"
	"github.com/hotter6163/taskctl/internal/types"
)

const taskColumns = `id, plan_id, title, description, status, level, estimated_lines,
	branch_name, slot_id, session_id, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*types.Task, error) {
	var t types.Task
	err := row.Scan(&t.ID, &t.PlanID, &t.Title, &t.Description, &t.Status,
		&t.Level, &t.EstimatedLines, &t.BranchName, &t.SlotID, &t.SessionID,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTasks inserts a plan's tasks and dependency edges in one
// transaction: all tasks first, then all edges, so forward references
// within the batch resolve. Tasks at level 0 are inserted as ready,
// everything else as pending.
func (s *Store) CreateTasks(ctx context.Context, tasks []*types.Task, edges []*types.TaskDependency) error {
	now := s.now()
	return s.withTx(ctx, "create tasks", func(tx *sql.Tx) error {
		for _, t := range tasks {
			if t.ID == "" {
				t.ID = id.New()
			}
			if t.Status == "" {
				if t.Level == 0 {
					t.Status = types.TaskReady
				} else {
					t.Status = types.TaskPending
				}
			}
			t.CreatedAt = now
			t.UpdatedAt = now
			_, err := tx.ExecContext(ctx, `
				INSERT INTO tasks (`+taskColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, t.PlanID, t.Title, t.Description, t.Status, t.Level,
				t.EstimatedLines, t.BranchName, t.SlotID, t.SessionID,
				t.CreatedAt, t.UpdatedAt)
			if err != nil {
				return mapError("create task", err)
			}
		}
		for _, e := range edges {
			e.CreatedAt = now
			_, err := tx.ExecContext(ctx, `
				INSERT INTO task_deps (task_id, depends_on_id, created_at)
				VALUES (?, ?, ?)`,
				e.TaskID, e.DependsOnID, e.CreatedAt)
			if err != nil {
				return mapError("create task dependency", err)
			}
		}
		return nil
	})
}

// GetTask loads a task by exact id.
func (s *Store) GetTask(ctx context.Context, taskID string) (*types.Task, error) {
	return getTask(ctx, s.db, taskID)
}

func getTask(ctx context.Context, q querier, taskID string) (*types.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("task", taskID)
	}
	if err != nil {
		return nil, mapError("get task", err)
	}
	return t, nil
}

// FindTask resolves a full or short task id and loads the task.
func (s *Store) FindTask(ctx context.Context, ref string) (*types.Task, error) {
	full, err := s.findByPrefix(ctx, "tasks", "task", ref)
	if err != nil {
		return nil, err
	}
	return s.GetTask(ctx, full)
}

// ListTasks returns a plan's tasks ordered by level then id. An empty
// status matches all statuses.
func (s *Store) ListTasks(ctx context.Context, planID string, status types.TaskStatus) ([]*types.Task, error) {
	return listTasks(ctx, s.db, planID, status, -1)
}

// ListTasksAtLevel returns a plan's tasks at one dependency level,
// optionally filtered by status.
func (s *Store) ListTasksAtLevel(ctx context.Context, planID string, level int, status types.TaskStatus) ([]*types.Task, error) {
	return listTasks(ctx, s.db, planID, status, level)
}

func listTasks(ctx context.Context, q querier, planID string, status types.TaskStatus, level int) ([]*types.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE plan_id = ?`
	args := []any{planID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	if level >= 0 {
		query += ` AND level = ?`
		args = append(args, level)
	}
	query += ` ORDER BY level, id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list tasks", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, mapError("list tasks", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list tasks", err)
	}
	return out, nil
}

// TaskByBranch returns the active task owning a branch, or nil when no
// task owns it.
func (s *Store) TaskByBranch(ctx context.Context, branch string) (*types.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE branch_name = ? AND branch_name != ''`, branch))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("task by branch", err)
	}
	return t, nil
}

// TaskBySession returns the task bound to a session id, or nil.
func (s *Store) TaskBySession(ctx context.Context, sessionID string) (*types.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE session_id = ? AND session_id != ''`, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapError("task by session", err)
	}
	return t, nil
}

// PlanEdges returns every dependency edge of a plan.
func (s *Store) PlanEdges(ctx context.Context, planID string) ([]*types.TaskDependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.task_id, d.depends_on_id, d.created_at
		FROM task_deps d
		JOIN tasks t ON t.id = d.task_id
		WHERE t.plan_id = ?
		ORDER BY d.task_id, d.depends_on_id`, planID)
	if err != nil {
		return nil, mapError("plan edges", err)
	}
	defer rows.Close()

	var out []*types.TaskDependency
	for rows.Next() {
		var e types.TaskDependency
		if err := rows.Scan(&e.TaskID, &e.DependsOnID, &e.CreatedAt); err != nil {
			return nil, mapError("plan edges", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("plan edges", err)
	}
	return out, nil
}

// Dependencies returns the tasks a task depends on.
func (s *Store) Dependencies(ctx context.Context, taskID string) ([]*types.Task, error) {
	return s.relatedTasks(ctx, `
		SELECT `+prefixedTaskColumns+` FROM tasks t
		JOIN task_deps d ON d.depends_on_id = t.id
		WHERE d.task_id = ?
		ORDER BY t.level, t.id`, taskID)
}

// Dependents returns the tasks that depend on a task.
func (s *Store) Dependents(ctx context.Context, taskID string) ([]*types.Task, error) {
	return s.relatedTasks(ctx, `
		SELECT `+prefixedTaskColumns+` FROM tasks t
		JOIN task_deps d ON d.task_id = t.id
		WHERE d.depends_on_id = ?
		ORDER BY t.level, t.id`, taskID)
}

const prefixedTaskColumns = `t.id, t.plan_id, t.title, t.description, t.status, t.level,
	t.estimated_lines, t.branch_name, t.slot_id, t.session_id, t.created_at, t.updated_at`

func (s *Store) relatedTasks(ctx context.Context, query, taskID string) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, mapError("related tasks", err)
	}
	defer rows.Close()

	var out []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, mapError("related tasks", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("related tasks", err)
	}
	return out, nil
}

// depsCompleted reports whether every dependency of a task is completed.
// Runs inside the caller's transaction.
func depsCompleted(ctx context.Context, q querier, taskID string) (bool, error) {
	var unmet int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM task_deps d
		JOIN tasks dep ON dep.id = d.depends_on_id
		WHERE d.task_id = ? AND dep.status != ?`, taskID, types.TaskCompleted).Scan(&unmet)
	if err != nil {
		return false, mapError("check dependencies", err)
	}
	return unmet == 0, nil
}

// writeTask rewrites a task row inside a transaction.
func writeTask(ctx context.Context, tx *sql.Tx, t *types.Task) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, branch_name = ?, slot_id = ?, session_id = ?, updated_at = ?
		WHERE id = ?`,
		t.Status, t.BranchName, t.SlotID, t.SessionID, t.UpdatedAt, t.ID)
	return mapError("write task", err)
}

// UpdateTaskStatus transitions a single task with full guard checks.
// Paired task/slot updates go through the transition methods in
// transitions.go instead.
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID string, to types.TaskStatus, force bool) error {
	now := s.now()
	return s.withTx(ctx, "update task status", func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, taskID)
		if err != nil {
			return err
		}

		next := *t
		next.Status = to
		next.UpdatedAt = now
		if !to.IsActive() {
			next.BranchName = ""
			next.SlotID = ""
			next.SessionID = ""
		}

		done, err := depsCompleted(ctx, tx, taskID)
		if err != nil {
			return err
		}
		pr, err := getPRByTask(ctx, tx, taskID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}

		guard := state.TaskGuard{Next: &next, PR: pr, DepsCompleted: done, Force: force}
		if err := state.ValidateTaskChange(t.Status, guard); err != nil {
			return err
		}
		return writeTask(ctx, tx, &next)
	})
}
