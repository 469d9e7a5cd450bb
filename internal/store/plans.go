package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/state"
	"github.com/hotter6163/taskctl/internal/types"
)

const planColumns = `id, project_id, title, description, source_branch, status, created_at, updated_at`

func scanPlan(row interface{ Scan(...any) error }) (*types.Plan, error) {
	var p types.Plan
	err := row.Scan(&p.ID, &p.ProjectID, &p.Title, &p.Description,
		&p.SourceBranch, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePlan inserts a new plan in draft status.
func (s *Store) CreatePlan(ctx context.Context, p *types.Plan) error {
	if p.ID == "" {
		p.ID = id.New()
	}
	if p.Status == "" {
		p.Status = types.PlanDraft
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectID, p.Title, p.Description, p.SourceBranch,
		p.Status, p.CreatedAt, p.UpdatedAt)
	return mapError("create plan", err)
}

// GetPlan loads a plan by exact id.
func (s *Store) GetPlan(ctx context.Context, planID string) (*types.Plan, error) {
	return getPlan(ctx, s.db, planID)
}

func getPlan(ctx context.Context, q querier, planID string) (*types.Plan, error) {
	p, err := scanPlan(q.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = ?`, planID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("plan", planID)
	}
	if err != nil {
		return nil, mapError("get plan", err)
	}
	return p, nil
}

// FindPlan resolves a full or short plan id and loads the plan.
func (s *Store) FindPlan(ctx context.Context, ref string) (*types.Plan, error) {
	full, err := s.findByPrefix(ctx, "plans", "plan", ref)
	if err != nil {
		return nil, err
	}
	return s.GetPlan(ctx, full)
}

// ListPlans returns plans for a project, newest first. An empty status
// matches all statuses; an empty projectID matches all projects.
func (s *Store) ListPlans(ctx context.Context, projectID string, status types.PlanStatus) ([]*types.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE 1=1`
	var args []any
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list plans", err)
	}
	defer rows.Close()

	var out []*types.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, mapError("list plans", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list plans", err)
	}
	return out, nil
}

// UpdatePlanStatus transitions a plan, validating the edge inside the
// transaction so concurrent writers cannot race past the lifecycle.
func (s *Store) UpdatePlanStatus(ctx context.Context, planID string, to types.PlanStatus) error {
	return s.withTx(ctx, "update plan status", func(tx *sql.Tx) error {
		return updatePlanStatus(ctx, tx, s.now(), planID, to)
	})
}

func updatePlanStatus(ctx context.Context, tx *sql.Tx, now time.Time, planID string, to types.PlanStatus) error {
	p, err := getPlan(ctx, tx, planID)
	if err != nil {
		return err
	}
	if err := state.ValidatePlan(p.Status, to); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE plans SET status = ?, updated_at = ? WHERE id = ?`, to, now, planID)
	return mapError("update plan status", err)
}

// ArchivePlan moves a non-terminal plan to archived.
func (s *Store) ArchivePlan(ctx context.Context, planID string) error {
	return s.UpdatePlanStatus(ctx, planID, types.PlanArchived)
}

// DeletePlan removes a plan; its tasks, edges, and PRs cascade.
func (s *Store) DeletePlan(ctx context.Context, planID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, planID)
	if err != nil {
		return mapError("delete plan", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("plan", planID)
	}
	return nil
}
