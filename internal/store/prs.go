package store

import (
	"context"
	"database/sql"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/state"
	"github.com/hotter6163/taskctl/internal/types"
)

const prColumns = `id, task_id, number, url, status, base_branch, head_branch, created_at, updated_at`

func scanPR(row interface{ Scan(...any) error }) (*types.PullRequest, error) {
	var pr types.PullRequest
	err := row.Scan(&pr.ID, &pr.TaskID, &pr.Number, &pr.URL, &pr.Status,
		&pr.BaseBranch, &pr.HeadBranch, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// GetPRByTask loads the pull request bound to a task.
func (s *Store) GetPRByTask(ctx context.Context, taskID string) (*types.PullRequest, error) {
	return getPRByTask(ctx, s.db, taskID)
}

func getPRByTask(ctx context.Context, q querier, taskID string) (*types.PullRequest, error) {
	pr, err := scanPR(q.QueryRowContext(ctx,
		`SELECT `+prColumns+` FROM prs WHERE task_id = ?`, taskID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("pull request", taskID)
	}
	if err != nil {
		return nil, mapError("get pull request", err)
	}
	return pr, nil
}

// ListPRs returns every pull request belonging to a plan's tasks.
func (s *Store) ListPRs(ctx context.Context, planID string) ([]*types.PullRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pr.id, pr.task_id, pr.number, pr.url, pr.status,
			pr.base_branch, pr.head_branch, pr.created_at, pr.updated_at
		FROM prs pr
		JOIN tasks t ON t.id = pr.task_id
		WHERE t.plan_id = ?
		ORDER BY pr.created_at`, planID)
	if err != nil {
		return nil, mapError("list pull requests", err)
	}
	defer rows.Close()

	var out []*types.PullRequest
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, mapError("list pull requests", err)
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list pull requests", err)
	}
	return out, nil
}

// ListOpenPRs returns every non-terminal pull request across all plans,
// the working set of a sync pass.
func (s *Store) ListOpenPRs(ctx context.Context) ([]*types.PullRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+prColumns+` FROM prs
		WHERE status NOT IN (?, ?)
		ORDER BY created_at`, types.PRMerged, types.PRClosed)
	if err != nil {
		return nil, mapError("list open pull requests", err)
	}
	defer rows.Close()

	var out []*types.PullRequest
	for rows.Next() {
		pr, err := scanPR(rows)
		if err != nil {
			return nil, mapError("list open pull requests", err)
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list open pull requests", err)
	}
	return out, nil
}

// insertPR writes a new pull request row inside a transaction. A second
// PR for the same task is a conflict (UNIQUE task_id).
func insertPR(ctx context.Context, tx *sql.Tx, pr *types.PullRequest) error {
	if pr.ID == "" {
		pr.ID = id.New()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO prs (`+prColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pr.ID, pr.TaskID, pr.Number, pr.URL, pr.Status,
		pr.BaseBranch, pr.HeadBranch, pr.CreatedAt, pr.UpdatedAt)
	return mapError("insert pull request", err)
}

// UpdatePRStatus transitions a pull request, validating the edge.
func (s *Store) UpdatePRStatus(ctx context.Context, prID string, to types.PRStatus) error {
	now := s.now()
	return s.withTx(ctx, "update pull request status", func(tx *sql.Tx) error {
		pr, err := scanPR(tx.QueryRowContext(ctx,
			`SELECT `+prColumns+` FROM prs WHERE id = ?`, prID))
		if err == sql.ErrNoRows {
			return errors.NewNotFoundError("pull request", prID)
		}
		if err != nil {
			return mapError("get pull request", err)
		}

		if err := state.ValidatePR(pr.Status, to); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE prs SET status = ?, updated_at = ? WHERE id = ?`, to, now, prID)
		return mapError("update pull request status", err)
	})
}
