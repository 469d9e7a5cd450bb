package store

import (
	"context"
	"database/sql"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/types"
)

const projectColumns = `id, name, repo_path, remote_url, main_branch, max_concurrent, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (*types.Project, error) {
	var p types.Project
	err := row.Scan(&p.ID, &p.Name, &p.RepoPath, &p.RemoteURL, &p.MainBranch,
		&p.MaxConcurrent, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject inserts a new project. The ID and timestamps are
// assigned here; a second project at the same repo path is a conflict.
func (s *Store) CreateProject(ctx context.Context, p *types.Project) error {
	if p.ID == "" {
		p.ID = id.New()
	}
	if p.MainBranch == "" {
		p.MainBranch = "main"
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 3
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.RepoPath, p.RemoteURL, p.MainBranch,
		p.MaxConcurrent, p.CreatedAt, p.UpdatedAt)
	return mapError("create project", err)
}

// GetProject loads a project by exact id.
func (s *Store) GetProject(ctx context.Context, projectID string) (*types.Project, error) {
	return getProject(ctx, s.db, projectID)
}

func getProject(ctx context.Context, q querier, projectID string) (*types.Project, error) {
	p, err := scanProject(q.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, projectID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("project", projectID)
	}
	if err != nil {
		return nil, mapError("get project", err)
	}
	return p, nil
}

// GetProjectByPath loads the project registered at a repository path.
func (s *Store) GetProjectByPath(ctx context.Context, repoPath string) (*types.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE repo_path = ?`, repoPath))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("project", repoPath)
	}
	if err != nil {
		return nil, mapError("get project by path", err)
	}
	return p, nil
}

// ListProjects returns every project ordered by creation time.
func (s *Store) ListProjects(ctx context.Context) ([]*types.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, mapError("list projects", err)
	}
	defer rows.Close()

	var out []*types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, mapError("list projects", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list projects", err)
	}
	return out, nil
}

// UpdateProject rewrites a project's mutable fields.
func (s *Store) UpdateProject(ctx context.Context, p *types.Project) error {
	p.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name = ?, remote_url = ?, main_branch = ?, max_concurrent = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.RemoteURL, p.MainBranch, p.MaxConcurrent, p.UpdatedAt, p.ID)
	if err != nil {
		return mapError("update project", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("project", p.ID)
	}
	return nil
}

// DeleteProject removes a project; plans, tasks, and slots cascade.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, projectID)
	if err != nil {
		return mapError("delete project", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("project", projectID)
	}
	return nil
}
