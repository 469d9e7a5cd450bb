package store

import (
	"context"
	"database/sql"

	"github.com/hotter6163/taskctl/internal/errors"
	"github.com/hotter6163/taskctl/internal/id"
	"github.com/hotter6163/taskctl/internal/state"
	"github.com/hotter6163/taskctl/internal/types"
)

const slotColumns = `id, project_id, name, path, branch, status, task_id, created_at, updated_at`

func scanSlot(row interface{ Scan(...any) error }) (*types.Slot, error) {
	var sl types.Slot
	err := row.Scan(&sl.ID, &sl.ProjectID, &sl.Name, &sl.Path, &sl.Branch,
		&sl.Status, &sl.TaskID, &sl.CreatedAt, &sl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sl, nil
}

// CreateSlot registers a new execution slot as available. A duplicate
// name within the project is a conflict.
func (s *Store) CreateSlot(ctx context.Context, sl *types.Slot) error {
	if sl.ID == "" {
		sl.ID = id.New()
	}
	if sl.Status == "" {
		sl.Status = types.SlotAvailable
	}
	now := s.now()
	sl.CreatedAt = now
	sl.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (`+slotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sl.ID, sl.ProjectID, sl.Name, sl.Path, sl.Branch,
		sl.Status, sl.TaskID, sl.CreatedAt, sl.UpdatedAt)
	return mapError("create slot", err)
}

// GetSlot loads a slot by exact id.
func (s *Store) GetSlot(ctx context.Context, slotID string) (*types.Slot, error) {
	return getSlot(ctx, s.db, slotID)
}

func getSlot(ctx context.Context, q querier, slotID string) (*types.Slot, error) {
	sl, err := scanSlot(q.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE id = ?`, slotID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("slot", slotID)
	}
	if err != nil {
		return nil, mapError("get slot", err)
	}
	return sl, nil
}

// FindSlot resolves a full or short slot id, or a slot name within the
// project, and loads the slot.
func (s *Store) FindSlot(ctx context.Context, projectID, ref string) (*types.Slot, error) {
	sl, err := scanSlot(s.db.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE project_id = ? AND name = ?`, projectID, ref))
	if err == nil {
		return sl, nil
	}
	if err != sql.ErrNoRows {
		return nil, mapError("find slot", err)
	}

	full, err := s.findByPrefix(ctx, "slots", "slot", ref)
	if err != nil {
		return nil, err
	}
	return s.GetSlot(ctx, full)
}

// ListSlots returns a project's slots ordered by name. An empty status
// matches all statuses.
func (s *Store) ListSlots(ctx context.Context, projectID string, status types.SlotStatus) ([]*types.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE project_id = ?`
	args := []any{projectID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list slots", err)
	}
	defer rows.Close()

	var out []*types.Slot
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			return nil, mapError("list slots", err)
		}
		out = append(out, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list slots", err)
	}
	return out, nil
}

// DeleteSlot removes a slot. Occupied slots are refused; release the
// task first.
func (s *Store) DeleteSlot(ctx context.Context, slotID string) error {
	return s.withTx(ctx, "delete slot", func(tx *sql.Tx) error {
		sl, err := getSlot(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if sl.Status.IsActive() {
			return errors.NewInvalidTransitionError("slot", string(sl.Status), "deleted").
				WithReason("slot is occupied by task " + sl.TaskID)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM slots WHERE id = ?`, slotID)
		return mapError("delete slot", err)
	})
}

// writeSlot rewrites a slot row inside a transaction.
func writeSlot(ctx context.Context, tx *sql.Tx, sl *types.Slot) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE slots
		SET branch = ?, status = ?, task_id = ?, updated_at = ?
		WHERE id = ?`,
		sl.Branch, sl.Status, sl.TaskID, sl.UpdatedAt, sl.ID)
	return mapError("write slot", err)
}

// UpdateSlotStatus transitions a single slot with consistency checks.
func (s *Store) UpdateSlotStatus(ctx context.Context, slotID string, to types.SlotStatus) error {
	now := s.now()
	return s.withTx(ctx, "update slot status", func(tx *sql.Tx) error {
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
		return writeSlot(ctx, tx, &next)
	})
}
