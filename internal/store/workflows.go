package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tbcv/internal/logging"
	"tbcv/internal/types"
)

// CreateWorkflow persists a new workflow in state pending.
func (s *Store) CreateWorkflow(ctx context.Context, w *types.Workflow) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	params, _ := json.Marshal(w.Parameters)
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, type, state, progress, parameters, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, string(w.Type), string(w.State), w.ProgressPercent, string(params), w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}
	return nil
}

// GetWorkflow loads one workflow by id.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*types.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, state, progress, parameters, summary, error, last_checkpoint_id, created_at, updated_at
		FROM workflows WHERE id = ?`, id)
	return scanWorkflow(row)
}

// ListWorkflows returns workflows newest first, optionally filtered by state.
func (s *Store) ListWorkflows(ctx context.Context, state types.WorkflowState, limit int) ([]*types.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, type, state, progress, parameters, summary, error, last_checkpoint_id, created_at, updated_at
		FROM workflows WHERE 1=1`
	args := []any{}
	if state != "" {
		query += " AND state = ?"
		args = append(args, string(state))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var out []*types.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ResumableWorkflows returns non-terminal workflows, oldest first. Used by
// the engine at startup to resume from checkpoints.
func (s *Store) ResumableWorkflows(ctx context.Context) ([]*types.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, state, progress, parameters, summary, error, last_checkpoint_id, created_at, updated_at
		FROM workflows WHERE state IN ('pending','running','paused') ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query resumable workflows: %w", err)
	}
	defer rows.Close()

	var out []*types.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// TransitionWorkflow performs a compare-and-set state transition honoring
// the state machine. Terminal states are absorbing.
func (s *Store) TransitionWorkflow(ctx context.Context, id string, from, to types.WorkflowState) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	if !types.CanTransitionWorkflow(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflows WHERE id = ?`, id).Scan(&exists); err == nil && exists == 0 {
			return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("%s -> %s lost race: %w", from, to, ErrInvalidTransition)
	}
	logging.WorkflowDebug("Workflow %s transitioned %s -> %s", id, from, to)
	return nil
}

// UpdateWorkflowProgress sets progress percent and an optional summary delta.
func (s *Store) UpdateWorkflowProgress(ctx context.Context, id string, percent float64, summary map[string]any) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if summary != nil {
		data, _ := json.Marshal(summary)
		_, err := s.db.ExecContext(ctx,
			`UPDATE workflows SET progress = ?, summary = ?, updated_at = ? WHERE id = ?`,
			percent, string(data), time.Now().UTC(), id)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET progress = ?, updated_at = ? WHERE id = ?`,
		percent, time.Now().UTC(), id)
	return err
}

// SetWorkflowError records the short failure message on the row. The full
// trace goes to the structured log.
func (s *Store) SetWorkflowError(ctx context.Context, id, msg string) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET error = ?, updated_at = ? WHERE id = ?`, msg, time.Now().UTC(), id)
	return err
}

// DeleteWorkflow removes a terminal workflow and its checkpoints.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.getWorkflowLocked(ctx, id)
	if err != nil {
		return err
	}
	if !w.State.Terminal() {
		return fmt.Errorf("workflow %s is %s: %w", id, w.State, ErrConflict)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE workflow_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	return err
}

// SaveCheckpoint stores a checkpoint and points the workflow at it.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (id, workflow_id, step_number, name, state_data, can_resume_from, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id, step_number) DO UPDATE SET
			id = excluded.id, name = excluded.name, state_data = excluded.state_data,
			can_resume_from = excluded.can_resume_from, created_at = excluded.created_at`,
		cp.ID, cp.WorkflowID, cp.StepNumber, cp.Name, cp.StateData, boolInt(cp.CanResumeFrom), cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE workflows SET last_checkpoint_id = ?, updated_at = ? WHERE id = ?`,
		cp.ID, time.Now().UTC(), cp.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to update workflow checkpoint pointer: %w", err)
	}
	return tx.Commit()
}

// LastCheckpoint returns the most recent resumable checkpoint for a workflow.
func (s *Store) LastCheckpoint(ctx context.Context, workflowID string) (*types.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, step_number, name, state_data, can_resume_from, created_at
		FROM checkpoints WHERE workflow_id = ? AND can_resume_from = 1
		ORDER BY step_number DESC LIMIT 1`, workflowID)

	var cp types.Checkpoint
	var canResume int
	err := row.Scan(&cp.ID, &cp.WorkflowID, &cp.StepNumber, &cp.Name, &cp.StateData, &canResume, &cp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkpoint: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	cp.CanResumeFrom = canResume != 0
	return &cp, nil
}

func (s *Store) getWorkflowLocked(ctx context.Context, id string) (*types.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, state, progress, parameters, summary, error, last_checkpoint_id, created_at, updated_at
		FROM workflows WHERE id = ?`, id)
	return scanWorkflow(row)
}

func scanWorkflow(row rowScanner) (*types.Workflow, error) {
	var w types.Workflow
	var typ, state string
	var params, summary, errMsg, lastCP sql.NullString
	err := row.Scan(&w.ID, &typ, &state, &w.ProgressPercent, &params, &summary, &errMsg, &lastCP, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}
	w.Type = types.WorkflowType(typ)
	w.State = types.WorkflowState(state)
	w.Error = errMsg.String
	w.LastCheckpointID = lastCP.String
	if params.Valid && params.String != "null" {
		_ = json.Unmarshal([]byte(params.String), &w.Parameters)
	}
	if summary.Valid && summary.String != "null" {
		_ = json.Unmarshal([]byte(summary.String), &w.Summary)
	}
	return &w, nil
}
