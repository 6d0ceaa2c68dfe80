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

// CreateValidation persists a new validation in status pending.
func (s *Store) CreateValidation(ctx context.Context, v *types.Validation) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, _ := json.Marshal(v.RulesApplied)
	report, _ := json.Marshal(v.Report)
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validations (id, file_path, family, content_hash, status, severity,
			rules_applied, report, original_content, enhanced_content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.FilePath, string(v.Family), v.ContentHash, string(v.Status), string(v.Severity),
		string(rules), string(report), v.OriginalContent, nullString(v.EnhancedContent),
		v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert validation: %w", err)
	}
	logging.StoreDebug("Created validation %s for %s", v.ID, v.FilePath)
	return nil
}

// GetValidation loads one validation by id.
func (s *Store) GetValidation(ctx context.Context, id string) (*types.Validation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_path, family, content_hash, status, severity,
			rules_applied, report, original_content, enhanced_content, created_at, updated_at
		FROM validations WHERE id = ?`, id)
	return scanValidation(row)
}

// ValidationFilter narrows ListValidations.
type ValidationFilter struct {
	Status   types.ValidationStatus
	Family   types.Family
	FilePath string
	Limit    int
	Offset   int
}

// ListValidations returns validations newest first, optionally filtered.
func (s *Store) ListValidations(ctx context.Context, f ValidationFilter) ([]*types.Validation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, file_path, family, content_hash, status, severity,
		rules_applied, report, original_content, enhanced_content, created_at, updated_at
		FROM validations WHERE 1=1`
	args := []any{}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.Family != "" {
		query += " AND family = ?"
		args = append(args, string(f.Family))
	}
	if f.FilePath != "" {
		query += " AND file_path = ?"
		args = append(args, f.FilePath)
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list validations: %w", err)
	}
	defer rows.Close()

	var out []*types.Validation
	for rows.Next() {
		v, err := scanValidation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ValidationHistory returns all validations for a file path, newest first.
func (s *Store) ValidationHistory(ctx context.Context, filePath string, limit int) ([]*types.Validation, error) {
	return s.ListValidations(ctx, ValidationFilter{FilePath: filePath, Limit: limit})
}

// TransitionValidation performs a compare-and-set status transition. Exactly
// one of two concurrent conflicting transitions succeeds; the loser gets
// ErrInvalidTransition (or, for an idempotent repeat of the same terminal
// transition, the current row with ok=false).
func (s *Store) TransitionValidation(ctx context.Context, id string, from, to types.ValidationStatus) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	if !types.CanTransitionValidation(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE validations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition validation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Row moved out from under us (or does not exist).
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM validations WHERE id = ?`, id).Scan(&exists); err == nil && exists == 0 {
			return fmt.Errorf("validation %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("%s -> %s lost race: %w", from, to, ErrInvalidTransition)
	}
	logging.StoreDebug("Validation %s transitioned %s -> %s", id, from, to)
	return nil
}

// ForceValidationStatus sets the status without consulting the transition
// table. Reserved for the rollback path, which reverses enhanced back to
// approved.
func (s *Store) ForceValidationStatus(ctx context.Context, id string, to types.ValidationStatus) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE validations SET status = ?, updated_at = ? WHERE id = ?`,
		string(to), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to force validation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("validation %s: %w", id, ErrNotFound)
	}
	logging.StoreDebug("Validation %s forced to %s", id, to)
	return nil
}

// UpdateValidationFields updates the mutable non-status fields of a validation.
func (s *Store) UpdateValidationFields(ctx context.Context, id string, enhancedContent *string, rules map[string]string) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.getValidationLocked(ctx, id)
	if err != nil {
		return err
	}
	if enhancedContent != nil {
		v.EnhancedContent = *enhancedContent
	}
	if rules != nil {
		v.RulesApplied = rules
	}
	rulesJSON, _ := json.Marshal(v.RulesApplied)
	_, err = s.db.ExecContext(ctx,
		`UPDATE validations SET enhanced_content = ?, rules_applied = ?, updated_at = ? WHERE id = ?`,
		nullString(v.EnhancedContent), string(rulesJSON), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update validation: %w", err)
	}
	return nil
}

// DeleteValidation removes a validation unless a live enhancement record
// still points at it.
func (s *Store) DeleteValidation(ctx context.Context, id string) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var live int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM enhancements
		WHERE validation_id = ? AND rolled_back = 0 AND rollback_expires_at > ?`,
		id, time.Now().UTC()).Scan(&live)
	if err != nil {
		return fmt.Errorf("failed to check enhancements: %w", err)
	}
	if live > 0 {
		return fmt.Errorf("validation %s has %d live enhancement(s): %w", id, live, ErrConflict)
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM validations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete validation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("validation %s: %w", id, ErrNotFound)
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM recommendations WHERE validation_id = ?`, id)
	return nil
}

func (s *Store) getValidationLocked(ctx context.Context, id string) (*types.Validation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_path, family, content_hash, status, severity,
			rules_applied, report, original_content, enhanced_content, created_at, updated_at
		FROM validations WHERE id = ?`, id)
	return scanValidation(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanValidation(row rowScanner) (*types.Validation, error) {
	var v types.Validation
	var family, status, severity string
	var rules, report sql.NullString
	var enhanced sql.NullString
	err := row.Scan(&v.ID, &v.FilePath, &family, &v.ContentHash, &status, &severity,
		&rules, &report, &v.OriginalContent, &enhanced, &v.CreatedAt, &v.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("validation: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan validation: %w", err)
	}
	v.Family = types.Family(family)
	v.Status = types.ValidationStatus(status)
	v.Severity = types.Severity(severity)
	v.EnhancedContent = enhanced.String
	if rules.Valid && rules.String != "" && rules.String != "null" {
		_ = json.Unmarshal([]byte(rules.String), &v.RulesApplied)
	}
	if report.Valid && report.String != "" && report.String != "null" {
		_ = json.Unmarshal([]byte(report.String), &v.Report)
	}
	return &v, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
