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

// rollbackMeta is the JSON sidecar stored next to the rollback bytes.
type rollbackMeta struct {
	Mode     uint32    `json:"mode"`
	ModTime  time.Time `json:"mod_time"`
	Captured time.Time `json:"captured_at"`
}

// CreateEnhancement inserts an enhancement record. When pendingCommit is
// true the record must later be finalized (or reversed) by the recovery
// protocol; the file write sits between the two.
func (s *Store) CreateEnhancement(ctx context.Context, r *types.EnhancementRecord) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recIDs, _ := json.Marshal(r.RecommendationIDs)
	safety, _ := json.Marshal(r.Safety)
	preservation, _ := json.Marshal(r.Preservation)
	meta, _ := json.Marshal(rollbackMeta{Mode: r.Rollback.Mode, ModTime: r.Rollback.ModTime, Captured: r.Rollback.Captured})

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enhancements (id, validation_id, file_path, original_hash, enhanced_hash,
			recommendation_ids, safety, preservation, applied_by, applied_at,
			rollback_point, rollback_meta, pending_commit, rolled_back, rollback_expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		r.ID, r.ValidationID, r.FilePath, r.OriginalHash, r.EnhancedHash,
		string(recIDs), string(safety), string(preservation), r.AppliedBy, r.AppliedAt,
		r.Rollback.Content, string(meta), boolInt(r.PendingCommit), r.RollbackExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert enhancement: %w", err)
	}
	logging.EnhanceDebug("Created enhancement record %s (pending_commit=%v)", r.ID, r.PendingCommit)
	return nil
}

// FinalizeEnhancement clears the pending_commit flag once the store update
// that follows the file write has succeeded.
func (s *Store) FinalizeEnhancement(ctx context.Context, id string) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE enhancements SET pending_commit = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to finalize enhancement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("enhancement %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteEnhancement removes a record entirely. Used by recovery when the
// file write is reversed.
func (s *Store) DeleteEnhancement(ctx context.Context, id string) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM enhancements WHERE id = ?`, id)
	return err
}

// GetEnhancement loads one enhancement record, including rollback bytes.
func (s *Store) GetEnhancement(ctx context.Context, id string) (*types.EnhancementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, validation_id, file_path, original_hash, enhanced_hash,
			recommendation_ids, safety, preservation, applied_by, applied_at,
			rollback_point, rollback_meta, pending_commit, rolled_back, rolled_back_at, rollback_expires_at
		FROM enhancements WHERE id = ?`, id)
	return scanEnhancement(row)
}

// EnhancementsByValidation returns records for a validation, newest first.
func (s *Store) EnhancementsByValidation(ctx context.Context, validationID string) ([]*types.EnhancementRecord, error) {
	return s.queryEnhancements(ctx, `validation_id = ?`, validationID)
}

// PendingCommitEnhancements returns records stuck between file write and
// store finalization. Scanned at startup by crash recovery.
func (s *Store) PendingCommitEnhancements(ctx context.Context) ([]*types.EnhancementRecord, error) {
	return s.queryEnhancements(ctx, `pending_commit = 1`)
}

func (s *Store) queryEnhancements(ctx context.Context, where string, args ...any) ([]*types.EnhancementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, validation_id, file_path, original_hash, enhanced_hash,
			recommendation_ids, safety, preservation, applied_by, applied_at,
			rollback_point, rollback_meta, pending_commit, rolled_back, rolled_back_at, rollback_expires_at
		FROM enhancements WHERE `+where+` ORDER BY applied_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enhancements: %w", err)
	}
	defer rows.Close()

	var out []*types.EnhancementRecord
	for rows.Next() {
		r, err := scanEnhancement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkRolledBack records a completed rollback.
func (s *Store) MarkRolledBack(ctx context.Context, id string, at time.Time) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE enhancements SET rolled_back = 1, rolled_back_at = ? WHERE id = ? AND rolled_back = 0`,
		at, id)
	if err != nil {
		return fmt.Errorf("failed to mark rollback: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("enhancement %s already rolled back or missing: %w", id, ErrConflict)
	}
	return nil
}

// ExpireRollbacks clears rollback bytes for records past their expiry and
// returns the count. History rows remain for audit; only the bytes go.
func (s *Store) ExpireRollbacks(ctx context.Context, now time.Time) (int, error) {
	if err := requireRPC(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE enhancements SET rollback_point = X'' WHERE rollback_expires_at <= ? AND rolled_back = 0 AND length(rollback_point) > 0`,
		now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire rollbacks: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanEnhancement(row rowScanner) (*types.EnhancementRecord, error) {
	var r types.EnhancementRecord
	var recIDs, safety, preservation, meta sql.NullString
	var pending, rolledBack int
	var rolledBackAt sql.NullTime
	err := row.Scan(&r.ID, &r.ValidationID, &r.FilePath, &r.OriginalHash, &r.EnhancedHash,
		&recIDs, &safety, &preservation, &r.AppliedBy, &r.AppliedAt,
		&r.Rollback.Content, &meta, &pending, &rolledBack, &rolledBackAt, &r.RollbackExpiresAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("enhancement: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan enhancement: %w", err)
	}
	r.PendingCommit = pending != 0
	r.RolledBack = rolledBack != 0
	if rolledBackAt.Valid {
		r.RolledBackAt = rolledBackAt.Time
	}
	if recIDs.Valid {
		_ = json.Unmarshal([]byte(recIDs.String), &r.RecommendationIDs)
	}
	if safety.Valid {
		_ = json.Unmarshal([]byte(safety.String), &r.Safety)
	}
	if preservation.Valid {
		_ = json.Unmarshal([]byte(preservation.String), &r.Preservation)
	}
	if meta.Valid {
		var m rollbackMeta
		if json.Unmarshal([]byte(meta.String), &m) == nil {
			r.Rollback.Mode = m.Mode
			r.Rollback.ModTime = m.ModTime
			r.Rollback.Captured = m.Captured
		}
	}
	return &r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
