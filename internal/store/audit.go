package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tbcv/internal/types"
)

// AppendAudit records one mutation in the append-only audit log.
func (s *Store) AppendAudit(ctx context.Context, e *types.AuditEntry) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (method, entity_kind, entity_id, action, correlation_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Method, e.EntityKind, e.EntityID, e.Action, e.CorrelationID, e.Detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// AuditLog returns recent audit entries, newest first.
func (s *Store) AuditLog(ctx context.Context, method string, limit int) ([]*types.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, method, entity_kind, entity_id, action, correlation_id, detail, created_at
		FROM audit_log`
	args := []any{}
	if method != "" {
		query += " WHERE method = ?"
		args = append(args, method)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []*types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var entityID, corr, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Method, &e.EntityKind, &entityID, &e.Action, &corr, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.EntityID = entityID.String
		e.CorrelationID = corr.String
		e.Detail = detail.String
		out = append(out, &e)
	}
	return out, rows.Err()
}
