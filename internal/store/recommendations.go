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

// CreateRecommendations inserts a batch of recommendations in one transaction.
func (s *Store) CreateRecommendations(ctx context.Context, recs []*types.Recommendation) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range recs {
		target, _ := json.Marshal(r.Target)
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recommendations (id, validation_id, type, target, suggested_change,
				rationale, status, severity_score, critique_score, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.ValidationID, string(r.Type), string(target), r.SuggestedChange,
			r.Rationale, string(r.Status), r.SeverityScore, nullFloat(r.CritiqueScore), r.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert recommendation %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit recommendations: %w", err)
	}
	logging.StoreDebug("Created %d recommendations", len(recs))
	return nil
}

// GetRecommendation loads one recommendation by id.
func (s *Store) GetRecommendation(ctx context.Context, id string) (*types.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, validation_id, type, target, suggested_change, rationale, status,
			severity_score, critique_score, created_at
		FROM recommendations WHERE id = ?`, id)
	return scanRecommendation(row)
}

// RecommendationsByValidation returns recommendations for a validation,
// optionally filtered by status.
func (s *Store) RecommendationsByValidation(ctx context.Context, validationID string, status types.RecommendationStatus) ([]*types.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, validation_id, type, target, suggested_change, rationale, status,
		severity_score, critique_score, created_at
		FROM recommendations WHERE validation_id = ?`
	args := []any{validationID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY severity_score DESC, created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var out []*types.Recommendation
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TransitionRecommendation performs a compare-and-set status transition.
func (s *Store) TransitionRecommendation(ctx context.Context, id string, from, to types.RecommendationStatus) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	if !types.CanTransitionRecommendation(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendations SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition recommendation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recommendations WHERE id = ?`, id).Scan(&exists); err == nil && exists == 0 {
			return fmt.Errorf("recommendation %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("%s -> %s lost race: %w", from, to, ErrInvalidTransition)
	}
	return nil
}

// ForceRecommendationStatus sets a status directly. Used only by rollback,
// which reverses applied -> approved outside the normal transition table.
func (s *Store) ForceRecommendationStatus(ctx context.Context, id string, to types.RecommendationStatus) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE recommendations SET status = ? WHERE id = ?`, string(to), id)
	if err != nil {
		return fmt.Errorf("failed to set recommendation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recommendation %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteRecommendation removes one pending or rejected recommendation.
func (s *Store) DeleteRecommendation(ctx context.Context, id string) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRecommendationLocked(ctx, id)
	if err != nil {
		return err
	}
	if r.Status == types.RecApplied {
		return fmt.Errorf("recommendation %s is applied: %w", id, ErrConflict)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM recommendations WHERE id = ?`, id)
	return err
}

// DeleteRecommendationsByValidation removes all recommendations for a
// validation and returns the count deleted. Used by rebuild.
func (s *Store) DeleteRecommendationsByValidation(ctx context.Context, validationID string) (int, error) {
	if err := requireRPC(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM recommendations WHERE validation_id = ?`, validationID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete recommendations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// SetCritiqueScore stores the self-critique score for a recommendation.
func (s *Store) SetCritiqueScore(ctx context.Context, id string, score float64) error {
	if err := requireRPC(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE recommendations SET critique_score = ? WHERE id = ?`, score, id)
	return err
}

func (s *Store) getRecommendationLocked(ctx context.Context, id string) (*types.Recommendation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, validation_id, type, target, suggested_change, rationale, status,
			severity_score, critique_score, created_at
		FROM recommendations WHERE id = ?`, id)
	return scanRecommendation(row)
}

func scanRecommendation(row rowScanner) (*types.Recommendation, error) {
	var r types.Recommendation
	var typ, status, target string
	var critique sql.NullFloat64
	err := row.Scan(&r.ID, &r.ValidationID, &typ, &target, &r.SuggestedChange,
		&r.Rationale, &status, &r.SeverityScore, &critique, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("recommendation: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan recommendation: %w", err)
	}
	r.Type = types.RecommendationType(typ)
	r.Status = types.RecommendationStatus(status)
	r.CritiqueScore = critique.Float64
	_ = json.Unmarshal([]byte(target), &r.Target)
	return &r, nil
}

func nullFloat(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}
