package enhance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tbcv/internal/config"
	"tbcv/internal/diff"
	"tbcv/internal/events"
	"tbcv/internal/logging"
	"tbcv/internal/rpc/rpcctx"
	"tbcv/internal/store"
	"tbcv/internal/types"
	"tbcv/internal/validator"
)

// ErrSafetyGate is returned when a preview's safety score is below the
// configured threshold and force was not set.
var ErrSafetyGate = errors.New("safety score below threshold")

// ErrPreviewExpired is returned when an apply references an unknown or
// expired preview.
var ErrPreviewExpired = errors.New("preview expired or unknown")

// ErrContentDrift is returned when the file on disk no longer matches the
// content the preview was computed against.
var ErrContentDrift = errors.New("file changed since preview")

// Enhancer applies approved recommendations to files with preview, safety
// gating, crash-safe apply and rollback.
type Enhancer struct {
	store    *store.Store
	bus      *events.Bus
	cfg      config.EnhanceConfig
	previews *previewStore
	diff     *diff.Engine

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per file path
}

// NewEnhancer wires the enhancer.
func NewEnhancer(st *store.Store, bus *events.Bus, cfg config.EnhanceConfig) *Enhancer {
	ttl, err := time.ParseDuration(cfg.PreviewTTL)
	if err != nil || ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Enhancer{
		store:    st,
		bus:      bus,
		cfg:      cfg,
		previews: newPreviewStore(ttl),
		diff:     diff.DefaultEngine,
		locks:    make(map[string]*sync.Mutex),
	}
}

// pathLock returns the mutex serializing operations on one file path.
func (e *Enhancer) pathLock(path string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok := e.locks[path]; ok {
		return l
	}
	l := &sync.Mutex{}
	e.locks[path] = l
	return l
}

func (e *Enhancer) safetyThreshold() float64 {
	if e.cfg.SafetyThreshold > 0 {
		return e.cfg.SafetyThreshold
	}
	return 0.8
}

func (e *Enhancer) rollbackTTL() time.Duration {
	d, err := time.ParseDuration(e.cfg.RollbackTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// Preview computes the enhanced document for a validation's approved
// recommendations without touching disk. recIDs narrows the set; empty means
// all approved.
func (e *Enhancer) Preview(ctx context.Context, validationID string, recIDs []string, rules types.PreservationRules) (*types.EnhancementPreview, error) {
	timer := logging.StartTimer(logging.CategoryEnhance, "Preview")
	defer timer.Stop()

	v, err := e.store.GetValidation(ctx, validationID)
	if err != nil {
		return nil, err
	}

	recs, err := e.store.RecommendationsByValidation(ctx, validationID, types.RecApproved)
	if err != nil {
		return nil, err
	}
	if len(recIDs) > 0 {
		want := make(map[string]bool, len(recIDs))
		for _, id := range recIDs {
			want[id] = true
		}
		filtered := recs[:0]
		for _, r := range recs {
			if want[r.ID] {
				filtered = append(filtered, r)
			}
		}
		recs = filtered
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("validation %s has no approved recommendations: %w", validationID, store.ErrNotFound)
	}

	original, err := e.currentContent(v)
	if err != nil {
		return nil, err
	}
	doc := validator.ParseDocument(original)
	lines := doc.Lines

	var planned []*edit
	var skipped []*skip
	for _, rec := range recs {
		ed, sk := planEdit(rec, lines, doc.FrontmatterEnd)
		if sk != nil {
			skipped = append(skipped, sk)
			continue
		}
		planned = append(planned, ed)
	}

	kept, conflicts := resolveConflicts(planned)
	skipped = append(skipped, conflicts...)

	newLines, applied := applyEdits(lines, kept)
	enhanced := joinLines(newLines)

	contextLines := e.cfg.ContextLines
	if contextLines <= 0 {
		contextLines = 10
	}
	for i := range applied {
		_, window := contextWindow(newLines, applied[i].StartLine, contextLines)
		applied[i].Context = joinLines(window)
	}

	frontmatterTargeted := false
	for _, ed := range kept {
		if ed.rec.Type == types.RecMissingInfo || ed.rec.Target.Selector == "frontmatter" {
			frontmatterTargeted = true
		}
	}
	preservation := checkPreservation(original, enhanced, rules, frontmatterTargeted)
	safety := scoreSafety(preservation)

	d := e.diff.Compute(v.FilePath, v.FilePath, original, enhanced)

	preview := &types.EnhancementPreview{
		PreviewID:    uuid.NewString(),
		ValidationID: validationID,
		FilePath:     v.FilePath,
		Original:     original,
		Enhanced:     enhanced,
		UnifiedDiff:  d.Unified,
		Stats: types.EnhancementStats{
			LinesAdded:   d.Stats.LinesAdded,
			LinesRemoved: d.Stats.LinesRemoved,
			LinesChanged: d.Stats.LinesChanged,
			OriginalLen:  len(original),
			EnhancedLen:  len(enhanced),
		},
		Applied:      applied,
		Skipped:      skipReasons(skipped),
		Safety:       safety,
		Preservation: preservation,
	}
	e.previews.put(preview)
	logging.Enhance("Preview %s for %s: %d edits, %d skipped, safety=%.2f",
		preview.PreviewID, v.FilePath, len(applied), len(preview.Skipped), safety.Overall)
	return preview, nil
}

// GetPreview returns a live preview by id.
func (e *Enhancer) GetPreview(id string) (*types.EnhancementPreview, error) {
	p := e.previews.get(id)
	if p == nil {
		return nil, ErrPreviewExpired
	}
	return p, nil
}

// Apply writes a previewed enhancement to disk. The sequence is crash-safe:
// the record is inserted with pending_commit set, the file is replaced
// atomically, then the record is finalized and statuses advance. Startup
// recovery resolves any crash between those steps.
func (e *Enhancer) Apply(ctx context.Context, previewID string, force bool, appliedBy string) (*types.EnhancementRecord, error) {
	preview := e.previews.get(previewID)
	if preview == nil {
		return nil, ErrPreviewExpired
	}

	if preview.Safety.Overall < e.safetyThreshold() && !force {
		return nil, fmt.Errorf("safety %.2f < %.2f: %w", preview.Safety.Overall, e.safetyThreshold(), ErrSafetyGate)
	}

	lock := e.pathLock(preview.FilePath)
	lock.Lock()
	defer lock.Unlock()

	info, err := os.Stat(preview.FilePath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", preview.FilePath, err)
	}
	currentBytes, err := os.ReadFile(preview.FilePath)
	if err != nil {
		return nil, err
	}
	if types.HashBytes(currentBytes) != types.HashContent(preview.Original) {
		return nil, fmt.Errorf("%s: %w", preview.FilePath, ErrContentDrift)
	}

	now := time.Now().UTC()
	record := &types.EnhancementRecord{
		ID:                uuid.NewString(),
		ValidationID:      preview.ValidationID,
		FilePath:          preview.FilePath,
		OriginalHash:      types.HashContent(preview.Original),
		EnhancedHash:      types.HashContent(preview.Enhanced),
		RecommendationIDs: appliedIDs(preview.Applied),
		Safety:            preview.Safety,
		Preservation:      preview.Preservation,
		AppliedBy:         appliedBy,
		AppliedAt:         now,
		Rollback: types.RollbackPoint{
			Content:  currentBytes,
			Mode:     uint32(info.Mode().Perm()),
			ModTime:  info.ModTime(),
			Captured: now,
		},
		PendingCommit:     true,
		RollbackExpiresAt: now.Add(e.rollbackTTL()),
	}
	if err := e.store.CreateEnhancement(ctx, record); err != nil {
		return nil, err
	}

	if err := writeFileAtomic(preview.FilePath, []byte(preview.Enhanced), info.Mode().Perm()); err != nil {
		// The write never happened; the pending record is now garbage.
		_ = e.store.DeleteEnhancement(ctx, record.ID)
		return nil, fmt.Errorf("writing %s: %w", preview.FilePath, err)
	}

	if err := e.commitApply(ctx, record, preview); err != nil {
		// Recovery finalizes on next startup; report but do not unwind the
		// file write.
		logging.Get(logging.CategoryEnhance).Error("Apply commit incomplete for %s: %v", record.ID, err)
		return record, nil
	}

	e.previews.drop(previewID)
	e.bus.Publish(events.TopicEnhancement, map[string]any{
		"enhancement_id": record.ID,
		"validation_id":  record.ValidationID,
		"file_path":      record.FilePath,
		"safety":         record.Safety.Overall,
	})
	logging.Enhance("Applied enhancement %s to %s (%d recommendations)",
		record.ID, record.FilePath, len(record.RecommendationIDs))
	return record, nil
}

// commitApply finalizes the record and advances entity statuses.
func (e *Enhancer) commitApply(ctx context.Context, record *types.EnhancementRecord, preview *types.EnhancementPreview) error {
	if err := e.store.FinalizeEnhancement(ctx, record.ID); err != nil {
		return err
	}
	record.PendingCommit = false

	if err := e.store.TransitionValidation(ctx, record.ValidationID, types.ValidationApproved, types.ValidationEnhanced); err != nil {
		if !errors.Is(err, store.ErrInvalidTransition) {
			return err
		}
	}
	enhanced := preview.Enhanced
	if err := e.store.UpdateValidationFields(ctx, record.ValidationID, &enhanced, nil); err != nil {
		return err
	}
	for _, recID := range record.RecommendationIDs {
		if err := e.store.TransitionRecommendation(ctx, recID, types.RecApproved, types.RecApplied); err != nil {
			if !errors.Is(err, store.ErrInvalidTransition) {
				return err
			}
		}
	}
	return nil
}

// Rollback restores the pre-enhancement file content.
func (e *Enhancer) Rollback(ctx context.Context, enhancementID string, force bool) (*types.EnhancementRecord, error) {
	record, err := e.store.GetEnhancement(ctx, enhancementID)
	if err != nil {
		return nil, err
	}
	if record.RolledBack {
		return nil, fmt.Errorf("enhancement %s already rolled back: %w", enhancementID, store.ErrConflict)
	}
	now := time.Now().UTC()
	if len(record.Rollback.Content) == 0 || now.After(record.RollbackExpiresAt) {
		return nil, fmt.Errorf("enhancement %s: %w", enhancementID, store.ErrRollbackExpired)
	}

	lock := e.pathLock(record.FilePath)
	lock.Lock()
	defer lock.Unlock()

	currentBytes, err := os.ReadFile(record.FilePath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil && types.HashBytes(currentBytes) != record.EnhancedHash && !force {
		return nil, fmt.Errorf("%s changed since enhancement; use force: %w", record.FilePath, ErrContentDrift)
	}

	mode := os.FileMode(record.Rollback.Mode)
	if mode == 0 {
		mode = 0o644
	}
	if err := writeFileAtomic(record.FilePath, record.Rollback.Content, mode); err != nil {
		return nil, fmt.Errorf("restoring %s: %w", record.FilePath, err)
	}

	if err := e.store.MarkRolledBack(ctx, enhancementID, now); err != nil {
		return nil, err
	}
	record.RolledBack = true
	record.RolledBackAt = now

	// Reverse the status transitions.
	if err := e.store.ForceValidationStatus(ctx, record.ValidationID, types.ValidationApproved); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	for _, recID := range record.RecommendationIDs {
		if err := e.store.ForceRecommendationStatus(ctx, recID, types.RecApproved); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	e.bus.Publish(events.TopicRollback, map[string]any{
		"enhancement_id": record.ID,
		"validation_id":  record.ValidationID,
		"file_path":      record.FilePath,
	})
	logging.Enhance("Rolled back enhancement %s on %s", record.ID, record.FilePath)
	return record, nil
}

// RecoverPending resolves enhancements left mid-apply by a crash: a record
// whose file already carries the enhanced content is finalized, anything
// else is deleted because the write never landed.
func (e *Enhancer) RecoverPending(ctx context.Context) (finalized, reversed int, err error) {
	ctx = rpcctx.WithRPC(ctx, "startup.recovery")
	pending, err := e.store.PendingCommitEnhancements(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, record := range pending {
		data, readErr := os.ReadFile(record.FilePath)
		if readErr == nil && types.HashBytes(data) == record.EnhancedHash {
			if err := e.store.FinalizeEnhancement(ctx, record.ID); err != nil {
				logging.Get(logging.CategoryEnhance).Error("Recovery finalize %s: %v", record.ID, err)
				continue
			}
			if err := e.store.TransitionValidation(ctx, record.ValidationID, types.ValidationApproved, types.ValidationEnhanced); err != nil && !errors.Is(err, store.ErrInvalidTransition) {
				logging.Get(logging.CategoryEnhance).Error("Recovery transition %s: %v", record.ValidationID, err)
			}
			for _, recID := range record.RecommendationIDs {
				_ = e.store.TransitionRecommendation(ctx, recID, types.RecApproved, types.RecApplied)
			}
			finalized++
			continue
		}
		if err := e.store.DeleteEnhancement(ctx, record.ID); err != nil {
			logging.Get(logging.CategoryEnhance).Error("Recovery delete %s: %v", record.ID, err)
			continue
		}
		reversed++
	}
	if finalized+reversed > 0 {
		logging.Enhance("Recovery: finalized %d, reversed %d pending enhancements", finalized, reversed)
	}
	return finalized, reversed, nil
}

// ExpireRollbacks clears rollback bytes past their TTL.
func (e *Enhancer) ExpireRollbacks(ctx context.Context) (int, error) {
	return e.store.ExpireRollbacks(ctx, time.Now().UTC())
}

// currentContent reads the file, falling back to the stored original when
// the file is gone.
func (e *Enhancer) currentContent(v *types.Validation) (string, error) {
	data, err := os.ReadFile(v.FilePath)
	if err != nil {
		if os.IsNotExist(err) && v.OriginalContent != "" {
			return v.OriginalContent, nil
		}
		return "", err
	}
	return string(data), nil
}

// writeFileAtomic writes via a temp file in the same directory plus rename.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

func appliedIDs(edits []types.AppliedEdit) []string {
	out := make([]string, 0, len(edits))
	for _, e := range edits {
		out = append(out, e.RecommendationID)
	}
	return out
}

func skipReasons(skips []*skip) []types.SkippedRecommendation {
	out := make([]types.SkippedRecommendation, 0, len(skips))
	for _, s := range skips {
		out = append(out, types.SkippedRecommendation{
			RecommendationID: s.rec.ID,
			Reason:           s.reason,
		})
	}
	return out
}
