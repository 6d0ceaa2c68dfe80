package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"tbcv/internal/logging"
	"tbcv/internal/types"
)

// Ops is the slice of the application service the runners need.
type Ops interface {
	ValidateFile(ctx context.Context, path string, family types.Family, validators []string) (*types.Validation, error)
	AutoEnhance(ctx context.Context, validationID string, force bool) (*types.EnhancementRecord, error)
}

// batchState is the resumable checkpoint payload shared by the batch runners.
type batchState struct {
	Items     []string `json:"items"`
	Done      int      `json:"done"`
	Failed    int      `json:"failed"`
	Succeeded int      `json:"succeeded"`
}

// ValidateFileRunner validates a single file. Trivially resumable: a resume
// simply revalidates.
type ValidateFileRunner struct {
	ops Ops
}

func NewValidateFileRunner(ops Ops) *ValidateFileRunner { return &ValidateFileRunner{ops: ops} }

func (r *ValidateFileRunner) Type() types.WorkflowType { return types.WorkflowValidateFile }

func (r *ValidateFileRunner) Run(ctx context.Context, rc *RunContext) error {
	path, _ := rc.Params["file_path"].(string)
	if path == "" {
		return fmt.Errorf("validate_file workflow requires file_path")
	}
	family := familyParam(rc.Params)

	v, err := r.ops.ValidateFile(ctx, path, family, nil)
	if err != nil {
		return err
	}
	return rc.Checkpoint(ctx, 1, "validated", batchState{Items: []string{path}, Done: 1, Succeeded: 1},
		100, map[string]any{"validation_id": v.ID, "severity": string(v.Severity)})
}

// ValidateFolderRunner validates every markdown file under a folder.
type ValidateFolderRunner struct {
	ops Ops
}

func NewValidateFolderRunner(ops Ops) *ValidateFolderRunner { return &ValidateFolderRunner{ops: ops} }

func (r *ValidateFolderRunner) Type() types.WorkflowType { return types.WorkflowValidateFolder }

func (r *ValidateFolderRunner) Run(ctx context.Context, rc *RunContext) error {
	state, err := restoreState(rc)
	if err != nil {
		return err
	}
	if state == nil {
		folder, _ := rc.Params["folder_path"].(string)
		if folder == "" {
			return fmt.Errorf("validate_folder workflow requires folder_path")
		}
		items, err := markdownFiles(folder)
		if err != nil {
			return err
		}
		state = &batchState{Items: items}
	}
	return runBatch(ctx, rc, state, func(ctx context.Context, path string) error {
		_, err := r.ops.ValidateFile(ctx, path, familyParam(rc.Params), nil)
		return err
	})
}

// BatchValidationRunner validates an explicit file list.
type BatchValidationRunner struct {
	ops Ops
}

func NewBatchValidationRunner(ops Ops) *BatchValidationRunner { return &BatchValidationRunner{ops: ops} }

func (r *BatchValidationRunner) Type() types.WorkflowType { return types.WorkflowBatchValidation }

func (r *BatchValidationRunner) Run(ctx context.Context, rc *RunContext) error {
	state, err := restoreState(rc)
	if err != nil {
		return err
	}
	if state == nil {
		items := stringsParam(rc.Params, "file_paths")
		if len(items) == 0 {
			return fmt.Errorf("batch_validation workflow requires file_paths")
		}
		state = &batchState{Items: items}
	}
	return runBatch(ctx, rc, state, func(ctx context.Context, path string) error {
		_, err := r.ops.ValidateFile(ctx, path, familyParam(rc.Params), nil)
		return err
	})
}

// BatchEnhancementRunner applies approved recommendations across a set of
// validations.
type BatchEnhancementRunner struct {
	ops Ops
}

func NewBatchEnhancementRunner(ops Ops) *BatchEnhancementRunner {
	return &BatchEnhancementRunner{ops: ops}
}

func (r *BatchEnhancementRunner) Type() types.WorkflowType { return types.WorkflowBatchEnhancement }

func (r *BatchEnhancementRunner) Run(ctx context.Context, rc *RunContext) error {
	state, err := restoreState(rc)
	if err != nil {
		return err
	}
	if state == nil {
		items := stringsParam(rc.Params, "validation_ids")
		if len(items) == 0 {
			return fmt.Errorf("batch_enhancement workflow requires validation_ids")
		}
		state = &batchState{Items: items}
	}
	force, _ := rc.Params["force"].(bool)
	return runBatch(ctx, rc, state, func(ctx context.Context, validationID string) error {
		_, err := r.ops.AutoEnhance(ctx, validationID, force)
		return err
	})
}

// runBatch drives a worker pool over the remaining items, checkpointing
// after every slice of work. The checkpoint is the pause/cancel boundary.
func runBatch(ctx context.Context, rc *RunContext, state *batchState, work func(context.Context, string) error) error {
	total := len(state.Items)
	if total == 0 {
		return rc.Checkpoint(ctx, 1, "empty", state, 100, map[string]any{"total": 0})
	}

	workers := rc.Workers()
	sem := semaphore.NewWeighted(int64(workers))
	step := state.Done/workers + 1

	for state.Done < total {
		// One slice of up to `workers` items between checkpoints.
		sliceEnd := state.Done + workers
		if sliceEnd > total {
			sliceEnd = total
		}
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, item := range state.Items[state.Done:sliceEnd] {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				err := work(ctx, item)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					state.Failed++
					logging.Get(logging.CategoryWorkflow).Warn("Batch item %s failed: %v", item, err)
				} else {
					state.Succeeded++
				}
			}()
		}
		wg.Wait()
		state.Done = sliceEnd

		progress := float64(state.Done) / float64(total) * 100
		summary := map[string]any{
			"total":     total,
			"done":      state.Done,
			"succeeded": state.Succeeded,
			"failed":    state.Failed,
		}
		if err := rc.Checkpoint(ctx, step, fmt.Sprintf("batch %d/%d", state.Done, total), state, progress, summary); err != nil {
			return err
		}
		step++

		if frac := float64(state.Failed) / float64(total); frac > rc.ErrorThreshold() {
			return fmt.Errorf("error threshold exceeded: %d of %d items failed", state.Failed, total)
		}
	}
	return nil
}

// restoreState decodes the resume checkpoint, nil for a fresh start.
func restoreState(rc *RunContext) (*batchState, error) {
	if len(rc.Resume) == 0 {
		return nil, nil
	}
	var state batchState
	if err := json.Unmarshal(rc.Resume, &state); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint state: %w", err)
	}
	return &state, nil
}

// markdownFiles walks a folder for .md/.markdown files, sorted for
// deterministic batch order.
func markdownFiles(folder string) ([]string, error) {
	var items []string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != folder {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".md" || ext == ".markdown" {
			items = append(items, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("folder %s does not exist", folder)
		}
		return nil, err
	}
	sort.Strings(items)
	return items, nil
}

func familyParam(params map[string]any) types.Family {
	if f, ok := params["family"].(string); ok && f != "" {
		return types.Family(f)
	}
	return types.FamilyGeneric
}

func stringsParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
