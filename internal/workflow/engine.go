// Package workflow runs long-lived batch jobs as a checkpointed state
// machine. State transitions go through the store's compare-and-swap so
// concurrent control calls cannot fork the lifecycle; pause is observed at
// checkpoint boundaries; resume replays from the last checkpoint, including
// after a process restart.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tbcv/internal/config"
	"tbcv/internal/events"
	"tbcv/internal/logging"
	"tbcv/internal/rpc/rpcctx"
	"tbcv/internal/store"
	"tbcv/internal/types"
)

// ErrMaintenance is returned when admission is refused in maintenance mode.
var ErrMaintenance = errors.New("maintenance mode: new workflows refused")

// ErrUnknownType is returned for workflow types with no registered runner.
var ErrUnknownType = errors.New("unknown workflow type")

// errPaused unwinds a runner when a pause request lands at a checkpoint.
var errPaused = errors.New("workflow paused")

// Runner executes one workflow type.
type Runner interface {
	Type() types.WorkflowType
	// Run executes from rc.Resume (nil on a fresh start) to completion.
	Run(ctx context.Context, rc *RunContext) error
}

// RunContext is the runner's view of its workflow.
type RunContext struct {
	Workflow *types.Workflow
	Params   map[string]any
	// Resume holds the last checkpoint's state, nil on a fresh start.
	Resume []byte

	engine *Engine
}

// Checkpoint persists resumable state at a step boundary, publishes progress
// and observes pause/cancel requests. Runners call it between units of work.
func (rc *RunContext) Checkpoint(ctx context.Context, step int, name string, state any, progress float64, summary map[string]any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint state: %w", err)
	}
	cp := &types.Checkpoint{
		ID:            uuid.NewString(),
		WorkflowID:    rc.Workflow.ID,
		StepNumber:    step,
		Name:          name,
		StateData:     data,
		CanResumeFrom: true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := rc.engine.store.SaveCheckpoint(ctx, cp); err != nil {
		return err
	}
	if err := rc.engine.store.UpdateWorkflowProgress(ctx, rc.Workflow.ID, progress, summary); err != nil {
		return err
	}

	// Pause requests take effect here, never mid-step. The pause/cancel check
	// comes before the progress event so a paused workflow goes quiet.
	w, err := rc.engine.store.GetWorkflow(ctx, rc.Workflow.ID)
	if err != nil {
		return err
	}
	if w.State == types.WorkflowPaused {
		return errPaused
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	rc.engine.bus.Publish(events.TopicProgress, map[string]any{
		"workflow_id": rc.Workflow.ID,
		"step":        step,
		"name":        name,
		"progress":    progress,
	})
	return nil
}

// Workers returns the configured worker pool size.
func (rc *RunContext) Workers() int {
	n := rc.engine.cfg.Workers
	if n <= 0 {
		n = 8
	}
	return n
}

// ErrorThreshold returns the failure fraction that fails the whole workflow.
func (rc *RunContext) ErrorThreshold() float64 {
	t := rc.engine.cfg.ErrorThreshold
	if t <= 0 {
		t = 0.5
	}
	return t
}

// Engine admits, runs and controls workflows.
type Engine struct {
	store   *store.Store
	bus     *events.Bus
	cfg     config.WorkflowConfig
	runners map[types.WorkflowType]Runner

	mu          sync.Mutex
	cancels     map[string]context.CancelFunc
	maintenance bool
	wg          sync.WaitGroup
}

// NewEngine creates the engine. maintenance comes from boot config and can
// be toggled at runtime.
func NewEngine(st *store.Store, bus *events.Bus, cfg config.WorkflowConfig, maintenance bool) *Engine {
	return &Engine{
		store:       st,
		bus:         bus,
		cfg:         cfg,
		runners:     make(map[types.WorkflowType]Runner),
		cancels:     make(map[string]context.CancelFunc),
		maintenance: maintenance,
	}
}

// Register adds a runner. Duplicate types are a programming error.
func (e *Engine) Register(r Runner) {
	if _, exists := e.runners[r.Type()]; exists {
		panic(fmt.Sprintf("duplicate workflow runner for %s", r.Type()))
	}
	e.runners[r.Type()] = r
}

// SetMaintenance toggles admission control.
func (e *Engine) SetMaintenance(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maintenance = on
	logging.Workflow("Maintenance mode: %v", on)
}

// Maintenance reports the current admission state.
func (e *Engine) Maintenance() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maintenance
}

// Start admits and launches a new workflow.
func (e *Engine) Start(ctx context.Context, wt types.WorkflowType, params map[string]any) (*types.Workflow, error) {
	if e.Maintenance() {
		return nil, ErrMaintenance
	}
	runner, ok := e.runners[wt]
	if !ok {
		return nil, fmt.Errorf("%q: %w", wt, ErrUnknownType)
	}

	now := time.Now().UTC()
	w := &types.Workflow{
		ID:         uuid.NewString(),
		Type:       wt,
		State:      types.WorkflowPending,
		Parameters: params,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.CreateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	if err := e.store.TransitionWorkflow(ctx, w.ID, types.WorkflowPending, types.WorkflowRunning); err != nil {
		return nil, err
	}
	w.State = types.WorkflowRunning

	e.launch(w, runner, nil)
	logging.Workflow("Started workflow %s (%s)", w.ID, wt)
	return w, nil
}

// launch runs the runner in a goroutine with its own cancel handle. The run
// context is detached from the caller's request but keeps its RPC marker.
func (e *Engine) launch(w *types.Workflow, runner Runner, resume []byte) {
	runCtx, cancel := context.WithCancel(rpcctx.WithRPC(context.Background(), "workflow."+string(w.Type)))
	e.mu.Lock()
	e.cancels[w.ID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.cancels, w.ID)
			e.mu.Unlock()
			cancel()
		}()
		e.run(runCtx, w, runner, resume)
	}()
}

func (e *Engine) run(ctx context.Context, w *types.Workflow, runner Runner, resume []byte) {
	rc := &RunContext{Workflow: w, Params: w.Parameters, Resume: resume, engine: e}
	err := runner.Run(ctx, rc)

	switch {
	case err == nil:
		if terr := e.store.TransitionWorkflow(ctx, w.ID, types.WorkflowRunning, types.WorkflowCompleted); terr != nil {
			logging.Get(logging.CategoryWorkflow).Error("Completion transition for %s: %v", w.ID, terr)
		}
		e.publishState(w.ID, types.WorkflowCompleted)
	case errors.Is(err, errPaused):
		// The store already says paused; nothing to transition.
		e.publishState(w.ID, types.WorkflowPaused)
		logging.Workflow("Workflow %s paused", w.ID)
	case errors.Is(err, context.Canceled):
		e.publishState(w.ID, types.WorkflowCancelled)
		logging.Workflow("Workflow %s cancelled", w.ID)
	default:
		_ = e.store.SetWorkflowError(ctx, w.ID, err.Error())
		if terr := e.store.TransitionWorkflow(ctx, w.ID, types.WorkflowRunning, types.WorkflowFailed); terr != nil {
			logging.Get(logging.CategoryWorkflow).Error("Failure transition for %s: %v", w.ID, terr)
		}
		e.publishState(w.ID, types.WorkflowFailed)
		logging.Get(logging.CategoryWorkflow).Error("Workflow %s failed: %v", w.ID, err)
	}
}

func (e *Engine) publishState(id string, state types.WorkflowState) {
	e.bus.Publish(events.TopicProgress, map[string]any{
		"workflow_id": id,
		"state":       string(state),
	})
}

// Pause requests a pause. The runner honors it at its next checkpoint.
func (e *Engine) Pause(ctx context.Context, id string) error {
	return e.store.TransitionWorkflow(ctx, id, types.WorkflowRunning, types.WorkflowPaused)
}

// Resume relaunches a paused workflow from its last checkpoint.
func (e *Engine) Resume(ctx context.Context, id string) (*types.Workflow, error) {
	if e.Maintenance() {
		return nil, ErrMaintenance
	}
	if err := e.store.TransitionWorkflow(ctx, id, types.WorkflowPaused, types.WorkflowRunning); err != nil {
		return nil, err
	}
	w, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	runner, ok := e.runners[w.Type]
	if !ok {
		return nil, fmt.Errorf("%q: %w", w.Type, ErrUnknownType)
	}

	var resume []byte
	if cp, err := e.store.LastCheckpoint(ctx, id); err == nil && cp.CanResumeFrom {
		resume = cp.StateData
	}
	e.launch(w, runner, resume)
	logging.Workflow("Resumed workflow %s from checkpoint", id)
	return w, nil
}

// Cancel stops a workflow. Running workflows are cancelled via their
// context; paused ones transition directly.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	w, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	switch w.State {
	case types.WorkflowRunning:
		if err := e.store.TransitionWorkflow(ctx, id, types.WorkflowRunning, types.WorkflowCancelled); err != nil {
			return err
		}
	case types.WorkflowPaused, types.WorkflowPending:
		if err := e.store.TransitionWorkflow(ctx, id, w.State, types.WorkflowCancelled); err != nil {
			return err
		}
	default:
		// Cancelling a terminal workflow is an idempotent no-op.
		return nil
	}

	e.mu.Lock()
	if cancel, ok := e.cancels[id]; ok {
		cancel()
	}
	e.mu.Unlock()
	logging.Workflow("Cancelled workflow %s", id)
	return nil
}

// RecoverInterrupted demotes workflows left "running" by a crash to paused
// so they can be resumed from their last checkpoint.
func (e *Engine) RecoverInterrupted(ctx context.Context) (int, error) {
	ctx = rpcctx.WithRPC(ctx, "startup.recovery")
	ws, err := e.store.ResumableWorkflows(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, w := range ws {
		if w.State != types.WorkflowRunning {
			continue
		}
		if err := e.store.TransitionWorkflow(ctx, w.ID, types.WorkflowRunning, types.WorkflowPaused); err != nil {
			logging.Get(logging.CategoryWorkflow).Error("Recovery pause for %s: %v", w.ID, err)
			continue
		}
		n++
	}
	if n > 0 {
		logging.Workflow("Recovery: %d interrupted workflows moved to paused", n)
	}
	return n, nil
}

// Shutdown waits for in-flight runners to reach their next checkpoint.
func (e *Engine) Shutdown(timeout time.Duration) {
	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logging.Get(logging.CategoryWorkflow).Warn("Shutdown timed out waiting for workflows")
	}
}
