package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tbcv/internal/config"
	"tbcv/internal/events"
	"tbcv/internal/rpc/rpcctx"
	"tbcv/internal/store"
	"tbcv/internal/types"
)

func testEngine(t *testing.T, runners ...Runner) (*Engine, *store.Store, *events.Bus) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tbcv.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	bus := events.NewBus()
	e := NewEngine(st, bus, config.WorkflowConfig{Workers: 2}, false)
	for _, r := range runners {
		e.Register(r)
	}
	t.Cleanup(func() { e.Shutdown(5 * time.Second) })
	return e, st, bus
}

func rpcCtx() context.Context {
	return rpcctx.WithRPC(context.Background(), "test")
}

// waitForState blocks until the bus reports the workflow in one of the given
// states, or the test times out.
func waitForState(t *testing.T, sub *events.Subscription, workflowID string, states ...string) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	want := make(map[string]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	for {
		select {
		case ev := <-sub.C:
			if ev.Payload["workflow_id"] != workflowID {
				continue
			}
			if s, ok := ev.Payload["state"].(string); ok && want[s] {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for workflow %s to reach %v", workflowID, states)
		}
	}
}

// waitForStep blocks until a checkpoint progress event for step arrives.
func waitForStep(t *testing.T, sub *events.Subscription, workflowID string, step int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.C:
			if ev.Payload["workflow_id"] != workflowID {
				continue
			}
			if s, ok := ev.Payload["step"].(int); ok && s == step {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for step %d of workflow %s", step, workflowID)
		}
	}
}

// stepRunner checkpoints once per step and blocks on gate between steps. A
// resumed run reports its checkpoint bytes and finishes immediately.
type stepRunner struct {
	typ    types.WorkflowType
	steps  int
	gate   chan struct{} // nil means free-running
	resume chan []byte
	fail   error
}

func (r *stepRunner) Type() types.WorkflowType { return r.typ }

func (r *stepRunner) Run(ctx context.Context, rc *RunContext) error {
	if rc.Resume != nil {
		if r.resume != nil {
			r.resume <- rc.Resume
		}
		return nil
	}
	for step := 1; step <= r.steps; step++ {
		if r.gate != nil && step > 1 {
			select {
			case <-r.gate:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		state := map[string]int{"cursor": step * 10}
		progress := float64(step) / float64(r.steps) * 100
		if err := rc.Checkpoint(ctx, step, "step", state, progress, nil); err != nil {
			return err
		}
	}
	return r.fail
}

func TestEngineRunsToCompletion(t *testing.T) {
	runner := &stepRunner{typ: types.WorkflowValidateFolder, steps: 3}
	e, st, bus := testEngine(t, runner)
	sub := bus.Subscribe(events.TopicProgress)
	defer sub.Unsubscribe()

	w, err := e.Start(rpcCtx(), types.WorkflowValidateFolder, map[string]any{"folder_path": "/docs"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForState(t, sub, w.ID, "completed")

	got, err := st.GetWorkflow(rpcCtx(), w.ID)
	if err != nil {
		t.Fatalf("GetWorkflow() error = %v", err)
	}
	if got.State != types.WorkflowCompleted {
		t.Fatalf("state = %s, want completed", got.State)
	}
	if got.ProgressPercent != 100 {
		t.Errorf("progress = %f, want 100", got.ProgressPercent)
	}
}

func TestEnginePauseAtCheckpointAndResume(t *testing.T) {
	runner := &stepRunner{
		typ:    types.WorkflowBatchEnhancement,
		steps:  2,
		gate:   make(chan struct{}),
		resume: make(chan []byte, 1),
	}
	e, st, bus := testEngine(t, runner)
	sub := bus.Subscribe(events.TopicProgress)
	defer sub.Unsubscribe()

	w, err := e.Start(rpcCtx(), types.WorkflowBatchEnhancement, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForStep(t, sub, w.ID, 1)

	// Request the pause, then let the runner reach its next checkpoint.
	if err := e.Pause(rpcCtx(), w.ID); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	runner.gate <- struct{}{}
	waitForState(t, sub, w.ID, "paused")

	got, _ := st.GetWorkflow(rpcCtx(), w.ID)
	if got.State != types.WorkflowPaused {
		t.Fatalf("state = %s, want paused", got.State)
	}

	// Resume replays from the checkpoint the pause landed on.
	if _, err := e.Resume(rpcCtx(), w.ID); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	select {
	case data := <-runner.resume:
		var state map[string]int
		if err := json.Unmarshal(data, &state); err != nil {
			t.Fatalf("resume state not JSON: %v", err)
		}
		if state["cursor"] != 20 {
			t.Fatalf("resume cursor = %d, want 20", state["cursor"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runner never received resume state")
	}
	waitForState(t, sub, w.ID, "completed")
}

func TestEnginePausedCheckpointPublishesNoProgress(t *testing.T) {
	runner := &stepRunner{
		typ:   types.WorkflowBatchValidation,
		steps: 2,
		gate:  make(chan struct{}),
	}
	e, _, bus := testEngine(t, runner)
	sub := bus.Subscribe(events.TopicProgress)
	defer sub.Unsubscribe()

	w, err := e.Start(rpcCtx(), types.WorkflowBatchValidation, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForStep(t, sub, w.ID, 1)

	if err := e.Pause(rpcCtx(), w.ID); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	runner.gate <- struct{}{}

	// The second checkpoint observes the pause, so the only remaining event
	// for this workflow is the paused notification, never step-2 progress.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.C:
			if ev.Payload["workflow_id"] != w.ID {
				continue
			}
			if step, ok := ev.Payload["step"].(int); ok && step == 2 {
				t.Fatal("progress published for a checkpoint that observed the pause")
			}
			if s, ok := ev.Payload["state"].(string); ok && s == "paused" {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for the paused notification")
		}
	}
}

func TestEngineCancelRunning(t *testing.T) {
	runner := &stepRunner{typ: types.WorkflowValidateFolder, steps: 2, gate: make(chan struct{})}
	e, st, bus := testEngine(t, runner)
	sub := bus.Subscribe(events.TopicProgress)
	defer sub.Unsubscribe()

	w, err := e.Start(rpcCtx(), types.WorkflowValidateFolder, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForStep(t, sub, w.ID, 1)

	if err := e.Cancel(rpcCtx(), w.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	waitForState(t, sub, w.ID, "cancelled")

	got, _ := st.GetWorkflow(rpcCtx(), w.ID)
	if got.State != types.WorkflowCancelled {
		t.Fatalf("state = %s, want cancelled", got.State)
	}

	// Cancelling a terminal workflow is a no-op.
	if err := e.Cancel(rpcCtx(), w.ID); err != nil {
		t.Fatalf("second Cancel() error = %v", err)
	}
}

func TestEngineFailureSetsError(t *testing.T) {
	runner := &stepRunner{typ: types.WorkflowValidateFolder, steps: 1, fail: errors.New("3 of 4 files failed")}
	e, st, bus := testEngine(t, runner)
	sub := bus.Subscribe(events.TopicProgress)
	defer sub.Unsubscribe()

	w, err := e.Start(rpcCtx(), types.WorkflowValidateFolder, nil)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitForState(t, sub, w.ID, "failed")

	got, _ := st.GetWorkflow(rpcCtx(), w.ID)
	if got.State != types.WorkflowFailed {
		t.Fatalf("state = %s, want failed", got.State)
	}
	if !strings.Contains(got.Error, "3 of 4") {
		t.Errorf("workflow error = %q", got.Error)
	}
}

func TestEngineMaintenanceRefusesAdmission(t *testing.T) {
	runner := &stepRunner{typ: types.WorkflowValidateFolder, steps: 1}
	e, _, _ := testEngine(t, runner)

	e.SetMaintenance(true)
	if _, err := e.Start(rpcCtx(), types.WorkflowValidateFolder, nil); !errors.Is(err, ErrMaintenance) {
		t.Fatalf("Start() in maintenance error = %v, want ErrMaintenance", err)
	}

	e.SetMaintenance(false)
	w, err := e.Start(rpcCtx(), types.WorkflowValidateFolder, nil)
	if err != nil {
		t.Fatalf("Start() after maintenance error = %v", err)
	}
	if w == nil {
		t.Fatal("Start() returned nil workflow")
	}
}

func TestEngineUnknownType(t *testing.T) {
	e, _, _ := testEngine(t)
	if _, err := e.Start(rpcCtx(), types.WorkflowType("mystery"), nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("Start(mystery) error = %v, want ErrUnknownType", err)
	}
}

func TestEngineRecoverInterrupted(t *testing.T) {
	runner := &stepRunner{typ: types.WorkflowValidateFolder, steps: 1}
	e, st, _ := testEngine(t, runner)
	ctx := rpcCtx()

	// Simulate a crash: a workflow left running with a resumable checkpoint.
	w := &types.Workflow{ID: "crashed", Type: types.WorkflowValidateFolder, State: types.WorkflowPending}
	if err := st.CreateWorkflow(ctx, w); err != nil {
		t.Fatal(err)
	}
	if err := st.TransitionWorkflow(ctx, w.ID, types.WorkflowPending, types.WorkflowRunning); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveCheckpoint(ctx, &types.Checkpoint{
		ID: "cp", WorkflowID: w.ID, StepNumber: 1, Name: "scan",
		StateData: []byte(`{}`), CanResumeFrom: true,
	}); err != nil {
		t.Fatal(err)
	}

	n, err := e.RecoverInterrupted(context.Background())
	if err != nil {
		t.Fatalf("RecoverInterrupted() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered %d workflows, want 1", n)
	}
	got, _ := st.GetWorkflow(ctx, w.ID)
	if got.State != types.WorkflowPaused {
		t.Fatalf("state = %s, want paused after recovery", got.State)
	}
}
