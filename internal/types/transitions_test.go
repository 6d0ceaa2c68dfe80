package types

import "testing"

func TestCanTransitionValidation(t *testing.T) {
	tests := []struct {
		from, to ValidationStatus
		want     bool
	}{
		{ValidationPending, ValidationApproved, true},
		{ValidationPending, ValidationRejected, true},
		{ValidationPending, ValidationEnhanced, false},
		{ValidationApproved, ValidationEnhanced, true},
		{ValidationApproved, ValidationRejected, false},
		{ValidationRejected, ValidationApproved, false},
		{ValidationEnhanced, ValidationPending, false},
		{ValidationEnhanced, ValidationApproved, false},
	}
	for _, tt := range tests {
		if got := CanTransitionValidation(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionValidation(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCanTransitionRecommendation(t *testing.T) {
	tests := []struct {
		from, to RecommendationStatus
		want     bool
	}{
		{RecPending, RecApproved, true},
		{RecPending, RecRejected, true},
		{RecPending, RecApplied, false},
		{RecApproved, RecApplied, true},
		{RecApproved, RecRejected, false},
		{RecApplied, RecApproved, false},
		{RecRejected, RecPending, false},
	}
	for _, tt := range tests {
		if got := CanTransitionRecommendation(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionRecommendation(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCanTransitionWorkflow(t *testing.T) {
	tests := []struct {
		from, to WorkflowState
		want     bool
	}{
		{WorkflowPending, WorkflowRunning, true},
		{WorkflowPending, WorkflowCancelled, true},
		{WorkflowPending, WorkflowPaused, false},
		{WorkflowRunning, WorkflowPaused, true},
		{WorkflowRunning, WorkflowCompleted, true},
		{WorkflowRunning, WorkflowFailed, true},
		{WorkflowRunning, WorkflowCancelled, true},
		{WorkflowPaused, WorkflowRunning, true},
		{WorkflowPaused, WorkflowCancelled, true},
		{WorkflowPaused, WorkflowCompleted, false},
		{WorkflowCompleted, WorkflowRunning, false},
		{WorkflowCancelled, WorkflowRunning, false},
		{WorkflowFailed, WorkflowPending, false},
	}
	for _, tt := range tests {
		if got := CanTransitionWorkflow(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionWorkflow(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	terminals := []WorkflowState{WorkflowCompleted, WorkflowFailed, WorkflowCancelled}
	all := []WorkflowState{WorkflowPending, WorkflowRunning, WorkflowPaused,
		WorkflowCompleted, WorkflowFailed, WorkflowCancelled}
	for _, from := range terminals {
		if !from.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", from)
		}
		for _, to := range all {
			if CanTransitionWorkflow(from, to) {
				t.Errorf("terminal state %s allows transition to %s", from, to)
			}
		}
	}
}
