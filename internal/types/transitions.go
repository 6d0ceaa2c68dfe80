package types

// validationTransitions is the allowed transition table for validations.
// revalidate never mutates an existing validation, so it does not appear here.
var validationTransitions = map[ValidationStatus][]ValidationStatus{
	ValidationPending:  {ValidationApproved, ValidationRejected},
	ValidationApproved: {ValidationEnhanced},
	ValidationRejected: {},
	ValidationEnhanced: {},
}

// recommendationTransitions is the allowed transition table for recommendations.
var recommendationTransitions = map[RecommendationStatus][]RecommendationStatus{
	RecPending:  {RecApproved, RecRejected},
	RecApproved: {RecApplied},
	RecRejected: {},
	RecApplied:  {},
}

// CanTransitionValidation reports whether from -> to is a legal validation
// status transition.
func CanTransitionValidation(from, to ValidationStatus) bool {
	for _, s := range validationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionRecommendation reports whether from -> to is a legal
// recommendation status transition.
func CanTransitionRecommendation(from, to RecommendationStatus) bool {
	for _, s := range recommendationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// workflowTransitions is the allowed transition table for workflows.
var workflowTransitions = map[WorkflowState][]WorkflowState{
	WorkflowPending:   {WorkflowRunning, WorkflowCancelled},
	WorkflowRunning:   {WorkflowPaused, WorkflowCompleted, WorkflowFailed, WorkflowCancelled},
	WorkflowPaused:    {WorkflowRunning, WorkflowCancelled, WorkflowFailed},
	WorkflowCompleted: {},
	WorkflowFailed:    {},
	WorkflowCancelled: {},
}

// CanTransitionWorkflow reports whether from -> to is a legal workflow
// state transition. Terminal states are absorbing.
func CanTransitionWorkflow(from, to WorkflowState) bool {
	for _, s := range workflowTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
