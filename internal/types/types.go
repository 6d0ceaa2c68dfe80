// Package types provides shared type definitions used across TBCV packages.
// This package exists to break import cycles between store, validator,
// recommend, enhance and workflow. Types here are foundational data
// structures with no complex dependencies.
package types

import (
	"time"
)

// Family is a content category used to select rules and truth data.
type Family string

const (
	FamilyWords   Family = "words"
	FamilyPDF     Family = "pdf"
	FamilyCells   Family = "cells"
	FamilySlides  Family = "slides"
	FamilyGeneric Family = "generic"
)

// ValidationStatus is the lifecycle status of a Validation.
type ValidationStatus string

const (
	ValidationPending  ValidationStatus = "pending"
	ValidationApproved ValidationStatus = "approved"
	ValidationRejected ValidationStatus = "rejected"
	ValidationEnhanced ValidationStatus = "enhanced"
)

// Severity is the aggregate severity of a validation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IssueLevel is the level of a single issue.
type IssueLevel string

const (
	LevelInfo     IssueLevel = "info"
	LevelWarning  IssueLevel = "warning"
	LevelError    IssueLevel = "error"
	LevelCritical IssueLevel = "critical"
)

// IssueSource identifies how an issue was produced.
type IssueSource string

const (
	SourceRuleBased        IssueSource = "rule_based"
	SourceLLMSemantic      IssueSource = "llm_semantic"
	SourceValidatorRuntime IssueSource = "validator_runtime"
)

// Validation is the persistent record of one validation run over a document.
type Validation struct {
	ID              string            `json:"id"`
	FilePath        string            `json:"file_path"`
	Family          Family            `json:"family"`
	ContentHash     string            `json:"content_hash"`
	Status          ValidationStatus  `json:"status"`
	Severity        Severity          `json:"severity"`
	RulesApplied    map[string]string `json:"rules_applied,omitempty"`
	Report          *ValidationReport `json:"validation_results,omitempty"`
	OriginalContent string            `json:"original_content,omitempty"`
	EnhancedContent string            `json:"enhanced_content,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Issue is a single finding inside a ValidationReport.
type Issue struct {
	ID             string      `json:"id"`
	Code           string      `json:"code"` // stable, e.g. "YAML-001"
	Level          IssueLevel  `json:"level"`
	SeverityScore  int         `json:"severity_score"` // 1-100
	Line           int         `json:"line"`
	Column         int         `json:"column"`
	EndLine        int         `json:"end_line,omitempty"`
	Category       string      `json:"category"`
	Subcategory    string      `json:"subcategory,omitempty"`
	Message        string      `json:"message"`
	Suggestion     string      `json:"suggestion,omitempty"`
	ContextSnippet string      `json:"context_snippet,omitempty"`
	FixExample     string      `json:"fix_example,omitempty"`
	AutoFixable    bool        `json:"auto_fixable"`
	Source         IssueSource `json:"source"`
	Confidence     float64     `json:"confidence"` // [0,1]
	Validator      string      `json:"validator,omitempty"`
}

// ValidatorTiming records wall time per validator.
type ValidatorTiming struct {
	Validator  string        `json:"validator"`
	Tier       int           `json:"tier"`
	Duration   time.Duration `json:"duration"`
	IssueCount int           `json:"issue_count"`
	Failed     bool          `json:"failed"`
}

// ValidationReport is the merged result of a validation run.
type ValidationReport struct {
	Issues        []Issue           `json:"issues"`
	Confidence    float64           `json:"confidence"`
	AutoFixable   int               `json:"auto_fixable"`
	TiersExecuted int               `json:"tiers_executed"`
	Terminated    bool              `json:"terminated_early"`
	Timings       []ValidatorTiming `json:"timings,omitempty"`
	Metrics       map[string]any    `json:"metrics,omitempty"`
	Notes         []string          `json:"notes,omitempty"`
}

// IssuesAtOrAbove counts issues whose level is in the given set.
func (r *ValidationReport) IssuesAtOrAbove(levels map[IssueLevel]bool) int {
	n := 0
	for _, is := range r.Issues {
		if levels[is.Level] {
			n++
		}
	}
	return n
}

// MaxSeverity derives the aggregate severity from the issue list.
func (r *ValidationReport) MaxSeverity() Severity {
	sev := SeverityInfo
	for _, is := range r.Issues {
		switch is.Level {
		case LevelCritical:
			return SeverityCritical
		case LevelError:
			sev = SeverityHigh
		case LevelWarning:
			if sev == SeverityInfo || sev == SeverityLow {
				sev = SeverityMedium
			}
		}
	}
	return sev
}

// RecommendationType partitions recommendations by the kind of edit they imply.
type RecommendationType string

const (
	RecMissingPlugin   RecommendationType = "missing_plugin"
	RecIncorrectPlugin RecommendationType = "incorrect_plugin"
	RecMissingInfo     RecommendationType = "missing_info"
	RecStructural      RecommendationType = "structural"
	RecSEO             RecommendationType = "seo"
	RecTone            RecommendationType = "tone"
	RecOther           RecommendationType = "other"
)

// RecommendationStatus is the lifecycle status of a Recommendation.
type RecommendationStatus string

const (
	RecPending  RecommendationStatus = "pending"
	RecApproved RecommendationStatus = "approved"
	RecRejected RecommendationStatus = "rejected"
	RecApplied  RecommendationStatus = "applied"
)

// TargetLocation addresses the span a recommendation applies to.
type TargetLocation struct {
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	EndLine  int    `json:"end_line,omitempty"`
	Selector string `json:"selector,omitempty"` // e.g. "frontmatter", "heading:2"
}

// Recommendation is a machine-generated, human-reviewable edit proposal.
type Recommendation struct {
	ID              string               `json:"id"`
	ValidationID    string               `json:"validation_id"`
	Type            RecommendationType   `json:"type"`
	Target          TargetLocation       `json:"target_location"`
	SuggestedChange string               `json:"suggested_change"`
	Rationale       string               `json:"rationale"`
	Status          RecommendationStatus `json:"status"`
	SeverityScore   int                  `json:"severity_score"`
	CritiqueScore   float64              `json:"critique_score,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// PreservationRules are the invariants an enhancement must not break.
type PreservationRules struct {
	Keywords          []string `json:"keywords,omitempty"`
	ProductNames      []string `json:"product_names,omitempty"`
	TechnicalTerms    []string `json:"technical_terms,omitempty"`
	PreserveCode      bool     `json:"preserve_code_blocks"`
	PreserveFront     bool     `json:"preserve_frontmatter"`
	PreserveHeadings  bool     `json:"preserve_headings"`
	PreserveLinks     bool     `json:"preserve_internal_links"`
	PreserveTables    bool     `json:"preserve_tables"`
	PreserveNumbered  bool     `json:"preserve_numbered_lists"`
	MaxReductionPct   float64  `json:"max_content_reduction_pct"`
	MinExpansionPct   float64  `json:"min_content_expansion_pct"`
}

// DefaultPreservationRules returns the conservative defaults.
func DefaultPreservationRules() PreservationRules {
	return PreservationRules{
		PreserveCode:     true,
		PreserveFront:    true,
		PreserveHeadings: true,
		PreserveLinks:    true,
		PreserveTables:   true,
		PreserveNumbered: true,
		MaxReductionPct:  0.20,
		MinExpansionPct:  0.0,
	}
}

// ViolationSeverity grades a preservation violation.
type ViolationSeverity string

const (
	ViolationMinor    ViolationSeverity = "minor"
	ViolationMajor    ViolationSeverity = "major"
	ViolationCritical ViolationSeverity = "critical"
)

// Violation is one broken preservation invariant.
type Violation struct {
	Rule     string            `json:"rule"`
	Severity ViolationSeverity `json:"severity"`
	Detail   string            `json:"detail"`
}

// PreservationReport summarises what an enhancement kept and what it broke.
type PreservationReport struct {
	KeywordsChecked   int         `json:"keywords_checked"`
	KeywordsPreserved int         `json:"keywords_preserved"`
	FrontmatterIntact bool        `json:"frontmatter_intact"`
	CodeFencesIntact  bool        `json:"code_fences_intact"`
	HeadingsIntact    bool        `json:"headings_intact"`
	LengthDeltaPct    float64     `json:"length_delta_pct"`
	Violations        []Violation `json:"violations,omitempty"`
}

// HasCritical reports whether any violation is critical.
func (p *PreservationReport) HasCritical() bool {
	for _, v := range p.Violations {
		if v.Severity == ViolationCritical {
			return true
		}
	}
	return false
}

// SafetyScore is the weighted aggregate quality signal for an enhancement.
type SafetyScore struct {
	Overall           float64 `json:"overall"` // [0,1], pinned to 0 on critical violation
	KeywordScore      float64 `json:"keyword_preservation"`
	StructureScore    float64 `json:"structure_preservation"`
	StabilityScore    float64 `json:"content_stability"`
	AccuracyScore     float64 `json:"technical_accuracy"`
}

// RollbackPoint holds the only copy of pre-edit content.
type RollbackPoint struct {
	Content  []byte      `json:"content"`
	Mode     uint32      `json:"mode"`
	ModTime  time.Time   `json:"mod_time"`
	Captured time.Time   `json:"captured_at"`
}

// EnhancementRecord is the append-only log entry for one applied enhancement.
type EnhancementRecord struct {
	ID                string             `json:"id"`
	ValidationID      string             `json:"validation_id"`
	FilePath          string             `json:"file_path"`
	OriginalHash      string             `json:"original_hash"`
	EnhancedHash      string             `json:"enhanced_hash"`
	RecommendationIDs []string           `json:"applied_recommendation_ids"`
	Safety            SafetyScore        `json:"safety_score"`
	Preservation      PreservationReport `json:"preservation_report"`
	AppliedBy         string             `json:"applied_by"`
	AppliedAt         time.Time          `json:"applied_at"`
	Rollback          RollbackPoint      `json:"rollback_point"`
	PendingCommit     bool               `json:"pending_commit"`
	RolledBack        bool               `json:"rolled_back"`
	RolledBackAt      time.Time          `json:"rolled_back_at,omitempty"`
	RollbackExpiresAt time.Time          `json:"rollback_expires_at"`
}

// AppliedEdit describes one recommendation's edit inside a preview.
type AppliedEdit struct {
	RecommendationID string             `json:"recommendation_id"`
	Type             RecommendationType `json:"type"`
	StartLine        int                `json:"start_line"`
	EndLine          int                `json:"end_line"`
	Replacement      string             `json:"replacement"`
	Rationales       []string           `json:"rationales,omitempty"`
	Context          string             `json:"context,omitempty"` // surrounding lines after the edit
}

// SkippedRecommendation records why a recommendation was not applied.
type SkippedRecommendation struct {
	RecommendationID string `json:"recommendation_id"`
	Reason           string `json:"reason"`
}

// EnhancementPreview is the dry-run result of the enhancer. It never touches
// the file on disk.
type EnhancementPreview struct {
	PreviewID    string                  `json:"preview_id"`
	ValidationID string                  `json:"validation_id"`
	FilePath     string                  `json:"file_path"`
	Original     string                  `json:"original"`
	Enhanced     string                  `json:"enhanced"`
	UnifiedDiff  string                  `json:"unified_diff"`
	Stats        EnhancementStats        `json:"statistics"`
	Applied      []AppliedEdit           `json:"applied_recommendations"`
	Skipped      []SkippedRecommendation `json:"skipped_recommendations"`
	Safety       SafetyScore             `json:"safety_score"`
	Preservation PreservationReport      `json:"preservation_report"`
	CreatedAt    time.Time               `json:"created_at"`
	ExpiresAt    time.Time               `json:"expires_at"`
}

// EnhancementStats summarises the size of a proposed change.
type EnhancementStats struct {
	LinesAdded   int `json:"lines_added"`
	LinesRemoved int `json:"lines_removed"`
	LinesChanged int `json:"lines_changed"`
	OriginalLen  int `json:"original_length"`
	EnhancedLen  int `json:"enhanced_length"`
}

// WorkflowType identifies the runner a workflow is parameterised for.
type WorkflowType string

const (
	WorkflowValidateFile     WorkflowType = "validate_file"
	WorkflowValidateFolder   WorkflowType = "validate_folder"
	WorkflowBatchValidation  WorkflowType = "batch_validation"
	WorkflowBatchEnhancement WorkflowType = "batch_enhancement"
)

// WorkflowState is the state machine position of a workflow.
type WorkflowState string

const (
	WorkflowPending   WorkflowState = "pending"
	WorkflowRunning   WorkflowState = "running"
	WorkflowPaused    WorkflowState = "paused"
	WorkflowCompleted WorkflowState = "completed"
	WorkflowFailed    WorkflowState = "failed"
	WorkflowCancelled WorkflowState = "cancelled"
)

// Terminal reports whether the state is absorbing.
func (s WorkflowState) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed || s == WorkflowCancelled
}

// Workflow is a long-running batch job.
type Workflow struct {
	ID               string         `json:"id"`
	Type             WorkflowType   `json:"type"`
	State            WorkflowState  `json:"state"`
	ProgressPercent  float64        `json:"progress_percent"` // [0,100]
	Parameters       map[string]any `json:"parameters,omitempty"`
	Summary          map[string]any `json:"summary,omitempty"`
	Error            string         `json:"error,omitempty"`
	LastCheckpointID string         `json:"last_checkpoint_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Checkpoint captures resumable workflow state at a step boundary.
type Checkpoint struct {
	ID            string    `json:"id"`
	WorkflowID    string    `json:"workflow_id"`
	StepNumber    int       `json:"step_number"`
	Name          string    `json:"name"`
	StateData     []byte    `json:"state_data"` // opaque serialized snapshot
	CanResumeFrom bool      `json:"can_resume_from"`
	CreatedAt     time.Time `json:"created_at"`
}

// TruthRecord is one curated, family-scoped fact.
type TruthRecord struct {
	ID                string    `json:"id" yaml:"id"`
	Family            Family    `json:"family" yaml:"family"`
	Kind              string    `json:"kind" yaml:"kind"` // e.g. "plugin"
	CanonicalName     string    `json:"canonical_name" yaml:"canonical_name"`
	Aliases           []string  `json:"aliases,omitempty" yaml:"aliases"`
	Patterns          []string  `json:"patterns,omitempty" yaml:"patterns"`
	Combinations      [][]string `json:"combinations,omitempty" yaml:"combinations"`
	ForbiddenPatterns []string  `json:"forbidden_patterns,omitempty" yaml:"forbidden_patterns"`
	Description       string    `json:"description,omitempty" yaml:"description"`
	Embedding         []float32 `json:"-" yaml:"-"`
}

// AuditEntry records one store mutation performed through RPC.
type AuditEntry struct {
	ID            int64     `json:"id"`
	Method        string    `json:"method"`
	EntityKind    string    `json:"entity_kind"`
	EntityID      string    `json:"entity_id"`
	Action        string    `json:"action"`
	CorrelationID string    `json:"correlation_id"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
