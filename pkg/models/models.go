package models

import (
	"time"
)

// Conflict domain models

// ConflictCategory classifies the broad area a conflict belongs to
type ConflictCategory string

const (
	CategorySchema      ConflictCategory = "schema"
	CategoryData        ConflictCategory = "data"
	CategoryPermission  ConflictCategory = "permission"
	CategoryDependency  ConflictCategory = "dependency"
	CategoryPerformance ConflictCategory = "performance"
)

// ConflictSeverity ranks how disruptive a conflict is to a migration
type ConflictSeverity string

const (
	SeverityLow      ConflictSeverity = "low"
	SeverityMedium   ConflictSeverity = "medium"
	SeverityHigh     ConflictSeverity = "high"
	SeverityCritical ConflictSeverity = "critical"
)

// ConflictStatus is the lifecycle state of a single conflict
type ConflictStatus string

const (
	ConflictDetected  ConflictStatus = "detected"
	ConflictAnalyzing ConflictStatus = "analyzing"
	ConflictResolved  ConflictStatus = "resolved"
	ConflictEscalated ConflictStatus = "escalated"
	ConflictSkipped   ConflictStatus = "skipped"
)

// DifferenceType classifies one field-level discrepancy
type DifferenceType string

const (
	DiffTypeMismatch     DifferenceType = "type_mismatch"
	DiffValueDifferent   DifferenceType = "value_different"
	DiffMissingInSource  DifferenceType = "missing_in_source"
	DiffMissingInTarget  DifferenceType = "missing_in_target"
	DiffStructureChanged DifferenceType = "structure_different"
)

// StrategyType describes how much human involvement a strategy needs
type StrategyType string

const (
	StrategyAutomatic     StrategyType = "automatic"
	StrategySemiAutomatic StrategyType = "semi_automatic"
	StrategyManual        StrategyType = "manual"
	StrategyCustom        StrategyType = "custom"
)

// ResolutionKind is the decision recorded for a resolved conflict
type ResolutionKind string

const (
	ResolutionSourceWins ResolutionKind = "source_wins"
	ResolutionTargetWins ResolutionKind = "target_wins"
	ResolutionMerge      ResolutionKind = "merge"
	ResolutionCustom     ResolutionKind = "custom"
	ResolutionSkip       ResolutionKind = "skip"
)

// SessionStatus is the lifecycle state of a resolution session
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
	SessionFailed    SessionStatus = "failed"
)

// ResolutionPhase is the stage a session is currently working through
type ResolutionPhase string

const (
	PhaseDetection  ResolutionPhase = "detection"
	PhaseAnalysis   ResolutionPhase = "analysis"
	PhaseResolution ResolutionPhase = "resolution"
	PhaseValidation ResolutionPhase = "validation"
	PhaseCompletion ResolutionPhase = "completion"
)

// ChangeKind is the kind of schema difference reported by the comparer
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "Added"
	ChangeRemoved  ChangeKind = "Removed"
	ChangeModified ChangeKind = "Modified"
	ChangeMoved    ChangeKind = "Moved"
)

// SchemaDifference is one object-level difference between two schemas,
// produced by the comparer and consumed by the conflict detector.
type SchemaDifference struct {
	Type              ChangeKind `json:"type" db:"change_type"`
	ObjectType        string     `json:"object_type" db:"object_type"`
	ObjectName        string     `json:"object_name" db:"object_name"`
	Schema            string     `json:"schema" db:"schema_name"`
	SourceDefinition  string     `json:"source_definition,omitempty" db:"source_definition"`
	TargetDefinition  string     `json:"target_definition,omitempty" db:"target_definition"`
	DifferenceDetails []string   `json:"difference_details" db:"difference_details"`
}

// ObjectRef identifies one schema object on either side of a comparison
type ObjectRef struct {
	Name       string `json:"name"`
	Schema     string `json:"schema"`
	ObjectType string `json:"object_type"`
	Definition string `json:"definition,omitempty"`
}

// ConflictType describes the classification attached to a detected conflict.
// Constructed once at detection time and never mutated.
type ConflictType struct {
	Category    ConflictCategory `json:"category"`
	SubType     string           `json:"sub_type"`
	Severity    ConflictSeverity `json:"severity"`
	Description string           `json:"description"`
	Examples    []string         `json:"examples,omitempty"`
}

// ConflictDetail is one field-level discrepancy inside a conflict
type ConflictDetail struct {
	Field             string         `json:"field"`
	SourceValue       string         `json:"source_value"`
	TargetValue       string         `json:"target_value"`
	DifferenceType    DifferenceType `json:"difference_type"`
	Impact            string         `json:"impact"`
	Description       string         `json:"description"`
	ResolutionOptions []string       `json:"resolution_options,omitempty"`
}

// ResolutionStrategy is a pre-authored approach for resolving a conflict
// sub-type. Catalog entries are constants and never mutated after creation.
type ResolutionStrategy struct {
	ID                  string       `json:"id"`
	Name                string       `json:"name"`
	Description         string       `json:"description"`
	Type                StrategyType `json:"type"`
	Priority            int          `json:"priority"`
	ApplicableConflicts []string     `json:"applicable_conflicts"`
	SuccessRate         float64      `json:"success_rate"`
	RiskLevel           string       `json:"risk_level"`
	EstimatedTime       int          `json:"estimated_time"` // minutes
	RequiresUserInput   bool         `json:"requires_user_input"`
	CanHandleDataLoss   bool         `json:"can_handle_data_loss"`
}

// SchemaConflict is the central conflict entity. Priority may be escalated
// by the dependency analyzer; status transitions are driven by session
// processing. Owned by the session that contains it.
type SchemaConflict struct {
	ID                  string               `json:"id" db:"id"`
	Type                ConflictType         `json:"type"`
	SourceObject        ObjectRef            `json:"source_object"`
	TargetObject        ObjectRef            `json:"target_object"`
	ConflictDetails     []ConflictDetail     `json:"conflict_details"`
	ResolutionStrategies []ResolutionStrategy `json:"resolution_strategies"`
	RecommendedStrategy *ResolutionStrategy  `json:"recommended_strategy,omitempty"`
	DetectedAt          time.Time            `json:"detected_at" db:"detected_at"`
	Status              ConflictStatus       `json:"status" db:"status"`
	AssignedTo          string               `json:"assigned_to,omitempty" db:"assigned_to"`
	Priority            ConflictSeverity     `json:"priority" db:"priority"`
}

// ConflictResolution records how one conflict was actually resolved.
// ExecutionOrder determines script emission order and must respect the
// Dependencies partial order.
type ConflictResolution struct {
	ConflictID        string              `json:"conflict_id" db:"conflict_id"`
	Strategy          ResolutionStrategy  `json:"strategy"`
	Resolution        ResolutionKind      `json:"resolution" db:"resolution"`
	CustomScript      string              `json:"custom_script,omitempty" db:"custom_script"`
	ResolvedBy        string              `json:"resolved_by" db:"resolved_by"`
	ResolvedAt        time.Time           `json:"resolved_at" db:"resolved_at"`
	ExecutionOrder    int                 `json:"execution_order" db:"execution_order"`
	Dependencies      []string            `json:"dependencies,omitempty"`
	RollbackInfo      string              `json:"rollback_info,omitempty"`
	ValidationResults []string            `json:"validation_results,omitempty"`
	Notes             string              `json:"notes,omitempty" db:"notes"`
}

// ResolutionProgress tracks per-session counters. Resolved, escalated,
// skipped and failed each account for a conflict at most once, so their sum
// never exceeds TotalConflicts; resolving an escalated conflict moves it from
// the escalated bucket to the resolved (or skipped) one. ManualConflicts
// counts conflicts automatic resolution could not handle.
type ResolutionProgress struct {
	TotalConflicts        int             `json:"total_conflicts"`
	ResolvedConflicts     int             `json:"resolved_conflicts"`
	AutoResolvedConflicts int             `json:"auto_resolved_conflicts"`
	ManualConflicts       int             `json:"manual_conflicts"`
	EscalatedConflicts    int             `json:"escalated_conflicts"`
	SkippedConflicts      int             `json:"skipped_conflicts"`
	FailedConflicts       int             `json:"failed_conflicts"`
	CurrentPhase          ResolutionPhase `json:"current_phase"`
}

// ResolutionSession is the aggregate root tracking all conflicts and their
// resolutions for one source -> target comparison run.
type ResolutionSession struct {
	ID                      string               `json:"id" db:"id"`
	Name                    string               `json:"name" db:"name"`
	Description             string               `json:"description,omitempty" db:"description"`
	SourceConnectionID      string               `json:"source_connection_id" db:"source_connection_id"`
	TargetConnectionID      string               `json:"target_connection_id" db:"target_connection_id"`
	Conflicts               []SchemaConflict     `json:"conflicts"`
	Resolutions             []ConflictResolution `json:"resolutions"`
	Status                  SessionStatus        `json:"status" db:"status"`
	CreatedBy               string               `json:"created_by" db:"created_by"`
	CreatedAt               time.Time            `json:"created_at" db:"created_at"`
	CompletedAt             *time.Time           `json:"completed_at,omitempty" db:"completed_at"`
	AutoResolutionEnabled   bool                 `json:"auto_resolution_enabled" db:"auto_resolution_enabled"`
	ManualReviewRequired    bool                 `json:"manual_review_required" db:"manual_review_required"`
	EstimatedCompletionTime int                  `json:"estimated_completion_time"` // minutes
	Progress                ResolutionProgress   `json:"progress"`
}

// Terminal reports whether the session reached a terminal status
func (s *ResolutionSession) Terminal() bool {
	switch s.Status {
	case SessionCompleted, SessionCancelled, SessionFailed:
		return true
	}
	return false
}

// User represents an API user able to authenticate against the server
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // Never expose password hash in JSON
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
