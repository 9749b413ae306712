package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chaluvadis/schemasync/pkg/models"
)

// Per-conflict-class time estimates in minutes. A conflict is counted in
// every bucket whose test it passes; the buckets are deliberately additive,
// not an exclusive partition.
const (
	autoResolveMinutes  = 2
	semiAutoMinutes     = 10
	manualOnlyMinutes   = 20
)

var (
	// ErrUnknownConflict is returned when a resolution targets a conflict outside the session
	ErrUnknownConflict = errors.New("conflict not part of this session")
	// ErrSessionTerminal is returned when mutating a completed/cancelled/failed session
	ErrSessionTerminal = errors.New("session is in a terminal state")
	// ErrAutoResolutionDisabled is returned when the session opted out of auto-resolution
	ErrAutoResolutionDisabled = errors.New("auto-resolution is disabled for this session")
	// ErrNoAutomaticStrategy marks a conflict that only has manual strategies
	ErrNoAutomaticStrategy = errors.New("conflict has no automatic strategy")
	// ErrConflictSettled is returned when a resolution or escalation targets
	// a conflict that already has a recorded outcome
	ErrConflictSettled = errors.New("conflict already has a recorded outcome")
	// ErrUnknownDependency is returned when a resolution references a conflict outside the session
	ErrUnknownDependency = errors.New("resolution depends on a conflict not in this session")
)

// Store is the persistence surface the manager needs
type Store interface {
	SaveSession(ctx context.Context, session *models.ResolutionSession) error
	GetSession(ctx context.Context, id string) (*models.ResolutionSession, error)
	ListSessions(ctx context.Context) ([]*models.ResolutionSession, error)
}

// Options configures session creation
type Options struct {
	Name                  string
	Description           string
	CreatedBy             string
	AutoResolutionEnabled bool
}

// ResolutionOutcome is the per-conflict result of a batch resolution run.
// A failed item carries Err and a zero Resolution; the batch itself never
// aborts early, so callers always see one outcome per attempted conflict.
type ResolutionOutcome struct {
	ConflictID string                     `json:"conflict_id"`
	Resolution *models.ConflictResolution `json:"resolution,omitempty"`
	Err        error                      `json:"-"`
	Error      string                     `json:"error,omitempty"`
}

// Manager owns resolution sessions: creation, phase tracking, automatic
// resolution and bookkeeping of the progress counters.
type Manager struct {
	store Store
	clock func() time.Time
	newID func() string
}

// ManagerOption customizes a Manager
type ManagerOption func(*Manager)

// WithClock overrides the manager's timestamp source (used by tests)
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

// WithIDGenerator overrides session ID generation (used by tests)
func WithIDGenerator(newID func() string) ManagerOption {
	return func(m *Manager) { m.newID = newID }
}

// NewManager creates a session manager backed by the given store
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store: store,
		clock: time.Now,
		newID: func() string {
			return "session-" + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession aggregates detected conflicts into a new active session.
// ManualReviewRequired is set when at least one conflict carries no
// automatic strategy; the completion estimate follows the additive bucket
// formula described above.
func (m *Manager) CreateSession(ctx context.Context, sourceID, targetID string, conflicts []models.SchemaConflict, opts Options) (*models.ResolutionSession, error) {
	now := m.clock()

	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("Schema sync %s -> %s", sourceID, targetID)
	}

	createdBy := opts.CreatedBy
	if createdBy == "" {
		createdBy = "system"
	}

	session := &models.ResolutionSession{
		ID:                      m.newID(),
		Name:                    name,
		Description:             opts.Description,
		SourceConnectionID:      sourceID,
		TargetConnectionID:      targetID,
		Conflicts:               conflicts,
		Resolutions:             []models.ConflictResolution{},
		Status:                  models.SessionActive,
		CreatedBy:               createdBy,
		CreatedAt:               now,
		AutoResolutionEnabled:   opts.AutoResolutionEnabled,
		ManualReviewRequired:    manualReviewRequired(conflicts),
		EstimatedCompletionTime: estimateCompletionTime(conflicts),
		Progress: models.ResolutionProgress{
			TotalConflicts: len(conflicts),
			CurrentPhase:   models.PhaseDetection,
		},
	}

	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	log.Info().
		Str("session_id", session.ID).
		Int("conflicts", len(conflicts)).
		Bool("manual_review", session.ManualReviewRequired).
		Int("estimate_minutes", session.EstimatedCompletionTime).
		Msg("resolution session created")

	return session, nil
}

// GetSession loads one session by ID
func (m *Manager) GetSession(ctx context.Context, id string) (*models.ResolutionSession, error) {
	return m.store.GetSession(ctx, id)
}

// ListSessions lists all known sessions
func (m *Manager) ListSessions(ctx context.Context) ([]*models.ResolutionSession, error) {
	return m.store.ListSessions(ctx)
}

// phaseOrder drives AdvancePhase; completion is terminal
var phaseOrder = []models.ResolutionPhase{
	models.PhaseDetection,
	models.PhaseAnalysis,
	models.PhaseResolution,
	models.PhaseValidation,
	models.PhaseCompletion,
}

// AdvancePhase moves the session to the next phase and returns it
func (m *Manager) AdvancePhase(ctx context.Context, sessionID string) (models.ResolutionPhase, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.Terminal() {
		return session.Progress.CurrentPhase, ErrSessionTerminal
	}

	for i, phase := range phaseOrder {
		if phase == session.Progress.CurrentPhase && i < len(phaseOrder)-1 {
			session.Progress.CurrentPhase = phaseOrder[i+1]
			break
		}
	}

	if err := m.store.SaveSession(ctx, session); err != nil {
		return "", fmt.Errorf("failed to save session: %w", err)
	}
	return session.Progress.CurrentPhase, nil
}

// ResolveAutomatically applies a source_wins resolution to every open
// conflict that has an automatic strategy, stamping ExecutionOrder 1..N and
// ResolvedBy "system". Conflicts with no automatic strategy are escalated for
// human attention. It returns one outcome per attempted conflict instead of
// aborting the batch on the first failure, so partial progress is always
// visible to the caller; re-running it leaves already accounted-for conflicts
// untouched.
func (m *Manager) ResolveAutomatically(ctx context.Context, sessionID string) ([]ResolutionOutcome, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Terminal() {
		return nil, ErrSessionTerminal
	}
	if !session.AutoResolutionEnabled {
		return nil, ErrAutoResolutionDisabled
	}

	now := m.clock()
	outcomes := make([]ResolutionOutcome, 0, len(session.Conflicts))
	order := len(session.Resolutions)

	for i := range session.Conflicts {
		conflict := &session.Conflicts[i]
		if conflict.Status != models.ConflictDetected && conflict.Status != models.ConflictAnalyzing {
			// already resolved, skipped or escalated; never count twice
			continue
		}

		strategy, ok := automaticStrategy(conflict)
		if !ok {
			conflict.Status = models.ConflictEscalated
			session.Progress.ManualConflicts++
			session.Progress.EscalatedConflicts++
			outcomes = append(outcomes, ResolutionOutcome{
				ConflictID: conflict.ID,
				Err:        ErrNoAutomaticStrategy,
				Error:      ErrNoAutomaticStrategy.Error(),
			})
			continue
		}

		order++
		resolution := models.ConflictResolution{
			ConflictID:     conflict.ID,
			Strategy:       strategy,
			Resolution:     models.ResolutionSourceWins,
			ResolvedBy:     "system",
			ResolvedAt:     now,
			ExecutionOrder: order,
			Notes:          fmt.Sprintf("Auto-resolved with strategy %q", strategy.Name),
		}

		conflict.Status = models.ConflictResolved
		session.Resolutions = append(session.Resolutions, resolution)
		session.Progress.ResolvedConflicts++
		session.Progress.AutoResolvedConflicts++

		outcomes = append(outcomes, ResolutionOutcome{
			ConflictID: conflict.ID,
			Resolution: &session.Resolutions[len(session.Resolutions)-1],
		})
	}

	session.Progress.CurrentPhase = models.PhaseResolution

	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	log.Info().
		Str("session_id", sessionID).
		Int("attempted", len(outcomes)).
		Int("auto_resolved", session.Progress.AutoResolvedConflicts).
		Msg("automatic resolution finished")

	return outcomes, nil
}

// RecordResolution appends a manually authored resolution to the session.
// Every dependency must reference a conflict inside the same session, and a
// conflict that was already resolved or skipped refuses a second resolution.
// Escalated conflicts are fair game; resolving one moves it from the
// escalated bucket to the resolved (or skipped) one.
func (m *Manager) RecordResolution(ctx context.Context, sessionID string, resolution models.ConflictResolution) error {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Terminal() {
		return ErrSessionTerminal
	}

	known := make(map[string]*models.SchemaConflict, len(session.Conflicts))
	for i := range session.Conflicts {
		known[session.Conflicts[i].ID] = &session.Conflicts[i]
	}

	conflict, ok := known[resolution.ConflictID]
	if !ok {
		return fmt.Errorf("conflict %s: %w", resolution.ConflictID, ErrUnknownConflict)
	}
	if conflict.Status == models.ConflictResolved || conflict.Status == models.ConflictSkipped {
		return fmt.Errorf("conflict %s: %w", resolution.ConflictID, ErrConflictSettled)
	}
	for _, dep := range resolution.Dependencies {
		if _, ok := known[dep]; !ok {
			return fmt.Errorf("dependency %s: %w", dep, ErrUnknownDependency)
		}
	}

	if resolution.ResolvedAt.IsZero() {
		resolution.ResolvedAt = m.clock()
	}
	if resolution.ExecutionOrder == 0 {
		resolution.ExecutionOrder = len(session.Resolutions) + 1
	}

	session.Resolutions = append(session.Resolutions, resolution)

	if conflict.Status == models.ConflictEscalated {
		session.Progress.EscalatedConflicts--
	}
	switch resolution.Resolution {
	case models.ResolutionSkip:
		conflict.Status = models.ConflictSkipped
		session.Progress.SkippedConflicts++
	default:
		conflict.Status = models.ConflictResolved
		session.Progress.ResolvedConflicts++
	}

	if err := m.store.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Escalate flags an open conflict for human attention, optionally assigning
// it. An escalated conflict still accepts a resolution through
// RecordResolution.
func (m *Manager) Escalate(ctx context.Context, sessionID, conflictID, assignee string) error {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Terminal() {
		return ErrSessionTerminal
	}

	for i := range session.Conflicts {
		conflict := &session.Conflicts[i]
		if conflict.ID != conflictID {
			continue
		}
		if conflict.Status != models.ConflictDetected && conflict.Status != models.ConflictAnalyzing {
			return fmt.Errorf("conflict %s: %w", conflictID, ErrConflictSettled)
		}

		conflict.Status = models.ConflictEscalated
		conflict.AssignedTo = assignee
		session.Progress.EscalatedConflicts++

		if err := m.store.SaveSession(ctx, session); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}

		log.Info().
			Str("session_id", sessionID).
			Str("conflict_id", conflictID).
			Str("assigned_to", assignee).
			Msg("conflict escalated")
		return nil
	}

	return fmt.Errorf("conflict %s: %w", conflictID, ErrUnknownConflict)
}

// Complete marks the session completed and stamps CompletedAt
func (m *Manager) Complete(ctx context.Context, sessionID string) error {
	return m.finish(ctx, sessionID, models.SessionCompleted)
}

// Cancel marks the session cancelled and stamps CompletedAt
func (m *Manager) Cancel(ctx context.Context, sessionID string) error {
	return m.finish(ctx, sessionID, models.SessionCancelled)
}

// Fail marks the session failed and stamps CompletedAt
func (m *Manager) Fail(ctx context.Context, sessionID string) error {
	return m.finish(ctx, sessionID, models.SessionFailed)
}

func (m *Manager) finish(ctx context.Context, sessionID string, status models.SessionStatus) error {
	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Terminal() {
		return ErrSessionTerminal
	}

	now := m.clock()
	session.Status = status
	session.CompletedAt = &now
	session.Progress.CurrentPhase = models.PhaseCompletion

	if err := m.store.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	log.Info().Str("session_id", sessionID).Str("status", string(status)).Msg("session finished")
	return nil
}

// manualReviewRequired is true iff some conflict has no automatic strategy
func manualReviewRequired(conflicts []models.SchemaConflict) bool {
	for i := range conflicts {
		if _, ok := automaticStrategy(&conflicts[i]); !ok {
			return true
		}
	}
	return false
}

// estimateCompletionTime computes the session estimate in minutes. The three
// bucket tests are independent, so one conflict can contribute to several
// buckets; the double-count is intentional and load-bearing for callers that
// display the estimate.
func estimateCompletionTime(conflicts []models.SchemaConflict) int {
	var autoCapable, semiCapable, manualOnly int

	for i := range conflicts {
		c := &conflicts[i]

		if hasStrategyType(c, models.StrategyAutomatic) {
			autoCapable++
		}
		if hasStrategyType(c, models.StrategySemiAutomatic) {
			semiCapable++
		}
		// a conflict with no strategies at all is manual work too, same as
		// the manual-review predicate treats it
		if allStrategiesManual(c) {
			manualOnly++
		}
	}

	return autoResolveMinutes*autoCapable + semiAutoMinutes*semiCapable + manualOnlyMinutes*manualOnly
}

func automaticStrategy(c *models.SchemaConflict) (models.ResolutionStrategy, bool) {
	for _, s := range c.ResolutionStrategies {
		if s.Type == models.StrategyAutomatic {
			return s, true
		}
	}
	return models.ResolutionStrategy{}, false
}

func hasStrategyType(c *models.SchemaConflict, t models.StrategyType) bool {
	for _, s := range c.ResolutionStrategies {
		if s.Type == t {
			return true
		}
	}
	return false
}

func allStrategiesManual(c *models.SchemaConflict) bool {
	for _, s := range c.ResolutionStrategies {
		if s.Type != models.StrategyManual {
			return false
		}
	}
	return true
}
