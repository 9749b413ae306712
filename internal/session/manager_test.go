package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaluvadis/schemasync/internal/store"
	"github.com/chaluvadis/schemasync/pkg/models"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
}

func newTestManager() *Manager {
	seq := 0
	return NewManager(
		store.NewMemoryStore(),
		WithClock(fixedClock),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("session-%04d", seq)
		}),
	)
}

func strategyOf(t models.StrategyType) models.ResolutionStrategy {
	return models.ResolutionStrategy{
		ID:       string(t) + "-1",
		Name:     string(t),
		Type:     t,
		Priority: 1,
	}
}

func conflictWith(id string, types ...models.StrategyType) models.SchemaConflict {
	strategies := make([]models.ResolutionStrategy, 0, len(types))
	for _, t := range types {
		strategies = append(strategies, strategyOf(t))
	}
	return models.SchemaConflict{
		ID:                   id,
		Status:               models.ConflictDetected,
		Priority:             models.SeverityMedium,
		ResolutionStrategies: strategies,
	}
}

func TestCreateSession_Defaults(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "src-1", "tgt-1", nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, models.SessionActive, session.Status)
	assert.Equal(t, models.PhaseDetection, session.Progress.CurrentPhase)
	assert.Equal(t, 0, session.Progress.TotalConflicts)
	assert.Equal(t, fixedClock(), session.CreatedAt)
	assert.False(t, session.ManualReviewRequired)
	assert.Equal(t, "system", session.CreatedBy)
	assert.Contains(t, session.Name, "src-1")
}

func TestCreateSession_ManualReviewRequired(t *testing.T) {
	m := newTestManager()

	// all conflicts auto-capable: no manual review
	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyAutomatic, models.StrategyManual),
		conflictWith("c2", models.StrategyAutomatic),
	}, Options{})
	require.NoError(t, err)
	assert.False(t, session.ManualReviewRequired)

	// one manual-only conflict flips it
	session, err = m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyAutomatic),
		conflictWith("c2", models.StrategyManual),
	}, Options{})
	require.NoError(t, err)
	assert.True(t, session.ManualReviewRequired)
}

// Spec example: one conflict carrying both an automatic and a semi-automatic
// strategy is counted in both buckets: 2 + 10 = 12 minutes.
func TestCreateSession_EstimateDoubleCounts(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyAutomatic, models.StrategySemiAutomatic),
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 12, session.EstimatedCompletionTime)
}

func TestCreateSession_EstimateBuckets(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyAutomatic),                        // 2
		conflictWith("c2", models.StrategySemiAutomatic),                    // 10
		conflictWith("c3", models.StrategyManual),                           // 20 (manual only)
		conflictWith("c4", models.StrategyManual, models.StrategyAutomatic), // 2
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 34, session.EstimatedCompletionTime)
}

func TestResolveAutomatically(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyAutomatic, models.StrategyManual),
		conflictWith("c2", models.StrategyManual),
		conflictWith("c3", models.StrategyAutomatic),
	}, Options{AutoResolutionEnabled: true})
	require.NoError(t, err)

	outcomes, err := m.ResolveAutomatically(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	// c1 and c3 resolved, c2 surfaced as a failure without aborting the batch
	assert.NoError(t, outcomes[0].Err)
	require.NotNil(t, outcomes[0].Resolution)
	assert.Equal(t, models.ResolutionSourceWins, outcomes[0].Resolution.Resolution)
	assert.Equal(t, "system", outcomes[0].Resolution.ResolvedBy)
	assert.Equal(t, 1, outcomes[0].Resolution.ExecutionOrder)

	assert.ErrorIs(t, outcomes[1].Err, ErrNoAutomaticStrategy)
	assert.Nil(t, outcomes[1].Resolution)

	require.NotNil(t, outcomes[2].Resolution)
	assert.Equal(t, 2, outcomes[2].Resolution.ExecutionOrder)

	reloaded, err := m.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Progress.ResolvedConflicts)
	assert.Equal(t, 2, reloaded.Progress.AutoResolvedConflicts)
	assert.Equal(t, 1, reloaded.Progress.ManualConflicts)
	assert.Equal(t, 1, reloaded.Progress.EscalatedConflicts)
	assert.Equal(t, models.ConflictEscalated, reloaded.Conflicts[1].Status)
	assert.Equal(t, models.PhaseResolution, reloaded.Progress.CurrentPhase)
	assert.Len(t, reloaded.Resolutions, 2)
}

func TestResolveAutomatically_CountersInvariant(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyAutomatic),
		conflictWith("c2", models.StrategyManual),
		conflictWith("c3", models.StrategyAutomatic),
	}, Options{AutoResolutionEnabled: true})
	require.NoError(t, err)

	_, err = m.ResolveAutomatically(context.Background(), session.ID)
	require.NoError(t, err)

	reloaded, err := m.GetSession(context.Background(), session.ID)
	require.NoError(t, err)

	p := reloaded.Progress
	accounted := p.ResolvedConflicts + p.EscalatedConflicts + p.SkippedConflicts + p.FailedConflicts
	assert.LessOrEqual(t, accounted, p.TotalConflicts)
}

func TestResolveAutomatically_Disabled(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyAutomatic),
	}, Options{AutoResolutionEnabled: false})
	require.NoError(t, err)

	_, err = m.ResolveAutomatically(context.Background(), session.ID)
	assert.ErrorIs(t, err, ErrAutoResolutionDisabled)
}

func TestResolveAutomatically_AlreadyResolvedSkipped(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyAutomatic),
	}, Options{AutoResolutionEnabled: true})
	require.NoError(t, err)

	first, err := m.ResolveAutomatically(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := m.ResolveAutomatically(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestRecordResolution_DependencyValidation(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyManual),
		conflictWith("c2", models.StrategyManual),
	}, Options{})
	require.NoError(t, err)

	err = m.RecordResolution(context.Background(), session.ID, models.ConflictResolution{
		ConflictID:   "c1",
		Resolution:   models.ResolutionCustom,
		CustomScript: "ALTER TABLE t ...",
		ResolvedBy:   "alice",
		Dependencies: []string{"c2"},
	})
	require.NoError(t, err)

	err = m.RecordResolution(context.Background(), session.ID, models.ConflictResolution{
		ConflictID:   "c2",
		Resolution:   models.ResolutionTargetWins,
		ResolvedBy:   "alice",
		Dependencies: []string{"ghost"},
	})
	assert.ErrorIs(t, err, ErrUnknownDependency)
}

func TestRecordResolution_UnknownConflict(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", nil, Options{})
	require.NoError(t, err)

	err = m.RecordResolution(context.Background(), session.ID, models.ConflictResolution{
		ConflictID: "ghost",
		Resolution: models.ResolutionSkip,
	})
	assert.ErrorIs(t, err, ErrUnknownConflict)
}

func TestRecordResolution_SkipCountsSeparately(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyManual),
	}, Options{})
	require.NoError(t, err)

	err = m.RecordResolution(context.Background(), session.ID, models.ConflictResolution{
		ConflictID: "c1",
		Resolution: models.ResolutionSkip,
		ResolvedBy: "alice",
	})
	require.NoError(t, err)

	reloaded, err := m.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Progress.SkippedConflicts)
	assert.Equal(t, 0, reloaded.Progress.ResolvedConflicts)
}

func TestRecordResolution_RefusesSecondOutcome(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyManual),
	}, Options{})
	require.NoError(t, err)

	err = m.RecordResolution(context.Background(), session.ID, models.ConflictResolution{
		ConflictID: "c1",
		Resolution: models.ResolutionSkip,
		ResolvedBy: "alice",
	})
	require.NoError(t, err)

	// skipped conflicts stay skipped; a late source_wins must not re-count
	err = m.RecordResolution(context.Background(), session.ID, models.ConflictResolution{
		ConflictID: "c1",
		Resolution: models.ResolutionSourceWins,
		ResolvedBy: "alice",
	})
	assert.ErrorIs(t, err, ErrConflictSettled)

	reloaded, err := m.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictSkipped, reloaded.Conflicts[0].Status)
	assert.Len(t, reloaded.Resolutions, 1)

	p := reloaded.Progress
	accounted := p.ResolvedConflicts + p.EscalatedConflicts + p.SkippedConflicts + p.FailedConflicts
	assert.LessOrEqual(t, accounted, p.TotalConflicts)
}

func TestRecordResolution_RefusesDoubleResolve(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyManual),
	}, Options{})
	require.NoError(t, err)

	resolution := models.ConflictResolution{
		ConflictID: "c1",
		Resolution: models.ResolutionTargetWins,
		ResolvedBy: "alice",
	}
	require.NoError(t, m.RecordResolution(context.Background(), session.ID, resolution))
	assert.ErrorIs(t, m.RecordResolution(context.Background(), session.ID, resolution), ErrConflictSettled)

	reloaded, err := m.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Progress.ResolvedConflicts)
}

func TestResolveAutomatically_RerunDoesNotRecount(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyManual),
	}, Options{AutoResolutionEnabled: true})
	require.NoError(t, err)

	first, err := m.ResolveAutomatically(context.Background(), session.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.ErrorIs(t, first[0].Err, ErrNoAutomaticStrategy)

	second, err := m.ResolveAutomatically(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Empty(t, second)

	reloaded, err := m.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Progress.ManualConflicts)
	assert.Equal(t, 1, reloaded.Progress.EscalatedConflicts)
	assert.LessOrEqual(t, reloaded.Progress.EscalatedConflicts, reloaded.Progress.TotalConflicts)
}

func TestEscalate(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyManual),
	}, Options{})
	require.NoError(t, err)

	require.NoError(t, m.Escalate(context.Background(), session.ID, "c1", "dba@example.com"))

	reloaded, err := m.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictEscalated, reloaded.Conflicts[0].Status)
	assert.Equal(t, "dba@example.com", reloaded.Conflicts[0].AssignedTo)
	assert.Equal(t, 1, reloaded.Progress.EscalatedConflicts)

	// escalating twice would double-count
	assert.ErrorIs(t, m.Escalate(context.Background(), session.ID, "c1", "dba@example.com"), ErrConflictSettled)
	assert.ErrorIs(t, m.Escalate(context.Background(), session.ID, "ghost", ""), ErrUnknownConflict)
}

func TestEscalate_ResolutionMovesBuckets(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1", models.StrategyManual),
	}, Options{})
	require.NoError(t, err)

	require.NoError(t, m.Escalate(context.Background(), session.ID, "c1", "dba@example.com"))
	require.NoError(t, m.RecordResolution(context.Background(), session.ID, models.ConflictResolution{
		ConflictID: "c1",
		Resolution: models.ResolutionTargetWins,
		ResolvedBy: "dba@example.com",
	}))

	reloaded, err := m.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictResolved, reloaded.Conflicts[0].Status)
	assert.Equal(t, 0, reloaded.Progress.EscalatedConflicts)
	assert.Equal(t, 1, reloaded.Progress.ResolvedConflicts)

	p := reloaded.Progress
	accounted := p.ResolvedConflicts + p.EscalatedConflicts + p.SkippedConflicts + p.FailedConflicts
	assert.LessOrEqual(t, accounted, p.TotalConflicts)
}

func TestCreateSession_EstimateNoStrategies(t *testing.T) {
	m := newTestManager()

	// no strategies at all: still a manual 20-minute job
	session, err := m.CreateSession(context.Background(), "s", "t", []models.SchemaConflict{
		conflictWith("c1"),
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 20, session.EstimatedCompletionTime)
	assert.True(t, session.ManualReviewRequired)
}

func TestAdvancePhase(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", nil, Options{})
	require.NoError(t, err)

	want := []models.ResolutionPhase{
		models.PhaseAnalysis,
		models.PhaseResolution,
		models.PhaseValidation,
		models.PhaseCompletion,
	}
	for _, expected := range want {
		phase, err := m.AdvancePhase(context.Background(), session.ID)
		require.NoError(t, err)
		assert.Equal(t, expected, phase)
	}

	// completion is the last phase; advancing again stays put
	phase, err := m.AdvancePhase(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCompletion, phase)
}

func TestFinish_Transitions(t *testing.T) {
	m := newTestManager()

	session, err := m.CreateSession(context.Background(), "s", "t", nil, Options{})
	require.NoError(t, err)

	require.NoError(t, m.Complete(context.Background(), session.ID))

	reloaded, err := m.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, reloaded.Status)
	require.NotNil(t, reloaded.CompletedAt)
	assert.Equal(t, fixedClock(), *reloaded.CompletedAt)

	// terminal sessions reject further transitions
	assert.ErrorIs(t, m.Cancel(context.Background(), session.ID), ErrSessionTerminal)
	_, err = m.ResolveAutomatically(context.Background(), session.ID)
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestGetSession_NotFound(t *testing.T) {
	m := newTestManager()

	_, err := m.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
