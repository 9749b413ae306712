package script

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaluvadis/schemasync/pkg/models"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
}

func testSession() *models.ResolutionSession {
	return &models.ResolutionSession{
		ID:   "session-0001",
		Name: "nightly sync",
		Conflicts: []models.SchemaConflict{
			{ID: "c1"}, {ID: "c2"}, {ID: "c3"},
		},
	}
}

func TestGenerate_OrdersByExecutionOrder(t *testing.T) {
	g := NewGenerator(WithClock(fixedClock))

	resolutions := []models.ConflictResolution{
		{ConflictID: "c3", ExecutionOrder: 3, Resolution: models.ResolutionSourceWins, ResolvedBy: "system"},
		{ConflictID: "c1", ExecutionOrder: 1, Resolution: models.ResolutionSourceWins, ResolvedBy: "system"},
		{ConflictID: "c2", ExecutionOrder: 2, Resolution: models.ResolutionSourceWins, ResolvedBy: "system"},
	}

	out, err := g.Generate(testSession(), resolutions)
	require.NoError(t, err)

	p1 := strings.Index(out, "-- Resolution 1")
	p2 := strings.Index(out, "-- Resolution 2")
	p3 := strings.Index(out, "-- Resolution 3")
	require.NotEqual(t, -1, p1)
	require.NotEqual(t, -1, p2)
	require.NotEqual(t, -1, p3)
	assert.Less(t, p1, p2)
	assert.Less(t, p2, p3)
}

func TestGenerate_Header(t *testing.T) {
	g := NewGenerator(WithClock(fixedClock))

	out, err := g.Generate(testSession(), nil)
	require.NoError(t, err)

	assert.Contains(t, out, "-- Session: nightly sync (session-0001)")
	assert.Contains(t, out, "-- Generated: 2026-03-14T10:30:00Z")
	assert.Contains(t, out, "-- Conflicts: 3, Resolutions: 0")
	assert.Contains(t, out, "-- WARNING:")
}

func TestGenerate_CustomScriptPassthrough(t *testing.T) {
	g := NewGenerator(WithClock(fixedClock))

	malformed := "ALTER TABLE users ADD COLUMN; -- deliberately broken"
	resolutions := []models.ConflictResolution{
		{
			ConflictID:     "c1",
			ExecutionOrder: 1,
			Resolution:     models.ResolutionCustom,
			CustomScript:   malformed,
			ResolvedBy:     "alice",
			Notes:          "hand-written",
			Dependencies:   []string{"c2"},
		},
	}

	out, err := g.Generate(testSession(), resolutions)
	require.NoError(t, err)

	// custom SQL is framed, never inspected or rewritten
	assert.Contains(t, out, malformed)
	assert.Contains(t, out, "-- Depends on: c2")
	assert.Contains(t, out, "-- Notes: hand-written")
	assert.Contains(t, out, "-- Resolved by: alice")
}

func TestGenerate_PlaceholderForMissingScript(t *testing.T) {
	g := NewGenerator(WithClock(fixedClock))

	resolutions := []models.ConflictResolution{
		{ConflictID: "c1", ExecutionOrder: 1, Resolution: models.ResolutionSkip, ResolvedBy: "system"},
	}

	out, err := g.Generate(testSession(), resolutions)
	require.NoError(t, err)
	assert.Contains(t, out, "-- No script provided for this resolution (skip)")
}

func TestGenerate_Deterministic(t *testing.T) {
	g := NewGenerator(WithClock(fixedClock))

	resolutions := []models.ConflictResolution{
		{ConflictID: "c2", ExecutionOrder: 2, Resolution: models.ResolutionSourceWins},
		{ConflictID: "c1", ExecutionOrder: 1, Resolution: models.ResolutionSourceWins},
	}

	first, err := g.Generate(testSession(), resolutions)
	require.NoError(t, err)
	second, err := g.Generate(testSession(), resolutions)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// input slice order is untouched
	assert.Equal(t, "c2", resolutions[0].ConflictID)
}

func TestGenerate_NilSession(t *testing.T) {
	g := NewGenerator(WithClock(fixedClock))

	_, err := g.Generate(nil, nil)
	assert.Error(t, err)
}
