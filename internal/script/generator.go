// Package script renders an ordered resolution list into an annotated SQL
// migration script. The generator frames and orders; it never inspects the
// SQL inside custom scripts, so malformed statements pass through verbatim.
package script

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chaluvadis/schemasync/pkg/models"
)

// Generator renders resolution scripts
type Generator struct {
	clock func() time.Time
}

// GeneratorOption customizes a Generator
type GeneratorOption func(*Generator)

// WithClock overrides the generation timestamp source (used by tests)
func WithClock(clock func() time.Time) GeneratorOption {
	return func(g *Generator) { g.clock = clock }
}

// NewGenerator creates a script generator
func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{clock: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate renders the script for a session's resolutions. Resolutions are
// emitted in ascending ExecutionOrder regardless of input order; the session
// itself is never mutated.
func (g *Generator) Generate(session *models.ResolutionSession, resolutions []models.ConflictResolution) (string, error) {
	if session == nil {
		err := fmt.Errorf("cannot generate script: session is nil")
		log.Error().Err(err).Msg("script generation failed")
		return "", err
	}

	ordered := make([]models.ConflictResolution, len(resolutions))
	copy(ordered, resolutions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExecutionOrder < ordered[j].ExecutionOrder
	})

	var b strings.Builder

	b.WriteString("-- Schema synchronization resolution script\n")
	fmt.Fprintf(&b, "-- Session: %s (%s)\n", session.Name, session.ID)
	fmt.Fprintf(&b, "-- Generated: %s\n", g.clock().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "-- Conflicts: %d, Resolutions: %d\n", len(session.Conflicts), len(ordered))
	b.WriteString("-- WARNING: Review this script before executing against a production database.\n")
	b.WriteString("\n")

	for _, res := range ordered {
		fmt.Fprintf(&b, "-- Resolution %d\n", res.ExecutionOrder)
		fmt.Fprintf(&b, "-- Conflict: %s\n", res.ConflictID)
		fmt.Fprintf(&b, "-- Strategy: %s\n", res.Strategy.Name)
		fmt.Fprintf(&b, "-- Decision: %s\n", res.Resolution)
		fmt.Fprintf(&b, "-- Resolved by: %s\n", res.ResolvedBy)
		if len(res.Dependencies) > 0 {
			fmt.Fprintf(&b, "-- Depends on: %s\n", strings.Join(res.Dependencies, ", "))
		}
		if res.Notes != "" {
			fmt.Fprintf(&b, "-- Notes: %s\n", res.Notes)
		}

		if res.CustomScript != "" {
			b.WriteString(strings.TrimRight(res.CustomScript, "\n"))
			b.WriteString("\n")
		} else {
			fmt.Fprintf(&b, "-- No script provided for this resolution (%s)\n", res.Resolution)
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}
