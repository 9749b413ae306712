package conflict

import (
	"github.com/rs/zerolog/log"

	"github.com/chaluvadis/schemasync/pkg/models"
)

// severityRank orders severities for escalation comparisons
var severityRank = map[models.ConflictSeverity]int{
	models.SeverityLow:      1,
	models.SeverityMedium:   2,
	models.SeverityHigh:     3,
	models.SeverityCritical: 4,
}

// LinkDependencies cross-links conflicts and escalates priority in place.
// Two conflicts are related when they share a source object name, share a
// target object name, or have overlapping conflict-detail field names.
// A conflict with a critical dependency is escalated to critical; one with
// only high dependencies is escalated to high.
//
// The scan is single-pass: escalation chains longer than one hop are not
// propagated. Known limitation, kept to match the established behavior.
func LinkDependencies(conflicts []models.SchemaConflict) {
	escalated := 0

	for i := range conflicts {
		maxDep := models.SeverityLow
		for j := range conflicts {
			if i == j {
				continue
			}
			if !related(&conflicts[i], &conflicts[j]) {
				continue
			}
			if severityRank[conflicts[j].Priority] > severityRank[maxDep] {
				maxDep = conflicts[j].Priority
			}
		}

		var target models.ConflictSeverity
		switch maxDep {
		case models.SeverityCritical:
			target = models.SeverityCritical
		case models.SeverityHigh:
			target = models.SeverityHigh
		default:
			continue
		}

		if severityRank[target] > severityRank[conflicts[i].Priority] {
			conflicts[i].Priority = target
			escalated++
		}
	}

	if escalated > 0 {
		log.Debug().Int("escalated", escalated).Msg("dependency analysis escalated conflict priorities")
	}
}

// related reports whether two conflicts touch the same objects or fields
func related(a, b *models.SchemaConflict) bool {
	if a.SourceObject.Name != "" && a.SourceObject.Name == b.SourceObject.Name {
		return true
	}
	if a.TargetObject.Name != "" && a.TargetObject.Name == b.TargetObject.Name {
		return true
	}

	for _, ad := range a.ConflictDetails {
		for _, bd := range b.ConflictDetails {
			if ad.Field != "" && ad.Field == bd.Field {
				return true
			}
		}
	}
	return false
}
