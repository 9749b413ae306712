package conflict

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chaluvadis/schemasync/pkg/models"
)

// dataTypeIndicators are the detail substrings that mark a data-type change.
// Matching is purely textual; definitions are not parsed as SQL.
var dataTypeIndicators = []string{"data type", "datatype", "type changed", "column type"}

// constraintKeywords is the fixed vocabulary extracted from definition text
var constraintKeywords = []string{"PRIMARY KEY", "FOREIGN KEY", "NOT NULL", "UNIQUE", "CHECK"}

// typedNameRe extracts a nominal type name followed by a parenthesis,
// e.g. "varchar(255)". Best effort; falls back to the first bare word.
var typedNameRe = regexp.MustCompile(`(\w+)\s*\(`)

var bareWordRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Detector scans schema differences and produces typed conflicts annotated
// with resolution strategies from the catalog.
type Detector struct {
	catalog *Catalog
	clock   func() time.Time
	newID   func() string
}

// DetectorOption customizes a Detector
type DetectorOption func(*Detector)

// WithClock overrides the detection timestamp source (used by tests)
func WithClock(clock func() time.Time) DetectorOption {
	return func(d *Detector) { d.clock = clock }
}

// WithIDGenerator overrides conflict ID generation (used by tests)
func WithIDGenerator(newID func() string) DetectorOption {
	return func(d *Detector) { d.newID = newID }
}

// NewDetector creates a detector backed by the static strategy catalog
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{
		catalog: NewCatalog(),
		clock:   time.Now,
		newID: func() string {
			return "conflict-" + uuid.NewString()
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect analyzes a batch of schema differences and returns the conflicts
// found. Detection never fails as a whole: an error while analyzing one
// change is logged and degrades to zero conflicts for that change.
func (d *Detector) Detect(ctx context.Context, changes []models.SchemaDifference) []models.SchemaConflict {
	conflicts := make([]models.SchemaConflict, 0)

	for i := range changes {
		found, err := d.analyzeChange(&changes[i], changes)
		if err != nil {
			log.Error().
				Err(err).
				Str("object", changes[i].Schema+"."+changes[i].ObjectName).
				Str("change_type", string(changes[i].Type)).
				Msg("conflict analysis failed for change, skipping")
			continue
		}
		conflicts = append(conflicts, found...)
	}

	log.Debug().
		Int("changes", len(changes)).
		Int("conflicts", len(conflicts)).
		Msg("conflict detection finished")

	return conflicts
}

// analyzeChange dispatches on the change kind. The recover guard keeps a
// malformed change from aborting the batch.
func (d *Detector) analyzeChange(change *models.SchemaDifference, all []models.SchemaDifference) (found []models.SchemaConflict, err error) {
	defer func() {
		if r := recover(); r != nil {
			found = nil
			err = fmt.Errorf("panic analyzing change %s.%s: %v", change.Schema, change.ObjectName, r)
		}
	}()

	switch change.Type {
	case models.ChangeModified:
		if c := d.detectDataTypeConflict(change); c != nil {
			found = append(found, *c)
		}
		if c := d.detectConstraintConflict(change); c != nil {
			found = append(found, *c)
		}
	case models.ChangeRemoved:
		if c := d.detectRemovalDependency(change, all); c != nil {
			found = append(found, *c)
		}
	case models.ChangeAdded:
		if c := d.detectNamingConflict(change, all); c != nil {
			found = append(found, *c)
		}
	}

	return found, nil
}

// detectDataTypeConflict emits a high-severity conflict when any difference
// detail mentions a data-type change.
func (d *Detector) detectDataTypeConflict(change *models.SchemaDifference) *models.SchemaConflict {
	if !detailsMentionAny(change.DifferenceDetails, dataTypeIndicators) {
		return nil
	}

	sourceType := extractNominalType(change.SourceDefinition)
	targetType := extractNominalType(change.TargetDefinition)

	detail := models.ConflictDetail{
		Field:          "data_type",
		SourceValue:    sourceType,
		TargetValue:    targetType,
		DifferenceType: models.DiffTypeMismatch,
		Impact:         "Data conversion may be required; incompatible values can block the migration",
		Description:    fmt.Sprintf("Data type differs for %s.%s", change.Schema, change.ObjectName),
		ResolutionOptions: []string{
			"Convert with explicit USING clause",
			"Keep target type and transform incoming data",
		},
	}

	return d.newConflict(change, models.ConflictType{
		Category:    models.CategorySchema,
		SubType:     SubTypeDataTypeChange,
		Severity:    models.SeverityHigh,
		Description: "Column data type differs between source and target",
		Examples:    []string{"integer -> bigint", "varchar(50) -> text"},
	}, []models.ConflictDetail{detail})
}

// detectConstraintConflict emits a medium-severity conflict when any
// difference detail mentions a constraint. The substring match is a
// deliberate heuristic: "constraint" appearing anywhere in the detail text
// triggers it, comments included.
func (d *Detector) detectConstraintConflict(change *models.SchemaDifference) *models.SchemaConflict {
	if !detailsMentionAny(change.DifferenceDetails, []string{"constraint"}) {
		return nil
	}

	sourceKeywords := extractConstraintKeywords(change.SourceDefinition)
	targetKeywords := extractConstraintKeywords(change.TargetDefinition)

	detail := models.ConflictDetail{
		Field:          "constraints",
		SourceValue:    strings.Join(sourceKeywords, ", "),
		TargetValue:    strings.Join(targetKeywords, ", "),
		DifferenceType: models.DiffStructureChanged,
		Impact:         "Existing rows may violate the changed constraint",
		Description:    fmt.Sprintf("Constraint set differs for %s.%s", change.Schema, change.ObjectName),
		ResolutionOptions: []string{
			"Apply source constraints",
			"Apply as NOT VALID and validate later",
		},
	}

	return d.newConflict(change, models.ConflictType{
		Category:    models.CategorySchema,
		SubType:     SubTypeConstraintChange,
		Severity:    models.SeverityMedium,
		Description: "Constraint definition differs between source and target",
		Examples:    []string{"NOT NULL added", "CHECK expression changed"},
	}, []models.ConflictDetail{detail})
}

// detectRemovalDependency emits a critical conflict when any other change
// textually references the removed object by name or schema.
func (d *Detector) detectRemovalDependency(change *models.SchemaDifference, all []models.SchemaDifference) *models.SchemaConflict {
	dependents := 0
	for i := range all {
		other := &all[i]
		if other == change {
			continue
		}
		if detailsMentionAny(other.DifferenceDetails, []string{change.ObjectName, change.Schema}) {
			dependents++
		}
	}

	if dependents == 0 {
		return nil
	}

	detail := models.ConflictDetail{
		Field:          "dependencies",
		SourceValue:    "",
		TargetValue:    change.TargetDefinition,
		DifferenceType: models.DiffMissingInSource,
		Impact:         "Dropping the object breaks dependent objects",
		Description:    fmt.Sprintf("%d other change(s) reference %s.%s", dependents, change.Schema, change.ObjectName),
		ResolutionOptions: []string{
			"Drop with CASCADE after review",
			"Rework dependents before dropping",
		},
	}

	return d.newConflict(change, models.ConflictType{
		Category:    models.CategoryDependency,
		SubType:     SubTypeRemovalDependency,
		Severity:    models.SeverityCritical,
		Description: fmt.Sprintf("Removed object %s.%s is referenced by %d dependent change(s)", change.Schema, change.ObjectName, dependents),
	}, []models.ConflictDetail{detail})
}

// detectNamingConflict emits a medium-severity conflict when another change
// carries the exact same (name, schema) pair.
func (d *Detector) detectNamingConflict(change *models.SchemaDifference, all []models.SchemaDifference) *models.SchemaConflict {
	collision := false
	for i := range all {
		other := &all[i]
		if other == change {
			continue
		}
		if other.ObjectName == change.ObjectName && other.Schema == change.Schema {
			collision = true
			break
		}
	}

	if !collision {
		return nil
	}

	detail := models.ConflictDetail{
		Field:          "object_name",
		SourceValue:    change.Schema + "." + change.ObjectName,
		TargetValue:    change.Schema + "." + change.ObjectName,
		DifferenceType: models.DiffValueDifferent,
		Impact:         "Create statements will collide on the object name",
		Description:    fmt.Sprintf("Another change targets the same name %s.%s", change.Schema, change.ObjectName),
		ResolutionOptions: []string{
			"Rename with a suffix",
			"Pick a new name manually",
		},
	}

	return d.newConflict(change, models.ConflictType{
		Category:    models.CategorySchema,
		SubType:     SubTypeNamingConflict,
		Severity:    models.SeverityMedium,
		Description: "Multiple added objects share the same name and schema",
	}, []models.ConflictDetail{detail})
}

// newConflict assembles a conflict and annotates it with catalog strategies
func (d *Detector) newConflict(change *models.SchemaDifference, ctype models.ConflictType, details []models.ConflictDetail) *models.SchemaConflict {
	strategies := d.catalog.StrategiesFor(ctype.SubType)

	conflict := &models.SchemaConflict{
		ID:   d.newID(),
		Type: ctype,
		SourceObject: models.ObjectRef{
			Name:       change.ObjectName,
			Schema:     change.Schema,
			ObjectType: change.ObjectType,
			Definition: change.SourceDefinition,
		},
		TargetObject: models.ObjectRef{
			Name:       change.ObjectName,
			Schema:     change.Schema,
			ObjectType: change.ObjectType,
			Definition: change.TargetDefinition,
		},
		ConflictDetails:      details,
		ResolutionStrategies: strategies,
		DetectedAt:           d.clock(),
		Status:               models.ConflictDetected,
		Priority:             ctype.Severity,
	}

	if len(strategies) > 0 {
		recommended := strategies[0]
		conflict.RecommendedStrategy = &recommended
	}

	return conflict
}

// detailsMentionAny reports whether any detail contains any of the needles,
// case-insensitively. Empty needles never match.
func detailsMentionAny(details []string, needles []string) bool {
	for _, detail := range details {
		lower := strings.ToLower(detail)
		for _, needle := range needles {
			if needle == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(needle)) {
				return true
			}
		}
	}
	return false
}

// extractNominalType pulls the nominal type out of free definition text:
// a word directly followed by "(" wins, otherwise the first bare word.
func extractNominalType(definition string) string {
	definition = strings.TrimSpace(definition)
	if definition == "" {
		return "unknown"
	}

	if m := typedNameRe.FindStringSubmatch(definition); m != nil {
		return strings.TrimSpace(m[1])
	}
	if w := bareWordRe.FindString(definition); w != "" {
		return w
	}
	return "unknown"
}

// extractConstraintKeywords returns the fixed-vocabulary keywords present in
// the definition text, in vocabulary order.
func extractConstraintKeywords(definition string) []string {
	upper := strings.ToUpper(definition)
	var found []string
	for _, kw := range constraintKeywords {
		if strings.Contains(upper, kw) {
			found = append(found, kw)
		}
	}
	return found
}
