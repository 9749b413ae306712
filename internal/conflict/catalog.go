package conflict

import (
	"sort"

	"github.com/chaluvadis/schemasync/pkg/models"
)

// Conflict sub-types the catalog knows strategies for
const (
	SubTypeDataTypeChange    = "data_type_change"
	SubTypeConstraintChange  = "constraint_change"
	SubTypeRemovalDependency = "removal_dependency"
	SubTypeNamingConflict    = "naming_conflict"
)

// Catalog holds the authored resolution strategies per conflict sub-type.
// Entries are fixed constants; the session time-estimate formula depends on
// their numeric values, so they must not be recomputed at runtime.
type Catalog struct {
	strategies map[string][]models.ResolutionStrategy
}

// NewCatalog creates the static strategy catalog
func NewCatalog() *Catalog {
	return &Catalog{strategies: map[string][]models.ResolutionStrategy{
		SubTypeDataTypeChange: {
			{
				ID:                  "auto-type-conversion",
				Name:                "Automatic type conversion",
				Description:         "Apply the source data type with an implicit cast via ALTER COLUMN ... USING",
				Type:                models.StrategyAutomatic,
				Priority:            1,
				ApplicableConflicts: []string{SubTypeDataTypeChange},
				SuccessRate:         0.85,
				RiskLevel:           "medium",
				EstimatedTime:       5,
				RequiresUserInput:   false,
				CanHandleDataLoss:   false,
			},
			{
				ID:                  "manual-type-review",
				Name:                "Manual type review",
				Description:         "Review the column type change and author a conversion script by hand",
				Type:                models.StrategyManual,
				Priority:            2,
				ApplicableConflicts: []string{SubTypeDataTypeChange},
				SuccessRate:         0.95,
				RiskLevel:           "low",
				EstimatedTime:       20,
				RequiresUserInput:   true,
				CanHandleDataLoss:   true,
			},
		},
		SubTypeConstraintChange: {
			{
				ID:                  "auto-constraint-apply",
				Name:                "Automatic constraint apply",
				Description:         "Drop and recreate the constraint from the source definition",
				Type:                models.StrategyAutomatic,
				Priority:            1,
				ApplicableConflicts: []string{SubTypeConstraintChange},
				SuccessRate:         0.8,
				RiskLevel:           "medium",
				EstimatedTime:       3,
				RequiresUserInput:   false,
				CanHandleDataLoss:   false,
			},
			{
				ID:                  "semi-constraint-validate",
				Name:                "Validated constraint apply",
				Description:         "Apply the constraint as NOT VALID, then validate after reviewing violating rows",
				Type:                models.StrategySemiAutomatic,
				Priority:            2,
				ApplicableConflicts: []string{SubTypeConstraintChange},
				SuccessRate:         0.9,
				RiskLevel:           "low",
				EstimatedTime:       10,
				RequiresUserInput:   true,
				CanHandleDataLoss:   false,
			},
		},
		SubTypeRemovalDependency: {
			{
				ID:                  "semi-cascade-review",
				Name:                "Reviewed cascade drop",
				Description:         "Drop the object with CASCADE after reviewing the dependent objects",
				Type:                models.StrategySemiAutomatic,
				Priority:            1,
				ApplicableConflicts: []string{SubTypeRemovalDependency},
				SuccessRate:         0.7,
				RiskLevel:           "high",
				EstimatedTime:       15,
				RequiresUserInput:   true,
				CanHandleDataLoss:   true,
			},
			{
				ID:                  "manual-dependency-rework",
				Name:                "Manual dependency rework",
				Description:         "Rewrite dependent objects to remove references before dropping",
				Type:                models.StrategyManual,
				Priority:            2,
				ApplicableConflicts: []string{SubTypeRemovalDependency},
				SuccessRate:         0.95,
				RiskLevel:           "medium",
				EstimatedTime:       30,
				RequiresUserInput:   true,
				CanHandleDataLoss:   false,
			},
		},
		SubTypeNamingConflict: {
			{
				ID:                  "auto-rename-suffix",
				Name:                "Automatic rename",
				Description:         "Rename the incoming object with a deterministic suffix to avoid the collision",
				Type:                models.StrategyAutomatic,
				Priority:            1,
				ApplicableConflicts: []string{SubTypeNamingConflict},
				SuccessRate:         0.9,
				RiskLevel:           "low",
				EstimatedTime:       2,
				RequiresUserInput:   false,
				CanHandleDataLoss:   false,
			},
			{
				ID:                  "manual-rename",
				Name:                "Manual rename",
				Description:         "Pick a new object name and update referencing code by hand",
				Type:                models.StrategyManual,
				Priority:            2,
				ApplicableConflicts: []string{SubTypeNamingConflict},
				SuccessRate:         0.98,
				RiskLevel:           "low",
				EstimatedTime:       10,
				RequiresUserInput:   true,
				CanHandleDataLoss:   false,
			},
		},
	}}
}

// StrategiesFor returns the strategies for a conflict sub-type sorted by
// ascending Priority (lower value preferred). Unknown sub-types yield nil.
func (c *Catalog) StrategiesFor(subType string) []models.ResolutionStrategy {
	entries, ok := c.strategies[subType]
	if !ok {
		return nil
	}

	out := make([]models.ResolutionStrategy, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// SubTypes returns all sub-types the catalog carries strategies for
func (c *Catalog) SubTypes() []string {
	keys := make([]string, 0, len(c.strategies))
	for k := range c.strategies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
