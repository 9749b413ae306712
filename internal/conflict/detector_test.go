package conflict

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaluvadis/schemasync/pkg/models"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
}

func newTestDetector() *Detector {
	seq := 0
	return NewDetector(
		WithClock(fixedClock),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("conflict-%04d", seq)
		}),
	)
}

func TestDetect_EmptyInput(t *testing.T) {
	d := newTestDetector()

	conflicts := d.Detect(context.Background(), nil)
	assert.Empty(t, conflicts)

	conflicts = d.Detect(context.Background(), []models.SchemaDifference{})
	assert.Empty(t, conflicts)
}

func TestDetect_DataTypeConflict(t *testing.T) {
	d := newTestDetector()

	changes := []models.SchemaDifference{
		{
			Type:              models.ChangeModified,
			ObjectType:        "Table",
			ObjectName:        "orders",
			Schema:            "public",
			SourceDefinition:  "amount numeric(12,2)",
			TargetDefinition:  "amount integer",
			DifferenceDetails: []string{"column amount data type changed"},
		},
	}

	conflicts := d.Detect(context.Background(), changes)
	require.Len(t, conflicts, 1)

	c := conflicts[0]
	assert.Equal(t, models.CategorySchema, c.Type.Category)
	assert.Equal(t, SubTypeDataTypeChange, c.Type.SubType)
	assert.Equal(t, models.SeverityHigh, c.Type.Severity)
	assert.Equal(t, models.ConflictDetected, c.Status)
	assert.Equal(t, fixedClock(), c.DetectedAt)

	require.Len(t, c.ConflictDetails, 1)
	assert.Equal(t, models.DiffTypeMismatch, c.ConflictDetails[0].DifferenceType)
	assert.Equal(t, "numeric", c.ConflictDetails[0].SourceValue)
	assert.Equal(t, "amount", c.ConflictDetails[0].TargetValue)

	require.NotNil(t, c.RecommendedStrategy)
	assert.Equal(t, "auto-type-conversion", c.RecommendedStrategy.ID)
}

func TestDetect_ConstraintConflict(t *testing.T) {
	d := newTestDetector()

	changes := []models.SchemaDifference{
		{
			Type:              models.ChangeModified,
			ObjectType:        "Table",
			ObjectName:        "users",
			Schema:            "public",
			SourceDefinition:  "id bigint PRIMARY KEY, email text NOT NULL UNIQUE",
			TargetDefinition:  "id bigint PRIMARY KEY, email text",
			DifferenceDetails: []string{"constraint users_email_key added on email"},
		},
	}

	conflicts := d.Detect(context.Background(), changes)
	require.Len(t, conflicts, 1)

	c := conflicts[0]
	assert.Equal(t, SubTypeConstraintChange, c.Type.SubType)
	assert.Equal(t, models.SeverityMedium, c.Type.Severity)

	require.Len(t, c.ConflictDetails, 1)
	assert.Equal(t, models.DiffStructureChanged, c.ConflictDetails[0].DifferenceType)
	assert.Equal(t, "PRIMARY KEY, NOT NULL, UNIQUE", c.ConflictDetails[0].SourceValue)
	assert.Equal(t, "PRIMARY KEY", c.ConflictDetails[0].TargetValue)
}

// A detail containing the substring "constraint" anywhere triggers the
// constraint path, even inside a comment. Intentional heuristic.
func TestDetect_ConstraintSubstringFalsePositive(t *testing.T) {
	d := newTestDetector()

	changes := []models.SchemaDifference{
		{
			Type:              models.ChangeModified,
			ObjectType:        "View",
			ObjectName:        "report",
			Schema:            "public",
			SourceDefinition:  "-- no constraint here, honest\nSELECT 1",
			TargetDefinition:  "SELECT 1",
			DifferenceDetails: []string{"comment mentions a constraint in passing"},
		},
	}

	conflicts := d.Detect(context.Background(), changes)
	require.Len(t, conflicts, 1)
	assert.Equal(t, SubTypeConstraintChange, conflicts[0].Type.SubType)
}

func TestDetect_RemovalDependency(t *testing.T) {
	d := newTestDetector()

	changes := []models.SchemaDifference{
		{
			Type:              models.ChangeRemoved,
			ObjectType:        "Table",
			ObjectName:        "customers",
			Schema:            "sales",
			TargetDefinition:  "CREATE TABLE sales.customers (...)",
			DifferenceDetails: []string{"table removed"},
		},
		{
			Type:              models.ChangeModified,
			ObjectType:        "View",
			ObjectName:        "customer_report",
			Schema:            "reporting",
			DifferenceDetails: []string{"view body references customers"},
		},
	}

	conflicts := d.Detect(context.Background(), changes)
	require.Len(t, conflicts, 1)

	c := conflicts[0]
	assert.Equal(t, models.CategoryDependency, c.Type.Category)
	assert.Equal(t, SubTypeRemovalDependency, c.Type.SubType)
	assert.Equal(t, models.SeverityCritical, c.Type.Severity)
	assert.Contains(t, c.Type.Description, "1 dependent change(s)")
}

func TestDetect_RemovalWithoutDependents(t *testing.T) {
	d := newTestDetector()

	changes := []models.SchemaDifference{
		{
			Type:              models.ChangeRemoved,
			ObjectType:        "Table",
			ObjectName:        "orphan",
			Schema:            "scratch",
			DifferenceDetails: []string{"table removed"},
		},
		{
			Type:              models.ChangeModified,
			ObjectType:        "Table",
			ObjectName:        "unrelated",
			Schema:            "public",
			DifferenceDetails: []string{"something else entirely"},
		},
	}

	conflicts := d.Detect(context.Background(), changes)
	assert.Empty(t, conflicts)
}

// Spec example: two Added changes with identical (name, schema) yield one
// naming conflict each, both medium severity.
func TestDetect_NamingConflictPair(t *testing.T) {
	d := newTestDetector()

	changes := []models.SchemaDifference{
		{Type: models.ChangeAdded, ObjectType: "Table", ObjectName: "t1", Schema: "public", DifferenceDetails: []string{}},
		{Type: models.ChangeAdded, ObjectType: "Table", ObjectName: "t1", Schema: "public", DifferenceDetails: []string{}},
	}

	conflicts := d.Detect(context.Background(), changes)
	require.Len(t, conflicts, 2)

	for _, c := range conflicts {
		assert.Equal(t, models.CategorySchema, c.Type.Category)
		assert.Equal(t, SubTypeNamingConflict, c.Type.SubType)
		assert.Equal(t, models.SeverityMedium, c.Type.Severity)
	}
}

func TestDetect_NamingNoCollisionAcrossSchemas(t *testing.T) {
	d := newTestDetector()

	changes := []models.SchemaDifference{
		{Type: models.ChangeAdded, ObjectType: "Table", ObjectName: "t1", Schema: "public"},
		{Type: models.ChangeAdded, ObjectType: "Table", ObjectName: "t1", Schema: "audit"},
	}

	conflicts := d.Detect(context.Background(), changes)
	assert.Empty(t, conflicts)
}

// With clock and ID generation pinned, detection is a pure function of its
// input: two runs over the same change list are structurally identical.
func TestDetect_Idempotent(t *testing.T) {
	changes := []models.SchemaDifference{
		{
			Type:              models.ChangeModified,
			ObjectType:        "Table",
			ObjectName:        "orders",
			Schema:            "public",
			SourceDefinition:  "amount numeric(12,2)",
			TargetDefinition:  "amount integer",
			DifferenceDetails: []string{"column amount data type changed", "constraint orders_amount_check dropped"},
		},
		{Type: models.ChangeAdded, ObjectType: "Table", ObjectName: "t1", Schema: "public"},
		{Type: models.ChangeAdded, ObjectType: "Table", ObjectName: "t1", Schema: "public"},
	}

	first := newTestDetector().Detect(context.Background(), changes)
	second := newTestDetector().Detect(context.Background(), changes)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("detection runs differ (-first +second):\n%s", diff)
	}
}

func TestDetect_StrategiesSortedByPriority(t *testing.T) {
	d := newTestDetector()

	changes := []models.SchemaDifference{
		{
			Type:              models.ChangeModified,
			ObjectName:        "orders",
			Schema:            "public",
			DifferenceDetails: []string{"data type changed"},
		},
	}

	conflicts := d.Detect(context.Background(), changes)
	require.Len(t, conflicts, 1)

	strategies := conflicts[0].ResolutionStrategies
	require.Len(t, strategies, 2)
	for i := 1; i < len(strategies); i++ {
		assert.LessOrEqual(t, strategies[i-1].Priority, strategies[i].Priority)
	}
}

func TestExtractNominalType(t *testing.T) {
	tests := []struct {
		definition string
		want       string
	}{
		{"varchar(255)", "varchar"},
		{"numeric(12,2) NOT NULL", "numeric"},
		{"text", "text"},
		{"", "unknown"},
		{"   ", "unknown"},
		{"character varying(40)", "varying"},
	}

	for _, tt := range tests {
		got := extractNominalType(tt.definition)
		assert.Equal(t, tt.want, got, "definition %q", tt.definition)
	}
}

func TestExtractConstraintKeywords(t *testing.T) {
	got := extractConstraintKeywords("id bigint primary key, check (x > 0), y text not null")
	assert.Equal(t, []string{"PRIMARY KEY", "NOT NULL", "CHECK"}, got)

	assert.Nil(t, extractConstraintKeywords("plain text with no keywords"))
}
