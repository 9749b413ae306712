// Package compare diffs two schema snapshots into object-level differences.
// The detail strings it emits use the vocabulary the conflict detector keys
// on ("data type changed ...", "constraint ... added"), so the two packages
// evolve together.
package compare

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/chaluvadis/schemasync/pkg/models"
)

// Compare diffs source against target. An object present only in source is
// Added (it would be created on target); present only in target is Removed
// (it would be dropped); present in both with a different shape is Modified.
// Output is sorted by object key, so comparison is deterministic.
func Compare(source, target *models.Snapshot) []models.SchemaDifference {
	sourceByKey := indexObjects(source)
	targetByKey := indexObjects(target)

	keys := make(map[string]struct{}, len(sourceByKey)+len(targetByKey))
	for k := range sourceByKey {
		keys[k] = struct{}{}
	}
	for k := range targetByKey {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var diffs []models.SchemaDifference
	for _, key := range sorted {
		src, inSource := sourceByKey[key]
		tgt, inTarget := targetByKey[key]

		switch {
		case inSource && !inTarget:
			diffs = append(diffs, models.SchemaDifference{
				Type:              models.ChangeAdded,
				ObjectType:        string(src.Kind),
				ObjectName:        src.Name,
				Schema:            src.Schema,
				SourceDefinition:  src.Definition,
				DifferenceDetails: []string{fmt.Sprintf("%s %s.%s exists only in source", src.Kind, src.Schema, src.Name)},
			})
		case !inSource && inTarget:
			diffs = append(diffs, models.SchemaDifference{
				Type:              models.ChangeRemoved,
				ObjectType:        string(tgt.Kind),
				ObjectName:        tgt.Name,
				Schema:            tgt.Schema,
				TargetDefinition:  tgt.Definition,
				DifferenceDetails: []string{fmt.Sprintf("%s %s.%s exists only in target", tgt.Kind, tgt.Schema, tgt.Name)},
			})
		default:
			details := diffObjects(src, tgt)
			if len(details) == 0 {
				continue
			}
			diffs = append(diffs, models.SchemaDifference{
				Type:              models.ChangeModified,
				ObjectType:        string(src.Kind),
				ObjectName:        src.Name,
				Schema:            src.Schema,
				SourceDefinition:  src.Definition,
				TargetDefinition:  tgt.Definition,
				DifferenceDetails: details,
			})
		}
	}

	log.Debug().
		Int("source_objects", len(sourceByKey)).
		Int("target_objects", len(targetByKey)).
		Int("differences", len(diffs)).
		Msg("snapshot comparison finished")

	return diffs
}

func indexObjects(snapshot *models.Snapshot) map[string]*models.SchemaObject {
	out := make(map[string]*models.SchemaObject)
	if snapshot == nil {
		return out
	}
	for i := range snapshot.Objects {
		obj := &snapshot.Objects[i]
		out[obj.Key()] = obj
	}
	return out
}

// diffObjects compares two versions of the same object attribute by
// attribute and renders one detail string per discrepancy.
func diffObjects(src, tgt *models.SchemaObject) []string {
	var details []string

	details = append(details, diffColumns(src, tgt)...)
	details = append(details, diffConstraints(src, tgt)...)
	details = append(details, diffIndexes(src, tgt)...)

	// non-relational objects (views, functions) carry their shape in the
	// definition text only
	if len(details) == 0 && src.Definition != tgt.Definition {
		details = append(details, fmt.Sprintf("definition of %s %s.%s differs", src.Kind, src.Schema, src.Name))
	}

	return details
}

func diffColumns(src, tgt *models.SchemaObject) []string {
	var details []string

	tgtCols := make(map[string]*models.Column, len(tgt.Columns))
	for i := range tgt.Columns {
		tgtCols[tgt.Columns[i].Name] = &tgt.Columns[i]
	}
	srcCols := make(map[string]*models.Column, len(src.Columns))
	for i := range src.Columns {
		srcCols[src.Columns[i].Name] = &src.Columns[i]
	}

	for i := range src.Columns {
		sc := &src.Columns[i]
		tc, ok := tgtCols[sc.Name]
		if !ok {
			details = append(details, fmt.Sprintf("column %s exists only in source", sc.Name))
			continue
		}
		if sc.DataType != tc.DataType {
			details = append(details, fmt.Sprintf("column %s data type changed from %s to %s", sc.Name, tc.DataType, sc.DataType))
		}
		if sc.Nullable != tc.Nullable {
			if sc.Nullable {
				details = append(details, fmt.Sprintf("column %s NOT NULL constraint dropped", sc.Name))
			} else {
				details = append(details, fmt.Sprintf("column %s NOT NULL constraint added", sc.Name))
			}
		}
		if sc.DefaultValue != tc.DefaultValue {
			details = append(details, fmt.Sprintf("column %s default changed from %q to %q", sc.Name, tc.DefaultValue, sc.DefaultValue))
		}
	}

	for i := range tgt.Columns {
		if _, ok := srcCols[tgt.Columns[i].Name]; !ok {
			details = append(details, fmt.Sprintf("column %s exists only in target", tgt.Columns[i].Name))
		}
	}

	return details
}

func diffConstraints(src, tgt *models.SchemaObject) []string {
	var details []string

	tgtCons := make(map[string]*models.Constraint, len(tgt.Constraints))
	for i := range tgt.Constraints {
		tgtCons[tgt.Constraints[i].Name] = &tgt.Constraints[i]
	}
	srcCons := make(map[string]*models.Constraint, len(src.Constraints))
	for i := range src.Constraints {
		srcCons[src.Constraints[i].Name] = &src.Constraints[i]
	}

	for i := range src.Constraints {
		sc := &src.Constraints[i]
		tc, ok := tgtCons[sc.Name]
		if !ok {
			details = append(details, fmt.Sprintf("constraint %s (%s) added", sc.Name, sc.Type))
			continue
		}
		if sc.Definition != tc.Definition {
			details = append(details, fmt.Sprintf("constraint %s definition changed", sc.Name))
		}
	}

	for i := range tgt.Constraints {
		tc := &tgt.Constraints[i]
		if _, ok := srcCons[tc.Name]; !ok {
			details = append(details, fmt.Sprintf("constraint %s (%s) removed", tc.Name, tc.Type))
		}
	}

	return details
}

func diffIndexes(src, tgt *models.SchemaObject) []string {
	var details []string

	tgtIdx := make(map[string]*models.Index, len(tgt.Indexes))
	for i := range tgt.Indexes {
		tgtIdx[tgt.Indexes[i].Name] = &tgt.Indexes[i]
	}
	srcIdx := make(map[string]*models.Index, len(src.Indexes))
	for i := range src.Indexes {
		srcIdx[src.Indexes[i].Name] = &src.Indexes[i]
	}

	for i := range src.Indexes {
		si := &src.Indexes[i]
		ti, ok := tgtIdx[si.Name]
		if !ok {
			details = append(details, fmt.Sprintf("index %s added", si.Name))
			continue
		}
		if si.Definition != ti.Definition {
			details = append(details, fmt.Sprintf("index %s definition changed", si.Name))
		}
	}

	for i := range tgt.Indexes {
		if _, ok := srcIdx[tgt.Indexes[i].Name]; !ok {
			details = append(details, fmt.Sprintf("index %s removed", tgt.Indexes[i].Name))
		}
	}

	return details
}
