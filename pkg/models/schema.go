package models

import (
	"time"
)

// Schema snapshot models produced by the introspector and consumed by the
// comparer. Definition text is rendered DDL-ish prose; the conflict detector
// keys on its vocabulary.

// ObjectKind is the catalog object class of a snapshot entry
type ObjectKind string

const (
	ObjectTable    ObjectKind = "table"
	ObjectView     ObjectKind = "view"
	ObjectSequence ObjectKind = "sequence"
	ObjectFunction ObjectKind = "function"
	ObjectIndex    ObjectKind = "index"
)

// Column is one table column as discovered from the catalog
type Column struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	Nullable     bool   `json:"nullable"`
	DefaultValue string `json:"default_value,omitempty"`
	Position     int    `json:"position"`
}

// Constraint is a table constraint as discovered from the catalog
type Constraint struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // PRIMARY KEY, FOREIGN KEY, UNIQUE, CHECK, NOT NULL
	Definition string `json:"definition"`
	Columns    []string `json:"columns,omitempty"`
}

// Index is a table index as discovered from the catalog
type Index struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
	Unique     bool   `json:"unique"`
}

// SchemaObject is one discovered database object with its rendered definition
type SchemaObject struct {
	Schema      string       `json:"schema"`
	Name        string       `json:"name"`
	Kind        ObjectKind   `json:"kind"`
	Definition  string       `json:"definition"`
	Columns     []Column     `json:"columns,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty"`
}

// Key returns the identity of the object within a snapshot
func (o SchemaObject) Key() string {
	return string(o.Kind) + ":" + o.Schema + "." + o.Name
}

// Snapshot is the full discovered schema of one database at one instant
type Snapshot struct {
	ConnectionID string         `json:"connection_id"`
	Database     string         `json:"database"`
	CapturedAt   time.Time      `json:"captured_at"`
	Objects      []SchemaObject `json:"objects"`
}
