// Package inspect discovers the schema of a live PostgreSQL database from
// its catalogs. The rendered definition text it produces is the free text
// the conflict detector's heuristics operate on.
package inspect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/chaluvadis/schemasync/internal/retry"
	"github.com/chaluvadis/schemasync/pkg/models"
)

// Inspector reads schema snapshots through a pgx connection pool. Catalog
// queries go through a rate limiter so inspecting a production database does
// not compete with its real workload.
type Inspector struct {
	pool    *pgxpool.Pool
	limiter *rate.Limiter
	connID  string
}

// Connect opens a pooled connection for inspection, retrying transient
// connection failures with backoff.
func Connect(ctx context.Context, connID, databaseURL string) (*Inspector, error) {
	var pool *pgxpool.Pool

	cfg := retry.DBRetryConfig()
	result := retry.WithBackoff(ctx, cfg, func() error {
		var err error
		pool, err = pgxpool.New(ctx, databaseURL)
		if err != nil {
			return err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return err
		}
		return nil
	})
	if !result.Success {
		return nil, fmt.Errorf("failed to connect to %s: %w", connID, result.LastError)
	}

	return NewInspector(pool, connID), nil
}

// NewInspector wraps an existing pool. The limiter allows a steady 20
// catalog queries per second with small bursts.
func NewInspector(pool *pgxpool.Pool, connID string) *Inspector {
	return &Inspector{
		pool:    pool,
		limiter: rate.NewLimiter(rate.Limit(20), 5),
		connID:  connID,
	}
}

// Close releases the underlying pool
func (ins *Inspector) Close() {
	ins.pool.Close()
}

// Snapshot discovers all user-schema objects and renders their definitions
func (ins *Inspector) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	start := time.Now()

	var dbName string
	if err := ins.pool.QueryRow(ctx, `SELECT current_database()`).Scan(&dbName); err != nil {
		return nil, fmt.Errorf("failed to read database name: %w", err)
	}

	tables, err := ins.discoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover tables: %w", err)
	}

	views, err := ins.discoverViews(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover views: %w", err)
	}

	sequences, err := ins.discoverSequences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover sequences: %w", err)
	}

	functions, err := ins.discoverFunctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover functions: %w", err)
	}

	objects := make([]models.SchemaObject, 0, len(tables)+len(views)+len(sequences)+len(functions))
	objects = append(objects, tables...)
	objects = append(objects, views...)
	objects = append(objects, sequences...)
	objects = append(objects, functions...)

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key() < objects[j].Key()
	})

	log.Info().
		Str("connection", ins.connID).
		Str("database", dbName).
		Int("objects", len(objects)).
		Dur("elapsed", time.Since(start)).
		Msg("schema snapshot captured")

	return &models.Snapshot{
		ConnectionID: ins.connID,
		Database:     dbName,
		CapturedAt:   time.Now(),
		Objects:      objects,
	}, nil
}

func (ins *Inspector) wait(ctx context.Context) error {
	return ins.limiter.Wait(ctx)
}

func (ins *Inspector) discoverTables(ctx context.Context) ([]models.SchemaObject, error) {
	if err := ins.wait(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT c.table_schema, c.table_name, c.column_name, c.data_type,
		       c.is_nullable = 'YES', COALESCE(c.column_default, ''), c.ordinal_position
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE t.table_type = 'BASE TABLE'
		  AND c.table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY c.table_schema, c.table_name, c.ordinal_position
	`

	rows, err := ins.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("column query failed: %w", err)
	}
	defer rows.Close()

	byKey := make(map[string]*models.SchemaObject)
	var order []string

	for rows.Next() {
		var schema, table string
		var col models.Column
		if err := rows.Scan(&schema, &table, &col.Name, &col.DataType, &col.Nullable, &col.DefaultValue, &col.Position); err != nil {
			return nil, fmt.Errorf("column scan failed: %w", err)
		}

		key := schema + "." + table
		obj, ok := byKey[key]
		if !ok {
			obj = &models.SchemaObject{Schema: schema, Name: table, Kind: models.ObjectTable}
			byKey[key] = obj
			order = append(order, key)
		}
		obj.Columns = append(obj.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("column iteration failed: %w", err)
	}

	if err := ins.attachConstraints(ctx, byKey); err != nil {
		return nil, err
	}
	if err := ins.attachIndexes(ctx, byKey); err != nil {
		return nil, err
	}

	tables := make([]models.SchemaObject, 0, len(order))
	for _, key := range order {
		obj := byKey[key]
		obj.Definition = renderTableDefinition(obj)
		tables = append(tables, *obj)
	}
	return tables, nil
}

func (ins *Inspector) attachConstraints(ctx context.Context, byKey map[string]*models.SchemaObject) error {
	if err := ins.wait(ctx); err != nil {
		return err
	}

	query := `
		SELECT n.nspname, rel.relname, con.conname,
		       CASE con.contype
		           WHEN 'p' THEN 'PRIMARY KEY'
		           WHEN 'f' THEN 'FOREIGN KEY'
		           WHEN 'u' THEN 'UNIQUE'
		           WHEN 'c' THEN 'CHECK'
		           ELSE UPPER(con.contype::text)
		       END,
		       pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class rel ON rel.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = rel.relnamespace
		WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
		ORDER BY n.nspname, rel.relname, con.conname
	`

	rows, err := ins.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("constraint query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table string
		var con models.Constraint
		if err := rows.Scan(&schema, &table, &con.Name, &con.Type, &con.Definition); err != nil {
			return fmt.Errorf("constraint scan failed: %w", err)
		}
		if obj, ok := byKey[schema+"."+table]; ok {
			obj.Constraints = append(obj.Constraints, con)
		}
	}
	return rows.Err()
}

func (ins *Inspector) attachIndexes(ctx context.Context, byKey map[string]*models.SchemaObject) error {
	if err := ins.wait(ctx); err != nil {
		return err
	}

	query := `
		SELECT schemaname, tablename, indexname, indexdef,
		       indexdef LIKE 'CREATE UNIQUE%'
		FROM pg_indexes
		WHERE schemaname NOT IN ('pg_catalog', 'information_schema')
		ORDER BY schemaname, tablename, indexname
	`

	rows, err := ins.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("index query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var schema, table string
		var idx models.Index
		if err := rows.Scan(&schema, &table, &idx.Name, &idx.Definition, &idx.Unique); err != nil {
			return fmt.Errorf("index scan failed: %w", err)
		}
		if obj, ok := byKey[schema+"."+table]; ok {
			obj.Indexes = append(obj.Indexes, idx)
		}
	}
	return rows.Err()
}

func (ins *Inspector) discoverViews(ctx context.Context) ([]models.SchemaObject, error) {
	if err := ins.wait(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT table_schema, table_name, COALESCE(view_definition, '')
		FROM information_schema.views
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_schema, table_name
	`

	rows, err := ins.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("view query failed: %w", err)
	}
	defer rows.Close()

	var views []models.SchemaObject
	for rows.Next() {
		var obj models.SchemaObject
		obj.Kind = models.ObjectView
		if err := rows.Scan(&obj.Schema, &obj.Name, &obj.Definition); err != nil {
			return nil, fmt.Errorf("view scan failed: %w", err)
		}
		views = append(views, obj)
	}
	return views, rows.Err()
}

func (ins *Inspector) discoverSequences(ctx context.Context) ([]models.SchemaObject, error) {
	if err := ins.wait(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT sequence_schema, sequence_name, data_type
		FROM information_schema.sequences
		WHERE sequence_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY sequence_schema, sequence_name
	`

	rows, err := ins.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sequence query failed: %w", err)
	}
	defer rows.Close()

	var sequences []models.SchemaObject
	for rows.Next() {
		var obj models.SchemaObject
		var dataType string
		obj.Kind = models.ObjectSequence
		if err := rows.Scan(&obj.Schema, &obj.Name, &dataType); err != nil {
			return nil, fmt.Errorf("sequence scan failed: %w", err)
		}
		obj.Definition = fmt.Sprintf("SEQUENCE %s.%s AS %s", obj.Schema, obj.Name, dataType)
		sequences = append(sequences, obj)
	}
	return sequences, rows.Err()
}

func (ins *Inspector) discoverFunctions(ctx context.Context) ([]models.SchemaObject, error) {
	if err := ins.wait(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT n.nspname, p.proname, pg_get_functiondef(p.oid)
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname NOT IN ('pg_catalog', 'information_schema')
		  AND p.prokind = 'f'
		ORDER BY n.nspname, p.proname
	`

	rows, err := ins.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("function query failed: %w", err)
	}
	defer rows.Close()

	var functions []models.SchemaObject
	for rows.Next() {
		var obj models.SchemaObject
		obj.Kind = models.ObjectFunction
		if err := rows.Scan(&obj.Schema, &obj.Name, &obj.Definition); err != nil {
			return nil, fmt.Errorf("function scan failed: %w", err)
		}
		functions = append(functions, obj)
	}
	return functions, rows.Err()
}

// renderTableDefinition renders columns and constraints as DDL-ish prose.
// The conflict detector extracts types and constraint keywords from this
// text, so the wording matters more than syntactic validity.
func renderTableDefinition(obj *models.SchemaObject) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TABLE %s.%s (\n", obj.Schema, obj.Name)

	for _, col := range obj.Columns {
		fmt.Fprintf(&b, "  %s %s", col.Name, col.DataType)
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
		if col.DefaultValue != "" {
			fmt.Fprintf(&b, " DEFAULT %s", col.DefaultValue)
		}
		b.WriteString("\n")
	}
	for _, con := range obj.Constraints {
		fmt.Fprintf(&b, "  CONSTRAINT %s %s\n", con.Name, con.Definition)
	}
	b.WriteString(")")
	return b.String()
}
