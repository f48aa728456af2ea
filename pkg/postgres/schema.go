package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jellydator/ttlcache/v3"
)

const schemaCacheKey = "schema"

// SchemaFetcher builds the schema context string given to the model:
// per-table columns, foreign-key edges, and a small sample-data excerpt.
// The result is cached with a TTL so long-running interactive sessions
// pick up schema changes without reconnecting.
type SchemaFetcher struct {
	pool  *pgxpool.Pool
	cache *ttlcache.Cache[string, string]
	log   *slog.Logger
}

// NewSchemaFetcher creates a SchemaFetcher with the given cache TTL.
func NewSchemaFetcher(pool *pgxpool.Pool, ttl time.Duration, log *slog.Logger) *SchemaFetcher {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &SchemaFetcher{
		pool:  pool,
		cache: ttlcache.New(ttlcache.WithTTL[string, string](ttl)),
		log:   log,
	}
}

// FetchSchema returns the formatted schema context, introspecting the
// database on a cache miss.
func (f *SchemaFetcher) FetchSchema(ctx context.Context) (string, error) {
	if item := f.cache.Get(schemaCacheKey); item != nil {
		return item.Value(), nil
	}

	start := time.Now()
	schema, err := f.introspect(ctx)
	if err != nil {
		return "", err
	}
	if f.log != nil {
		f.log.Info("schema context loaded", "bytes", len(schema), "duration", time.Since(start))
	}

	f.cache.Set(schemaCacheKey, schema, ttlcache.DefaultTTL)
	return schema, nil
}

type column struct {
	name     string
	dataType string
	nullable bool
	def      *string
}

type foreignKey struct {
	column    string
	refTable  string
	refColumn string
}

func (f *SchemaFetcher) introspect(ctx context.Context) (string, error) {
	tables, err := f.tables(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list tables: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("DATABASE SCHEMA INFORMATION\n")
	sb.WriteString(strings.Repeat("=", 80) + "\n")

	for _, table := range tables {
		sb.WriteString(fmt.Sprintf("\nTABLE: %s\n", table))
		sb.WriteString(strings.Repeat("-", 80) + "\n")

		cols, err := f.columns(ctx, table)
		if err != nil {
			return "", fmt.Errorf("failed to describe %s: %w", table, err)
		}
		sb.WriteString("Columns:\n")
		for _, c := range cols {
			nullable := "NOT NULL"
			if c.nullable {
				nullable = "NULL"
			}
			line := fmt.Sprintf("  - %s (%s, %s", c.name, c.dataType, nullable)
			if c.def != nil && *c.def != "" {
				line += ", DEFAULT: " + *c.def
			}
			sb.WriteString(line + ")\n")
		}

		fks, err := f.foreignKeys(ctx, table)
		if err != nil {
			return "", fmt.Errorf("failed to read foreign keys of %s: %w", table, err)
		}
		if len(fks) > 0 {
			sb.WriteString("Foreign Keys:\n")
			for _, fk := range fks {
				sb.WriteString(fmt.Sprintf("  - %s -> %s.%s\n", fk.column, fk.refTable, fk.refColumn))
			}
		}

		samples, err := f.sampleRows(ctx, table, cols)
		if err == nil && len(samples) > 0 {
			sb.WriteString(fmt.Sprintf("Sample Data (%d rows):\n", len(samples)))
			for _, sample := range samples {
				sb.WriteString("  " + sample + "\n")
			}
		}
	}

	return sb.String(), nil
}

func (f *SchemaFetcher) tables(ctx context.Context) ([]string, error) {
	rows, err := f.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (f *SchemaFetcher) columns(ctx context.Context, table string) ([]column, error) {
	rows, err := f.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []column
	for rows.Next() {
		var c column
		var nullable string
		if err := rows.Scan(&c.name, &c.dataType, &nullable, &c.def); err != nil {
			return nil, err
		}
		c.nullable = nullable == "YES"
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (f *SchemaFetcher) foreignKeys(ctx context.Context, table string) ([]foreignKey, error) {
	rows, err := f.pool.Query(ctx, `
		SELECT kcu.column_name,
		       ccu.table_name  AS foreign_table_name,
		       ccu.column_name AS foreign_column_name
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
		    ON tc.constraint_name = kcu.constraint_name
		JOIN information_schema.constraint_column_usage AS ccu
		    ON ccu.constraint_name = tc.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_name = $1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []foreignKey
	for rows.Next() {
		var fk foreignKey
		if err := rows.Scan(&fk.column, &fk.refTable, &fk.refColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// sampleRows fetches up to three rows of the table, each formatted as
// "col=value" pairs. Failure here is non-fatal; the schema context is
// still useful without sample data.
func (f *SchemaFetcher) sampleRows(ctx context.Context, table string, cols []column) ([]string, error) {
	rows, err := f.pool.Query(ctx, fmt.Sprintf(`SELECT * FROM %s LIMIT 3`, quoteIdentifier(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		pairs := make([]string, 0, len(values))
		for i, v := range values {
			if i >= len(cols) {
				break
			}
			s := fmt.Sprintf("%v", v)
			if len(s) > 60 {
				s = s[:57] + "..."
			}
			pairs = append(pairs, cols[i].name+"="+s)
		}
		out = append(out, strings.Join(pairs, ", "))
	}
	return out, rows.Err()
}

// quoteIdentifier wraps a table name in double quotes for interpolation
// into the sample query. Names come from information_schema, not the user.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
