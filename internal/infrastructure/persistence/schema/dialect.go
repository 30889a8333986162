package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// CatalogDialect reads column metadata from a database catalog. Primary and
// Secondary are independent views; Secondary is consulted when Primary fails
// or returns nothing.
type CatalogDialect interface {
	Name() string
	Primary(ctx context.Context, db *gorm.DB, table string) ([]ColumnDescriptor, error)
	Secondary(ctx context.Context, db *gorm.DB, table string) ([]ColumnDescriptor, error)
}

// DialectFor picks the catalog dialect matching a gorm dialector name.
func DialectFor(db *gorm.DB) (CatalogDialect, error) {
	switch db.Dialector.Name() {
	case "postgres":
		return PostgresDialect{}, nil
	case "sqlite":
		return SQLiteDialect{}, nil
	default:
		return nil, fmt.Errorf("no catalog dialect for %q", db.Dialector.Name())
	}
}

// PostgresDialect reads information_schema, then pg_catalog, both restricted
// to current_schema().
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

const pgInformationSchemaQuery = `SELECT table_name, column_name, data_type,
	COALESCE(character_maximum_length, 0) AS max_length,
	is_nullable = 'YES' AS nullable,
	(column_default IS NOT NULL OR is_identity = 'YES' OR is_generated = 'ALWAYS') AS has_default
FROM information_schema.columns
WHERE table_schema = current_schema() AND lower(table_name) = lower(?)
ORDER BY ordinal_position`

const pgCatalogQuery = `SELECT c.relname AS table_name, a.attname AS column_name,
	format_type(a.atttypid, a.atttypmod) AS data_type,
	0 AS max_length,
	NOT a.attnotnull AS nullable,
	(a.atthasdef OR a.attidentity <> '' OR a.attgenerated <> '') AS has_default
FROM pg_catalog.pg_attribute a
JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = current_schema() AND lower(c.relname) = lower(?)
	AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`

type catalogRow struct {
	TableName  string `gorm:"column:table_name"`
	ColumnName string `gorm:"column:column_name"`
	DataType   string `gorm:"column:data_type"`
	MaxLength  int    `gorm:"column:max_length"`
	Nullable   bool   `gorm:"column:nullable"`
	HasDefault bool   `gorm:"column:has_default"`
}

func (PostgresDialect) Primary(ctx context.Context, db *gorm.DB, table string) ([]ColumnDescriptor, error) {
	return scanCatalog(ctx, db, pgInformationSchemaQuery, table)
}

func (PostgresDialect) Secondary(ctx context.Context, db *gorm.DB, table string) ([]ColumnDescriptor, error) {
	return scanCatalog(ctx, db, pgCatalogQuery, table)
}

func scanCatalog(ctx context.Context, db *gorm.DB, query, table string) ([]ColumnDescriptor, error) {
	var rows []catalogRow
	if err := db.WithContext(ctx).Raw(query, table).Scan(&rows).Error; err != nil {
		return nil, err
	}
	cols := make([]ColumnDescriptor, 0, len(rows))
	for _, r := range rows {
		cols = append(cols, describeColumn(r.TableName, r.ColumnName, r.DataType, r.MaxLength, r.Nullable, r.HasDefault))
	}
	return cols, nil
}

// SQLiteDialect reads the table_info pragma, first through the table-valued
// function and then through the PRAGMA statement.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

type pragmaRow struct {
	Name         string         `gorm:"column:name"`
	Type         string         `gorm:"column:type"`
	NotNull      int            `gorm:"column:notnull"`
	DefaultValue sql.NullString `gorm:"column:dflt_value"`
	PK           int            `gorm:"column:pk"`
}

func (SQLiteDialect) Primary(ctx context.Context, db *gorm.DB, table string) ([]ColumnDescriptor, error) {
	var rows []pragmaRow
	err := db.WithContext(ctx).
		Raw(`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return pragmaColumns(table, rows), nil
}

func (SQLiteDialect) Secondary(ctx context.Context, db *gorm.DB, table string) ([]ColumnDescriptor, error) {
	var rows []pragmaRow
	if err := db.WithContext(ctx).Raw("PRAGMA table_info(" + QuoteIdent(table) + ")").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return pragmaColumns(table, rows), nil
}

func pragmaColumns(table string, rows []pragmaRow) []ColumnDescriptor {
	cols := make([]ColumnDescriptor, 0, len(rows))
	for _, r := range rows {
		// INTEGER PRIMARY KEY aliases the rowid and is assigned automatically.
		rowid := r.PK == 1 && strings.EqualFold(strings.TrimSpace(r.Type), "integer")
		hasDefault := r.DefaultValue.Valid || rowid
		cols = append(cols, describeColumn(table, r.Name, r.Type, 0, r.NotNull == 0 && !rowid, hasDefault))
	}
	return cols
}

// QuoteIdent quotes an identifier with double quotes, which both PostgreSQL
// and SQLite accept.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
