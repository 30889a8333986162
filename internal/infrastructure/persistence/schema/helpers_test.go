package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Date(2025, time.March, 14, 10, 30, 0, 0, time.UTC)

func col(name, dataType string, nullable, hasDefault bool) ColumnDescriptor {
	return describeColumn("facturas", name, dataType, 0, nullable, hasDefault)
}

func snapshot(table string, cols ...ColumnDescriptor) *TableSnapshot {
	for i := range cols {
		cols[i].Table = table
	}
	return NewTableSnapshot(table, cols)
}

func testMappings() *Mappings {
	return NewMappingsBuilder().
		Key("facturas", "external_id", "UUID", "FOLIO_FISCAL").
		Field("facturas", "series", "SERIE").
		Field("facturas", "folio", "FOLIO").
		Reference("facturas", "customer_ref", "ID_CLIENTE", "CLIENTE_ID").
		Field("facturas", "subtotal", "SUBTOTAL").
		Field("facturas", "total", "TOTAL").
		Field("facturas", "content", "XML", "XML_CFDI").
		Field("facturas", "status", "ESTATUS", "STATUS").
		Field("facturas", "issued_at", "FECHA_EMISION", "FECHA").
		Build()
}

func newTestBuilder(catalog Catalog, opts ...BuilderOption) *Builder {
	return NewBuilder(catalog, testMappings(), NewSynthesizer(WithClock(func() time.Time { return fixedNow })), opts...)
}

// newSQLiteDB opens a private in-memory database on a single connection.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
