package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Date(2025, time.March, 14, 10, 30, 0, 0, time.UTC)

const (
	invoiceID    = "6F9619FF-8B86-D011-B42D-00C04FC964FF"
	creditNoteID = "3B241101-E2BB-4255-8CAF-4136C566A962"
)

// legacyInvoiceDDL is an invoice table as found in older deployments: the
// fiscal id lives in FOLIO_FISCAL, the body in XML_CFDI, and LUGAR_EXPEDICION
// is mandatory but unknown to the mappings.
const legacyInvoiceDDL = `CREATE TABLE facturas (
	ID INTEGER PRIMARY KEY,
	FOLIO_FISCAL VARCHAR(36) NOT NULL UNIQUE,
	SERIE VARCHAR(10),
	FOLIO VARCHAR(20) NOT NULL,
	RFC_EMISOR VARCHAR(13) NOT NULL,
	RFC_RECEPTOR VARCHAR(13) NOT NULL,
	CVE_CLIENTE VARCHAR(20),
	SUBTOTAL NUMERIC(14,2) NOT NULL,
	IVA NUMERIC(14,2),
	TOTAL NUMERIC(14,2) NOT NULL,
	MONEDA VARCHAR(3),
	XML_CFDI TEXT,
	ESTATUS VARCHAR(30) NOT NULL,
	FECHA_EMISION DATETIME NOT NULL,
	LUGAR_EXPEDICION VARCHAR(5) NOT NULL,
	ID_TICKET VARCHAR(20),
	FECHA_SOLICITUD_CANCELACION DATETIME,
	FECHA_CANCELACION DATETIME
)`

const conceptsDDL = `CREATE TABLE conceptos_factura (
	ID INTEGER PRIMARY KEY,
	UUID_FACTURA VARCHAR(36) NOT NULL,
	PARTIDA INTEGER NOT NULL,
	DESCRIPCION VARCHAR(200) NOT NULL,
	CANTIDAD NUMERIC(12,4) NOT NULL,
	VALOR_UNITARIO NUMERIC(14,2) NOT NULL,
	IMPORTE NUMERIC(14,2) NOT NULL
)`

const invoiceArchiveDDL = `CREATE TABLE facturas_historico (
	ID INTEGER PRIMARY KEY,
	UUID VARCHAR(36) NOT NULL,
	SERIE VARCHAR(10),
	FOLIO VARCHAR(20),
	TOTAL NUMERIC(14,2),
	XML TEXT,
	ESTATUS VARCHAR(30)
)`

// newSQLiteDB opens a private in-memory database on a single connection.
func newSQLiteDB(t *testing.T, ddl ...string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newTestBuilder(t *testing.T, db *gorm.DB, opts ...schema.BuilderOption) *schema.Builder {
	t.Helper()
	log := zaptest.NewLogger(t)
	catalog := schema.NewCatalogIntrospector(db, schema.SQLiteDialect{}, schema.WithIntrospectorLogger(log))
	synth := schema.NewSynthesizer(
		schema.WithClock(func() time.Time { return fixedNow }),
		schema.WithSynthesizerLogger(log),
	)
	opts = append([]schema.BuilderOption{
		schema.WithManagedColumns("ID"),
		schema.WithBuilderLogger(log),
	}, opts...)
	return schema.NewBuilder(catalog, DefaultMappings().Build(), synth, opts...)
}

func newTestDocumentRepository(t *testing.T, db *gorm.DB) *DocumentRepository {
	return NewDocumentRepository(db, newTestBuilder(t, db), DefaultRegistry(), zaptest.NewLogger(t))
}

// tierRecorder captures fallback tier hits.
type tierRecorder struct {
	schema.NopRecorder
	mu    sync.Mutex
	tiers []string
}

func (r *tierRecorder) FallbackTier(_ context.Context, _ string, tier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers = append(r.tiers, tier)
}

func (r *tierRecorder) Tiers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tiers...)
}

func countRows(t *testing.T, db *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Table(table).Count(&n).Error)
	return n
}
