//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/cfdi/backend/internal/domain/shared"
	"github.com/cfdi/backend/internal/infrastructure/migration"
	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newPostgresDB starts a disposable PostgreSQL with the reference
// migrations applied.
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("cfdi_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, "../../../migrations", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, m.Up())
	return db
}

func TestPostgres_DocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newPostgresDB(t)
	log := zaptest.NewLogger(t)

	dialect, err := schema.DialectFor(db)
	require.NoError(t, err)
	assert.Equal(t, "postgres", dialect.Name())

	catalog := schema.NewCatalogIntrospector(db, dialect, schema.WithIntrospectorLogger(log))
	builder := schema.NewBuilder(catalog, DefaultMappings().Build(),
		schema.NewSynthesizer(schema.WithClock(func() time.Time { return fixedNow })),
		schema.WithManagedColumns("ID", "CREATED_AT", "UPDATED_AT"),
		schema.WithBuilderLogger(log),
	)
	registry := DefaultRegistry()
	documents := NewDocumentRepository(db, builder, registry, log)
	reader := NewFallbackResolver(db, builder, registry, WithFallbackLogger(log))

	inv := sampleInvoice()
	for n := range inv.Concepts {
		inv.Concepts[n].ProductKey = "01010101"
	}
	require.NoError(t, documents.CreateInvoice(ctx, inv))
	assert.Equal(t, int64(2), countRows(t, db, TableInvoiceConcepts))

	t.Run("state of a stored invoice", func(t *testing.T) {
		state, err := documents.LoadState(ctx, fiscal.KindInvoice, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusIssued, state.Status)
	})

	t.Run("primary tier answers", func(t *testing.T) {
		view, err := reader.FetchByExternalID(ctx, fiscal.KindInvoice, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.SourcePrimary, view.Source)
		assert.True(t, view.Total.Equal(inv.Total))
		assert.Equal(t, inv.Content, view.Content)
	})

	t.Run("shared archive answers", func(t *testing.T) {
		require.NoError(t, db.Exec(`INSERT INTO cfdi_archivo
			(uuid_cfdi, serie, folio, rfc_emisor, rfc_receptor, total, estado, fecha_timbrado, contenido_xml)
			VALUES (?, 'A', '77', 'AAA010101AAA', 'XAXX010101000', 50, 'ISSUED', ?, '<cfdi:Comprobante/>')`,
			creditNoteID, fixedNow).Error)

		view, err := reader.FetchByExternalID(ctx, fiscal.KindInvoice, creditNoteID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.SourceArchive, view.Source)
		assert.Equal(t, TableDocumentArchive, view.SourceTable)
	})

	t.Run("status compare and set", func(t *testing.T) {
		from := []fiscal.DocumentStatus{fiscal.StatusIssued}
		ok, err := documents.CompareAndSetStatus(ctx, fiscal.KindInvoice, invoiceID, from, fiscal.StatusInCancellation, fixedNow)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = documents.CompareAndSetStatus(ctx, fiscal.KindInvoice, invoiceID, from, fiscal.StatusInCancellation, fixedNow)
		require.NoError(t, err)
		assert.False(t, ok)

		state, err := documents.LoadState(ctx, fiscal.KindInvoice, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.StatusInCancellation, state.Status)
	})

	t.Run("cancellation audit", func(t *testing.T) {
		audits := NewGormCancellationRepository(db)
		req, err := fiscal.NewCancellationRequest(fiscal.KindInvoice, invoiceID, fiscal.ReasonErrorsWithoutRelation, "", "operator-1", fixedNow)
		require.NoError(t, err)
		require.NoError(t, audits.Create(ctx, req))

		got, err := audits.FindLatest(ctx, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, req.ID, got.ID)

		_, err = audits.FindLatest(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("unknown document", func(t *testing.T) {
		_, err := reader.FetchByExternalID(ctx, fiscal.KindInvoice, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, schema.ErrNotFound)
	})
}
