package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type tierResult struct {
	row   schema.Row
	found bool
	err   error
}

// fakeSource answers each tier from fixed results and counts calls.
type fakeSource struct {
	primary  tierResult
	archives map[string]tierResult
	reduced  tierResult
	calls    map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{archives: map[string]tierResult{}, calls: map[string]int{}}
}

func (f *fakeSource) Primary(_ context.Context, _ KindTables, _ string) (schema.Row, bool, error) {
	f.calls[TierPrimary]++
	return f.primary.row, f.primary.found, f.primary.err
}

func (f *fakeSource) Archive(_ context.Context, table, _ string) (schema.Row, bool, error) {
	f.calls[TierArchive]++
	f.calls[table]++
	r := f.archives[table]
	return r.row, r.found, r.err
}

func (f *fakeSource) Reduced(_ context.Context, _ KindTables, _ string) (schema.Row, bool, error) {
	f.calls[TierReduced]++
	return f.reduced.row, f.reduced.found, f.reduced.err
}

func newTestResolver(t *testing.T, src documentSource) (*FallbackResolver, *tierRecorder) {
	rec := &tierRecorder{}
	return newFallbackResolver(src, DefaultRegistry(),
		WithFallbackRecorder(rec),
		WithFallbackLogger(zaptest.NewLogger(t)),
	), rec
}

var structuralErr = &schema.Error{Kind: schema.KindRemoteProcedureBroken, Table: TableInvoices, Err: errors.New("no such column: XML")}

func TestFallbackResolver_Tiers(t *testing.T) {
	ctx := context.Background()

	t.Run("usable primary short-circuits", func(t *testing.T) {
		src := newFakeSource()
		src.primary = tierResult{row: schema.Row{FieldSeries: "F", FieldContent: "<cfdi/>", FieldStatus: "VIGENTE"}, found: true}
		r, rec := newTestResolver(t, src)

		view, err := r.FetchByExternalID(ctx, fiscal.KindInvoice, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.SourcePrimary, view.Source)
		assert.Equal(t, fiscal.StatusIssued, view.Status)
		assert.Equal(t, "<cfdi/>", view.Content)
		assert.Equal(t, 1, src.calls[TierPrimary])
		assert.Zero(t, src.calls[TierArchive])
		assert.Zero(t, src.calls[TierReduced])
		assert.Equal(t, []string{TierPrimary}, rec.Tiers())
	})

	t.Run("no primary row, archive has content", func(t *testing.T) {
		src := newFakeSource()
		src.archives[TableInvoicesArchive] = tierResult{row: schema.Row{FieldSeries: "H", FieldContent: "<archived/>"}, found: true}
		r, _ := newTestResolver(t, src)

		view, err := r.FetchByExternalID(ctx, fiscal.KindInvoice, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.SourceArchive, view.Source)
		assert.Equal(t, TableInvoicesArchive, view.SourceTable)
		assert.Equal(t, "<archived/>", view.Content)
		assert.Equal(t, 1, src.calls[TableInvoicesArchive])
		assert.Zero(t, src.calls[TableDocumentArchive], "later archives are not consulted")
		assert.Zero(t, src.calls[TierReduced])
	})

	t.Run("archive content merged onto primary scalars", func(t *testing.T) {
		src := newFakeSource()
		src.primary = tierResult{row: schema.Row{FieldSeries: "F", FieldStatus: "CANCELADO"}, found: true}
		src.archives[TableDocumentArchive] = tierResult{row: schema.Row{FieldSeries: "OLD", FieldFolio: "9", FieldContent: "<archived/>"}, found: true}
		r, _ := newTestResolver(t, src)

		view, err := r.FetchByExternalID(ctx, fiscal.KindInvoice, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.SourceArchive, view.Source)
		assert.Equal(t, "F", view.Series)
		assert.Equal(t, "9", view.Folio)
		assert.Equal(t, fiscal.StatusCancelled, view.Status)
		assert.Equal(t, "<archived/>", view.Content)
		assert.Equal(t, 2, src.calls[TierArchive])
	})

	t.Run("reduced tier only after a structural failure", func(t *testing.T) {
		src := newFakeSource()
		src.primary = tierResult{err: structuralErr}
		src.reduced = tierResult{row: schema.Row{FieldSeries: "R", FieldTotal: "10"}, found: true}
		r, rec := newTestResolver(t, src)

		view, err := r.FetchByExternalID(ctx, fiscal.KindInvoice, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.SourceReduced, view.Source)
		assert.Equal(t, "R", view.Series)
		assert.False(t, view.HasContent())
		assert.Equal(t, 1, src.calls[TierReduced])
		assert.Equal(t, []string{TierReduced}, rec.Tiers())
	})

	t.Run("reduced tier skipped when primary simply has no row", func(t *testing.T) {
		src := newFakeSource()
		src.reduced = tierResult{row: schema.Row{FieldSeries: "R"}, found: true}
		r, rec := newTestResolver(t, src)

		_, err := r.FetchByExternalID(ctx, fiscal.KindInvoice, invoiceID)
		assert.ErrorIs(t, err, schema.ErrNotFound)
		assert.Zero(t, src.calls[TierReduced])
		assert.Equal(t, 2, src.calls[TierArchive])
		assert.Equal(t, []string{TierMiss}, rec.Tiers())
	})

	t.Run("synthesized from primary scalars", func(t *testing.T) {
		src := newFakeSource()
		src.primary = tierResult{row: schema.Row{FieldSeries: "F", FieldFolio: "77", FieldTotal: "116.00"}, found: true}
		r, rec := newTestResolver(t, src)

		view, err := r.FetchByExternalID(ctx, fiscal.KindInvoice, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.SourceSynthesized, view.Source)
		assert.Contains(t, view.Content, `Placeholder="true"`)
		assert.Contains(t, view.Content, `Serie="F"`)
		assert.Contains(t, view.Content, `Total="116.00"`)
		assert.Contains(t, view.Content, `UUID="`+invoiceID+`"`)
		assert.Equal(t, []string{TierSynthesized}, rec.Tiers())
	})

	t.Run("archive errors do not abort the chain", func(t *testing.T) {
		src := newFakeSource()
		src.archives[TableInvoicesArchive] = tierResult{err: &schema.Error{Kind: schema.KindIntrospectionUnavailable}}
		src.archives[TableDocumentArchive] = tierResult{row: schema.Row{FieldContent: "<x/>"}, found: true}
		r, _ := newTestResolver(t, src)

		view, err := r.FetchByExternalID(ctx, fiscal.KindInvoice, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, TableDocumentArchive, view.SourceTable)
	})

	t.Run("unexpected errors propagate", func(t *testing.T) {
		boom := errors.New("connection reset")
		src := newFakeSource()
		src.primary = tierResult{err: boom}
		r, _ := newTestResolver(t, src)

		_, err := r.FetchByExternalID(ctx, fiscal.KindInvoice, invoiceID)
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, src.calls[TierArchive])
	})
}

func TestTierPredicates(t *testing.T) {
	withContent := schema.Row{FieldContent: "<cfdi/>"}
	blank := schema.Row{FieldContent: "   ", FieldSeries: "F"}

	assert.True(t, primaryUsable(withContent, true))
	assert.False(t, primaryUsable(blank, true))
	assert.False(t, primaryUsable(withContent, false))

	assert.True(t, archiveUsable(withContent, true))
	assert.False(t, archiveUsable(blank, true))

	assert.True(t, reducedUsable(blank, true))
	assert.False(t, reducedUsable(nil, false))

	assert.True(t, reducedApplies(structuralErr))
	assert.False(t, reducedApplies(&schema.Error{Kind: schema.KindNoIdentifierColumn}))
	assert.False(t, reducedApplies(nil))

	assert.True(t, synthesizable(blank))
	assert.False(t, synthesizable(schema.Row{FieldContent: ""}))
	assert.False(t, synthesizable(nil))
}

func TestFallbackResolver_SQLite(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t, legacyInvoiceDDL, invoiceArchiveDDL)
	require.NoError(t, db.Exec(`INSERT INTO facturas
		(FOLIO_FISCAL, SERIE, FOLIO, RFC_EMISOR, RFC_RECEPTOR, SUBTOTAL, TOTAL, ESTATUS, FECHA_EMISION, LUGAR_EXPEDICION)
		VALUES (?, 'F', '7', 'AAA010101AAA', 'XAXX010101000', 100, 116, 'EN_PROCESO', ?, '06600')`,
		invoiceID, fixedNow).Error)
	require.NoError(t, db.Exec(`INSERT INTO facturas_historico (UUID, SERIE, FOLIO, TOTAL, XML, ESTATUS)
		VALUES (?, 'F', '7', 116, '<cfdi:Comprobante Version="3.3"/>', 'VIGENTE')`, invoiceID).Error)
	require.NoError(t, db.Exec(`INSERT INTO facturas_historico (UUID, SERIE, FOLIO, TOTAL, XML)
		VALUES (?, 'A', '1', 50, '<cfdi:Comprobante Version="3.2"/>')`, creditNoteID).Error)

	rec := &tierRecorder{}
	r := NewFallbackResolver(db, newTestBuilder(t, db), DefaultRegistry(), WithFallbackRecorder(rec))

	t.Run("primary row without body is completed from the archive", func(t *testing.T) {
		view, err := r.FetchByExternalID(ctx, fiscal.KindInvoice, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.SourceArchive, view.Source)
		assert.Equal(t, fiscal.StatusInCancellation, view.Status, "live status wins over archived status")
		assert.Equal(t, "116", view.Total.String())
		assert.Equal(t, "AAA010101AAA", view.IssuerRFC)
		assert.Contains(t, view.Content, `Version="3.3"`)
		require.NotNil(t, view.IssuedAt)
	})

	t.Run("archive only", func(t *testing.T) {
		view, err := r.FetchByExternalID(ctx, fiscal.KindInvoice, creditNoteID)
		require.NoError(t, err)
		assert.Equal(t, fiscal.SourceArchive, view.Source)
		assert.Equal(t, "A", view.Series)
	})

	t.Run("unknown everywhere", func(t *testing.T) {
		_, err := r.FetchByExternalID(ctx, fiscal.KindInvoice, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, schema.ErrNotFound)
	})

	assert.Equal(t, []string{TierArchive, TierArchive, TierMiss}, rec.Tiers())
}
