package schema

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invoiceTable(extra ...ColumnDescriptor) *TableSnapshot {
	cols := []ColumnDescriptor{
		col("ID", "integer", false, false),
		col("UUID", "varchar(36)", false, false),
		col("SERIE", "varchar(10)", true, false),
		col("FOLIO", "varchar(20)", true, false),
		col("SUBTOTAL", "numeric(12,2)", false, false),
		col("TOTAL", "numeric(12,2)", false, false),
		col("XML", "text", true, false),
		col("ESTATUS", "varchar(30)", false, true),
		col("FECHA_CREACION", "timestamp", false, false),
	}
	return snapshot("facturas", append(cols, extra...)...)
}

func argFor(stmt *Statement, column string) (any, bool) {
	for i, c := range stmt.Columns {
		if c == column {
			return stmt.Args[i], true
		}
	}
	return nil, false
}

func TestBuildInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("missing mandatory subtotal is synthesized as zero", func(t *testing.T) {
		b := newTestBuilder(NewStaticCatalog(invoiceTable()), WithManagedColumns("ID", "FECHA_CREACION"))

		stmt, err := b.BuildInsert(ctx, "facturas", Record{
			"external_id": "6F1C2A9E-1111-4A3B-9C77-2D1E0F3A5B6C",
			"total":       "116.00",
		})
		require.NoError(t, err)

		v, ok := argFor(stmt, "SUBTOTAL")
		require.True(t, ok)
		assert.Equal(t, int64(0), v)

		total, _ := argFor(stmt, "TOTAL")
		assert.True(t, decimal.RequireFromString("116").Equal(total.(decimal.Decimal)))
	})

	t.Run("missing mandatory reference is rejected", func(t *testing.T) {
		snap := invoiceTable(col("ID_CLIENTE", "integer", false, false))
		b := newTestBuilder(NewStaticCatalog(snap), WithManagedColumns("ID", "FECHA_CREACION"))

		stmt, err := b.BuildInsert(ctx, "facturas", Record{"external_id": "X", "total": 10})
		assert.Nil(t, stmt)
		require.ErrorIs(t, err, ErrMandatoryColumnUnresolved)

		var se *Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "ID_CLIENTE", se.Column)
		assert.Equal(t, "customer_ref", se.Field)
	})

	t.Run("supplied reference is written", func(t *testing.T) {
		snap := invoiceTable(col("ID_CLIENTE", "integer", false, false))
		b := newTestBuilder(NewStaticCatalog(snap), WithManagedColumns("ID", "FECHA_CREACION"))

		stmt, err := b.BuildInsert(ctx, "facturas", Record{"external_id": "X", "customer_ref": 77})
		require.NoError(t, err)
		v, ok := argFor(stmt, "ID_CLIENTE")
		require.True(t, ok)
		assert.True(t, decimal.NewFromInt(77).Equal(v.(decimal.Decimal)))
	})

	t.Run("nullable and defaulted columns are left to the database", func(t *testing.T) {
		b := newTestBuilder(NewStaticCatalog(invoiceTable()), WithManagedColumns("ID", "FECHA_CREACION"))

		stmt, err := b.BuildInsert(ctx, "facturas", Record{"external_id": "X"})
		require.NoError(t, err)
		assert.NotContains(t, stmt.Columns, "SERIE")
		assert.NotContains(t, stmt.Columns, "XML")
		assert.NotContains(t, stmt.Columns, "ESTATUS")
	})

	t.Run("closing sweep covers unmapped mandatory columns", func(t *testing.T) {
		snap := invoiceTable(
			col("LUGAR_EXPEDICION", "varchar(5)", false, false),
			col("TIPO_CAMBIO", "numeric(10,4)", false, false),
			col("FECHA_TIMBRADO", "timestamp", false, false),
			col("ADDENDA", "clob", false, false),
		)
		b := newTestBuilder(NewStaticCatalog(snap), WithManagedColumns("ID", "FECHA_CREACION"))

		stmt, err := b.BuildInsert(ctx, "facturas", Record{"external_id": "X"})
		require.NoError(t, err)

		v, _ := argFor(stmt, "LUGAR_EXPEDICION")
		assert.Equal(t, "N/A", v)
		v, _ = argFor(stmt, "TIPO_CAMBIO")
		assert.Equal(t, int64(0), v)
		v, _ = argFor(stmt, "FECHA_TIMBRADO")
		assert.Equal(t, fixedNow, v)
		v, _ = argFor(stmt, "ADDENDA")
		assert.Equal(t, PlaceholderDocument, v)
	})

	t.Run("managed columns are excluded from the sweep", func(t *testing.T) {
		b := newTestBuilder(NewStaticCatalog(invoiceTable()), WithManagedColumns("id", "fecha_creacion"))

		stmt, err := b.BuildInsert(ctx, "facturas", Record{"external_id": "X"})
		require.NoError(t, err)
		assert.NotContains(t, stmt.Columns, "ID")
		assert.NotContains(t, stmt.Columns, "FECHA_CREACION")
	})

	t.Run("statement text is quoted and parameterised", func(t *testing.T) {
		snap := snapshot("facturas",
			col("UUID", "varchar(36)", false, false),
			col("SERIE", "varchar(10)", true, false),
		)
		b := newTestBuilder(NewStaticCatalog(snap))

		stmt, err := b.BuildInsert(ctx, "facturas", Record{"external_id": "X", "series": "A"})
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "facturas" ("UUID", "SERIE") VALUES (?, ?)`, stmt.SQL)
		assert.Equal(t, []any{"X", "A"}, stmt.Args)
	})

	t.Run("unknown mandatory type rejects the write", func(t *testing.T) {
		snap := invoiceTable(col("RANGO", "tsrange", false, false))
		b := newTestBuilder(NewStaticCatalog(snap), WithManagedColumns("ID", "FECHA_CREACION"))

		_, err := b.BuildInsert(ctx, "facturas", Record{"external_id": "X"})
		assert.ErrorIs(t, err, ErrMandatoryColumnUnresolved)
	})

	t.Run("empty snapshot means introspection unavailable", func(t *testing.T) {
		b := newTestBuilder(NewStaticCatalog())

		_, err := b.BuildInsert(ctx, "facturas", Record{"external_id": "X"})
		assert.ErrorIs(t, err, ErrIntrospectionUnavailable)
	})
}

func TestBuildInsert_Identifier(t *testing.T) {
	ctx := context.Background()

	t.Run("no identifier column in the live table", func(t *testing.T) {
		snap := snapshot("facturas",
			col("ID_DOC", "integer", false, false),
			col("SERIE", "varchar(10)", true, false),
			col("TOTAL", "numeric(12,2)", false, false),
		)
		b := newTestBuilder(NewStaticCatalog(snap))

		stmt, err := b.BuildInsert(ctx, "facturas", Record{
			"external_id": "6F1C2A9E-1111-4A3B-9C77-2D1E0F3A5B6C",
			"total":       "116.00",
		})
		assert.Nil(t, stmt)
		require.ErrorIs(t, err, ErrNoIdentifierColumn)

		var se *Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "external_id", se.Field)
	})

	t.Run("absent identifier value is never synthesized", func(t *testing.T) {
		snap := snapshot("facturas",
			col("UUID", "varchar(36)", false, false),
			col("TOTAL", "numeric(12,2)", false, false),
		)
		b := newTestBuilder(NewStaticCatalog(snap))

		for _, rec := range []Record{
			{"total": "116.00"},
			{"external_id": nil, "total": "116.00"},
			{"external_id": "", "total": "116.00"},
		} {
			stmt, err := b.BuildInsert(ctx, "facturas", rec)
			assert.Nil(t, stmt)
			require.ErrorIs(t, err, ErrMandatoryColumnUnresolved)

			var se *Error
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "UUID", se.Column)
			assert.Equal(t, "external_id", se.Field)
		}
	})

	t.Run("overlong identifier is rejected", func(t *testing.T) {
		snap := snapshot("facturas", col("UUID", "varchar(8)", false, false))
		b := newTestBuilder(NewStaticCatalog(snap))

		_, err := b.BuildInsert(ctx, "facturas", Record{"external_id": "6F1C2A9E-1111-4A3B-9C77-2D1E0F3A5B6C"})
		assert.ErrorIs(t, err, ErrValueCoercionFailure)
	})

	t.Run("managed identifier still needs a value", func(t *testing.T) {
		b := newTestBuilder(NewStaticCatalog(invoiceTable()), WithManagedColumns("ID", "UUID", "FECHA_CREACION"))

		_, err := b.BuildInsert(ctx, "facturas", Record{"total": 1})
		assert.ErrorIs(t, err, ErrMandatoryColumnUnresolved)
	})
}

// Every NOT NULL column without default ends up in the statement, whatever
// subset of the record is supplied and whichever columns exist.
func TestBuildInsert_NeverOmitsMandatoryColumns(t *testing.T) {
	ctx := context.Background()
	optional := []ColumnDescriptor{
		col("SERIE", "varchar(10)", false, false),
		col("FOLIO", "varchar(20)", false, false),
		col("SUBTOTAL", "numeric(12,2)", false, false),
		col("XML_CFDI", "text", false, false),
		col("FECHA_EMISION", "date", false, false),
		col("MONEDA", "char(3)", false, false),
		col("SELLO", "bytea", false, false),
	}
	records := []Record{
		{"external_id": "X"},
		{"external_id": "X", "series": "B", "folio": 10},
		{"external_id": "X", "subtotal": "oops", "issued_at": "not-a-date"},
		{"external_id": "X", "content": "<cfdi:Comprobante/>", "total": 1.5},
	}

	for mask := 0; mask < 1<<len(optional); mask++ {
		cols := []ColumnDescriptor{col("FOLIO_FISCAL", "varchar(36)", false, false)}
		for i, c := range optional {
			if mask&(1<<i) != 0 {
				cols = append(cols, c)
			}
		}
		snap := snapshot("facturas", cols...)
		b := newTestBuilder(NewStaticCatalog(snap))

		for ri, rec := range records {
			stmt, err := b.BuildInsert(ctx, "facturas", rec)
			require.NoError(t, err, "mask %b record %d", mask, ri)
			for _, c := range snap.Columns() {
				if !c.Mandatory() {
					continue
				}
				v, ok := argFor(stmt, c.Name)
				require.True(t, ok, fmt.Sprintf("mask %b record %d omitted %s", mask, ri, c.Name))
				assert.NotNil(t, v)
			}
		}
	}
}

func TestBuildSelect(t *testing.T) {
	ctx := context.Background()
	fields := []string{"external_id", "series", "folio", "total", "content", "status"}

	t.Run("absent fields are selected as NULL", func(t *testing.T) {
		snap := snapshot("facturas",
			col("FOLIO_FISCAL", "varchar(36)", false, false),
			col("TOTAL", "numeric(12,2)", false, false),
			col("XML_CFDI", "text", true, false),
		)
		b := newTestBuilder(NewStaticCatalog(snap))

		stmt, err := b.BuildSelect(ctx, "facturas", fields, "external_id", "X")
		require.NoError(t, err)
		assert.Equal(t,
			`SELECT "FOLIO_FISCAL" AS "external_id", NULL AS "series", NULL AS "folio", "TOTAL" AS "total", "XML_CFDI" AS "content", NULL AS "status" FROM "facturas" WHERE "FOLIO_FISCAL" = ? LIMIT 1`,
			stmt.SQL)
		assert.Equal(t, fields, stmt.Fields)
		assert.Equal(t, []any{"X"}, stmt.Args)
	})

	t.Run("result shape is the same across variants", func(t *testing.T) {
		a := newTestBuilder(NewStaticCatalog(invoiceTable()))
		bb := newTestBuilder(NewStaticCatalog(snapshot("facturas", col("FOLIO_FISCAL", "uuid", false, false))))

		sa, err := a.BuildSelect(ctx, "facturas", fields, "external_id", "X")
		require.NoError(t, err)
		sb, err := bb.BuildSelect(ctx, "facturas", fields, "external_id", "X")
		require.NoError(t, err)
		assert.Equal(t, sa.Fields, sb.Fields)
	})

	t.Run("no identifier column", func(t *testing.T) {
		b := newTestBuilder(NewStaticCatalog(snapshot("facturas", col("SERIE", "varchar(10)", true, false))))

		_, err := b.BuildSelect(ctx, "facturas", fields, "external_id", "X")
		assert.ErrorIs(t, err, ErrNoIdentifierColumn)
	})
}

func TestBuildUpdate(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(NewStaticCatalog(invoiceTable()))

	t.Run("guarded status update", func(t *testing.T) {
		stmt, err := b.BuildUpdate(ctx, "facturas",
			Record{"status": "IN_CANCELLATION", "cancelled_at": "ignored"},
			"external_id", "X",
			Condition{Field: "status", Values: []any{"ISSUED", "VIGENTE"}},
		)
		require.NoError(t, err)
		assert.Equal(t, `UPDATE "facturas" SET "ESTATUS" = ? WHERE "UUID" = ? AND ("ESTATUS" IN (?, ?))`, stmt.SQL)
		assert.Equal(t, []any{"IN_CANCELLATION", "X", "ISSUED", "VIGENTE"}, stmt.Args)
	})

	t.Run("guard accepting null", func(t *testing.T) {
		stmt, err := b.BuildUpdate(ctx, "facturas",
			Record{"status": "IN_CANCELLATION"},
			"external_id", "X",
			Condition{Field: "status", Values: []any{"ISSUED"}, OrNull: true},
		)
		require.NoError(t, err)
		assert.Equal(t, `UPDATE "facturas" SET "ESTATUS" = ? WHERE "UUID" = ? AND ("ESTATUS" IN (?) OR "ESTATUS" IS NULL)`, stmt.SQL)
	})

	t.Run("nothing resolvable to set", func(t *testing.T) {
		_, err := b.BuildUpdate(ctx, "facturas", Record{"cfdi_use": "G03"}, "external_id", "X")
		assert.ErrorIs(t, err, ErrMandatoryColumnUnresolved)
	})

	t.Run("unusable value on a mandatory column gets a placeholder", func(t *testing.T) {
		stmt, err := b.BuildUpdate(ctx, "facturas", Record{"total": "not-a-number"}, "external_id", "X")
		require.NoError(t, err)
		assert.Equal(t, `UPDATE "facturas" SET "TOTAL" = ? WHERE "UUID" = ?`, stmt.SQL)
		assert.Equal(t, []any{int64(0), "X"}, stmt.Args)
	})

	t.Run("unusable value on a nullable column is left out", func(t *testing.T) {
		snap := snapshot("facturas",
			col("UUID", "varchar(36)", false, false),
			col("FECHA", "date", true, false),
			col("ESTATUS", "varchar(30)", false, true),
		)
		b := newTestBuilder(NewStaticCatalog(snap))

		stmt, err := b.BuildUpdate(ctx, "facturas",
			Record{"issued_at": "not-a-date", "status": "CANCELLED"}, "external_id", "X")
		require.NoError(t, err)
		assert.Equal(t, `UPDATE "facturas" SET "ESTATUS" = ? WHERE "UUID" = ?`, stmt.SQL)
	})

	t.Run("unusable reference value is rejected", func(t *testing.T) {
		b := newTestBuilder(NewStaticCatalog(invoiceTable(col("ID_CLIENTE", "integer", false, false))))

		_, err := b.BuildUpdate(ctx, "facturas", Record{"customer_ref": "abc"}, "external_id", "X")
		assert.ErrorIs(t, err, ErrValueCoercionFailure)
	})

	t.Run("unresolvable guard", func(t *testing.T) {
		snap := snapshot("facturas", col("UUID", "varchar(36)", false, false), col("XML", "text", true, false))
		b := newTestBuilder(NewStaticCatalog(snap))
		_, err := b.BuildUpdate(ctx, "facturas", Record{"content": "<x/>"}, "external_id", "X",
			Condition{Field: "status", Values: []any{"ISSUED"}})
		assert.ErrorIs(t, err, ErrMandatoryColumnUnresolved)
	})
}
