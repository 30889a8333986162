package invoicing

import (
	"context"
	"testing"

	"github.com/cfdi/backend/internal/domain/shared"
	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSchemaService(t *testing.T) *SchemaService {
	t.Helper()
	catalog := schema.NewStaticCatalog(schema.NewTableSnapshot("facturas", []schema.ColumnDescriptor{
		{Table: "facturas", Name: "FOLIO_FISCAL", DataType: "varchar", Category: schema.CategoryText, MaxLength: 36},
		{Table: "facturas", Name: "TOTAL", DataType: "numeric", Category: schema.CategoryNumeric, Nullable: true},
	}))
	mappings := schema.NewMappingsBuilder().
		Field("facturas", "external_id", "UUID", "FOLIO_FISCAL").
		Field("facturas", "total", "TOTAL", "IMPORTE_TOTAL").
		Field("facturas", "content", "XML", "XML_CFDI").
		Field("notas_credito", "external_id", "UUID").
		Build()
	return NewSchemaService(catalog, mappings, zaptest.NewLogger(t))
}

func TestSchemaService_Describe(t *testing.T) {
	svc := newTestSchemaService(t)

	resp, err := svc.Describe(context.Background(), "facturas")
	require.NoError(t, err)

	assert.Equal(t, "facturas", resp.Table)
	require.Len(t, resp.Columns, 2)
	assert.Equal(t, "FOLIO_FISCAL", resp.Columns[0].Name)
	assert.True(t, resp.Columns[0].Mandatory)
	assert.False(t, resp.Columns[1].Mandatory)

	resolved := map[string]string{}
	for _, f := range resp.Fields {
		resolved[f.Field] = f.Column
	}
	assert.Equal(t, map[string]string{
		"external_id": "FOLIO_FISCAL",
		"total":       "TOTAL",
		"content":     "",
	}, resolved)
}

func TestSchemaService_Errors(t *testing.T) {
	svc := newTestSchemaService(t)
	ctx := context.Background()

	t.Run("unmapped table", func(t *testing.T) {
		_, err := svc.Describe(ctx, "usuarios")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("mapped table the catalog cannot read", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "notas_credito")
		assert.ErrorIs(t, err, shared.ErrStorageUnavailable)
	})
}

func TestSchemaService_Tables(t *testing.T) {
	svc := newTestSchemaService(t)
	assert.ElementsMatch(t, []string{"facturas", "notas_credito"}, svc.Tables())
}
