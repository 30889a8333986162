package telemetry

import (
	"context"
	"fmt"

	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
)

// Instrument names recorded by PersistenceMetrics.
const (
	MetricSchemaIntrospections = "cfdi.schema.introspections"
	MetricFallbackTierHits     = "cfdi.fallback.tier_hits"
	MetricStatementRejections  = "cfdi.statement.rejections"
)

// PersistenceMetrics records schema-adaptive persistence events as counters.
// It satisfies schema.Recorder so the introspector, the statement builder
// and the fallback resolver can share one instance.
type PersistenceMetrics struct {
	introspections *Counter
	tierHits       *Counter
	rejections     *Counter
}

var _ schema.Recorder = (*PersistenceMetrics)(nil)

// NewPersistenceMetrics registers the persistence counters on mp.
func NewPersistenceMetrics(mp *MeterProvider) (*PersistenceMetrics, error) {
	meter := mp.Meter("cfdi-backend/persistence")

	introspections, err := NewCounter(meter, MetricSchemaIntrospections,
		"Catalog introspections by table and answering source", "{lookup}")
	if err != nil {
		return nil, err
	}
	tierHits, err := NewCounter(meter, MetricFallbackTierHits,
		"Document lookups by the fallback tier that answered", "{lookup}")
	if err != nil {
		return nil, err
	}
	rejections, err := NewCounter(meter, MetricStatementRejections,
		"Statements refused before reaching the database", "{statement}")
	if err != nil {
		return nil, fmt.Errorf("persistence metrics: %w", err)
	}

	return &PersistenceMetrics{
		introspections: introspections,
		tierHits:       tierHits,
		rejections:     rejections,
	}, nil
}

// Introspected counts one catalog lookup.
func (m *PersistenceMetrics) Introspected(ctx context.Context, table, source string) {
	m.introspections.Inc(ctx, AttrTable.String(table), AttrSource.String(source))
}

// StatementRejected counts one statement the builder refused to produce.
func (m *PersistenceMetrics) StatementRejected(ctx context.Context, table string, kind schema.ErrorKind) {
	m.rejections.Inc(ctx, AttrTable.String(table), AttrReason.String(string(kind)))
}

// FallbackTier counts the tier that answered a document lookup.
func (m *PersistenceMetrics) FallbackTier(ctx context.Context, table, tier string) {
	m.tierHits.Inc(ctx, AttrTable.String(table), AttrTier.String(tier))
}
