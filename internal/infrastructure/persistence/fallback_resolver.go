package persistence

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Fallback tier names reported to the recorder.
const (
	TierPrimary     = "primary"
	TierArchive     = "archive"
	TierReduced     = "reduced"
	TierSynthesized = "synthesized"
	TierMiss        = "miss"
)

// documentSource performs the query of each tier. found=false with a nil
// error means the tier has no row for the id.
type documentSource interface {
	Primary(ctx context.Context, tables KindTables, externalID string) (schema.Row, bool, error)
	Archive(ctx context.Context, table, externalID string) (schema.Row, bool, error)
	Reduced(ctx context.Context, tables KindTables, externalID string) (schema.Row, bool, error)
}

// primaryUsable: the primary row exists and carries the document body.
func primaryUsable(row schema.Row, found bool) bool {
	return found && hasContent(row)
}

// archiveUsable: an archived row carries the document body.
func archiveUsable(row schema.Row, found bool) bool {
	return found && hasContent(row)
}

// reducedUsable: the minimal projection found the row, content or not.
func reducedUsable(_ schema.Row, found bool) bool {
	return found
}

// reducedApplies: only a structural failure of the primary read justifies
// the minimal projection.
func reducedApplies(primaryErr error) bool {
	return errors.Is(primaryErr, schema.ErrRemoteProcedureBroken)
}

// synthesizable: some tier returned enough scalars to describe the document.
func synthesizable(row schema.Row) bool {
	if row == nil {
		return false
	}
	for _, f := range []string{FieldSeries, FieldFolio, FieldTotal, FieldExternalID} {
		if !schema.IsAbsent(row[f]) {
			return true
		}
	}
	return false
}

func hasContent(row schema.Row) bool {
	return row.String(FieldContent) != ""
}

// FallbackResolver reads a document through primary, archive, reduced and
// synthesized tiers, stopping at the first usable one. It never writes.
// It implements fiscal.DocumentReader.
type FallbackResolver struct {
	source   documentSource
	registry Registry
	recorder schema.Recorder
	logger   *zap.Logger
}

// FallbackOption configures a FallbackResolver.
type FallbackOption func(*FallbackResolver)

// WithFallbackRecorder sets the measurement recorder.
func WithFallbackRecorder(r schema.Recorder) FallbackOption {
	return func(f *FallbackResolver) {
		f.recorder = r
	}
}

// WithFallbackLogger sets the logger.
func WithFallbackLogger(l *zap.Logger) FallbackOption {
	return func(f *FallbackResolver) {
		f.logger = l
	}
}

// NewFallbackResolver creates a resolver reading db through builder.
func NewFallbackResolver(db *gorm.DB, builder *schema.Builder, registry Registry, opts ...FallbackOption) *FallbackResolver {
	return newFallbackResolver(&sqlDocumentSource{db: db, builder: builder}, registry, opts...)
}

func newFallbackResolver(source documentSource, registry Registry, opts ...FallbackOption) *FallbackResolver {
	f := &FallbackResolver{
		source:   source,
		registry: registry,
		recorder: schema.NopRecorder{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchByExternalID implements fiscal.DocumentReader. A miss on every tier is
// reported as schema.ErrNotFound.
func (f *FallbackResolver) FetchByExternalID(ctx context.Context, kind fiscal.DocumentKind, externalID string) (*fiscal.DocumentView, error) {
	tables, ok := f.registry.Tables(kind)
	if !ok {
		return nil, fmt.Errorf("no tables registered for %s", kind)
	}
	log := f.logger.With(zap.String("kind", kind.String()), zap.String("external_id", externalID))

	// scalars collects whatever the tiers returned for tier 4
	var scalars schema.Row

	row, found, primaryErr := f.source.Primary(ctx, tables, externalID)
	if primaryErr != nil && !recoverable(primaryErr) {
		return nil, primaryErr
	}
	if primaryErr == nil && primaryUsable(row, found) {
		f.hit(ctx, tables.Primary, TierPrimary)
		return viewFromRow(kind, externalID, row, fiscal.SourcePrimary, tables.Primary), nil
	}
	if found {
		scalars = row
	}
	if primaryErr != nil {
		log.Debug("Primary tier unavailable", zap.Error(primaryErr))
	}

	var firstArchived schema.Row
	for _, table := range tables.Archives {
		arow, afound, err := f.source.Archive(ctx, table, externalID)
		if err != nil {
			if !recoverable(err) {
				return nil, err
			}
			log.Debug("Archive tier unavailable", zap.String("table", table), zap.Error(err))
			continue
		}
		if archiveUsable(arow, afound) {
			f.hit(ctx, table, TierArchive)
			if scalars != nil {
				// keep the live scalars, status in particular
				merged := schema.Row{}.Merge(scalars)
				merged[FieldContent] = arow[FieldContent]
				merged.Merge(arow)
				return viewFromRow(kind, externalID, merged, fiscal.SourceArchive, table), nil
			}
			return viewFromRow(kind, externalID, arow, fiscal.SourceArchive, table), nil
		}
		if afound && firstArchived == nil {
			firstArchived = arow
		}
	}

	if reducedApplies(primaryErr) {
		rrow, rfound, err := f.source.Reduced(ctx, tables, externalID)
		switch {
		case err != nil && !recoverable(err):
			return nil, err
		case err != nil:
			log.Warn("Reduced tier failed", zap.Error(err))
		case reducedUsable(rrow, rfound):
			f.hit(ctx, tables.Primary, TierReduced)
			return viewFromRow(kind, externalID, rrow, fiscal.SourceReduced, tables.Primary), nil
		}
	}

	if scalars == nil {
		scalars = firstArchived
	} else if firstArchived != nil {
		scalars.Merge(firstArchived)
	}
	if synthesizable(scalars) {
		view := viewFromRow(kind, externalID, scalars, fiscal.SourceSynthesized, "")
		content, err := placeholderDocument(view)
		if err != nil {
			return nil, err
		}
		view.Content = content
		f.hit(ctx, tables.Primary, TierSynthesized)
		log.Info("Serving synthesized document")
		return view, nil
	}

	f.hit(ctx, tables.Primary, TierMiss)
	return nil, &schema.Error{Kind: schema.KindNotFound, Table: tables.Primary, Field: FieldExternalID}
}

func (f *FallbackResolver) hit(ctx context.Context, table, tier string) {
	f.recorder.FallbackTier(ctx, table, tier)
}

// recoverable errors make a tier unusable without aborting the chain.
func recoverable(err error) bool {
	switch schema.KindOf(err) {
	case schema.KindRemoteProcedureBroken,
		schema.KindIntrospectionUnavailable,
		schema.KindNoIdentifierColumn,
		schema.KindMandatoryColumnUnresolved:
		return true
	}
	return false
}

func viewFromRow(kind fiscal.DocumentKind, externalID string, row schema.Row, source fiscal.Source, table string) *fiscal.DocumentView {
	view := &fiscal.DocumentView{
		Kind:        kind,
		ExternalID:  externalID,
		Series:      row.String(FieldSeries),
		Folio:       row.String(FieldFolio),
		IssuerRFC:   row.String(FieldIssuerRFC),
		ReceiverRFC: row.String(FieldReceiverRFC),
		Subtotal:    row.Decimal(FieldSubtotal),
		Tax:         row.Decimal(FieldTax),
		Total:       row.Decimal(FieldTotal),
		Currency:    row.String(FieldCurrency),
		RawStatus:   row.String(FieldStatus),
		Content:     row.String(FieldContent),
		Source:      source,
		SourceTable: table,
	}
	if id := row.String(FieldExternalID); id != "" {
		view.ExternalID = id
	}
	view.Status = fiscal.StatusIssued
	if view.RawStatus != "" {
		if s, err := fiscal.ParseStatus(view.RawStatus); err == nil {
			view.Status = s
		} else {
			view.Status = ""
		}
	}
	if t, ok := row.Time(FieldIssuedAt); ok {
		view.IssuedAt = &t
	}
	return view
}

type placeholderCFDI struct {
	XMLName     xml.Name `xml:"Comprobante"`
	Placeholder bool     `xml:"Placeholder,attr"`
	Kind        string   `xml:"TipoDocumento,attr"`
	UUID        string   `xml:"UUID,attr"`
	Series      string   `xml:"Serie,attr,omitempty"`
	Folio       string   `xml:"Folio,attr,omitempty"`
	IssuerRFC   string   `xml:"RfcEmisor,attr,omitempty"`
	ReceiverRFC string   `xml:"RfcReceptor,attr,omitempty"`
	SubTotal    string   `xml:"SubTotal,attr,omitempty"`
	Total       string   `xml:"Total,attr,omitempty"`
	Currency    string   `xml:"Moneda,attr,omitempty"`
	Date        string   `xml:"Fecha,attr,omitempty"`
}

// placeholderDocument renders a minimal body from the scalars of view. It
// carries no original content and says so.
func placeholderDocument(view *fiscal.DocumentView) (string, error) {
	doc := placeholderCFDI{
		Placeholder: true,
		Kind:        view.Kind.String(),
		UUID:        view.ExternalID,
		Series:      view.Series,
		Folio:       view.Folio,
		IssuerRFC:   view.IssuerRFC,
		ReceiverRFC: view.ReceiverRFC,
		Currency:    view.Currency,
	}
	if !view.Subtotal.IsZero() {
		doc.SubTotal = view.Subtotal.StringFixed(2)
	}
	if !view.Total.IsZero() {
		doc.Total = view.Total.StringFixed(2)
	}
	if view.IssuedAt != nil {
		doc.Date = view.IssuedAt.Format("2006-01-02T15:04:05")
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render placeholder document: %w", err)
	}
	return xml.Header + string(out), nil
}

// sqlDocumentSource runs the tier queries through the adaptive builder.
type sqlDocumentSource struct {
	db      *gorm.DB
	builder *schema.Builder
}

func (s *sqlDocumentSource) Primary(ctx context.Context, tables KindTables, externalID string) (schema.Row, bool, error) {
	return s.query(ctx, tables.Primary, documentFields, externalID)
}

func (s *sqlDocumentSource) Archive(ctx context.Context, table, externalID string) (schema.Row, bool, error) {
	return s.query(ctx, table, documentFields, externalID)
}

// Reduced re-reads the primary table's shape, bypassing the cache, before
// issuing the minimal projection.
func (s *sqlDocumentSource) Reduced(ctx context.Context, tables KindTables, externalID string) (schema.Row, bool, error) {
	s.builder.Catalog().Refresh(ctx, tables.Primary)
	return s.query(ctx, tables.Primary, reducedFields, externalID)
}

func (s *sqlDocumentSource) query(ctx context.Context, table string, fields []string, externalID string) (schema.Row, bool, error) {
	stmt, err := s.builder.BuildSelect(ctx, table, fields, FieldExternalID, externalID)
	if err != nil {
		return nil, false, err
	}
	return schema.QueryRow(ctx, s.db, stmt)
}
