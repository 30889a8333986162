package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/cfdi/backend/internal/domain/shared"
	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DocumentRepository stores fiscal documents in whatever physical shape the
// deployment's tables have. It implements fiscal.DocumentWriter,
// fiscal.StatusStore and fiscal.LinkStore.
type DocumentRepository struct {
	db       *gorm.DB
	builder  *schema.Builder
	records  *RecordStore
	registry Registry
	location *time.Location
	logger   *zap.Logger
}

// DocumentOption configures a DocumentRepository.
type DocumentOption func(*DocumentRepository)

// WithFiscalLocation sets the zone in which zone-less date columns were
// written. Defaults to UTC.
func WithFiscalLocation(loc *time.Location) DocumentOption {
	return func(r *DocumentRepository) {
		if loc != nil {
			r.location = loc
		}
	}
}

// NewDocumentRepository creates a DocumentRepository.
func NewDocumentRepository(db *gorm.DB, builder *schema.Builder, registry Registry, logger *zap.Logger, opts ...DocumentOption) *DocumentRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &DocumentRepository{
		db:       db,
		builder:  builder,
		records:  NewRecordStore(db, builder, logger),
		registry: registry,
		location: time.UTC,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateInvoice writes the invoice and its concepts.
func (r *DocumentRepository) CreateInvoice(ctx context.Context, inv *fiscal.Invoice) error {
	tables, err := r.tables(fiscal.KindInvoice)
	if err != nil {
		return err
	}
	rec := documentRecord(&inv.FiscalDocument)
	rec[FieldTicketRef] = inv.TicketRef

	writes := []Write{{Table: tables.Primary, Record: rec}}
	for n, c := range inv.Concepts {
		writes = append(writes, Write{Table: tables.Lines, Record: conceptRecord(inv.ExternalID, n+1, c)})
	}
	return r.insert(ctx, &inv.FiscalDocument, writes)
}

// CreateCreditNote writes the credit note and its origin links.
func (r *DocumentRepository) CreateCreditNote(ctx context.Context, note *fiscal.CreditNote) error {
	tables, err := r.tables(fiscal.KindCreditNote)
	if err != nil {
		return err
	}
	rec := documentRecord(&note.FiscalDocument)
	rec[FieldRelationType] = note.RelationType

	writes := []Write{{Table: tables.Primary, Record: rec}}
	for _, l := range note.Origins {
		writes = append(writes, Write{Table: tables.Links, Record: linkRecord(l)})
	}
	return r.insert(ctx, &note.FiscalDocument, writes)
}

// CreatePayrollReceipt writes the payroll receipt.
func (r *DocumentRepository) CreatePayrollReceipt(ctx context.Context, receipt *fiscal.PayrollReceipt) error {
	tables, err := r.tables(fiscal.KindPayrollReceipt)
	if err != nil {
		return err
	}
	rec := documentRecord(&receipt.FiscalDocument)
	rec[FieldEmployeeRef] = receipt.EmployeeRef
	rec[FieldPeriodStart] = optionalTime(receipt.PeriodStart)
	rec[FieldPeriodEnd] = optionalTime(receipt.PeriodEnd)
	rec[FieldPaidDays] = receipt.PaidDays
	rec[FieldPerceptions] = receipt.Perceptions
	rec[FieldDeductions] = receipt.Deductions

	return r.insert(ctx, &receipt.FiscalDocument, []Write{{Table: tables.Primary, Record: rec}})
}

// CreatePaymentComplement writes the complement and one link per paid invoice.
func (r *DocumentRepository) CreatePaymentComplement(ctx context.Context, complement *fiscal.PaymentComplement) error {
	tables, err := r.tables(fiscal.KindPaymentComplement)
	if err != nil {
		return err
	}
	rec := documentRecord(&complement.FiscalDocument)
	rec[FieldPaymentDate] = optionalTime(complement.PaymentDate)

	writes := []Write{{Table: tables.Primary, Record: rec}}
	for _, l := range complement.Payments {
		writes = append(writes, Write{Table: tables.Links, Record: linkRecord(l)})
	}
	return r.insert(ctx, &complement.FiscalDocument, writes)
}

func (r *DocumentRepository) insert(ctx context.Context, doc *fiscal.FiscalDocument, writes []Write) error {
	err := r.records.InsertAll(ctx, writes...)
	if err == nil {
		r.logger.Info("Document stored",
			zap.String("kind", doc.Kind.String()),
			zap.String("external_id", doc.ExternalID),
			zap.Int("rows", len(writes)),
		)
		return nil
	}
	if schema.IsUniqueViolation(err) {
		return shared.NewDomainError("ALREADY_EXISTS",
			fmt.Sprintf("%s %s already exists", doc.Kind, doc.ExternalID))
	}
	return err
}

// LoadState reads the lifecycle columns of a document from its primary table.
// A document whose table has no status column is treated as issued.
func (r *DocumentRepository) LoadState(ctx context.Context, kind fiscal.DocumentKind, externalID string) (*fiscal.DocumentState, error) {
	tables, err := r.tables(kind)
	if err != nil {
		return nil, err
	}
	stmt, err := r.builder.BuildSelect(ctx, tables.Primary,
		[]string{FieldExternalID, FieldStatus, FieldIssuedAt}, FieldExternalID, externalID)
	if err != nil {
		return nil, err
	}
	row, found, err := schema.QueryRow(ctx, r.db, stmt)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &schema.Error{Kind: schema.KindNotFound, Table: tables.Primary, Field: FieldExternalID}
	}

	state := &fiscal.DocumentState{
		Kind:       kind,
		ExternalID: externalID,
		Status:     fiscal.StatusIssued,
		RawStatus:  row.String(FieldStatus),
	}
	if state.RawStatus != "" {
		if state.Status, err = fiscal.ParseStatus(state.RawStatus); err != nil {
			return nil, err
		}
	}
	if t, ok := row.Time(FieldIssuedAt); ok {
		state.IssuedAt = r.issuedAt(ctx, tables.Primary, t)
	}
	return state, nil
}

// issuedAt places a stored issue date in the fiscal zone. Zone-less columns
// hold the local reading of the issuer, so their wall clock is kept.
func (r *DocumentRepository) issuedAt(ctx context.Context, table string, t time.Time) time.Time {
	if col, ok := r.builder.ResolveField(ctx, table, FieldIssuedAt); ok && col.Zoned() {
		return t.In(r.location)
	}
	return schema.WallClock(t, r.location)
}

// CompareAndSetStatus implements fiscal.StatusStore. The guard matches every
// stored spelling of the accepted source states.
func (r *DocumentRepository) CompareAndSetStatus(ctx context.Context, kind fiscal.DocumentKind, externalID string, from []fiscal.DocumentStatus, to fiscal.DocumentStatus, at time.Time) (bool, error) {
	tables, err := r.tables(kind)
	if err != nil {
		return false, err
	}

	set := schema.Record{
		FieldStatus:          to.String(),
		FieldStatusChangedAt: at,
	}
	switch to {
	case fiscal.StatusInCancellation:
		set[FieldCancellationRequestedAt] = at
	case fiscal.StatusCancelled:
		set[FieldCancelledAt] = at
	}

	guard := schema.Condition{Field: FieldStatus}
	for _, s := range from {
		for _, form := range s.StoredForms() {
			guard.Values = append(guard.Values, form)
		}
		// LoadState reads a missing status as issued
		if s == fiscal.StatusIssued {
			guard.Values = append(guard.Values, "")
			guard.OrNull = true
		}
	}

	stmt, err := r.builder.BuildUpdate(ctx, tables.Primary, set, FieldExternalID, externalID, guard)
	if err != nil {
		return false, err
	}
	n, err := schema.Exec(ctx, r.db, stmt)
	if err != nil {
		return false, err
	}
	r.logger.Debug("Status compare-and-set",
		zap.String("kind", kind.String()),
		zap.String("external_id", externalID),
		zap.String("to", to.String()),
		zap.Int64("rows", n),
	)
	return n > 0, nil
}

// HasLinks reports whether links exist for a derived document. Kinds
// without a link table never have links.
func (r *DocumentRepository) HasLinks(ctx context.Context, kind fiscal.DocumentKind, derivedID string) (bool, error) {
	tables, err := r.tables(kind)
	if err != nil {
		return false, err
	}
	if tables.Links == "" {
		return false, nil
	}
	stmt, err := r.builder.BuildSelect(ctx, tables.Links, []string{FieldDerivedID}, FieldDerivedID, derivedID)
	if err != nil {
		if errors.Is(err, schema.ErrIntrospectionUnavailable) {
			return false, nil
		}
		return false, err
	}
	_, found, err := schema.QueryRow(ctx, r.db, stmt)
	return found, err
}

func (r *DocumentRepository) tables(kind fiscal.DocumentKind) (KindTables, error) {
	t, ok := r.registry.Tables(kind)
	if !ok {
		return KindTables{}, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown document kind %q", kind))
	}
	return t, nil
}

func documentRecord(d *fiscal.FiscalDocument) schema.Record {
	return schema.Record{
		FieldExternalID:    d.ExternalID,
		FieldSeries:        d.Series,
		FieldFolio:         d.Folio,
		FieldIssuerRFC:     d.IssuerRFC,
		FieldReceiverRFC:   d.ReceiverRFC,
		FieldCustomerRef:   d.CustomerRef,
		FieldSubtotal:      d.Subtotal,
		FieldTax:           d.Tax,
		FieldTotal:         d.Total,
		FieldCurrency:      d.Currency,
		FieldContent:       d.Content,
		FieldStatus:        d.Status.String(),
		FieldIssuedAt:      optionalTime(d.IssuedAt),
		FieldCFDIUse:       d.CFDIUse,
		FieldPaymentMethod: d.PaymentMethod,
		FieldPaymentForm:   d.PaymentForm,
	}
}

func conceptRecord(invoiceID string, line int, c fiscal.Concept) schema.Record {
	return schema.Record{
		FieldInvoiceRef:  invoiceID,
		FieldLineNumber:  line,
		FieldProductKey:  c.ProductKey,
		FieldUnitKey:     c.UnitKey,
		FieldDescription: c.Description,
		FieldQuantity:    c.Quantity,
		FieldUnitPrice:   c.UnitPrice,
		FieldAmount:      c.Amount,
		FieldTax:         c.Tax,
	}
}

func linkRecord(l fiscal.DocumentLink) schema.Record {
	return schema.Record{
		FieldDerivedID:       l.DerivedID,
		FieldOriginID:        l.OriginID,
		FieldRelationType:    l.RelationType,
		FieldAmount:          l.Amount,
		FieldInstallment:     l.Installment,
		FieldPreviousBalance: l.PreviousBalance,
		FieldPaid:            l.Paid,
		FieldRemaining:       l.Remaining,
	}
}

// optionalTime maps the zero time to "not supplied".
func optionalTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
