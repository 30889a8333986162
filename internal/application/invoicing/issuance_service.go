package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/cfdi/backend/internal/domain/shared"
	"github.com/cfdi/backend/internal/infrastructure/lock"
	"github.com/cfdi/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// IssuanceService stores newly certified documents of every kind
type IssuanceService struct {
	writer  fiscal.DocumentWriter
	states  fiscal.StatusStore
	links   fiscal.LinkStore
	tickets fiscal.TicketStore
	locker  lock.Locker
	lockTTL time.Duration
	logger  *zap.Logger
}

// IssuanceOption configures an IssuanceService
type IssuanceOption func(*IssuanceService)

// WithIssuanceLogger sets the logger
func WithIssuanceLogger(logger *zap.Logger) IssuanceOption {
	return func(s *IssuanceService) {
		s.logger = logger
	}
}

// WithIssuanceLockTTL sets the lifetime of the per-document lock
func WithIssuanceLockTTL(ttl time.Duration) IssuanceOption {
	return func(s *IssuanceService) {
		s.lockTTL = ttl
	}
}

// NewIssuanceService creates a new IssuanceService
func NewIssuanceService(
	writer fiscal.DocumentWriter,
	states fiscal.StatusStore,
	links fiscal.LinkStore,
	tickets fiscal.TicketStore,
	locker lock.Locker,
	opts ...IssuanceOption,
) *IssuanceService {
	s := &IssuanceService{
		writer:  writer,
		states:  states,
		links:   links,
		tickets: tickets,
		locker:  locker,
		lockTTL: 30 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueInvoice stores an invoice with its concepts. When the invoice comes
// from a ticket, the ticket is marked afterwards in a separate write; a
// failure there is reported as a warning and does not undo the invoice.
func (s *IssuanceService) IssueInvoice(ctx context.Context, req IssueInvoiceRequest) (resp *IssueResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "issuance", "invoice",
		telemetry.WithAttribute(telemetry.SpanAttrExternalID, req.ExternalID))
	defer func() { telemetry.EndSpan(span, err) }()

	inv := req.toDomain()
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if err := s.writer.CreateInvoice(ctx, inv); err != nil {
		return nil, translateError(err)
	}

	resp = issued(&inv.FiscalDocument)
	if inv.TicketRef == "" {
		return resp, nil
	}

	linked := true
	if err := s.tickets.AttachInvoice(ctx, inv.TicketRef, inv.ExternalID); err != nil {
		linked = false
		s.logger.Error("Invoice stored but ticket could not be marked as invoiced",
			zap.String("external_id", inv.ExternalID),
			zap.String("ticket", inv.TicketRef),
			zap.Error(err),
		)
		resp.Warnings = append(resp.Warnings,
			fmt.Sprintf("Ticket %s was not marked as invoiced", inv.TicketRef))
	}
	resp.TicketLinked = &linked
	return resp, nil
}

// IssueCreditNote stores a credit note and its links to the origin
// invoices. Repeating the request for a stored credit note is a no-op.
func (s *IssuanceService) IssueCreditNote(ctx context.Context, req IssueCreditNoteRequest) (*IssueResponse, error) {
	note := req.toDomain()
	if err := note.Validate(); err != nil {
		return nil, err
	}
	return s.issueDerived(ctx, &note.FiscalDocument, note.Origins, func(ctx context.Context) error {
		return s.writer.CreateCreditNote(ctx, note)
	})
}

// IssuePaymentComplement stores a payment complement and the invoices it
// pays. Repeating the request for a stored complement is a no-op.
func (s *IssuanceService) IssuePaymentComplement(ctx context.Context, req IssuePaymentComplementRequest) (*IssueResponse, error) {
	complement := req.toDomain()
	if err := complement.Validate(); err != nil {
		return nil, err
	}
	return s.issueDerived(ctx, &complement.FiscalDocument, complement.Payments, func(ctx context.Context) error {
		return s.writer.CreatePaymentComplement(ctx, complement)
	})
}

// IssuePayrollReceipt stores a payroll receipt. The employee reference is
// a relation to the employee record and is never filled in on our side.
func (s *IssuanceService) IssuePayrollReceipt(ctx context.Context, req IssuePayrollReceiptRequest) (resp *IssueResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "issuance", "payroll_receipt",
		telemetry.WithAttribute(telemetry.SpanAttrExternalID, req.ExternalID))
	defer func() { telemetry.EndSpan(span, err) }()

	receipt := req.toDomain()
	if receipt.EmployeeRef == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Payroll receipt requires the employee reference")
	}
	if err := receipt.Validate(); err != nil {
		return nil, err
	}
	if err := s.writer.CreatePayrollReceipt(ctx, receipt); err != nil {
		return nil, translateError(err)
	}
	return issued(&receipt.FiscalDocument), nil
}

func (s *IssuanceService) issueDerived(ctx context.Context, doc *fiscal.FiscalDocument, origins []fiscal.DocumentLink, write func(context.Context) error) (resp *IssueResponse, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "issuance", "derived",
		telemetry.WithAttribute(telemetry.SpanAttrKind, doc.Kind.String()),
		telemetry.WithAttribute(telemetry.SpanAttrExternalID, doc.ExternalID))
	defer func() { telemetry.EndSpan(span, err) }()

	lease, err := s.locker.Obtain(ctx, lock.DocumentKey(doc.Kind.String(), doc.ExternalID), s.lockTTL)
	if err != nil {
		return nil, translateError(err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("Failed to release document lock", zap.String("external_id", doc.ExternalID), zap.Error(err))
		}
	}()

	exists, err := s.alreadyStored(ctx, doc.Kind, doc.ExternalID)
	if err != nil {
		return nil, translateError(err)
	}
	if exists {
		s.logger.Info("Derived document already stored, skipping",
			zap.String("kind", doc.Kind.String()),
			zap.String("external_id", doc.ExternalID),
		)
		return replayed(doc), nil
	}

	if err := s.checkOrigins(ctx, origins); err != nil {
		return nil, err
	}

	if err := write(ctx); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return replayed(doc), nil
		}
		return nil, translateError(err)
	}
	return issued(doc), nil
}

// alreadyStored looks for the derived id in the link table first, then in
// the primary table.
func (s *IssuanceService) alreadyStored(ctx context.Context, kind fiscal.DocumentKind, id string) (bool, error) {
	linked, err := s.links.HasLinks(ctx, kind, id)
	if err != nil {
		return false, err
	}
	if linked {
		return true, nil
	}
	_, err = s.states.LoadState(ctx, kind, id)
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	}
	return false, err
}

// checkOrigins requires every origin invoice to exist and not be cancelled.
func (s *IssuanceService) checkOrigins(ctx context.Context, origins []fiscal.DocumentLink) error {
	for _, o := range origins {
		state, err := s.states.LoadState(ctx, fiscal.KindInvoice, o.OriginID)
		if err != nil {
			if isNotFound(err) {
				return shared.NewDomainError("NOT_FOUND", fmt.Sprintf("Origin invoice %s not found", o.OriginID))
			}
			return translateError(err)
		}
		if state.Status == fiscal.StatusCancelled {
			return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Origin invoice %s is cancelled", o.OriginID))
		}
	}
	return nil
}

func issued(doc *fiscal.FiscalDocument) *IssueResponse {
	return &IssueResponse{
		Kind:       doc.Kind,
		ExternalID: doc.ExternalID,
		Status:     doc.Status,
		Total:      doc.Total,
	}
}

func replayed(doc *fiscal.FiscalDocument) *IssueResponse {
	resp := issued(doc)
	resp.Replayed = true
	return resp
}
