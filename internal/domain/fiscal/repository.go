package fiscal

import (
	"context"
	"time"
)

// DocumentWriter persists newly issued documents. Each method writes the
// document and its dependent rows (concepts, links) atomically.
type DocumentWriter interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	CreateCreditNote(ctx context.Context, note *CreditNote) error
	CreatePayrollReceipt(ctx context.Context, receipt *PayrollReceipt) error
	CreatePaymentComplement(ctx context.Context, complement *PaymentComplement) error
}

// DocumentReader resolves documents by external identifier.
type DocumentReader interface {
	// FetchByExternalID walks the storage tiers and returns a not-found
	// error when none of them knows the document.
	FetchByExternalID(ctx context.Context, kind DocumentKind, externalID string) (*DocumentView, error)
}

// StatusStore reads and updates the lifecycle state in the primary table.
type StatusStore interface {
	LoadState(ctx context.Context, kind DocumentKind, externalID string) (*DocumentState, error)
	// CompareAndSetStatus moves the document to `to` only while it is in one
	// of `from`. It reports whether a row changed.
	CompareAndSetStatus(ctx context.Context, kind DocumentKind, externalID string, from []DocumentStatus, to DocumentStatus, at time.Time) (bool, error)
}

// LinkStore queries derived-to-origin links.
type LinkStore interface {
	HasLinks(ctx context.Context, kind DocumentKind, derivedID string) (bool, error)
}

// TicketStore binds point-of-sale tickets to invoices.
type TicketStore interface {
	AttachInvoice(ctx context.Context, ticketID, invoiceID string) error
}

// CancellationStore keeps the cancellation audit trail.
type CancellationStore interface {
	Create(ctx context.Context, req *CancellationRequest) error
	FindLatest(ctx context.Context, externalID string) (*CancellationRequest, error)
	Save(ctx context.Context, req *CancellationRequest) error
}
