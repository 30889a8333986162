package persistence

import (
	"context"
	"time"

	"github.com/cfdi/backend/internal/infrastructure/persistence/schema"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TicketRepository marks point-of-sale tickets as invoiced. It implements
// fiscal.TicketStore.
type TicketRepository struct {
	db      *gorm.DB
	builder *schema.Builder
	now     func() time.Time
	logger  *zap.Logger
}

// NewTicketRepository creates a TicketRepository.
func NewTicketRepository(db *gorm.DB, builder *schema.Builder, logger *zap.Logger) *TicketRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketRepository{db: db, builder: builder, now: time.Now, logger: logger}
}

// AttachInvoice writes the invoice reference on the ticket row. A ticket that
// does not exist is reported as schema.ErrNotFound.
func (r *TicketRepository) AttachInvoice(ctx context.Context, ticketID, invoiceID string) error {
	set := schema.Record{
		FieldInvoiceRef: invoiceID,
		FieldInvoiced:   true,
		FieldInvoicedAt: r.now(),
	}
	stmt, err := r.builder.BuildUpdate(ctx, TableTickets, set, FieldTicketID, ticketID)
	if err != nil {
		return err
	}
	n, err := schema.Exec(ctx, r.db, stmt)
	if err != nil {
		return err
	}
	if n == 0 {
		return &schema.Error{Kind: schema.KindNotFound, Table: TableTickets, Field: FieldTicketID}
	}
	r.logger.Debug("Ticket invoiced", zap.String("ticket_id", ticketID), zap.String("invoice_id", invoiceID))
	return nil
}
