package invoicing

import (
	"time"

	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/shopspring/decimal"
)

// ==================== Issuance DTOs ====================

// DocumentHeader carries the scalar fields shared by every document kind
type DocumentHeader struct {
	ExternalID    string          `json:"externalId" binding:"required,cfdiuuid"`
	Series        string          `json:"series" binding:"max=25"`
	Folio         string          `json:"folio" binding:"max=40"`
	IssuerRFC     string          `json:"issuerRfc" binding:"omitempty,rfc"`
	ReceiverRFC   string          `json:"receiverRfc" binding:"omitempty,rfc"`
	CustomerRef   string          `json:"customerRef"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency" binding:"omitempty,len=3"`
	Content       string          `json:"content"`
	IssuedAt      *time.Time      `json:"issuedAt"`
	CFDIUse       string          `json:"cfdiUse" binding:"max=4"`
	PaymentMethod string          `json:"paymentMethod" binding:"max=3"`
	PaymentForm   string          `json:"paymentForm" binding:"max=2"`
}

func (h DocumentHeader) toDomain(kind fiscal.DocumentKind) fiscal.FiscalDocument {
	doc := fiscal.FiscalDocument{
		Kind:          kind,
		ExternalID:    h.ExternalID,
		Series:        h.Series,
		Folio:         h.Folio,
		IssuerRFC:     h.IssuerRFC,
		ReceiverRFC:   h.ReceiverRFC,
		CustomerRef:   h.CustomerRef,
		Subtotal:      h.Subtotal,
		Tax:           h.Tax,
		Total:         h.Total,
		Currency:      h.Currency,
		Content:       h.Content,
		CFDIUse:       h.CFDIUse,
		PaymentMethod: h.PaymentMethod,
		PaymentForm:   h.PaymentForm,
	}
	if h.IssuedAt != nil {
		doc.IssuedAt = *h.IssuedAt
	}
	return doc
}

// ConceptInput is one invoice line item
type ConceptInput struct {
	ProductKey  string          `json:"productKey" binding:"required,max=8"`
	UnitKey     string          `json:"unitKey" binding:"max=3"`
	Description string          `json:"description" binding:"required,max=1000"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Amount      decimal.Decimal `json:"amount"`
	Tax         decimal.Decimal `json:"tax"`
}

// IssueInvoiceRequest represents a request to store an issued invoice
type IssueInvoiceRequest struct {
	DocumentHeader
	Concepts  []ConceptInput `json:"concepts" binding:"required,min=1,dive"`
	TicketRef string         `json:"ticketRef"`
}

func (r IssueInvoiceRequest) toDomain() *fiscal.Invoice {
	inv := &fiscal.Invoice{
		FiscalDocument: r.DocumentHeader.toDomain(fiscal.KindInvoice),
		TicketRef:      r.TicketRef,
		Concepts:       make([]fiscal.Concept, 0, len(r.Concepts)),
	}
	for _, c := range r.Concepts {
		inv.Concepts = append(inv.Concepts, fiscal.Concept{
			ProductKey:  c.ProductKey,
			UnitKey:     c.UnitKey,
			Description: c.Description,
			Quantity:    c.Quantity,
			UnitPrice:   c.UnitPrice,
			Amount:      c.Amount,
			Tax:         c.Tax,
		})
	}
	return inv
}

// RelatedDocumentInput references an origin invoice of a derived document
type RelatedDocumentInput struct {
	OriginID        string          `json:"originId" binding:"required,cfdiuuid"`
	RelationType    string          `json:"relationType" binding:"max=2"`
	Amount          decimal.Decimal `json:"amount"`
	Installment     int             `json:"installment" binding:"gte=0"`
	PreviousBalance decimal.Decimal `json:"previousBalance"`
	Paid            decimal.Decimal `json:"paid"`
}

func toLinks(in []RelatedDocumentInput) []fiscal.DocumentLink {
	links := make([]fiscal.DocumentLink, 0, len(in))
	for _, r := range in {
		links = append(links, fiscal.DocumentLink{
			OriginID:        r.OriginID,
			RelationType:    r.RelationType,
			Amount:          r.Amount,
			Installment:     r.Installment,
			PreviousBalance: r.PreviousBalance,
			Paid:            r.Paid,
		})
	}
	return links
}

// IssueCreditNoteRequest represents a request to store a credit note
type IssueCreditNoteRequest struct {
	DocumentHeader
	RelationType string                 `json:"relationType" binding:"max=2"`
	Origins      []RelatedDocumentInput `json:"origins" binding:"required,min=1,dive"`
}

func (r IssueCreditNoteRequest) toDomain() *fiscal.CreditNote {
	return &fiscal.CreditNote{
		FiscalDocument: r.DocumentHeader.toDomain(fiscal.KindCreditNote),
		RelationType:   r.RelationType,
		Origins:        toLinks(r.Origins),
	}
}

// IssuePayrollReceiptRequest represents a request to store a payroll receipt
type IssuePayrollReceiptRequest struct {
	DocumentHeader
	EmployeeRef string          `json:"employeeRef" binding:"required"`
	PeriodStart *time.Time      `json:"periodStart"`
	PeriodEnd   *time.Time      `json:"periodEnd"`
	PaidDays    decimal.Decimal `json:"paidDays"`
	Perceptions decimal.Decimal `json:"perceptions"`
	Deductions  decimal.Decimal `json:"deductions"`
}

func (r IssuePayrollReceiptRequest) toDomain() *fiscal.PayrollReceipt {
	p := &fiscal.PayrollReceipt{
		FiscalDocument: r.DocumentHeader.toDomain(fiscal.KindPayrollReceipt),
		EmployeeRef:    r.EmployeeRef,
		PaidDays:       r.PaidDays,
		Perceptions:    r.Perceptions,
		Deductions:     r.Deductions,
	}
	if r.PeriodStart != nil {
		p.PeriodStart = *r.PeriodStart
	}
	if r.PeriodEnd != nil {
		p.PeriodEnd = *r.PeriodEnd
	}
	return p
}

// IssuePaymentComplementRequest represents a request to store a payment complement
type IssuePaymentComplementRequest struct {
	DocumentHeader
	PaymentDate *time.Time             `json:"paymentDate"`
	Payments    []RelatedDocumentInput `json:"payments" binding:"required,min=1,dive"`
}

func (r IssuePaymentComplementRequest) toDomain() *fiscal.PaymentComplement {
	p := &fiscal.PaymentComplement{
		FiscalDocument: r.DocumentHeader.toDomain(fiscal.KindPaymentComplement),
		Payments:       toLinks(r.Payments),
	}
	if r.PaymentDate != nil {
		p.PaymentDate = *r.PaymentDate
	}
	return p
}

// IssueResponse reports the stored document
type IssueResponse struct {
	Kind       fiscal.DocumentKind   `json:"kind"`
	ExternalID string                `json:"externalId"`
	Status     fiscal.DocumentStatus `json:"status"`
	Total      decimal.Decimal       `json:"total"`
	// Replayed is true when the document already existed and nothing was written.
	Replayed bool `json:"replayed"`
	// TicketLinked is set only for invoices issued from a ticket.
	TicketLinked *bool    `json:"ticketLinked,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// ==================== Cancellation DTOs ====================

// CancelDocumentRequest represents a request to start cancellation
type CancelDocumentRequest struct {
	Reason        string `json:"reason" binding:"required,oneof=01 02 03 04"`
	ReplacementID string `json:"replacementId" binding:"omitempty,cfdiuuid"`
	RequestedBy   string `json:"-"`
}

// CancellationResponse reports the state after a cancellation request
type CancellationResponse struct {
	RequestID   string                `json:"requestId"`
	Kind        fiscal.DocumentKind   `json:"kind"`
	ExternalID  string                `json:"externalId"`
	Status      fiscal.DocumentStatus `json:"status"`
	RequestedAt time.Time             `json:"requestedAt"`
	Deadline    time.Time             `json:"deadline"`
}

// CallbackRequest is the verdict sent by the certifying authority
type CallbackRequest struct {
	ExternalID string `json:"externalId" binding:"required,cfdiuuid"`
	Verdict    string `json:"verdict" binding:"required"`
}

// CallbackResponse reports the state after applying a verdict
type CallbackResponse struct {
	Kind       fiscal.DocumentKind   `json:"kind"`
	ExternalID string                `json:"externalId"`
	Status     fiscal.DocumentStatus `json:"status"`
	Replayed   bool                  `json:"replayed"`
}

// ==================== Query DTOs ====================

// DocumentResponse is the read model of a document
type DocumentResponse struct {
	Kind        fiscal.DocumentKind   `json:"kind"`
	ExternalID  string                `json:"externalId"`
	Series      string                `json:"series,omitempty"`
	Folio       string                `json:"folio,omitempty"`
	IssuerRFC   string                `json:"issuerRfc,omitempty"`
	ReceiverRFC string                `json:"receiverRfc,omitempty"`
	Subtotal    decimal.Decimal       `json:"subtotal"`
	Tax         decimal.Decimal       `json:"tax"`
	Total       decimal.Decimal       `json:"total"`
	Currency    string                `json:"currency,omitempty"`
	Status      fiscal.DocumentStatus `json:"status,omitempty"`
	IssuedAt    *time.Time            `json:"issuedAt,omitempty"`
	Content     string                `json:"content"`
	Source      fiscal.Source         `json:"source"`
	SourceTable string                `json:"sourceTable,omitempty"`
}

// ToDocumentResponse converts a document view to its response form
func ToDocumentResponse(v *fiscal.DocumentView) DocumentResponse {
	return DocumentResponse{
		Kind:        v.Kind,
		ExternalID:  v.ExternalID,
		Series:      v.Series,
		Folio:       v.Folio,
		IssuerRFC:   v.IssuerRFC,
		ReceiverRFC: v.ReceiverRFC,
		Subtotal:    v.Subtotal,
		Tax:         v.Tax,
		Total:       v.Total,
		Currency:    v.Currency,
		Status:      v.Status,
		IssuedAt:    v.IssuedAt,
		Content:     v.Content,
		Source:      v.Source,
		SourceTable: v.SourceTable,
	}
}

// ==================== Schema admin DTOs ====================

// ColumnResponse describes one physical column
type ColumnResponse struct {
	Name       string `json:"name"`
	DataType   string `json:"dataType"`
	Category   string `json:"category"`
	MaxLength  int    `json:"maxLength,omitempty"`
	Nullable   bool   `json:"nullable"`
	HasDefault bool   `json:"hasDefault"`
	Mandatory  bool   `json:"mandatory"`
}

// FieldResolutionResponse shows which column a logical field resolves to
type FieldResolutionResponse struct {
	Field      string   `json:"field"`
	Candidates []string `json:"candidates"`
	Column     string   `json:"column,omitempty"`
	Reference  bool     `json:"reference,omitempty"`
}

// TableSchemaResponse is the live snapshot of a table
type TableSchemaResponse struct {
	Table   string                    `json:"table"`
	Columns []ColumnResponse          `json:"columns"`
	Fields  []FieldResolutionResponse `json:"fields"`
}
