package fiscal

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cfdi/backend/internal/domain/shared"
)

// DocumentKind identifies the family of a fiscal document.
type DocumentKind string

const (
	KindInvoice           DocumentKind = "INVOICE"
	KindCreditNote        DocumentKind = "CREDIT_NOTE"
	KindPayrollReceipt    DocumentKind = "PAYROLL_RECEIPT"
	KindPaymentComplement DocumentKind = "PAYMENT_COMPLEMENT"
)

// AllKinds lists every document kind.
var AllKinds = []DocumentKind{KindInvoice, KindCreditNote, KindPayrollReceipt, KindPaymentComplement}

var kindSegments = map[DocumentKind]string{
	KindInvoice:           "invoices",
	KindCreditNote:        "credit-notes",
	KindPayrollReceipt:    "payroll-receipts",
	KindPaymentComplement: "payment-complements",
}

// IsValid checks if the kind is known
func (k DocumentKind) IsValid() bool {
	_, ok := kindSegments[k]
	return ok
}

// String returns the string representation of DocumentKind
func (k DocumentKind) String() string {
	return string(k)
}

// PathSegment is the URL form of the kind.
func (k DocumentKind) PathSegment() string {
	return kindSegments[k]
}

// ParseKind accepts the canonical or URL form of a kind.
func ParseKind(raw string) (DocumentKind, error) {
	s := strings.TrimSpace(raw)
	for k, seg := range kindSegments {
		if strings.EqualFold(s, seg) || strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown document kind %q", raw))
}

// NormalizeExternalID validates a fiscal UUID and returns its canonical
// upper-case form.
func NormalizeExternalID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Invalid fiscal UUID %q", raw))
	}
	return strings.ToUpper(id.String()), nil
}

var rfcPattern = regexp.MustCompile(`^[A-ZÑ&]{3,4}[0-9]{6}[A-Z0-9]{3}$`)

// ValidRFC reports whether s is a well-formed taxpayer id (RFC).
func ValidRFC(s string) bool {
	return rfcPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// FiscalDocument holds the scalar data common to every kind. Only Status and
// Content change after issuance.
type FiscalDocument struct {
	Kind          DocumentKind
	ExternalID    string
	Series        string
	Folio         string
	IssuerRFC     string
	ReceiverRFC   string
	CustomerRef   string
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	Currency      string
	Content       string
	Status        DocumentStatus
	IssuedAt      time.Time
	CFDIUse       string
	PaymentMethod string
	PaymentForm   string
}

// Validate checks the invariants shared by every kind and fills derived
// values: the total defaults to subtotal plus tax, currency to MXN and
// status to ISSUED.
func (d *FiscalDocument) Validate() error {
	if !d.Kind.IsValid() {
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unknown document kind %q", d.Kind))
	}
	id, err := NormalizeExternalID(d.ExternalID)
	if err != nil {
		return err
	}
	d.ExternalID = id
	if d.IssuerRFC != "" && !ValidRFC(d.IssuerRFC) {
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Invalid issuer RFC %q", d.IssuerRFC))
	}
	if d.ReceiverRFC != "" && !ValidRFC(d.ReceiverRFC) {
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Invalid receiver RFC %q", d.ReceiverRFC))
	}
	if d.Subtotal.IsNegative() || d.Tax.IsNegative() || d.Total.IsNegative() {
		return shared.NewDomainError("INVALID_INPUT", "Amounts cannot be negative")
	}
	if d.Total.IsZero() {
		d.Total = d.Subtotal.Add(d.Tax)
	}
	if d.Currency == "" {
		d.Currency = "MXN"
	}
	if d.Status == "" {
		d.Status = StatusIssued
	}
	if !d.Status.IsValid() {
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Invalid status %q", d.Status))
	}
	if d.IssuedAt.IsZero() {
		d.IssuedAt = time.Now()
	}
	return nil
}

// Concept is an invoice line item.
type Concept struct {
	ProductKey  string
	UnitKey     string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Amount      decimal.Decimal
	Tax         decimal.Decimal
}

// Invoice is an income document with line items, optionally issued from a
// point-of-sale ticket.
type Invoice struct {
	FiscalDocument
	Concepts  []Concept
	TicketRef string
}

// Validate checks the invoice and computes missing line amounts.
func (i *Invoice) Validate() error {
	i.Kind = KindInvoice
	if len(i.Concepts) == 0 {
		return shared.NewDomainError("INVALID_INPUT", "Invoice requires at least one concept")
	}
	subtotal, tax := decimal.Zero, decimal.Zero
	for n := range i.Concepts {
		c := &i.Concepts[n]
		if c.Quantity.LessThanOrEqual(decimal.Zero) {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Concept %d quantity must be positive", n+1))
		}
		if c.Amount.IsZero() {
			c.Amount = c.Quantity.Mul(c.UnitPrice).Round(2)
		}
		subtotal = subtotal.Add(c.Amount)
		tax = tax.Add(c.Tax)
	}
	if i.Subtotal.IsZero() {
		i.Subtotal = subtotal
	}
	if i.Tax.IsZero() {
		i.Tax = tax
	}
	return i.FiscalDocument.Validate()
}

// CreditNote reduces the amount of one or more origin invoices.
type CreditNote struct {
	FiscalDocument
	RelationType string // SAT relation code, "01" nota de credito
	Origins      []DocumentLink
}

// Validate checks the credit note.
func (c *CreditNote) Validate() error {
	c.Kind = KindCreditNote
	if c.RelationType == "" {
		c.RelationType = "01"
	}
	if err := c.FiscalDocument.Validate(); err != nil {
		return err
	}
	return validateOrigins(c.ExternalID, c.RelationType, c.Origins)
}

// PayrollReceipt is a payroll document bound to an employee record.
type PayrollReceipt struct {
	FiscalDocument
	EmployeeRef string
	PeriodStart time.Time
	PeriodEnd   time.Time
	PaidDays    decimal.Decimal
	Perceptions decimal.Decimal
	Deductions  decimal.Decimal
}

// Validate checks the payroll receipt.
func (p *PayrollReceipt) Validate() error {
	p.Kind = KindPayrollReceipt
	if !p.PeriodStart.IsZero() && !p.PeriodEnd.IsZero() && p.PeriodEnd.Before(p.PeriodStart) {
		return shared.NewDomainError("INVALID_INPUT", "Payroll period ends before it starts")
	}
	if p.Subtotal.IsZero() {
		p.Subtotal = p.Perceptions
	}
	if p.Total.IsZero() && !p.Perceptions.IsZero() {
		p.Total = p.Perceptions.Sub(p.Deductions)
	}
	return p.FiscalDocument.Validate()
}

// PaymentComplement records payments applied to previously issued invoices.
type PaymentComplement struct {
	FiscalDocument
	PaymentDate time.Time
	Payments    []DocumentLink
}

// Validate checks the complement and the per-invoice balances.
func (p *PaymentComplement) Validate() error {
	p.Kind = KindPaymentComplement
	if err := p.FiscalDocument.Validate(); err != nil {
		return err
	}
	for n := range p.Payments {
		l := &p.Payments[n]
		if l.Paid.LessThanOrEqual(decimal.Zero) {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Payment %d amount must be positive", n+1))
		}
		if l.PreviousBalance.IsPositive() && l.Paid.GreaterThan(l.PreviousBalance) {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Payment %d exceeds the outstanding balance", n+1))
		}
		l.Remaining = l.PreviousBalance.Sub(l.Paid)
		if l.Installment == 0 {
			l.Installment = 1
		}
	}
	if p.PaymentDate.IsZero() {
		p.PaymentDate = p.IssuedAt
	}
	return validateOrigins(p.ExternalID, "", p.Payments)
}

// DocumentLink relates a derived document to one origin document.
type DocumentLink struct {
	DerivedID       string
	OriginID        string
	RelationType    string
	Amount          decimal.Decimal
	Installment     int
	PreviousBalance decimal.Decimal
	Paid            decimal.Decimal
	Remaining       decimal.Decimal
}

func validateOrigins(derivedID, relationType string, links []DocumentLink) error {
	if len(links) == 0 {
		return shared.NewDomainError("INVALID_INPUT", "At least one related document is required")
	}
	seen := make(map[string]struct{}, len(links))
	for n := range links {
		id, err := NormalizeExternalID(links[n].OriginID)
		if err != nil {
			return err
		}
		if id == derivedID {
			return shared.NewDomainError("INVALID_INPUT", "A document cannot relate to itself")
		}
		if _, dup := seen[id]; dup {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Related document %s listed twice", id))
		}
		seen[id] = struct{}{}
		links[n].OriginID = id
		links[n].DerivedID = derivedID
		if links[n].RelationType == "" {
			links[n].RelationType = relationType
		}
	}
	return nil
}

// Source names the fallback tier that produced a DocumentView.
type Source string

const (
	SourcePrimary     Source = "primary"
	SourceArchive     Source = "archive"
	SourceReduced     Source = "reduced"
	SourceSynthesized Source = "synthesized"
)

// DocumentView is a read model of a document assembled from whichever
// storage tier could answer.
type DocumentView struct {
	Kind        DocumentKind
	ExternalID  string
	Series      string
	Folio       string
	IssuerRFC   string
	ReceiverRFC string
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
	Currency    string
	Status      DocumentStatus
	RawStatus   string
	IssuedAt    *time.Time
	Content     string
	Source      Source
	SourceTable string
}

// HasContent reports whether the raw document body is present.
func (v *DocumentView) HasContent() bool {
	return v != nil && strings.TrimSpace(v.Content) != ""
}

// DocumentState is the live lifecycle state of a document in its primary table.
type DocumentState struct {
	Kind       DocumentKind
	ExternalID string
	Status     DocumentStatus
	RawStatus  string
	IssuedAt   time.Time
}
