package fiscal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfdi/backend/internal/domain/shared"
)

const (
	invoiceUUID = "6f1c2a9e-1111-4a3b-9c77-2d1e0f3a5b6c"
	noteUUID    = "0a8b7c6d-2222-4e5f-8a9b-0c1d2e3f4a5b"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind("credit-notes")
	require.NoError(t, err)
	assert.Equal(t, KindCreditNote, k)

	k, err = ParseKind("PAYROLL_RECEIPT")
	require.NoError(t, err)
	assert.Equal(t, "payroll-receipts", k.PathSegment())

	_, err = ParseKind("receipts")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestValidRFC(t *testing.T) {
	assert.True(t, ValidRFC("XAXX010101000"))
	assert.True(t, ValidRFC("EKU9003173C9"))
	assert.False(t, ValidRFC("XAXX01010100"))
	assert.False(t, ValidRFC("not-an-rfc"))
}

func TestInvoice_Validate(t *testing.T) {
	t.Run("computes amounts and defaults", func(t *testing.T) {
		inv := &Invoice{
			FiscalDocument: FiscalDocument{ExternalID: invoiceUUID, IssuerRFC: "EKU9003173C9", ReceiverRFC: "XAXX010101000"},
			Concepts: []Concept{
				{Description: "Servicio", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("50"), Tax: decimal.RequireFromString("16")},
			},
		}
		require.NoError(t, inv.Validate())
		assert.Equal(t, KindInvoice, inv.Kind)
		assert.Equal(t, "6F1C2A9E-1111-4A3B-9C77-2D1E0F3A5B6C", inv.ExternalID)
		assert.True(t, inv.Subtotal.Equal(decimal.NewFromInt(100)))
		assert.True(t, inv.Total.Equal(decimal.NewFromInt(116)))
		assert.Equal(t, "MXN", inv.Currency)
		assert.Equal(t, StatusIssued, inv.Status)
	})

	t.Run("requires concepts", func(t *testing.T) {
		inv := &Invoice{FiscalDocument: FiscalDocument{ExternalID: invoiceUUID}}
		assert.ErrorIs(t, inv.Validate(), shared.ErrInvalidInput)
	})

	t.Run("rejects malformed RFC", func(t *testing.T) {
		inv := &Invoice{
			FiscalDocument: FiscalDocument{ExternalID: invoiceUUID, ReceiverRFC: "12345"},
			Concepts:       []Concept{{Quantity: decimal.NewFromInt(1)}},
		}
		assert.ErrorIs(t, inv.Validate(), shared.ErrInvalidInput)
	})
}

func TestCreditNote_Validate(t *testing.T) {
	t.Run("normalises origins", func(t *testing.T) {
		note := &CreditNote{
			FiscalDocument: FiscalDocument{ExternalID: noteUUID, Subtotal: decimal.NewFromInt(10)},
			Origins:        []DocumentLink{{OriginID: invoiceUUID}},
		}
		require.NoError(t, note.Validate())
		assert.Equal(t, "01", note.Origins[0].RelationType)
		assert.Equal(t, note.ExternalID, note.Origins[0].DerivedID)
		assert.Equal(t, "6F1C2A9E-1111-4A3B-9C77-2D1E0F3A5B6C", note.Origins[0].OriginID)
	})

	t.Run("cannot relate to itself", func(t *testing.T) {
		note := &CreditNote{
			FiscalDocument: FiscalDocument{ExternalID: noteUUID},
			Origins:        []DocumentLink{{OriginID: noteUUID}},
		}
		assert.ErrorIs(t, note.Validate(), shared.ErrInvalidInput)
	})

	t.Run("duplicate origins", func(t *testing.T) {
		note := &CreditNote{
			FiscalDocument: FiscalDocument{ExternalID: noteUUID},
			Origins:        []DocumentLink{{OriginID: invoiceUUID}, {OriginID: invoiceUUID}},
		}
		assert.ErrorIs(t, note.Validate(), shared.ErrInvalidInput)
	})
}

func TestPaymentComplement_Validate(t *testing.T) {
	pc := &PaymentComplement{
		FiscalDocument: FiscalDocument{ExternalID: noteUUID, IssuedAt: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)},
		Payments: []DocumentLink{{
			OriginID:        invoiceUUID,
			PreviousBalance: decimal.NewFromInt(116),
			Paid:            decimal.NewFromInt(50),
		}},
	}
	require.NoError(t, pc.Validate())
	assert.True(t, pc.Payments[0].Remaining.Equal(decimal.NewFromInt(66)))
	assert.Equal(t, 1, pc.Payments[0].Installment)
	assert.Equal(t, pc.IssuedAt, pc.PaymentDate)

	pc.Payments[0].Paid = decimal.NewFromInt(500)
	assert.ErrorIs(t, pc.Validate(), shared.ErrInvalidInput)
}

func TestPayrollReceipt_Validate(t *testing.T) {
	r := &PayrollReceipt{
		FiscalDocument: FiscalDocument{ExternalID: noteUUID},
		EmployeeRef:    "E-100",
		PeriodStart:    time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC),
		Perceptions:    decimal.NewFromInt(10000),
		Deductions:     decimal.NewFromInt(1500),
	}
	require.NoError(t, r.Validate())
	assert.True(t, r.Total.Equal(decimal.NewFromInt(8500)))

	r.PeriodEnd = r.PeriodStart.Add(-24 * time.Hour)
	assert.ErrorIs(t, r.Validate(), shared.ErrInvalidInput)
}

func TestNewCancellationRequest(t *testing.T) {
	now := time.Now()
	id := "6F1C2A9E-1111-4A3B-9C77-2D1E0F3A5B6C"

	_, err := NewCancellationRequest(KindInvoice, id, ReasonErrorsWithRelation, "", "ops", now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	req, err := NewCancellationRequest(KindInvoice, id, ReasonErrorsWithRelation, noteUUID, "ops", now)
	require.NoError(t, err)
	assert.Equal(t, "0A8B7C6D-2222-4E5F-8A9B-0C1D2E3F4A5B", req.ReplacementID)
	assert.True(t, req.IsOpen())

	req, err = NewCancellationRequest(KindInvoice, id, ReasonOperationNotCompleted, noteUUID, "ops", now)
	require.NoError(t, err)
	assert.Empty(t, req.ReplacementID)

	req.Resolve(VerdictAccepted, now)
	assert.False(t, req.IsOpen())

	_, err = NewCancellationRequest(KindInvoice, id, "09", "", "ops", now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
