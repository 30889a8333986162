package invoicing

import (
	"context"
	"time"

	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/stretchr/testify/mock"
)

// MockDocumentWriter is a mock implementation of fiscal.DocumentWriter
type MockDocumentWriter struct {
	mock.Mock
}

func (m *MockDocumentWriter) CreateInvoice(ctx context.Context, inv *fiscal.Invoice) error {
	args := m.Called(ctx, inv)
	return args.Error(0)
}

func (m *MockDocumentWriter) CreateCreditNote(ctx context.Context, note *fiscal.CreditNote) error {
	args := m.Called(ctx, note)
	return args.Error(0)
}

func (m *MockDocumentWriter) CreatePayrollReceipt(ctx context.Context, receipt *fiscal.PayrollReceipt) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

func (m *MockDocumentWriter) CreatePaymentComplement(ctx context.Context, complement *fiscal.PaymentComplement) error {
	args := m.Called(ctx, complement)
	return args.Error(0)
}

// MockStatusStore is a mock implementation of fiscal.StatusStore
type MockStatusStore struct {
	mock.Mock
}

func (m *MockStatusStore) LoadState(ctx context.Context, kind fiscal.DocumentKind, externalID string) (*fiscal.DocumentState, error) {
	args := m.Called(ctx, kind, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fiscal.DocumentState), args.Error(1)
}

func (m *MockStatusStore) CompareAndSetStatus(ctx context.Context, kind fiscal.DocumentKind, externalID string, from []fiscal.DocumentStatus, to fiscal.DocumentStatus, at time.Time) (bool, error) {
	args := m.Called(ctx, kind, externalID, from, to, at)
	return args.Bool(0), args.Error(1)
}

// MockLinkStore is a mock implementation of fiscal.LinkStore
type MockLinkStore struct {
	mock.Mock
}

func (m *MockLinkStore) HasLinks(ctx context.Context, kind fiscal.DocumentKind, derivedID string) (bool, error) {
	args := m.Called(ctx, kind, derivedID)
	return args.Bool(0), args.Error(1)
}

// MockTicketStore is a mock implementation of fiscal.TicketStore
type MockTicketStore struct {
	mock.Mock
}

func (m *MockTicketStore) AttachInvoice(ctx context.Context, ticketID, invoiceID string) error {
	args := m.Called(ctx, ticketID, invoiceID)
	return args.Error(0)
}

// MockCancellationStore is a mock implementation of fiscal.CancellationStore
type MockCancellationStore struct {
	mock.Mock
}

func (m *MockCancellationStore) Create(ctx context.Context, req *fiscal.CancellationRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockCancellationStore) FindLatest(ctx context.Context, externalID string) (*fiscal.CancellationRequest, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fiscal.CancellationRequest), args.Error(1)
}

func (m *MockCancellationStore) Save(ctx context.Context, req *fiscal.CancellationRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// MockDocumentReader is a mock implementation of fiscal.DocumentReader
type MockDocumentReader struct {
	mock.Mock
}

func (m *MockDocumentReader) FetchByExternalID(ctx context.Context, kind fiscal.DocumentKind, externalID string) (*fiscal.DocumentView, error) {
	args := m.Called(ctx, kind, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fiscal.DocumentView), args.Error(1)
}

// Ensure mocks implement the interfaces
var (
	_ fiscal.DocumentWriter    = (*MockDocumentWriter)(nil)
	_ fiscal.StatusStore       = (*MockStatusStore)(nil)
	_ fiscal.LinkStore         = (*MockLinkStore)(nil)
	_ fiscal.TicketStore       = (*MockTicketStore)(nil)
	_ fiscal.CancellationStore = (*MockCancellationStore)(nil)
	_ fiscal.DocumentReader    = (*MockDocumentReader)(nil)
)
