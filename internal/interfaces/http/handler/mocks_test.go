package handler

import (
	"context"

	"github.com/cfdi/backend/internal/application/invoicing"
	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/stretchr/testify/mock"
)

type mockIssuance struct {
	mock.Mock
}

var _ IssuanceService = (*mockIssuance)(nil)

func (m *mockIssuance) issued(args mock.Arguments) (*invoicing.IssueResponse, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.IssueResponse), args.Error(1)
}

func (m *mockIssuance) IssueInvoice(ctx context.Context, req invoicing.IssueInvoiceRequest) (*invoicing.IssueResponse, error) {
	return m.issued(m.Called(ctx, req))
}

func (m *mockIssuance) IssueCreditNote(ctx context.Context, req invoicing.IssueCreditNoteRequest) (*invoicing.IssueResponse, error) {
	return m.issued(m.Called(ctx, req))
}

func (m *mockIssuance) IssuePayrollReceipt(ctx context.Context, req invoicing.IssuePayrollReceiptRequest) (*invoicing.IssueResponse, error) {
	return m.issued(m.Called(ctx, req))
}

func (m *mockIssuance) IssuePaymentComplement(ctx context.Context, req invoicing.IssuePaymentComplementRequest) (*invoicing.IssueResponse, error) {
	return m.issued(m.Called(ctx, req))
}

type mockCancellation struct {
	mock.Mock
}

var _ CancellationService = (*mockCancellation)(nil)

func (m *mockCancellation) RequestCancellation(ctx context.Context, kind fiscal.DocumentKind, externalID string, req invoicing.CancelDocumentRequest) (*invoicing.CancellationResponse, error) {
	args := m.Called(ctx, kind, externalID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.CancellationResponse), args.Error(1)
}

func (m *mockCancellation) HandleCallback(ctx context.Context, req invoicing.CallbackRequest) (*invoicing.CallbackResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.CallbackResponse), args.Error(1)
}

type mockQuery struct {
	mock.Mock
}

var _ DocumentQueryService = (*mockQuery)(nil)

func (m *mockQuery) GetDocument(ctx context.Context, kind fiscal.DocumentKind, externalID string) (*invoicing.DocumentResponse, error) {
	args := m.Called(ctx, kind, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.DocumentResponse), args.Error(1)
}

type mockSchemaAdmin struct {
	mock.Mock
}

var _ SchemaAdminService = (*mockSchemaAdmin)(nil)

func (m *mockSchemaAdmin) Tables() []string {
	return m.Called().Get(0).([]string)
}

func (m *mockSchemaAdmin) Describe(ctx context.Context, table string) (*invoicing.TableSchemaResponse, error) {
	args := m.Called(ctx, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.TableSchemaResponse), args.Error(1)
}

func (m *mockSchemaAdmin) Refresh(ctx context.Context, table string) (*invoicing.TableSchemaResponse, error) {
	args := m.Called(ctx, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.TableSchemaResponse), args.Error(1)
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error {
	return p.err
}
