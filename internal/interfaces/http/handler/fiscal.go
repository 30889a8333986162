package handler

import (
	"context"

	"github.com/cfdi/backend/internal/application/invoicing"
	"github.com/cfdi/backend/internal/domain/fiscal"
	"github.com/cfdi/backend/internal/interfaces/http/dto"
	"github.com/cfdi/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// IssuanceService stores newly certified documents
type IssuanceService interface {
	IssueInvoice(ctx context.Context, req invoicing.IssueInvoiceRequest) (*invoicing.IssueResponse, error)
	IssueCreditNote(ctx context.Context, req invoicing.IssueCreditNoteRequest) (*invoicing.IssueResponse, error)
	IssuePayrollReceipt(ctx context.Context, req invoicing.IssuePayrollReceiptRequest) (*invoicing.IssueResponse, error)
	IssuePaymentComplement(ctx context.Context, req invoicing.IssuePaymentComplementRequest) (*invoicing.IssueResponse, error)
}

// CancellationService drives the cancellation lifecycle
type CancellationService interface {
	RequestCancellation(ctx context.Context, kind fiscal.DocumentKind, externalID string, req invoicing.CancelDocumentRequest) (*invoicing.CancellationResponse, error)
	HandleCallback(ctx context.Context, req invoicing.CallbackRequest) (*invoicing.CallbackResponse, error)
}

// DocumentQueryService reads documents through the fallback chain
type DocumentQueryService interface {
	GetDocument(ctx context.Context, kind fiscal.DocumentKind, externalID string) (*invoicing.DocumentResponse, error)
}

// FiscalHandler handles document issuance, lookup and cancellation endpoints
type FiscalHandler struct {
	BaseHandler
	issuance     IssuanceService
	cancellation CancellationService
	query        DocumentQueryService
}

// NewFiscalHandler creates a new FiscalHandler
func NewFiscalHandler(issuance IssuanceService, cancellation CancellationService, query DocumentQueryService) *FiscalHandler {
	return &FiscalHandler{
		issuance:     issuance,
		cancellation: cancellation,
		query:        query,
	}
}

// IssueInvoice handles POST /fiscal/invoices
func (h *FiscalHandler) IssueInvoice(c *gin.Context) {
	var req invoicing.IssueInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.respondIssued(c)(h.issuance.IssueInvoice(c.Request.Context(), req))
}

// IssueCreditNote handles POST /fiscal/credit-notes
func (h *FiscalHandler) IssueCreditNote(c *gin.Context) {
	var req invoicing.IssueCreditNoteRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.respondIssued(c)(h.issuance.IssueCreditNote(c.Request.Context(), req))
}

// IssuePayrollReceipt handles POST /fiscal/payroll-receipts
func (h *FiscalHandler) IssuePayrollReceipt(c *gin.Context) {
	var req invoicing.IssuePayrollReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.respondIssued(c)(h.issuance.IssuePayrollReceipt(c.Request.Context(), req))
}

// IssuePaymentComplement handles POST /fiscal/payment-complements
func (h *FiscalHandler) IssuePaymentComplement(c *gin.Context) {
	var req invoicing.IssuePaymentComplementRequest
	if !h.BindJSON(c, &req) {
		return
	}
	h.respondIssued(c)(h.issuance.IssuePaymentComplement(c.Request.Context(), req))
}

// respondIssued answers 201 for a new document and 200 for a replay.
func (h *FiscalHandler) respondIssued(c *gin.Context) func(*invoicing.IssueResponse, error) {
	return func(resp *invoicing.IssueResponse, err error) {
		if err != nil {
			h.HandleError(c, err)
			return
		}
		if resp.Replayed {
			h.Success(c, resp)
			return
		}
		h.Created(c, resp)
	}
}

// GetDocument handles GET /fiscal/:kind/:uuid
func (h *FiscalHandler) GetDocument(c *gin.Context) {
	kind, id, ok := h.documentPath(c)
	if !ok {
		return
	}
	doc, err := h.query.GetDocument(c.Request.Context(), kind, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, doc)
}

// RequestCancellation handles POST /fiscal/:kind/:uuid/cancel
func (h *FiscalHandler) RequestCancellation(c *gin.Context) {
	kind, id, ok := h.documentPath(c)
	if !ok {
		return
	}
	var req invoicing.CancelDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.RequestedBy = getSubject(c)

	resp, err := h.cancellation.RequestCancellation(c.Request.Context(), kind, id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// CancellationCallback handles POST /fiscal/cancellation/callback. Replaying
// a verdict the document already reflects answers 200 as well.
func (h *FiscalHandler) CancellationCallback(c *gin.Context) {
	var req invoicing.CallbackRequest
	if !h.BindJSON(c, &req) {
		return
	}
	resp, err := h.cancellation.HandleCallback(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

func (h *FiscalHandler) documentPath(c *gin.Context) (fiscal.DocumentKind, string, bool) {
	var path dto.DocumentPath
	if err := c.ShouldBindUri(&path); err != nil {
		middleware.HandleValidationError(c, err)
		return "", "", false
	}
	kind, err := fiscal.ParseKind(path.Kind)
	if err != nil {
		h.HandleError(c, err)
		return "", "", false
	}
	return kind, path.ExternalID, true
}
