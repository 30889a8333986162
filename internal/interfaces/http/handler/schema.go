package handler

import (
	"context"

	"github.com/cfdi/backend/internal/application/invoicing"
	"github.com/gin-gonic/gin"
)

// SchemaAdminService exposes live table snapshots
type SchemaAdminService interface {
	Tables() []string
	Describe(ctx context.Context, table string) (*invoicing.TableSchemaResponse, error)
	Refresh(ctx context.Context, table string) (*invoicing.TableSchemaResponse, error)
}

// SchemaHandler serves the schema admin endpoints
type SchemaHandler struct {
	BaseHandler
	service SchemaAdminService
}

// NewSchemaHandler creates a new SchemaHandler
func NewSchemaHandler(service SchemaAdminService) *SchemaHandler {
	return &SchemaHandler{service: service}
}

// ListTables handles GET /admin/schema
func (h *SchemaHandler) ListTables(c *gin.Context) {
	h.Success(c, gin.H{"tables": h.service.Tables()})
}

// Describe handles GET /admin/schema/:table
func (h *SchemaHandler) Describe(c *gin.Context) {
	resp, err := h.service.Describe(c.Request.Context(), c.Param("table"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Refresh handles POST /admin/schema/:table/refresh
func (h *SchemaHandler) Refresh(c *gin.Context) {
	resp, err := h.service.Refresh(c.Request.Context(), c.Param("table"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
