package router

import (
	"github.com/cfdi/backend/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// AdminRole must be carried by tokens calling the schema admin endpoints.
const AdminRole = "schema.admin"

// Guards are the authentication middlewares applied per route group.
// A nil guard leaves its group open.
type Guards struct {
	Operator gin.HandlerFunc // bearer token
	Admin    gin.HandlerFunc // bearer token carrying AdminRole
	Callback gin.HandlerFunc // certifying authority shared secret
}

// Handlers bundles the handlers served under the API prefix.
type Handlers struct {
	Fiscal *handler.FiscalHandler
	Schema *handler.SchemaHandler
	Health *handler.HealthHandler
}

// FiscalGroup mounts document issuance, lookup and cancellation.
func FiscalGroup(h *handler.FiscalHandler, guard gin.HandlerFunc) *DomainGroup {
	g := withGuard(NewDomainGroup("fiscal", "/fiscal"), guard)
	g.POST("/invoices", h.IssueInvoice).
		POST("/credit-notes", h.IssueCreditNote).
		POST("/payroll-receipts", h.IssuePayrollReceipt).
		POST("/payment-complements", h.IssuePaymentComplement).
		GET("/:kind/:uuid", h.GetDocument).
		POST("/:kind/:uuid/cancel", h.RequestCancellation)
	return g
}

// CallbackGroup mounts the verdict callback, which authenticates with the
// shared secret instead of a bearer token.
func CallbackGroup(h *handler.FiscalHandler, guard gin.HandlerFunc) *DomainGroup {
	g := withGuard(NewDomainGroup("fiscal-callback", "/fiscal/cancellation"), guard)
	g.POST("/callback", h.CancellationCallback)
	return g
}

// SchemaGroup mounts the live schema admin endpoints.
func SchemaGroup(h *handler.SchemaHandler, guard gin.HandlerFunc) *DomainGroup {
	g := withGuard(NewDomainGroup("schema", "/admin/schema"), guard)
	g.GET("", h.ListTables).
		GET("/:table", h.Describe).
		POST("/:table/refresh", h.Refresh)
	return g
}

// HealthGroup mounts the unauthenticated health check.
func HealthGroup(h *handler.HealthHandler) *DomainGroup {
	g := NewDomainGroup("health", "/health")
	g.GET("", h.Health)
	return g
}

// RegisterAll registers every group of the service on r.
func (r *Router) RegisterAll(h Handlers, guards Guards) *Router {
	return r.Register(FiscalGroup(h.Fiscal, guards.Operator)).
		Register(CallbackGroup(h.Fiscal, guards.Callback)).
		Register(SchemaGroup(h.Schema, guards.Admin)).
		Register(HealthGroup(h.Health))
}

func withGuard(g *DomainGroup, guard gin.HandlerFunc) *DomainGroup {
	if guard != nil {
		g.Use(guard)
	}
	return g
}
