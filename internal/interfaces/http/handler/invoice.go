package handler

import (
	"github.com/gin-gonic/gin"

	appbilling "github.com/wasteline/backend/internal/application/billing"
	"github.com/wasteline/backend/internal/infrastructure/logger"
)

// InvoiceHandler issues custom invoices and serves invoice reads
type InvoiceHandler struct {
	BaseHandler
	invoices InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoices InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

// CreateCustom handles POST /invoices/custom
func (h *InvoiceHandler) CreateCustom(c *gin.Context) {
	var req appbilling.CreateCustomInvoiceRequest
	if !h.bindJSON(c, &req) {
		return
	}
	ctx := logger.WithClientID(c.Request.Context(), req.ClientID.String())

	result, err := h.invoices.CreateCustom(ctx, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// Get handles GET /invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	invoice, err := h.invoices.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// ListByClient handles GET /clients/:client_id/invoices?organization_id=
func (h *InvoiceHandler) ListByClient(c *gin.Context) {
	clientID, ok := h.pathUUID(c, "client_id")
	if !ok {
		return
	}
	orgID, ok := h.queryOrganization(c, true)
	if !ok {
		return
	}
	filter, ok := h.bindListFilter(c)
	if !ok {
		return
	}

	items, total, err := h.invoices.ListByClient(c.Request.Context(), *orgID, clientID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, items, total, filter.Page, filter.PageSize)
}
