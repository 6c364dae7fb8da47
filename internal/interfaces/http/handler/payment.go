package handler

import (
	"github.com/gin-gonic/gin"

	appbilling "github.com/wasteline/backend/internal/application/billing"
	"github.com/wasteline/backend/internal/infrastructure/logger"
)

// PaymentHandler ingests payments and serves payment reads
type PaymentHandler struct {
	BaseHandler
	payments PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Callback handles POST /payments/callback. A replayed callback answers 200
// with the stored payment; a new one answers 201.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req appbilling.PaymentCallbackRequest
	if !h.bindJSON(c, &req) {
		return
	}
	ctx := logger.WithClientID(c.Request.Context(), req.ClientID.String())

	result, err := h.payments.RecordCallback(ctx, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondIngest(c, result)
}

// Manual handles POST /payments/manual
func (h *PaymentHandler) Manual(c *gin.Context) {
	var req appbilling.ManualPaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	ctx := logger.WithClientID(c.Request.Context(), req.ClientID.String())

	result, err := h.payments.RecordManual(ctx, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.respondIngest(c, result)
}

func (h *PaymentHandler) respondIngest(c *gin.Context, result *appbilling.PaymentIngestResult) {
	if result.Duplicate {
		h.Success(c, result)
		return
	}
	h.Created(c, result)
}

// Get handles GET /payments/:id
func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}
	payment, err := h.payments.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payment)
}

// ListByClient handles GET /clients/:client_id/payments?organization_id=
func (h *PaymentHandler) ListByClient(c *gin.Context) {
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

	items, total, err := h.payments.ListByClient(c.Request.Context(), *orgID, clientID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, items, total, filter.Page, filter.PageSize)
}
