package handler

import (
	"github.com/gin-gonic/gin"
)

// ReportHandler serves balances and receivables reports
type ReportHandler struct {
	BaseHandler
	ledger LedgerService
	aging  AgingService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(ledger LedgerService, aging AgingService) *ReportHandler {
	return &ReportHandler{ledger: ledger, aging: aging}
}

// ClientBalance handles GET /clients/:client_id/balance?organization_id=
func (h *ReportHandler) ClientBalance(c *gin.Context) {
	clientID, ok := h.pathUUID(c, "client_id")
	if !ok {
		return
	}
	orgID, ok := h.queryOrganization(c, true)
	if !ok {
		return
	}

	balance, err := h.ledger.GetClientBalance(c.Request.Context(), *orgID, clientID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, balance)
}

// Aging handles GET /reports/aging. Without organization_id the report spans every organization.
func (h *ReportHandler) Aging(c *gin.Context) {
	orgID, ok := h.queryOrganization(c, false)
	if !ok {
		return
	}
	report, err := h.aging.Report(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Overdue handles GET /invoices/overdue
func (h *ReportHandler) Overdue(c *gin.Context) {
	orgID, ok := h.queryOrganization(c, false)
	if !ok {
		return
	}
	items, err := h.aging.ListOverdue(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}
