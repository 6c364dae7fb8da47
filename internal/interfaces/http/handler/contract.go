package handler

import (
	"github.com/gin-gonic/gin"

	appbilling "github.com/wasteline/backend/internal/application/billing"
)

// ContractHandler serves the contract feed
type ContractHandler struct {
	BaseHandler
	contracts ContractService
}

// NewContractHandler creates a new ContractHandler
func NewContractHandler(contracts ContractService) *ContractHandler {
	return &ContractHandler{contracts: contracts}
}

// Upsert handles PUT /contracts/:client_id
func (h *ContractHandler) Upsert(c *gin.Context) {
	clientID, ok := h.pathUUID(c, "client_id")
	if !ok {
		return
	}
	var req appbilling.UpsertContractRequest
	if !h.bindJSON(c, &req) {
		return
	}

	contract, err := h.contracts.Upsert(c.Request.Context(), clientID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, contract)
}

// Get handles GET /contracts/:client_id?organization_id=
func (h *ContractHandler) Get(c *gin.Context) {
	clientID, ok := h.pathUUID(c, "client_id")
	if !ok {
		return
	}
	orgID, ok := h.queryOrganization(c, true)
	if !ok {
		return
	}

	contract, err := h.contracts.Get(c.Request.Context(), *orgID, clientID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, contract)
}
