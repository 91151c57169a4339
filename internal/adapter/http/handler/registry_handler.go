package handler

import (
	"card-escrow-ledger/internal/adapter/http/dto"
	"card-escrow-ledger/internal/adapter/http/middleware"
	"card-escrow-ledger/internal/core/ports"
	"card-escrow-ledger/pkg/apperror"
	"card-escrow-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// RegistryHandler handles registry endpoints.
type RegistryHandler struct {
	cardSvc ports.CardService
}

// NewRegistryHandler creates a new RegistryHandler.
func NewRegistryHandler(cardSvc ports.CardService) *RegistryHandler {
	return &RegistryHandler{cardSvc: cardSvc}
}

// Initialize handles POST /api/v1/registry/initialize. The signer becomes
// the registry authority.
func (h *RegistryHandler) Initialize(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	registry, err := h.cardSvc.Initialize(c.Request.Context(), ports.InitializeRequest{Authority: caller})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewRegistryResponse(registry))
}

// Get handles GET /api/v1/registry.
func (h *RegistryHandler) Get(c *gin.Context) {
	registry, err := h.cardSvc.GetRegistry(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewRegistryResponse(registry))
}
