package handler

import (
	"card-escrow-ledger/internal/adapter/http/dto"
	"card-escrow-ledger/internal/adapter/http/middleware"
	"card-escrow-ledger/internal/core/ports"
	"card-escrow-ledger/pkg/apperror"
	"card-escrow-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// FaucetHandler credits development funds to the signer.
type FaucetHandler struct {
	faucetSvc ports.FaucetService
}

// NewFaucetHandler creates a new FaucetHandler.
func NewFaucetHandler(faucetSvc ports.FaucetService) *FaucetHandler {
	return &FaucetHandler{faucetSvc: faucetSvc}
}

// Fund handles POST /api/v1/faucet.
func (h *FaucetHandler) Fund(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	var req dto.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	balance, err := h.faucetSvc.Fund(c.Request.Context(), caller, *req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FaucetResponse{
		Account: caller.String(),
		Balance: balance,
	})
}
