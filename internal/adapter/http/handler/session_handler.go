package handler

import (
	"card-escrow-ledger/internal/adapter/http/dto"
	"card-escrow-ledger/internal/adapter/http/middleware"
	"card-escrow-ledger/internal/core/ports"
	"card-escrow-ledger/pkg/apperror"
	"card-escrow-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// SessionHandler exchanges a signed request for a read-session token.
type SessionHandler struct {
	tokenSvc ports.TokenService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(tokenSvc ports.TokenService) *SessionHandler {
	return &SessionHandler{tokenSvc: tokenSvc}
}

// Create handles POST /api/v1/sessions.
func (h *SessionHandler) Create(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	token, expiry, err := h.tokenSvc.Generate(caller)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	response.Created(c, dto.SessionResponse{
		Token:   token,
		Subject: caller.String(),
		Expiry:  expiry.Unix(),
	})
}
