package handler

import (
	"card-escrow-ledger/internal/adapter/http/dto"
	"card-escrow-ledger/internal/adapter/http/middleware"
	"card-escrow-ledger/internal/core/domain"
	"card-escrow-ledger/internal/core/ports"
	"card-escrow-ledger/pkg/apperror"
	"card-escrow-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// CardHandler handles card lifecycle endpoints.
type CardHandler struct {
	cardSvc ports.CardService
}

// NewCardHandler creates a new CardHandler.
func NewCardHandler(cardSvc ports.CardService) *CardHandler {
	return &CardHandler{cardSvc: cardSvc}
}

// Create handles POST /api/v1/cards.
func (h *CardHandler) Create(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return
	}

	var req dto.CreateCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	receipt, err := h.cardSvc.CreateCard(c.Request.Context(), ports.CreateCardRequest{
		Owner:        caller,
		CardID:       req.CardID,
		BalanceLimit: *req.BalanceLimit,
		Metadata:     req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toReceiptResponse(receipt))
}

// TopUp handles POST /api/v1/cards/:owner/:card_id/topup.
func (h *CardHandler) TopUp(c *gin.Context) {
	ref, ok := cardRef(c)
	if !ok {
		return
	}

	var req dto.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	receipt, err := h.cardSvc.TopUp(c.Request.Context(), ports.TopUpRequest{
		CardRef: ref,
		Amount:  *req.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toReceiptResponse(receipt))
}

// Pay handles POST /api/v1/cards/:owner/:card_id/payments.
func (h *CardHandler) Pay(c *gin.Context) {
	ref, ok := cardRef(c)
	if !ok {
		return
	}

	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	merchant, err := domain.ParseIdentity(req.Merchant)
	if err != nil {
		response.Error(c, apperror.ErrInvalidIdentity("merchant"))
		return
	}

	receipt, err := h.cardSvc.ProcessPayment(c.Request.Context(), ports.PaymentRequest{
		CardRef:           ref,
		Amount:            *req.Amount,
		Merchant:          merchant,
		MerchantReference: req.MerchantReference,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toReceiptResponse(receipt))
}

// Deactivate handles POST /api/v1/cards/:owner/:card_id/deactivate.
func (h *CardHandler) Deactivate(c *gin.Context) {
	ref, ok := cardRef(c)
	if !ok {
		return
	}

	receipt, err := h.cardSvc.Deactivate(c.Request.Context(), ref)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toReceiptResponse(receipt))
}

// Withdraw handles POST /api/v1/cards/:owner/:card_id/withdraw.
func (h *CardHandler) Withdraw(c *gin.Context) {
	ref, ok := cardRef(c)
	if !ok {
		return
	}

	receipt, err := h.cardSvc.Withdraw(c.Request.Context(), ref)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toReceiptResponse(receipt))
}

// Get handles GET /api/v1/cards/:owner/:card_id.
func (h *CardHandler) Get(c *gin.Context) {
	owner, err := domain.ParseIdentity(c.Param("owner"))
	if err != nil {
		response.Error(c, apperror.ErrInvalidIdentity("owner"))
		return
	}

	card, err := h.cardSvc.GetCard(c.Request.Context(), owner, c.Param("card_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewCardResponse(card))
}

// List handles GET /api/v1/cards. It returns the session subject's cards.
func (h *CardHandler) List(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	cards, err := h.cardSvc.ListCards(c.Request.Context(), caller)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.CardResponse, 0, len(cards))
	for i := range cards {
		items = append(items, dto.NewCardResponse(&cards[i]))
	}
	response.OK(c, dto.CardListResponse{Items: items, Total: len(items)})
}

// cardRef builds the target card reference from the path and the signer.
// It writes the error response itself when it returns false.
func cardRef(c *gin.Context) (ports.CardRef, bool) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrMissingCredentials())
		return ports.CardRef{}, false
	}

	owner, err := domain.ParseIdentity(c.Param("owner"))
	if err != nil {
		response.Error(c, apperror.ErrInvalidIdentity("owner"))
		return ports.CardRef{}, false
	}

	return ports.CardRef{
		Caller: caller,
		Owner:  owner,
		CardID: c.Param("card_id"),
	}, true
}

func toReceiptResponse(r *ports.Receipt) dto.ReceiptResponse {
	resp := dto.ReceiptResponse{Card: dto.NewCardResponse(r.Card)}
	if r.Event != nil {
		ev := dto.NewEventResponse(r.Event)
		resp.Event = &ev
	}
	return resp
}
