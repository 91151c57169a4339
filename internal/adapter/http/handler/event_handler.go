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

// EventHandler serves the ledger event feed.
type EventHandler struct {
	cardSvc ports.CardService
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(cardSvc ports.CardService) *EventHandler {
	return &EventHandler{cardSvc: cardSvc}
}

// List handles GET /api/v1/events?card_address=&after=&limit=. Without a
// card address the feed is scoped to the session subject's cards.
func (h *EventHandler) List(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var q dto.EventListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	params := ports.EventListParams{
		AfterSequence: q.After,
		Limit:         q.Limit,
	}
	if q.CardAddress != "" {
		addr, err := domain.ParseIdentity(q.CardAddress)
		if err != nil {
			response.Error(c, apperror.ErrInvalidIdentity("card_address"))
			return
		}
		params.CardAddress = &addr
	} else {
		params.Owner = &caller
	}

	events, err := h.cardSvc.ListEvents(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewEventListResponse(events, q.After))
}
