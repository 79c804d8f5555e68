package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"raffle-system/internal/services"
)

// TicketHandler serves buyer-side lookups. Saved tickets are scoped by the
// secret sent in the X-User-Secret header.
type TicketHandler struct {
	raffleService *services.RaffleService
}

func NewTicketHandler(raffleService *services.RaffleService) *TicketHandler {
	return &TicketHandler{raffleService: raffleService}
}

func (h *TicketHandler) TrackTicket(e *core.RequestEvent) error {
	tracked, err := h.raffleService.TrackTicket(e.Request.Context(), e.Request.PathValue("code"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, tracked)
}

func (h *TicketHandler) SaveTicket(e *core.RequestEvent) error {
	var req struct {
		Code       string `json:"code"`
		UserSecret string `json:"userSecret"`
		Email      string `json:"email"`
		Phone      string `json:"phone"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	ticket, created, err := h.raffleService.SaveTicket(
		e.Request.Context(),
		ownerSecret(e, req.UserSecret),
		req.Code,
		req.Email,
		req.Phone,
	)
	if err != nil {
		return respondError(e, err)
	}

	message := "Ticket saved"
	if !created {
		message = "Ticket already saved"
	}
	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": message,
		"ticket":  ticket,
	})
}

func (h *TicketHandler) MyTickets(e *core.RequestEvent) error {
	tickets, err := h.raffleService.MyTickets(e.Request.Context(), ownerSecret(e, ""))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"tickets": tickets,
		"count":   len(tickets),
	})
}

func (h *TicketHandler) RemoveSavedTicket(e *core.RequestEvent) error {
	err := h.raffleService.RemoveSavedTicket(e.Request.Context(), ownerSecret(e, ""), e.Request.PathValue("code"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "Saved ticket removed",
	})
}
