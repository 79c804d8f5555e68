package handlers

import (
	"fmt"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"raffle-system/internal/services"
	"raffle-system/models"
)

type RaffleHandler struct {
	raffleService *services.RaffleService
	saleService   *services.SaleService
	drawService   *services.DrawService
}

func NewRaffleHandler(raffleService *services.RaffleService, saleService *services.SaleService, drawService *services.DrawService) *RaffleHandler {
	return &RaffleHandler{
		raffleService: raffleService,
		saleService:   saleService,
		drawService:   drawService,
	}
}

type saleBody struct {
	Name          string            `json:"name"`
	Email         string            `json:"email"`
	Phone         string            `json:"phone"`
	TicketNumber  ticketNumberInput `json:"ticketNumber"`
	PaymentMethod string            `json:"paymentMethod"`
}

func (b saleBody) request() services.SaleRequest {
	return services.SaleRequest{
		Name:          b.Name,
		Email:         b.Email,
		Phone:         b.Phone,
		TicketNumber:  string(b.TicketNumber),
		PaymentMethod: b.PaymentMethod,
	}
}

// ListRaffles - newest first, without participants
func (h *RaffleHandler) ListRaffles(e *core.RequestEvent) error {
	raffles, err := h.raffleService.ListRaffles(e.Request.Context())
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, raffles)
}

func (h *RaffleHandler) GetRaffle(e *core.RequestEvent) error {
	raffle, err := h.raffleService.GetRaffle(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, raffle)
}

func (h *RaffleHandler) CreateRaffle(e *core.RequestEvent) error {
	var req services.RaffleInput
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	raffle, err := h.raffleService.CreateRaffle(e.Request.Context(), req)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusCreated, raffle)
}

// BuyTicket - public purchase
func (h *RaffleHandler) BuyTicket(e *core.RequestEvent) error {
	return h.registerSale(e, models.RegisteredByPublic)
}

// RegisterSale - purchase recorded by an authenticated operator
func (h *RaffleHandler) RegisterSale(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	operator := e.Auth.Email()
	if operator == "" {
		operator = e.Auth.Id
	}
	return h.registerSale(e, operator)
}

func (h *RaffleHandler) registerSale(e *core.RequestEvent, registeredBy string) error {
	var body saleBody
	if err := e.BindBody(&body); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	result, err := h.saleService.RegisterSale(e.Request.Context(), e.Request.PathValue("id"), body.request(), registeredBy)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, result)
}

func (h *RaffleHandler) DrawWinner(e *core.RequestEvent) error {
	raffle, err := h.drawService.DrawWinner(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return respondError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"winner":  raffle.Winner,
		"message": fmt.Sprintf("Congratulations to %s", raffle.Winner.Name),
	})
}

func (h *RaffleHandler) CancelRaffle(e *core.RequestEvent) error {
	raffle, err := h.raffleService.CancelRaffle(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, raffle)
}
