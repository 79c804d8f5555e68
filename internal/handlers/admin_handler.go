package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"

	"raffle-system/internal/services"
)

type AdminHandler struct {
	raffleService *services.RaffleService
}

func NewAdminHandler(raffleService *services.RaffleService) *AdminHandler {
	return &AdminHandler{raffleService: raffleService}
}

// GetRaffleSales - every sale of a raffle, ordered by ticket number
func (h *AdminHandler) GetRaffleSales(e *core.RequestEvent) error {
	sales, err := h.raffleService.ListSales(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"sales": sales,
		"count": len(sales),
	})
}
