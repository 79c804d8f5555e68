package handlers

import (
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
)

// Routes mounts the raffle API under /api/v1.
type Routes struct {
	Raffles *RaffleHandler
	Tickets *TicketHandler
	Admin   *AdminHandler

	// PurchaseLimit guards the public purchase route when set.
	PurchaseLimit func(e *core.RequestEvent) error
}

func (r Routes) Register(rt *router.Router[*core.RequestEvent]) {
	v1 := rt.Group("/api/v1")

	// Raffle endpoints
	v1.GET("/raffles", r.Raffles.ListRaffles)
	v1.GET("/raffles/{id}", r.Raffles.GetRaffle)
	v1.POST("/raffles", r.Raffles.CreateRaffle).Bind(apis.RequireSuperuserAuth())
	buy := v1.POST("/raffles/{id}/buy", r.Raffles.BuyTicket)
	if r.PurchaseLimit != nil {
		buy.BindFunc(r.PurchaseLimit)
	}
	v1.POST("/raffles/{id}/register-sale", r.Raffles.RegisterSale).Bind(apis.RequireAuth())
	v1.POST("/raffles/{id}/draw", r.Raffles.DrawWinner).Bind(apis.RequireSuperuserAuth())
	v1.POST("/raffles/{id}/cancel", r.Raffles.CancelRaffle).Bind(apis.RequireSuperuserAuth())

	// Ticket endpoints
	v1.GET("/tickets/my", r.Tickets.MyTickets)
	v1.POST("/tickets/save", r.Tickets.SaveTicket)
	v1.GET("/tickets/{code}", r.Tickets.TrackTicket)
	v1.DELETE("/tickets/{code}", r.Tickets.RemoveSavedTicket)

	// Admin endpoints
	v1.GET("/admin/raffles/{id}/sales", r.Admin.GetRaffleSales).Bind(apis.RequireSuperuserAuth())
}
