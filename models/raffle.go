package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// PoolSize is the number of tickets every raffle sells (0000-9999).
	PoolSize = 10000

	MinTicketNumber = 0
	MaxTicketNumber = PoolSize - 1

	// TicketDigits is the rendered width of a ticket number.
	TicketDigits = 4

	DefaultPaymentMethod = "WhatsApp"
	RegisteredByPublic   = "public"
)

// TicketPrice is the fixed price of one ticket, in COP.
var TicketPrice = decimal.NewFromInt(40000)

type RaffleStatus string

const (
	RaffleActive    RaffleStatus = "active"
	RaffleCompleted RaffleStatus = "completed"
	RaffleCancelled RaffleStatus = "cancelled"
)

func (s RaffleStatus) Valid() bool {
	switch s {
	case RaffleActive, RaffleCompleted, RaffleCancelled:
		return true
	}
	return false
}

// Winner is the snapshot of the drawn sale stored on the raffle.
type Winner struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Code         string `json:"code"`
	TicketNumber int    `json:"ticketNumber"`
}

type Raffle struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Prize          string          `json:"prize"`
	Status         RaffleStatus    `json:"status"`
	PricePerTicket decimal.Decimal `json:"pricePerTicket"`
	TotalTickets   int             `json:"totalTickets"`
	TicketsSold    int             `json:"ticketsSold"` // cache of the sale count, reconciled after each sale
	Winner         *Winner         `json:"winner"`
	DrawDate       *time.Time      `json:"drawDate"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// AcceptsSales reports whether the raffle is still selling tickets.
func (r *Raffle) AcceptsSales() bool {
	return r.Status == RaffleActive
}

// Sale is one committed ticket purchase. Sales are never updated.
type Sale struct {
	ID            string    `json:"id"`
	RaffleID      string    `json:"raffleId"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	TicketNumber  int       `json:"ticketNumber"`
	Code          string    `json:"code"`
	PaymentMethod string    `json:"paymentMethod"`
	RegisteredBy  string    `json:"registeredBy"`
	BoughtAt      time.Time `json:"boughtAt"`
}

// SavedTicket is a buyer-side bookmark of a sale, keyed by the hash of the
// buyer's secret.
type SavedTicket struct {
	ID           string    `json:"id"`
	OwnerKey     string    `json:"-"`
	Code         string    `json:"code"`
	TicketNumber int       `json:"ticketNumber"`
	RaffleID     string    `json:"raffleId"`
	RaffleTitle  string    `json:"raffleTitle"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	BoughtAt     time.Time `json:"boughtAt"`
	SavedAt      time.Time `json:"savedAt"`
}

// RafflePatch lists the raffle fields a conditional update may change.
// Nil fields are left untouched.
type RafflePatch struct {
	Status   *RaffleStatus
	Winner   *Winner
	DrawDate *time.Time
}

// Apply copies the non-nil patch fields onto r.
func (p RafflePatch) Apply(r *Raffle) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Winner != nil {
		w := *p.Winner
		r.Winner = &w
	}
	if p.DrawDate != nil {
		d := *p.DrawDate
		r.DrawDate = &d
	}
}
