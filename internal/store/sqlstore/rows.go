package sqlstore

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"raffle-system/models"
)

// Unique index names, matched against postgres constraint names.
const (
	indexSaleTicket  = "idx_sales_raffle_ticket"
	indexSaleCode    = "idx_sales_code"
	indexSavedTicket = "idx_saved_tickets_owner_code"
)

type raffleRow struct {
	ID             string          `gorm:"primaryKey;size:36"`
	Title          string          `gorm:"size:200;not null"`
	Description    string          `gorm:"type:text"`
	Prize          string          `gorm:"size:200"`
	Status         string          `gorm:"size:16;not null;index"`
	PricePerTicket decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	TotalTickets   int             `gorm:"not null"`
	TicketsSold    int             `gorm:"not null;default:0"`
	Winner         datatypes.JSON
	DrawDate       *time.Time
	CreatedAt      time.Time `gorm:"not null;index"`
}

func (raffleRow) TableName() string { return "raffles" }

type saleRow struct {
	ID            string    `gorm:"primaryKey;size:36"`
	RaffleID      string    `gorm:"size:36;not null;uniqueIndex:idx_sales_raffle_ticket,priority:1"`
	TicketNumber  int       `gorm:"not null;uniqueIndex:idx_sales_raffle_ticket,priority:2"`
	Code          string    `gorm:"size:6;not null;uniqueIndex:idx_sales_code"`
	Name          string    `gorm:"size:200;not null"`
	Email         string    `gorm:"size:254;not null"`
	Phone         string    `gorm:"size:40"`
	PaymentMethod string    `gorm:"size:60;not null"`
	RegisteredBy  string    `gorm:"size:254;not null"`
	BoughtAt      time.Time `gorm:"not null"`
}

func (saleRow) TableName() string { return "sales" }

type savedTicketRow struct {
	ID           string    `gorm:"primaryKey;size:36"`
	OwnerKey     string    `gorm:"size:64;not null;uniqueIndex:idx_saved_tickets_owner_code,priority:1"`
	Code         string    `gorm:"size:6;not null;uniqueIndex:idx_saved_tickets_owner_code,priority:2"`
	TicketNumber int       `gorm:"not null"`
	RaffleID     string    `gorm:"size:36;not null"`
	RaffleTitle  string    `gorm:"size:200"`
	Name         string    `gorm:"size:200"`
	Email        string    `gorm:"size:254"`
	Phone        string    `gorm:"size:40"`
	BoughtAt     time.Time `gorm:"not null"`
	SavedAt      time.Time `gorm:"not null;index"`
}

func (savedTicketRow) TableName() string { return "saved_tickets" }

func raffleToRow(r *models.Raffle) (*raffleRow, error) {
	row := &raffleRow{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		Prize:          r.Prize,
		Status:         string(r.Status),
		PricePerTicket: r.PricePerTicket,
		TotalTickets:   r.TotalTickets,
		TicketsSold:    r.TicketsSold,
		DrawDate:       r.DrawDate,
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if r.Winner != nil {
		w, err := json.Marshal(r.Winner)
		if err != nil {
			return nil, err
		}
		row.Winner = datatypes.JSON(w)
	}
	return row, nil
}

func (row *raffleRow) toModel() (*models.Raffle, error) {
	r := &models.Raffle{
		ID:             row.ID,
		Title:          row.Title,
		Description:    row.Description,
		Prize:          row.Prize,
		Status:         models.RaffleStatus(row.Status),
		PricePerTicket: row.PricePerTicket,
		TotalTickets:   row.TotalTickets,
		TicketsSold:    row.TicketsSold,
		DrawDate:       row.DrawDate,
		CreatedAt:      row.CreatedAt,
	}
	if len(row.Winner) > 0 && string(row.Winner) != "null" {
		var w models.Winner
		if err := json.Unmarshal(row.Winner, &w); err != nil {
			return nil, err
		}
		r.Winner = &w
	}
	return r, nil
}

func saleToRow(s *models.Sale) *saleRow {
	return &saleRow{
		ID:            s.ID,
		RaffleID:      s.RaffleID,
		TicketNumber:  s.TicketNumber,
		Code:          s.Code,
		Name:          s.Name,
		Email:         s.Email,
		Phone:         s.Phone,
		PaymentMethod: s.PaymentMethod,
		RegisteredBy:  s.RegisteredBy,
		BoughtAt:      s.BoughtAt.UTC(),
	}
}

func (row *saleRow) toModel() *models.Sale {
	return &models.Sale{
		ID:            row.ID,
		RaffleID:      row.RaffleID,
		Name:          row.Name,
		Email:         row.Email,
		Phone:         row.Phone,
		TicketNumber:  row.TicketNumber,
		Code:          row.Code,
		PaymentMethod: row.PaymentMethod,
		RegisteredBy:  row.RegisteredBy,
		BoughtAt:      row.BoughtAt,
	}
}

func savedToRow(t *models.SavedTicket) *savedTicketRow {
	return &savedTicketRow{
		ID:           t.ID,
		OwnerKey:     t.OwnerKey,
		Code:         t.Code,
		TicketNumber: t.TicketNumber,
		RaffleID:     t.RaffleID,
		RaffleTitle:  t.RaffleTitle,
		Name:         t.Name,
		Email:        t.Email,
		Phone:        t.Phone,
		BoughtAt:     t.BoughtAt.UTC(),
		SavedAt:      t.SavedAt.UTC(),
	}
}

func (row *savedTicketRow) toModel() *models.SavedTicket {
	return &models.SavedTicket{
		ID:           row.ID,
		OwnerKey:     row.OwnerKey,
		Code:         row.Code,
		TicketNumber: row.TicketNumber,
		RaffleID:     row.RaffleID,
		RaffleTitle:  row.RaffleTitle,
		Name:         row.Name,
		Email:        row.Email,
		Phone:        row.Phone,
		BoughtAt:     row.BoughtAt,
		SavedAt:      row.SavedAt,
	}
}
