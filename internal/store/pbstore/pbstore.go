// Package pbstore implements store.Store on PocketBase collections.
//
// The uniqueness guarantees come from the indexes created by the migrations
// package; conditional updates and recounts run as single SQL statements.
package pbstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"raffle-system/internal/store"
	"raffle-system/models"
)

const (
	collectionRaffles      = "raffles"
	collectionSales        = "sales"
	collectionSavedTickets = "saved_tickets"
)

type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) CreateRaffle(ctx context.Context, raffle *models.Raffle) error {
	collection, err := s.app.FindCachedCollectionByNameOrId(collectionRaffles)
	if err != nil {
		return fmt.Errorf("pbstore: raffles collection: %w", err)
	}

	record := core.NewRecord(collection)
	if raffle.ID != "" {
		record.Set("id", raffle.ID)
	}
	record.Set("title", raffle.Title)
	record.Set("description", raffle.Description)
	record.Set("prize", raffle.Prize)
	record.Set("status", string(raffle.Status))
	record.Set("price_per_ticket", raffle.PricePerTicket.InexactFloat64())
	record.Set("total_tickets", raffle.TotalTickets)
	record.Set("tickets_sold", raffle.TicketsSold)
	record.Set("created_at", raffle.CreatedAt)
	if raffle.Winner != nil {
		record.Set("winner", raffle.Winner)
	}
	if raffle.DrawDate != nil {
		record.Set("draw_date", *raffle.DrawDate)
	}

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("pbstore: create raffle: %w", err)
	}
	raffle.ID = record.Id
	return nil
}

func (s *Store) ListRaffles(ctx context.Context) ([]*models.Raffle, error) {
	records := []*core.Record{}
	err := s.app.RecordQuery(collectionRaffles).
		WithContext(ctx).
		OrderBy("created_at DESC").
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("pbstore: list raffles: %w", err)
	}

	raffles := make([]*models.Raffle, 0, len(records))
	for _, r := range records {
		raffle, err := raffleFromRecord(r)
		if err != nil {
			return nil, err
		}
		raffles = append(raffles, raffle)
	}
	return raffles, nil
}

func (s *Store) FindRaffleByID(ctx context.Context, id string) (*models.Raffle, error) {
	record, err := s.findOne(ctx, collectionRaffles, dbx.HashExp{"id": id})
	if err != nil {
		return nil, err
	}
	return raffleFromRecord(record)
}

func (s *Store) ListOccupiedTicketNumbers(ctx context.Context, raffleID string) ([]int, error) {
	numbers := []int{}
	err := s.app.DB().
		Select("ticket_number").
		From(collectionSales).
		Where(dbx.HashExp{"raffle": raffleID}).
		WithContext(ctx).
		Column(&numbers)
	if err != nil {
		return nil, fmt.Errorf("pbstore: list occupied tickets: %w", err)
	}
	return numbers, nil
}

func (s *Store) InsertSale(ctx context.Context, sale *models.Sale) error {
	collection, err := s.app.FindCachedCollectionByNameOrId(collectionSales)
	if err != nil {
		return fmt.Errorf("pbstore: sales collection: %w", err)
	}

	if _, err := s.findOne(ctx, collectionRaffles, dbx.HashExp{"id": sale.RaffleID}); err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("raffle", sale.RaffleID)
	record.Set("name", sale.Name)
	record.Set("email", sale.Email)
	record.Set("phone", sale.Phone)
	record.Set("ticket_number", sale.TicketNumber)
	record.Set("code", sale.Code)
	record.Set("payment_method", sale.PaymentMethod)
	record.Set("registered_by", sale.RegisteredBy)
	record.Set("bought_at", sale.BoughtAt)

	err = s.app.SaveWithContext(ctx, record)
	if err == nil {
		sale.ID = record.Id
		return nil
	}

	field := uniqueViolationField(err)
	switch field {
	case "":
		return fmt.Errorf("pbstore: insert sale: %w", err)
	case store.FieldCode:
		// the ticket conflict wins when both constraints collide
		taken, lookupErr := s.ticketTaken(ctx, sale.RaffleID, sale.TicketNumber)
		if lookupErr == nil && taken {
			field = store.FieldTicketNumber
		}
	}
	return &store.ConflictError{Field: field, Err: err}
}

func (s *Store) ticketTaken(ctx context.Context, raffleID string, number int) (bool, error) {
	var n int
	err := s.app.DB().
		Select("COUNT(*)").
		From(collectionSales).
		Where(dbx.HashExp{"raffle": raffleID, "ticket_number": number}).
		WithContext(ctx).
		Row(&n)
	return n > 0, err
}

func (s *Store) RecountSoldCount(ctx context.Context, raffleID string) (int, error) {
	var sold int
	err := s.app.RunInTransaction(func(tx core.App) error {
		res, err := tx.DB().NewQuery(
			"UPDATE {{raffles}} SET [[tickets_sold]] = " +
				"(SELECT COUNT(*) FROM {{sales}} WHERE [[raffle]] = {:id}) " +
				"WHERE [[id]] = {:id}",
		).Bind(dbx.Params{"id": raffleID}).WithContext(ctx).Execute()
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrNotFound
		}
		return tx.DB().
			Select("tickets_sold").
			From(collectionRaffles).
			Where(dbx.HashExp{"id": raffleID}).
			WithContext(ctx).
			Row(&sold)
	})
	if errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("pbstore: recount sold: %w", err)
	}
	return sold, nil
}

func (s *Store) UpdateRaffleIfStatus(ctx context.Context, raffleID string, expected models.RaffleStatus, patch models.RafflePatch) (bool, error) {
	params := dbx.Params{}
	if patch.Status != nil {
		params["status"] = string(*patch.Status)
	}
	if patch.Winner != nil {
		w, err := json.Marshal(patch.Winner)
		if err != nil {
			return false, err
		}
		params["winner"] = string(w)
	}
	if patch.DrawDate != nil {
		params["draw_date"] = formatDate(*patch.DrawDate)
	}
	if len(params) == 0 {
		return false, nil
	}

	res, err := s.app.DB().
		Update(collectionRaffles, params, dbx.HashExp{"id": raffleID, "status": string(expected)}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, fmt.Errorf("pbstore: update raffle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pbstore: update raffle: %w", err)
	}
	return n == 1, nil
}

func (s *Store) ListSales(ctx context.Context, raffleID string) ([]*models.Sale, error) {
	records := []*core.Record{}
	err := s.app.RecordQuery(collectionSales).
		WithContext(ctx).
		AndWhere(dbx.HashExp{"raffle": raffleID}).
		OrderBy("ticket_number ASC").
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("pbstore: list sales: %w", err)
	}

	sales := make([]*models.Sale, 0, len(records))
	for _, r := range records {
		sales = append(sales, saleFromRecord(r))
	}
	return sales, nil
}

func (s *Store) FindSaleByCode(ctx context.Context, code string) (*models.Sale, error) {
	record, err := s.findOne(ctx, collectionSales, dbx.HashExp{"code": code})
	if err != nil {
		return nil, err
	}
	return saleFromRecord(record), nil
}

func (s *Store) SaveTicket(ctx context.Context, ticket *models.SavedTicket) error {
	collection, err := s.app.FindCachedCollectionByNameOrId(collectionSavedTickets)
	if err != nil {
		return fmt.Errorf("pbstore: saved tickets collection: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("owner_key", ticket.OwnerKey)
	record.Set("code", ticket.Code)
	record.Set("ticket_number", ticket.TicketNumber)
	record.Set("raffle", ticket.RaffleID)
	record.Set("raffle_title", ticket.RaffleTitle)
	record.Set("name", ticket.Name)
	record.Set("email", ticket.Email)
	record.Set("phone", ticket.Phone)
	record.Set("bought_at", ticket.BoughtAt)
	record.Set("saved_at", ticket.SavedAt)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		if uniqueViolationField(err) != "" {
			return &store.ConflictError{Field: store.FieldOwnerCode, Err: err}
		}
		return fmt.Errorf("pbstore: save ticket: %w", err)
	}
	ticket.ID = record.Id
	return nil
}

func (s *Store) ListSavedTickets(ctx context.Context, ownerKey string) ([]*models.SavedTicket, error) {
	records := []*core.Record{}
	err := s.app.RecordQuery(collectionSavedTickets).
		WithContext(ctx).
		AndWhere(dbx.HashExp{"owner_key": ownerKey}).
		OrderBy("saved_at DESC").
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("pbstore: list saved tickets: %w", err)
	}

	tickets := make([]*models.SavedTicket, 0, len(records))
	for _, r := range records {
		tickets = append(tickets, &models.SavedTicket{
			ID:           r.Id,
			OwnerKey:     r.GetString("owner_key"),
			Code:         r.GetString("code"),
			TicketNumber: r.GetInt("ticket_number"),
			RaffleID:     r.GetString("raffle"),
			RaffleTitle:  r.GetString("raffle_title"),
			Name:         r.GetString("name"),
			Email:        r.GetString("email"),
			Phone:        r.GetString("phone"),
			BoughtAt:     r.GetDateTime("bought_at").Time(),
			SavedAt:      r.GetDateTime("saved_at").Time(),
		})
	}
	return tickets, nil
}

func (s *Store) DeleteSavedTicket(ctx context.Context, ownerKey, code string) (bool, error) {
	res, err := s.app.DB().
		Delete(collectionSavedTickets, dbx.HashExp{"owner_key": ownerKey, "code": code}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return false, fmt.Errorf("pbstore: delete saved ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pbstore: delete saved ticket: %w", err)
	}
	return n > 0, nil
}

func (s *Store) findOne(ctx context.Context, collection string, where dbx.Expression) (*core.Record, error) {
	record := &core.Record{}
	err := s.app.RecordQuery(collection).
		WithContext(ctx).
		AndWhere(where).
		Limit(1).
		One(record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pbstore: find %s: %w", collection, err)
	}
	return record, nil
}

func raffleFromRecord(r *core.Record) (*models.Raffle, error) {
	raffle := &models.Raffle{
		ID:             r.Id,
		Title:          r.GetString("title"),
		Description:    r.GetString("description"),
		Prize:          r.GetString("prize"),
		Status:         models.RaffleStatus(r.GetString("status")),
		PricePerTicket: decimal.NewFromFloat(r.GetFloat("price_per_ticket")),
		TotalTickets:   r.GetInt("total_tickets"),
		TicketsSold:    r.GetInt("tickets_sold"),
		CreatedAt:      r.GetDateTime("created_at").Time(),
	}

	if raw, ok := r.Get("winner").(types.JSONRaw); ok && len(raw) > 0 && string(raw) != "null" {
		var winner models.Winner
		if err := json.Unmarshal(raw, &winner); err != nil {
			return nil, fmt.Errorf("pbstore: bad winner on raffle %s: %w", r.Id, err)
		}
		raffle.Winner = &winner
	}
	if d := r.GetDateTime("draw_date"); !d.IsZero() {
		drawDate := d.Time()
		raffle.DrawDate = &drawDate
	}
	return raffle, nil
}

func saleFromRecord(r *core.Record) *models.Sale {
	return &models.Sale{
		ID:            r.Id,
		RaffleID:      r.GetString("raffle"),
		Name:          r.GetString("name"),
		Email:         r.GetString("email"),
		Phone:         r.GetString("phone"),
		TicketNumber:  r.GetInt("ticket_number"),
		Code:          r.GetString("code"),
		PaymentMethod: r.GetString("payment_method"),
		RegisteredBy:  r.GetString("registered_by"),
		BoughtAt:      r.GetDateTime("bought_at").Time(),
	}
}

// formatDate renders t the way PocketBase stores date fields.
func formatDate(t time.Time) string {
	d, _ := types.ParseDateTime(t)
	return d.String()
}
