// Package redisstore implements store.Store on a single Redis node.
//
// Layout:
//
//	raffle:{id}           hash of raffle fields
//	raffles               sorted set of raffle ids by creation time
//	raffle:{id}:tickets   hash ticket number -> tracking code
//	sale:{code}           sale json
//	saved:{owner}         hash code -> saved ticket json
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"raffle-system/internal/store"
	"raffle-system/models"
)

const rafflesKey = "raffles"

func raffleKey(id string) string { return fmt.Sprintf("raffle:%s", id) }

func ticketsKey(id string) string { return fmt.Sprintf("raffle:%s:tickets", id) }

func saleKey(code string) string { return fmt.Sprintf("sale:%s", code) }

func savedKey(owner string) string { return fmt.Sprintf("saved:%s", owner) }

type Store struct {
	rdb   *redis.Client
	newID func() string
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, newID: uuid.NewString}
}

func (s *Store) CreateRaffle(ctx context.Context, raffle *models.Raffle) error {
	if raffle.ID == "" {
		raffle.ID = s.newID()
	}
	fields, err := raffleFields(raffle)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, raffleKey(raffle.ID), fields...)
		pipe.ZAdd(ctx, rafflesKey, redis.Z{
			Score:  float64(raffle.CreatedAt.UnixMilli()),
			Member: raffle.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: create raffle: %w", err)
	}
	return nil
}

func (s *Store) ListRaffles(ctx context.Context) ([]*models.Raffle, error) {
	ids, err := s.rdb.ZRevRange(ctx, rafflesKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list raffles: %w", err)
	}

	raffles := make([]*models.Raffle, 0, len(ids))
	for _, id := range ids {
		r, err := s.FindRaffleByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		raffles = append(raffles, r)
	}
	return raffles, nil
}

func (s *Store) FindRaffleByID(ctx context.Context, id string) (*models.Raffle, error) {
	data, err := s.rdb.HGetAll(ctx, raffleKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: find raffle: %w", err)
	}
	if len(data) == 0 {
		return nil, store.ErrNotFound
	}
	return parseRaffle(data)
}

func (s *Store) ListOccupiedTicketNumbers(ctx context.Context, raffleID string) ([]int, error) {
	keys, err := s.rdb.HKeys(ctx, ticketsKey(raffleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list occupied tickets: %w", err)
	}

	numbers := make([]int, 0, len(keys))
	for _, k := range keys {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("redisstore: bad ticket field %q: %w", k, err)
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}

func (s *Store) InsertSale(ctx context.Context, sale *models.Sale) error {
	stored := *sale
	stored.ID = s.newID()
	payload, err := json.Marshal(&stored)
	if err != nil {
		return err
	}

	res, err := s.rdb.Eval(ctx, insertSaleScript,
		[]string{raffleKey(sale.RaffleID), ticketsKey(sale.RaffleID), saleKey(sale.Code)},
		strconv.Itoa(sale.TicketNumber), sale.Code, string(payload),
	).Int()
	if err != nil {
		return fmt.Errorf("redisstore: insert sale: %w", err)
	}

	switch res {
	case 0:
		sale.ID = stored.ID
		return nil
	case 1:
		return &store.ConflictError{Field: store.FieldTicketNumber}
	case 2:
		return &store.ConflictError{Field: store.FieldCode}
	case -1:
		return store.ErrNotFound
	}
	return fmt.Errorf("redisstore: insert sale: unexpected result %d", res)
}

func (s *Store) RecountSoldCount(ctx context.Context, raffleID string) (int, error) {
	n, err := s.rdb.Eval(ctx, recountScript,
		[]string{raffleKey(raffleID), ticketsKey(raffleID)},
	).Int()
	if err != nil {
		return 0, fmt.Errorf("redisstore: recount sold: %w", err)
	}
	if n < 0 {
		return 0, store.ErrNotFound
	}
	return n, nil
}

func (s *Store) UpdateRaffleIfStatus(ctx context.Context, raffleID string, expected models.RaffleStatus, patch models.RafflePatch) (bool, error) {
	args := []any{string(expected)}
	if patch.Status != nil {
		args = append(args, "status", string(*patch.Status))
	}
	if patch.Winner != nil {
		w, err := json.Marshal(patch.Winner)
		if err != nil {
			return false, err
		}
		args = append(args, "winner", string(w))
	}
	if patch.DrawDate != nil {
		args = append(args, "draw_date", formatTime(*patch.DrawDate))
	}
	if len(args) == 1 {
		return false, nil
	}

	applied, err := s.rdb.Eval(ctx, compareAndSetScript, []string{raffleKey(raffleID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("redisstore: update raffle: %w", err)
	}
	return applied == 1, nil
}

func (s *Store) ListSales(ctx context.Context, raffleID string) ([]*models.Sale, error) {
	codes, err := s.rdb.HVals(ctx, ticketsKey(raffleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list sales: %w", err)
	}
	if len(codes) == 0 {
		return []*models.Sale{}, nil
	}

	keys := make([]string, len(codes))
	for i, c := range codes {
		keys[i] = saleKey(c)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list sales: %w", err)
	}

	sales := make([]*models.Sale, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var sale models.Sale
		if err := json.Unmarshal([]byte(raw), &sale); err != nil {
			return nil, fmt.Errorf("redisstore: decode sale: %w", err)
		}
		sales = append(sales, &sale)
	}
	sort.Slice(sales, func(i, j int) bool {
		return sales[i].TicketNumber < sales[j].TicketNumber
	})
	return sales, nil
}

func (s *Store) FindSaleByCode(ctx context.Context, code string) (*models.Sale, error) {
	raw, err := s.rdb.Get(ctx, saleKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: find sale: %w", err)
	}

	var sale models.Sale
	if err := json.Unmarshal([]byte(raw), &sale); err != nil {
		return nil, fmt.Errorf("redisstore: decode sale: %w", err)
	}
	return &sale, nil
}

// savedTicketRecord keeps the owner key, which models.SavedTicket hides from json.
type savedTicketRecord struct {
	models.SavedTicket
	OwnerKey string `json:"ownerKey"`
}

func (s *Store) SaveTicket(ctx context.Context, ticket *models.SavedTicket) error {
	record := savedTicketRecord{SavedTicket: *ticket, OwnerKey: ticket.OwnerKey}
	record.ID = s.newID()
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	created, err := s.rdb.HSetNX(ctx, savedKey(ticket.OwnerKey), ticket.Code, string(payload)).Result()
	if err != nil {
		return fmt.Errorf("redisstore: save ticket: %w", err)
	}
	if !created {
		return &store.ConflictError{Field: store.FieldOwnerCode}
	}
	ticket.ID = record.ID
	return nil
}

func (s *Store) ListSavedTickets(ctx context.Context, ownerKey string) ([]*models.SavedTicket, error) {
	values, err := s.rdb.HVals(ctx, savedKey(ownerKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list saved tickets: %w", err)
	}

	tickets := make([]*models.SavedTicket, 0, len(values))
	for _, raw := range values {
		var record savedTicketRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("redisstore: decode saved ticket: %w", err)
		}
		t := record.SavedTicket
		t.OwnerKey = record.OwnerKey
		tickets = append(tickets, &t)
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].SavedAt.After(tickets[j].SavedAt)
	})
	return tickets, nil
}

func (s *Store) DeleteSavedTicket(ctx context.Context, ownerKey, code string) (bool, error) {
	n, err := s.rdb.HDel(ctx, savedKey(ownerKey), code).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: delete saved ticket: %w", err)
	}
	return n > 0, nil
}

func raffleFields(r *models.Raffle) ([]any, error) {
	winner := ""
	if r.Winner != nil {
		w, err := json.Marshal(r.Winner)
		if err != nil {
			return nil, err
		}
		winner = string(w)
	}
	drawDate := ""
	if r.DrawDate != nil {
		drawDate = formatTime(*r.DrawDate)
	}

	return []any{
		"id", r.ID,
		"title", r.Title,
		"description", r.Description,
		"prize", r.Prize,
		"status", string(r.Status),
		"price_per_ticket", r.PricePerTicket.String(),
		"total_tickets", strconv.Itoa(r.TotalTickets),
		"tickets_sold", strconv.Itoa(r.TicketsSold),
		"winner", winner,
		"draw_date", drawDate,
		"created_at", formatTime(r.CreatedAt),
	}, nil
}

func parseRaffle(data map[string]string) (*models.Raffle, error) {
	r := &models.Raffle{
		ID:          data["id"],
		Title:       data["title"],
		Description: data["description"],
		Prize:       data["prize"],
		Status:      models.RaffleStatus(data["status"]),
	}

	var err error
	if r.PricePerTicket, err = decimal.NewFromString(data["price_per_ticket"]); err != nil {
		return nil, fmt.Errorf("redisstore: bad price: %w", err)
	}
	if r.TotalTickets, err = strconv.Atoi(data["total_tickets"]); err != nil {
		return nil, fmt.Errorf("redisstore: bad total tickets: %w", err)
	}
	if r.TicketsSold, err = strconv.Atoi(data["tickets_sold"]); err != nil {
		return nil, fmt.Errorf("redisstore: bad sold count: %w", err)
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, data["created_at"]); err != nil {
		return nil, fmt.Errorf("redisstore: bad created at: %w", err)
	}
	if w := data["winner"]; w != "" {
		var winner models.Winner
		if err := json.Unmarshal([]byte(w), &winner); err != nil {
			return nil, fmt.Errorf("redisstore: bad winner: %w", err)
		}
		r.Winner = &winner
	}
	if d := data["draw_date"]; d != "" {
		drawDate, err := time.Parse(time.RFC3339Nano, d)
		if err != nil {
			return nil, fmt.Errorf("redisstore: bad draw date: %w", err)
		}
		r.DrawDate = &drawDate
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
