// Package memory implements store.Store with in-process maps.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"raffle-system/internal/store"
	"raffle-system/models"
)

type Store struct {
	mu      sync.RWMutex
	raffles map[string]*models.Raffle
	// tickets maps raffle id -> ticket number -> sale.
	tickets map[string]map[int]*models.Sale
	codes   map[string]*models.Sale
	// saved maps owner key -> code -> saved ticket.
	saved map[string]map[string]*models.SavedTicket
}

func New() *Store {
	return &Store{
		raffles: make(map[string]*models.Raffle),
		tickets: make(map[string]map[int]*models.Sale),
		codes:   make(map[string]*models.Sale),
		saved:   make(map[string]map[string]*models.SavedTicket),
	}
}

func (s *Store) CreateRaffle(ctx context.Context, raffle *models.Raffle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if raffle.ID == "" {
		raffle.ID = uuid.NewString()
	}
	s.raffles[raffle.ID] = copyRaffle(raffle)
	s.tickets[raffle.ID] = make(map[int]*models.Sale)
	return nil
}

func (s *Store) ListRaffles(ctx context.Context) ([]*models.Raffle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raffles := make([]*models.Raffle, 0, len(s.raffles))
	for _, r := range s.raffles {
		raffles = append(raffles, copyRaffle(r))
	}
	sort.Slice(raffles, func(i, j int) bool {
		return raffles[i].CreatedAt.After(raffles[j].CreatedAt)
	})
	return raffles, nil
}

func (s *Store) FindRaffleByID(ctx context.Context, id string) (*models.Raffle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.raffles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyRaffle(r), nil
}

func (s *Store) ListOccupiedTicketNumbers(ctx context.Context, raffleID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	numbers := make([]int, 0, len(s.tickets[raffleID]))
	for n := range s.tickets[raffleID] {
		numbers = append(numbers, n)
	}
	return numbers, nil
}

func (s *Store) InsertSale(ctx context.Context, sale *models.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.raffles[sale.RaffleID]; !ok {
		return store.ErrNotFound
	}
	if _, taken := s.tickets[sale.RaffleID][sale.TicketNumber]; taken {
		return &store.ConflictError{Field: store.FieldTicketNumber}
	}
	if _, taken := s.codes[sale.Code]; taken {
		return &store.ConflictError{Field: store.FieldCode}
	}

	sale.ID = uuid.NewString()
	stored := *sale
	s.tickets[sale.RaffleID][sale.TicketNumber] = &stored
	s.codes[sale.Code] = &stored
	return nil
}

func (s *Store) RecountSoldCount(ctx context.Context, raffleID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raffles[raffleID]
	if !ok {
		return 0, store.ErrNotFound
	}
	r.TicketsSold = len(s.tickets[raffleID])
	return r.TicketsSold, nil
}

func (s *Store) UpdateRaffleIfStatus(ctx context.Context, raffleID string, expected models.RaffleStatus, patch models.RafflePatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.raffles[raffleID]
	if !ok || r.Status != expected {
		return false, nil
	}
	patch.Apply(r)
	return true, nil
}

func (s *Store) ListSales(ctx context.Context, raffleID string) ([]*models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]*models.Sale, 0, len(s.tickets[raffleID]))
	for _, sale := range s.tickets[raffleID] {
		c := *sale
		sales = append(sales, &c)
	}
	sort.Slice(sales, func(i, j int) bool {
		return sales[i].TicketNumber < sales[j].TicketNumber
	})
	return sales, nil
}

func (s *Store) FindSaleByCode(ctx context.Context, code string) (*models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.codes[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *sale
	return &c, nil
}

func (s *Store) SaveTicket(ctx context.Context, ticket *models.SavedTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned := s.saved[ticket.OwnerKey]
	if owned == nil {
		owned = make(map[string]*models.SavedTicket)
		s.saved[ticket.OwnerKey] = owned
	}
	if _, ok := owned[ticket.Code]; ok {
		return &store.ConflictError{Field: store.FieldOwnerCode}
	}

	ticket.ID = uuid.NewString()
	c := *ticket
	owned[ticket.Code] = &c
	return nil
}

func (s *Store) ListSavedTickets(ctx context.Context, ownerKey string) ([]*models.SavedTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tickets := make([]*models.SavedTicket, 0, len(s.saved[ownerKey]))
	for _, t := range s.saved[ownerKey] {
		c := *t
		tickets = append(tickets, &c)
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].SavedAt.After(tickets[j].SavedAt)
	})
	return tickets, nil
}

func (s *Store) DeleteSavedTicket(ctx context.Context, ownerKey, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.saved[ownerKey][code]; !ok {
		return false, nil
	}
	delete(s.saved[ownerKey], code)
	return true, nil
}

func copyRaffle(r *models.Raffle) *models.Raffle {
	c := *r
	if r.Winner != nil {
		w := *r.Winner
		c.Winner = &w
	}
	if r.DrawDate != nil {
		d := *r.DrawDate
		c.DrawDate = &d
	}
	return &c
}
