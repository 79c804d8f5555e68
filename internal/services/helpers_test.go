package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"raffle-system/internal/store"
	"raffle-system/internal/store/memory"
	"raffle-system/models"
)

// hookedStore wraps a real store and lets a test intercept writes.
type hookedStore struct {
	store.Store

	mu          sync.Mutex
	inserts     int
	beforeWrite func(call int, sale *models.Sale) error
	recountErr  error
	casHook     func() (bool, error)
	saveHook    func(ctx context.Context, ticket *models.SavedTicket) error
}

func (h *hookedStore) InsertSale(ctx context.Context, sale *models.Sale) error {
	h.mu.Lock()
	h.inserts++
	call := h.inserts
	hook := h.beforeWrite
	h.mu.Unlock()

	if hook != nil {
		if err := hook(call, sale); err != nil {
			return err
		}
	}
	return h.Store.InsertSale(ctx, sale)
}

func (h *hookedStore) RecountSoldCount(ctx context.Context, raffleID string) (int, error) {
	if h.recountErr != nil {
		return 0, h.recountErr
	}
	return h.Store.RecountSoldCount(ctx, raffleID)
}

func (h *hookedStore) UpdateRaffleIfStatus(ctx context.Context, raffleID string, expected models.RaffleStatus, patch models.RafflePatch) (bool, error) {
	if h.casHook != nil {
		return h.casHook()
	}
	return h.Store.UpdateRaffleIfStatus(ctx, raffleID, expected, patch)
}

func (h *hookedStore) SaveTicket(ctx context.Context, ticket *models.SavedTicket) error {
	if h.saveHook != nil {
		return h.saveHook(ctx, ticket)
	}
	return h.Store.SaveTicket(ctx, ticket)
}

func (h *hookedStore) insertCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inserts
}

type recordedSale struct {
	origin  string
	outcome string
}

type fakeRecorder struct {
	mu        sync.Mutex
	sales     []recordedSale
	conflicts map[string]int
	sold      map[string]int
	draws     map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		conflicts: make(map[string]int),
		sold:      make(map[string]int),
		draws:     make(map[string]int),
	}
}

func (r *fakeRecorder) ObserveSale(origin, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sales = append(r.sales, recordedSale{origin, outcome})
}

func (r *fakeRecorder) IncSaleConflict(field string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts[field]++
}

func (r *fakeRecorder) SetTicketsSold(raffleID string, sold int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sold[raffleID] = sold
}

func (r *fakeRecorder) IncDraw(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draws[outcome]++
}

type fakeNotifier struct {
	mu      sync.Mutex
	sales   []*models.Sale
	winners []*models.Winner
}

func (n *fakeNotifier) SaleRegistered(_ context.Context, _ *models.Raffle, sale *models.Sale) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sales = append(n.sales, sale)
}

func (n *fakeNotifier) WinnerDrawn(_ context.Context, raffle *models.Raffle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.winners = append(n.winners, raffle.Winner)
}

// sequenceCodes cycles through codes.
func sequenceCodes(codes ...string) (CodeGenerator, func() int) {
	var mu sync.Mutex
	calls := 0
	gen := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[calls%len(codes)]
		calls++
		return c, nil
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return calls
	}
	return gen, count
}

func newActiveRaffle(t *testing.T, st store.Store, title string) *models.Raffle {
	t.Helper()

	raffle := &models.Raffle{
		Title:          title,
		Status:         models.RaffleActive,
		PricePerTicket: models.TicketPrice,
		TotalTickets:   models.PoolSize,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, st.CreateRaffle(context.Background(), raffle))
	return raffle
}

func seedSale(t *testing.T, st store.Store, raffleID string, number int, code string) *models.Sale {
	t.Helper()

	sale := &models.Sale{
		RaffleID:      raffleID,
		Name:          "Seed",
		Email:         "seed@example.com",
		TicketNumber:  number,
		Code:          code,
		PaymentMethod: models.DefaultPaymentMethod,
		RegisteredBy:  models.RegisteredByPublic,
		BoughtAt:      time.Now().UTC(),
	}
	require.NoError(t, st.InsertSale(context.Background(), sale))
	_, err := st.RecountSoldCount(context.Background(), raffleID)
	require.NoError(t, err)
	return sale
}

func newMemoryStore() *memory.Store {
	return memory.New()
}
