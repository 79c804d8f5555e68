// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-system/internal/store"
	"raffle-system/models"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises st against the storage contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("Raffles", func(t *testing.T) { testRaffles(t, newStore(t)) })
	t.Run("InsertSaleConstraints", func(t *testing.T) { testInsertSaleConstraints(t, newStore(t)) })
	t.Run("RecountSoldCount", func(t *testing.T) { testRecount(t, newStore(t)) })
	t.Run("UpdateRaffleIfStatus", func(t *testing.T) { testCompareAndSwap(t, newStore(t)) })
	t.Run("Sales", func(t *testing.T) { testSales(t, newStore(t)) })
	t.Run("SavedTickets", func(t *testing.T) { testSavedTickets(t, newStore(t)) })
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func NewRaffle(t *testing.T, st store.Store, title string, createdAt time.Time) *models.Raffle {
	t.Helper()

	raffle := &models.Raffle{
		Title:          title,
		Description:    "description of " + title,
		Prize:          "prize of " + title,
		Status:         models.RaffleActive,
		PricePerTicket: models.TicketPrice,
		TotalTickets:   models.PoolSize,
		CreatedAt:      createdAt,
	}
	require.NoError(t, st.CreateRaffle(context.Background(), raffle))
	require.NotEmpty(t, raffle.ID)
	return raffle
}

func NewSale(raffleID string, number int, code string) *models.Sale {
	return &models.Sale{
		RaffleID:      raffleID,
		Name:          "Ana",
		Email:         "ana@example.com",
		Phone:         "3001234567",
		TicketNumber:  number,
		Code:          code,
		PaymentMethod: models.DefaultPaymentMethod,
		RegisteredBy:  models.RegisteredByPublic,
		BoughtAt:      epoch,
	}
}

func testRaffles(t *testing.T, st store.Store) {
	ctx := context.Background()

	first := NewRaffle(t, st, "First", epoch)
	second := NewRaffle(t, st, "Second", epoch.Add(time.Hour))

	got, err := st.FindRaffleByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "First", got.Title)
	assert.Equal(t, "description of First", got.Description)
	assert.Equal(t, "prize of First", got.Prize)
	assert.Equal(t, models.RaffleActive, got.Status)
	assert.True(t, decimal.NewFromInt(40000).Equal(got.PricePerTicket))
	assert.Equal(t, models.PoolSize, got.TotalTickets)
	assert.Zero(t, got.TicketsSold)
	assert.Nil(t, got.Winner)
	assert.Nil(t, got.DrawDate)

	_, err = st.FindRaffleByID(ctx, "does-not-exist")
	assert.ErrorIs(t, err, store.ErrNotFound)

	raffles, err := st.ListRaffles(ctx)
	require.NoError(t, err)
	require.Len(t, raffles, 2)
	assert.Equal(t, second.ID, raffles[0].ID)
	assert.Equal(t, first.ID, raffles[1].ID)
}

func testInsertSaleConstraints(t *testing.T, st store.Store) {
	ctx := context.Background()
	raffle := NewRaffle(t, st, "Constraints", epoch)
	other := NewRaffle(t, st, "Other", epoch)

	sale := NewSale(raffle.ID, 42, "123456")
	require.NoError(t, st.InsertSale(ctx, sale))
	assert.NotEmpty(t, sale.ID)

	// same ticket, new code
	err := st.InsertSale(ctx, NewSale(raffle.ID, 42, "654321"))
	requireConflict(t, err, store.FieldTicketNumber)

	// new ticket, same code in another raffle
	err = st.InsertSale(ctx, NewSale(other.ID, 7, "123456"))
	requireConflict(t, err, store.FieldCode)

	// both collide: the ticket wins
	err = st.InsertSale(ctx, NewSale(raffle.ID, 42, "123456"))
	requireConflict(t, err, store.FieldTicketNumber)

	// same number in another raffle is fine
	require.NoError(t, st.InsertSale(ctx, NewSale(other.ID, 42, "777777")))

	occupied, err := st.ListOccupiedTicketNumbers(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{42}, occupied)

	sales, err := st.ListSales(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	_, err = st.FindSaleByCode(ctx, "654321")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func requireConflict(t *testing.T, err error, field string) {
	t.Helper()

	conflict, ok := store.AsConflict(err)
	require.True(t, ok, "expected a conflict on %s, got %v", field, err)
	assert.Equal(t, field, conflict.Field)
}

func testRecount(t *testing.T, st store.Store) {
	ctx := context.Background()
	raffle := NewRaffle(t, st, "Recount", epoch)

	n, err := st.RecountSoldCount(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i, code := range []string{"100001", "100002", "100003"} {
		require.NoError(t, st.InsertSale(ctx, NewSale(raffle.ID, i, code)))
	}

	n, err = st.RecountSoldCount(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := st.FindRaffleByID(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TicketsSold)

	occupied, err := st.ListOccupiedTicketNumbers(ctx, raffle.ID)
	require.NoError(t, err)
	sort.Ints(occupied)
	assert.Equal(t, []int{0, 1, 2}, occupied)
}

func testCompareAndSwap(t *testing.T, st store.Store) {
	ctx := context.Background()
	raffle := NewRaffle(t, st, "CAS", epoch)

	completed := models.RaffleCompleted
	drawnAt := epoch.Add(24 * time.Hour)
	patch := models.RafflePatch{
		Status:   &completed,
		Winner:   &models.Winner{Name: "Ana", Email: "ana@example.com", Code: "123456", TicketNumber: 42},
		DrawDate: &drawnAt,
	}

	applied, err := st.UpdateRaffleIfStatus(ctx, raffle.ID, models.RaffleCancelled, patch)
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = st.UpdateRaffleIfStatus(ctx, raffle.ID, models.RaffleActive, patch)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = st.UpdateRaffleIfStatus(ctx, raffle.ID, models.RaffleActive, patch)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := st.FindRaffleByID(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RaffleCompleted, got.Status)
	require.NotNil(t, got.Winner)
	assert.Equal(t, *patch.Winner, *got.Winner)
	require.NotNil(t, got.DrawDate)
	assert.True(t, drawnAt.Equal(*got.DrawDate), "draw date %v", got.DrawDate)

	applied, err = st.UpdateRaffleIfStatus(ctx, "does-not-exist", models.RaffleActive, patch)
	require.NoError(t, err)
	assert.False(t, applied)
}

func testSales(t *testing.T, st store.Store) {
	ctx := context.Background()
	raffle := NewRaffle(t, st, "Sales", epoch)

	for _, s := range []struct {
		number int
		code   string
	}{{5, "500005"}, {0, "100000"}, {3, "300003"}} {
		require.NoError(t, st.InsertSale(ctx, NewSale(raffle.ID, s.number, s.code)))
	}

	sales, err := st.ListSales(ctx, raffle.ID)
	require.NoError(t, err)
	require.Len(t, sales, 3)
	assert.Equal(t, []int{0, 3, 5}, []int{sales[0].TicketNumber, sales[1].TicketNumber, sales[2].TicketNumber})

	sale, err := st.FindSaleByCode(ctx, "300003")
	require.NoError(t, err)
	assert.Equal(t, raffle.ID, sale.RaffleID)
	assert.Equal(t, 3, sale.TicketNumber)
	assert.Equal(t, "Ana", sale.Name)
	assert.Equal(t, "ana@example.com", sale.Email)
	assert.Equal(t, "3001234567", sale.Phone)
	assert.Equal(t, models.DefaultPaymentMethod, sale.PaymentMethod)
	assert.Equal(t, models.RegisteredByPublic, sale.RegisteredBy)
	assert.True(t, epoch.Equal(sale.BoughtAt), "bought at %v", sale.BoughtAt)

	_, err = st.FindSaleByCode(ctx, "999999")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testSavedTickets(t *testing.T, st store.Store) {
	ctx := context.Background()

	saved := func(owner, code string, at time.Time) *models.SavedTicket {
		return &models.SavedTicket{
			OwnerKey:     owner,
			Code:         code,
			TicketNumber: 7,
			RaffleID:     "raffle-1",
			RaffleTitle:  "Car2024",
			Name:         "Ana",
			Email:        "ana@example.com",
			BoughtAt:     epoch,
			SavedAt:      at,
		}
	}

	first := saved("owner-a", "111111", epoch)
	require.NoError(t, st.SaveTicket(ctx, first))
	assert.NotEmpty(t, first.ID)
	require.NoError(t, st.SaveTicket(ctx, saved("owner-a", "222222", epoch.Add(time.Minute))))
	require.NoError(t, st.SaveTicket(ctx, saved("owner-b", "111111", epoch)))

	err := st.SaveTicket(ctx, saved("owner-a", "111111", epoch.Add(time.Hour)))
	requireConflict(t, err, store.FieldOwnerCode)

	tickets, err := st.ListSavedTickets(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "222222", tickets[0].Code)
	assert.Equal(t, "111111", tickets[1].Code)
	assert.Equal(t, "Car2024", tickets[1].RaffleTitle)

	deleted, err := st.DeleteSavedTicket(ctx, "owner-a", "111111")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = st.DeleteSavedTicket(ctx, "owner-a", "111111")
	require.NoError(t, err)
	assert.False(t, deleted)

	tickets, err = st.ListSavedTickets(ctx, "owner-b")
	require.NoError(t, err)
	assert.Len(t, tickets, 1)

	tickets, err = st.ListSavedTickets(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, tickets)
}
