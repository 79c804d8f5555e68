package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"raffle-system/internal/status"
	"raffle-system/internal/store"
	"raffle-system/models"
)

func buyer(name, email string) SaleRequest {
	return SaleRequest{Name: name, Email: email}
}

func TestSaleService_RegisterSale_Scenario(t *testing.T) {
	st := newMemoryStore()
	raffle := newActiveRaffle(t, st, "Car2024")
	notifier := &fakeNotifier{}
	recorder := newFakeRecorder()
	svc := NewSaleService(st, notifier, recorder, SaleConfig{})
	ctx := context.Background()

	first, err := svc.RegisterSale(ctx, raffle.ID, buyer("Ana", "a@x.com"), "public")
	require.NoError(t, err)
	assert.Equal(t, 0, first.TicketNumber)
	assert.Equal(t, "0000", first.TicketNumberFormatted)
	assert.Len(t, first.TrackingCode, 6)
	assert.Equal(t, "Car2024", first.RaffleTitle)
	assert.NotEmpty(t, first.SaleID)

	second, err := svc.RegisterSale(ctx, raffle.ID, buyer("Bruno", "b@x.com"), "public")
	require.NoError(t, err)
	assert.Equal(t, 1, second.TicketNumber)
	assert.NotEqual(t, first.TrackingCode, second.TrackingCode)

	req := buyer("Carla", "c@x.com")
	req.TicketNumber = "0000"
	_, err = svc.RegisterSale(ctx, raffle.ID, req, "public")
	assert.ErrorIs(t, err, status.ErrTicketAlreadyTaken)
	assert.Contains(t, err.Error(), "#0000")

	stored, err := st.FindRaffleByID(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.TicketsSold)

	assert.Len(t, notifier.sales, 2)
	assert.Equal(t, 2, recorder.sold[raffle.ID])
	assert.Equal(t, []recordedSale{
		{OriginPublic, "success"},
		{OriginPublic, "success"},
		{OriginPublic, string(status.KindTicketAlreadyTaken)},
	}, recorder.sales)
}

func TestSaleService_RegisterSale_Validation(t *testing.T) {
	tests := []struct {
		name     string
		req      SaleRequest
		expected error
	}{
		{"Missing name", SaleRequest{Email: "a@x.com"}, status.ErrMissingRequiredField},
		{"Blank name", SaleRequest{Name: "   ", Email: "a@x.com"}, status.ErrMissingRequiredField},
		{"Missing email", SaleRequest{Name: "Ana"}, status.ErrMissingRequiredField},
		{"Email without domain", SaleRequest{Name: "Ana", Email: "ana@"}, status.ErrInvalidEmail},
		{"Email without tld", SaleRequest{Name: "Ana", Email: "ana@x"}, status.ErrInvalidEmail},
		{"Email with spaces", SaleRequest{Name: "Ana", Email: "an a@x.com"}, status.ErrInvalidEmail},
		{"Short ticket", SaleRequest{Name: "Ana", Email: "a@x.com", TicketNumber: "42"}, status.ErrInvalidTicketNumberFormat},
		{"Letters in ticket", SaleRequest{Name: "Ana", Email: "a@x.com", TicketNumber: "00a1"}, status.ErrInvalidTicketNumberFormat},
		{"Long ticket", SaleRequest{Name: "Ana", Email: "a@x.com", TicketNumber: "10000"}, status.ErrInvalidTicketNumberFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newMemoryStore()
			raffle := newActiveRaffle(t, st, "Validation")
			svc := NewSaleService(st, nil, nil, SaleConfig{})

			_, err := svc.RegisterSale(context.Background(), raffle.ID, tt.req, "public")
			assert.ErrorIs(t, err, tt.expected)

			sales, err := st.ListSales(context.Background(), raffle.ID)
			require.NoError(t, err)
			assert.Empty(t, sales)
		})
	}
}

func TestSaleService_RegisterSale_RaffleState(t *testing.T) {
	st := newMemoryStore()
	svc := NewSaleService(st, nil, nil, SaleConfig{})
	ctx := context.Background()

	_, err := svc.RegisterSale(ctx, "missing", buyer("Ana", "a@x.com"), "public")
	assert.ErrorIs(t, err, status.ErrRaffleNotFound)

	for _, closed := range []models.RaffleStatus{models.RaffleCompleted, models.RaffleCancelled} {
		raffle := newActiveRaffle(t, st, "Closed")
		patch := models.RafflePatch{Status: &closed}
		ok, err := st.UpdateRaffleIfStatus(ctx, raffle.ID, models.RaffleActive, patch)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = svc.RegisterSale(ctx, raffle.ID, buyer("Ana", "a@x.com"), "public")
		assert.ErrorIs(t, err, status.ErrRaffleNotActive, "status %s", closed)
	}
}

func TestSaleService_RegisterSale_Defaults(t *testing.T) {
	st := newMemoryStore()
	raffle := newActiveRaffle(t, st, "Defaults")
	recorder := newFakeRecorder()
	svc := NewSaleService(st, nil, recorder, SaleConfig{})
	ctx := context.Background()

	res, err := svc.RegisterSale(ctx, raffle.ID, SaleRequest{Name: "  Ana ", Email: " a@x.com "}, "")
	require.NoError(t, err)

	sale, err := st.FindSaleByCode(ctx, res.TrackingCode)
	require.NoError(t, err)
	assert.Equal(t, "Ana", sale.Name)
	assert.Equal(t, "a@x.com", sale.Email)
	assert.Equal(t, models.DefaultPaymentMethod, sale.PaymentMethod)
	assert.Equal(t, models.RegisteredByPublic, sale.RegisteredBy)

	res, err = svc.RegisterSale(ctx, raffle.ID, SaleRequest{
		Name:          "Bruno",
		Email:         "b@x.com",
		PaymentMethod: "Nequi",
		TicketNumber:  "0042",
	}, "seller@example.com")
	require.NoError(t, err)
	assert.Equal(t, 42, res.TicketNumber)

	sale, err = st.FindSaleByCode(ctx, res.TrackingCode)
	require.NoError(t, err)
	assert.Equal(t, "Nequi", sale.PaymentMethod)
	assert.Equal(t, "seller@example.com", sale.RegisteredBy)
	assert.Equal(t, OriginOperator, recorder.sales[1].origin)
}

func TestSaleService_RegisterSale_CustomPaymentDefault(t *testing.T) {
	st := newMemoryStore()
	raffle := newActiveRaffle(t, st, "Payment")
	svc := NewSaleService(st, nil, nil, SaleConfig{DefaultPaymentMethod: "Cash"})

	res, err := svc.RegisterSale(context.Background(), raffle.ID, buyer("Ana", "a@x.com"), "public")
	require.NoError(t, err)

	sale, err := st.FindSaleByCode(context.Background(), res.TrackingCode)
	require.NoError(t, err)
	assert.Equal(t, "Cash", sale.PaymentMethod)
}

func TestSaleService_RegisterSale_RetriesCodeCollision(t *testing.T) {
	st := newMemoryStore()
	raffle := newActiveRaffle(t, st, "Codes")
	other := newActiveRaffle(t, st, "Other")
	seedSale(t, st, other.ID, 0, "111111")

	recorder := newFakeRecorder()
	svc := NewSaleService(st, nil, recorder, SaleConfig{})
	gen, calls := sequenceCodes("111111", "222222")
	svc.GenerateCode = gen

	res, err := svc.RegisterSale(context.Background(), raffle.ID, buyer("Ana", "a@x.com"), "public")
	require.NoError(t, err)
	assert.Equal(t, "222222", res.TrackingCode)
	assert.Equal(t, 0, res.TicketNumber)
	assert.Equal(t, 2, calls())
	assert.Equal(t, 1, recorder.conflicts[store.FieldCode])
}

func TestSaleService_RegisterSale_CodeBudgetExhausted(t *testing.T) {
	st := newMemoryStore()
	raffle := newActiveRaffle(t, st, "Codes")
	seedSale(t, st, raffle.ID, 0, "111111")

	svc := NewSaleService(st, nil, nil, SaleConfig{})
	gen, calls := sequenceCodes("111111")
	svc.GenerateCode = gen

	_, err := svc.RegisterSale(context.Background(), raffle.ID, buyer("Ana", "a@x.com"), "public")
	assert.ErrorIs(t, err, status.ErrSaleRegistrationExhausted)
	assert.Equal(t, "could not register the sale, try again", err.Error())
	assert.Equal(t, DefaultMaxCodeAttempts, calls())

	stored, err := st.FindRaffleByID(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TicketsSold)
}

func TestSaleService_RegisterSale_ConfiguredBudgets(t *testing.T) {
	st := newMemoryStore()
	raffle := newActiveRaffle(t, st, "Budgets")
	seedSale(t, st, raffle.ID, 0, "111111")

	svc := NewSaleService(st, nil, nil, SaleConfig{MaxCodeAttempts: 3, MaxAllocationAttempts: 2})
	gen, calls := sequenceCodes("111111")
	svc.GenerateCode = gen

	_, err := svc.RegisterSale(context.Background(), raffle.ID, buyer("Ana", "a@x.com"), "public")
	assert.ErrorIs(t, err, status.ErrSaleRegistrationExhausted)
	assert.Equal(t, 3, calls())
}

func TestSaleService_RegisterSale_ReallocatesAutoTicket(t *testing.T) {
	mem := newMemoryStore()
	raffle := newActiveRaffle(t, mem, "Race")
	hooked := &hookedStore{Store: mem}

	// A concurrent buyer takes ticket 0 right before our first insert.
	hooked.beforeWrite = func(call int, sale *models.Sale) error {
		if call == 1 {
			seedSale(t, mem, raffle.ID, sale.TicketNumber, "999999")
		}
		return nil
	}

	recorder := newFakeRecorder()
	svc := NewSaleService(hooked, nil, recorder, SaleConfig{})

	res, err := svc.RegisterSale(context.Background(), raffle.ID, buyer("Ana", "a@x.com"), "public")
	require.NoError(t, err)
	assert.Equal(t, 1, res.TicketNumber)
	assert.Equal(t, 2, hooked.insertCalls())
	assert.Equal(t, 1, recorder.conflicts[store.FieldTicketNumber])

	stored, err := mem.FindRaffleByID(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.TicketsSold)
}

func TestSaleService_RegisterSale_AllocationBudgetExhausted(t *testing.T) {
	mem := newMemoryStore()
	raffle := newActiveRaffle(t, mem, "Race")
	hooked := &hookedStore{Store: mem}
	hooked.beforeWrite = func(int, *models.Sale) error {
		return &store.ConflictError{Field: store.FieldTicketNumber}
	}

	svc := NewSaleService(hooked, nil, nil, SaleConfig{})

	_, err := svc.RegisterSale(context.Background(), raffle.ID, buyer("Ana", "a@x.com"), "public")
	assert.ErrorIs(t, err, status.ErrSaleRegistrationExhausted)
	assert.Equal(t, DefaultMaxAllocationAttempts, hooked.insertCalls())

	sales, err := mem.ListSales(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestSaleService_RegisterSale_RequestedTicketLostRace(t *testing.T) {
	mem := newMemoryStore()
	raffle := newActiveRaffle(t, mem, "Race")
	hooked := &hookedStore{Store: mem}
	hooked.beforeWrite = func(call int, sale *models.Sale) error {
		seedSale(t, mem, raffle.ID, sale.TicketNumber, "999999")
		return nil
	}

	svc := NewSaleService(hooked, nil, nil, SaleConfig{})
	req := buyer("Ana", "a@x.com")
	req.TicketNumber = "0042"

	_, err := svc.RegisterSale(context.Background(), raffle.ID, req, "public")
	assert.ErrorIs(t, err, status.ErrTicketAlreadyTaken)
	assert.Contains(t, err.Error(), "#0042")
	assert.Equal(t, 1, hooked.insertCalls())
}

func TestSaleService_RegisterSale_StorageError(t *testing.T) {
	mem := newMemoryStore()
	raffle := newActiveRaffle(t, mem, "Broken")
	hooked := &hookedStore{Store: mem}
	hooked.beforeWrite = func(int, *models.Sale) error {
		return errors.New("disk full")
	}

	svc := NewSaleService(hooked, nil, nil, SaleConfig{})

	_, err := svc.RegisterSale(context.Background(), raffle.ID, buyer("Ana", "a@x.com"), "public")
	assert.ErrorIs(t, err, status.ErrStorage)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, hooked.insertCalls())
}

func TestSaleService_RegisterSale_RaffleClosedBetweenAttempts(t *testing.T) {
	mem := newMemoryStore()
	raffle := newActiveRaffle(t, mem, "Closing")
	hooked := &hookedStore{Store: mem}
	hooked.beforeWrite = func(call int, sale *models.Sale) error {
		completed := models.RaffleCompleted
		_, err := mem.UpdateRaffleIfStatus(context.Background(), raffle.ID, models.RaffleActive,
			models.RafflePatch{Status: &completed})
		require.NoError(t, err)
		return &store.ConflictError{Field: store.FieldCode}
	}

	svc := NewSaleService(hooked, nil, nil, SaleConfig{})

	_, err := svc.RegisterSale(context.Background(), raffle.ID, buyer("Ana", "a@x.com"), "public")
	assert.ErrorIs(t, err, status.ErrRaffleNotActive)
	assert.Equal(t, 1, hooked.insertCalls())
}

func TestSaleService_RegisterSale_RecountFailureKeepsSale(t *testing.T) {
	mem := newMemoryStore()
	raffle := newActiveRaffle(t, mem, "Recount")
	hooked := &hookedStore{Store: mem, recountErr: errors.New("timeout")}
	notifier := &fakeNotifier{}

	svc := NewSaleService(hooked, notifier, nil, SaleConfig{})

	res, err := svc.RegisterSale(context.Background(), raffle.ID, buyer("Ana", "a@x.com"), "public")
	require.NoError(t, err)
	assert.Equal(t, 0, res.TicketNumber)

	sales, err := mem.ListSales(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
	assert.Len(t, notifier.sales, 1)
}

func TestSaleService_RegisterSale_PoolExhausted(t *testing.T) {
	st := newMemoryStore()
	raffle := newActiveRaffle(t, st, "Full")
	ctx := context.Background()

	for n := models.MinTicketNumber; n <= models.MaxTicketNumber; n++ {
		require.NoError(t, st.InsertSale(ctx, &models.Sale{
			RaffleID:     raffle.ID,
			Name:         "Seed",
			Email:        "seed@example.com",
			TicketNumber: n,
			Code:         FormatTicketNumber(n) + "00",
		}))
	}

	svc := NewSaleService(st, nil, nil, SaleConfig{})
	_, err := svc.RegisterSale(ctx, raffle.ID, buyer("Ana", "a@x.com"), "public")
	assert.ErrorIs(t, err, status.ErrPoolExhausted)
}

func TestSaleService_RegisterSale_Concurrent(t *testing.T) {
	st := newMemoryStore()
	raffle := newActiveRaffle(t, st, "Rush")
	svc := NewSaleService(st, nil, nil, SaleConfig{})

	const buyers = 20
	var (
		mu        sync.Mutex
		results   []*SaleResult
		exhausted int
	)

	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			res, err := svc.RegisterSale(context.Background(), raffle.ID, buyer("Buyer", "buyer@x.com"), "public")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				results = append(results, res)
			case errors.Is(err, status.ErrSaleRegistrationExhausted):
				exhausted++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, buyers, len(results)+exhausted)

	tickets := make(map[int]bool)
	codes := make(map[string]bool)
	for _, res := range results {
		assert.False(t, tickets[res.TicketNumber], "duplicate ticket %d", res.TicketNumber)
		assert.False(t, codes[res.TrackingCode], "duplicate code %s", res.TrackingCode)
		tickets[res.TicketNumber] = true
		codes[res.TrackingCode] = true
	}

	sales, err := st.ListSales(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.Len(t, sales, len(results))

	stored, err := st.FindRaffleByID(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, len(results), stored.TicketsSold)
}
