package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-system/internal/store"
	"raffle-system/internal/store/storetest"
	"raffle-system/models"
)

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestStore_InsertSaleUnknownRaffle(t *testing.T) {
	st := New()

	err := st.InsertSale(context.Background(), storetest.NewSale("missing", 1, "123456"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ReturnsCopies(t *testing.T) {
	st := New()
	ctx := context.Background()

	raffle := &models.Raffle{Title: "Copy", Status: models.RaffleActive}
	require.NoError(t, st.CreateRaffle(ctx, raffle))

	got, err := st.FindRaffleByID(ctx, raffle.ID)
	require.NoError(t, err)
	got.Status = models.RaffleCancelled
	got.Title = "changed"

	again, err := st.FindRaffleByID(ctx, raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RaffleActive, again.Status)
	assert.Equal(t, "Copy", again.Title)
}
