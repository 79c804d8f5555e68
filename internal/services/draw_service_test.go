package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"raffle-system/internal/status"
	"raffle-system/models"
)

func TestDrawService_DrawWinner(t *testing.T) {
	st := newMemoryStore()
	raffle := newActiveRaffle(t, st, "Car2024")
	seedSale(t, st, raffle.ID, 0, "100001")
	second := seedSale(t, st, raffle.ID, 1, "100002")
	seedSale(t, st, raffle.ID, 2, "100003")

	notifier := &fakeNotifier{}
	recorder := newFakeRecorder()
	svc := NewDrawService(st, notifier, recorder)
	drawnAt := time.Date(2024, 12, 24, 20, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return drawnAt }
	svc.pick = func(n int) (int, error) {
		assert.Equal(t, 3, n)
		return 1, nil
	}

	drawn, err := svc.DrawWinner(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RaffleCompleted, drawn.Status)
	require.NotNil(t, drawn.Winner)
	assert.Equal(t, models.Winner{
		Name:         second.Name,
		Email:        second.Email,
		Code:         "100002",
		TicketNumber: 1,
	}, *drawn.Winner)
	require.NotNil(t, drawn.DrawDate)
	assert.True(t, drawnAt.Equal(*drawn.DrawDate))

	stored, err := st.FindRaffleByID(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RaffleCompleted, stored.Status)
	assert.Equal(t, "100002", stored.Winner.Code)

	assert.Len(t, notifier.winners, 1)
	assert.Equal(t, 1, recorder.draws["completed"])

	_, err = svc.DrawWinner(context.Background(), raffle.ID)
	assert.ErrorIs(t, err, status.ErrAlreadyDrawn)
	assert.Equal(t, 1, recorder.draws[string(status.KindAlreadyDrawn)])
}

func TestDrawService_DrawWinner_Preconditions(t *testing.T) {
	st := newMemoryStore()
	svc := NewDrawService(st, nil, nil)
	ctx := context.Background()

	_, err := svc.DrawWinner(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrRaffleNotFound)

	empty := newActiveRaffle(t, st, "Empty")
	_, err = svc.DrawWinner(ctx, empty.ID)
	assert.ErrorIs(t, err, status.ErrNoParticipants)

	cancelled := newActiveRaffle(t, st, "Cancelled")
	seedSale(t, st, cancelled.ID, 0, "100001")
	c := models.RaffleCancelled
	_, err = st.UpdateRaffleIfStatus(ctx, cancelled.ID, models.RaffleActive, models.RafflePatch{Status: &c})
	require.NoError(t, err)

	_, err = svc.DrawWinner(ctx, cancelled.ID)
	assert.ErrorIs(t, err, status.ErrRaffleNotActive)
}

func TestDrawService_DrawWinner_LostCompareAndSwap(t *testing.T) {
	mem := newMemoryStore()
	raffle := newActiveRaffle(t, mem, "Race")
	seedSale(t, mem, raffle.ID, 0, "100001")

	hooked := &hookedStore{Store: mem}
	hooked.casHook = func() (bool, error) {
		// Another draw completes the raffle first.
		completed := models.RaffleCompleted
		_, err := mem.UpdateRaffleIfStatus(context.Background(), raffle.ID, models.RaffleActive,
			models.RafflePatch{Status: &completed})
		require.NoError(t, err)
		return false, nil
	}

	notifier := &fakeNotifier{}
	svc := NewDrawService(hooked, notifier, nil)

	_, err := svc.DrawWinner(context.Background(), raffle.ID)
	assert.ErrorIs(t, err, status.ErrAlreadyDrawn)
	assert.Empty(t, notifier.winners)
}

func TestDrawService_DrawWinner_StorageError(t *testing.T) {
	mem := newMemoryStore()
	raffle := newActiveRaffle(t, mem, "Broken")
	seedSale(t, mem, raffle.ID, 0, "100001")

	hooked := &hookedStore{Store: mem}
	hooked.casHook = func() (bool, error) { return false, errors.New("connection reset") }

	svc := NewDrawService(hooked, nil, nil)
	_, err := svc.DrawWinner(context.Background(), raffle.ID)
	assert.ErrorIs(t, err, status.ErrStorage)
}

func TestDrawService_DrawWinner_ConcurrentDrawsCompleteOnce(t *testing.T) {
	st := newMemoryStore()
	raffle := newActiveRaffle(t, st, "Exclusive")
	for i := 0; i < 10; i++ {
		seedSale(t, st, raffle.ID, i, FormatTicketNumber(i)+"11")
	}

	notifier := &fakeNotifier{}
	svc := NewDrawService(st, notifier, nil)

	var wins, alreadyDrawn atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := svc.DrawWinner(context.Background(), raffle.ID)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, status.ErrAlreadyDrawn):
				alreadyDrawn.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(7), alreadyDrawn.Load())
	assert.Len(t, notifier.winners, 1)

	stored, err := st.FindRaffleByID(context.Background(), raffle.ID)
	require.NoError(t, err)
	assert.Equal(t, notifier.winners[0].Code, stored.Winner.Code)
}
