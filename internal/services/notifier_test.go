package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raffle-system/models"
)

type published struct {
	channel string
	event   RaffleEvent
}

func TestPubNubNotifier_PublishesToRaffleChannel(t *testing.T) {
	var sent []published
	n := NewNotifier(func(_ context.Context, channel string, message any) error {
		sent = append(sent, published{channel, message.(RaffleEvent)})
		return nil
	})
	n.now = func() time.Time { return time.Unix(1700000000, 0) }

	raffle := &models.Raffle{ID: "abc", TicketsSold: 3}
	n.SaleRegistered(context.Background(), raffle, &models.Sale{TicketNumber: 2, Email: "a@x.com"})

	raffle.Winner = &models.Winner{Name: "Ana", TicketNumber: 2, Code: "123456"}
	n.WinnerDrawn(context.Background(), raffle)

	require.Len(t, sent, 2)
	assert.Equal(t, "raffle-abc", sent[0].channel)
	assert.Equal(t, RaffleEvent{
		Type:         EventSaleRegistered,
		RaffleID:     "abc",
		TicketNumber: "0002",
		TicketsSold:  3,
		Timestamp:    1700000000,
	}, sent[0].event)

	assert.Equal(t, EventWinnerDrawn, sent[1].event.Type)
	assert.Equal(t, "Ana", sent[1].event.WinnerName)
	assert.Equal(t, "0002", sent[1].event.TicketNumber)
}

func TestPubNubNotifier_BreakerStopsPublishing(t *testing.T) {
	calls := 0
	n := NewNotifier(func(context.Context, string, any) error {
		calls++
		return errors.New("pubnub unavailable")
	})

	raffle := &models.Raffle{ID: "abc"}
	for i := 0; i < 10; i++ {
		n.SaleRegistered(context.Background(), raffle, &models.Sale{})
	}

	assert.Equal(t, 5, calls)
}

func TestPubNubNotifier_IgnoresCancelledRequest(t *testing.T) {
	calls := 0
	n := NewNotifier(func(context.Context, string, any) error {
		calls++
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.WinnerDrawn(ctx, &models.Raffle{ID: "abc"})

	assert.Equal(t, 1, calls)
}

func TestPubNubNotifier_PublishTimeout(t *testing.T) {
	tests := []struct {
		name    string
		publish PublishFunc
	}{
		{"publisher ignores context", func(context.Context, string, any) error {
			time.Sleep(500 * time.Millisecond)
			return nil
		}},
		{"publisher honours context", func(ctx context.Context, _ string, _ any) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
				return nil
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNotifier(tt.publish)
			n.timeout = 50 * time.Millisecond

			start := time.Now()
			n.SaleRegistered(context.Background(), &models.Raffle{ID: "abc"}, &models.Sale{})

			assert.Less(t, time.Since(start), 300*time.Millisecond)
		})
	}
}
