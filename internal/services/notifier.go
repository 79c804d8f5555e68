package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go/v7"

	"raffle-system/models"
	"raffle-system/utils"
)

const (
	EventSaleRegistered = "sale_registered"
	EventWinnerDrawn    = "winner_drawn"
)

// RaffleEvent is the message published on a raffle channel. Buyer contact
// data is never included.
type RaffleEvent struct {
	Type         string `json:"type"`
	RaffleID     string `json:"raffleId"`
	TicketNumber string `json:"ticketNumber,omitempty"`
	TicketsSold  int    `json:"ticketsSold"`
	WinnerName   string `json:"winnerName,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// PublishFunc sends message to channel. It should give up when ctx is done.
type PublishFunc func(ctx context.Context, channel string, message any) error

// PubNubNotifier publishes raffle events to the channel "raffle-{id}".
type PubNubNotifier struct {
	publish PublishFunc
	breaker *utils.CircuitBreaker
	timeout time.Duration
	now     func() time.Time
}

func NewPubNubConfig(publishKey, subscribeKey, secretKey, userID string) *pubnub.Config {
	cfg := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	cfg.SecretKey = secretKey
	return cfg
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return NewNotifier(func(ctx context.Context, channel string, message any) error {
		_, _, err := pn.PublishWithContext(ctx).Channel(channel).Message(message).Execute()
		return err
	})
}

func NewNotifier(publish PublishFunc) *PubNubNotifier {
	return &PubNubNotifier{
		publish: publish,
		breaker: utils.NewCircuitBreaker("pubnub", 5, 30*time.Second),
		timeout: 3 * time.Second,
		now:     time.Now,
	}
}

func RaffleChannel(raffleID string) string {
	return fmt.Sprintf("raffle-%s", raffleID)
}

func (n *PubNubNotifier) SaleRegistered(ctx context.Context, raffle *models.Raffle, sale *models.Sale) {
	n.send(ctx, RaffleEvent{
		Type:         EventSaleRegistered,
		RaffleID:     raffle.ID,
		TicketNumber: FormatTicketNumber(sale.TicketNumber),
		TicketsSold:  raffle.TicketsSold,
		Timestamp:    n.now().Unix(),
	})
}

func (n *PubNubNotifier) WinnerDrawn(ctx context.Context, raffle *models.Raffle) {
	event := RaffleEvent{
		Type:        EventWinnerDrawn,
		RaffleID:    raffle.ID,
		TicketsSold: raffle.TicketsSold,
		Timestamp:   n.now().Unix(),
	}
	if raffle.Winner != nil {
		event.TicketNumber = FormatTicketNumber(raffle.Winner.TicketNumber)
		event.WinnerName = raffle.Winner.Name
	}
	n.send(ctx, event)
}

func (n *PubNubNotifier) send(ctx context.Context, event RaffleEvent) {
	// The publish outlives a cancelled request but not the timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	channel := RaffleChannel(event.RaffleID)
	err := n.breaker.Execute(ctx, func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() { done <- n.publish(ctx, channel, event) }()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		slog.Warn("Failed to publish raffle event", "error", err, "channel", channel, "type", event.Type)
	}
}
