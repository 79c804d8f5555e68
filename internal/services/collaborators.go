package services

import (
	"context"
	"time"

	"raffle-system/models"
)

// Notifier fans out raffle events. Implementations must not block for long
// and never fail the operation that triggered them.
type Notifier interface {
	SaleRegistered(ctx context.Context, raffle *models.Raffle, sale *models.Sale)
	WinnerDrawn(ctx context.Context, raffle *models.Raffle)
}

// Recorder receives sale and draw measurements.
type Recorder interface {
	ObserveSale(origin, outcome string, elapsed time.Duration)
	IncSaleConflict(field string)
	SetTicketsSold(raffleID string, sold int)
	IncDraw(outcome string)
}

type nopNotifier struct{}

func (nopNotifier) SaleRegistered(context.Context, *models.Raffle, *models.Sale) {}
func (nopNotifier) WinnerDrawn(context.Context, *models.Raffle)                  {}

type nopRecorder struct{}

func (nopRecorder) ObserveSale(string, string, time.Duration) {}
func (nopRecorder) IncSaleConflict(string)                    {}
func (nopRecorder) SetTicketsSold(string, int)                {}
func (nopRecorder) IncDraw(string)                            {}

func orNopNotifier(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

func orNopRecorder(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
