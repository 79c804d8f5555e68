package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"raffle-system/internal/status"
	"raffle-system/internal/store"
	"raffle-system/models"
	"raffle-system/utils"
)

type DrawService struct {
	store    store.Store
	notifier Notifier
	recorder Recorder

	pick func(n int) (int, error)
	now  func() time.Time
}

func NewDrawService(st store.Store, notifier Notifier, recorder Recorder) *DrawService {
	return &DrawService{
		store:    st,
		notifier: orNopNotifier(notifier),
		recorder: orNopRecorder(recorder),
		pick:     utils.RandomIndex,
		now:      time.Now,
	}
}

// DrawWinner picks one sale uniformly at random and completes the raffle.
// The status change is a compare-and-swap, so of two concurrent draws only
// one stores a winner and the other fails with AlreadyDrawn.
func (s *DrawService) DrawWinner(ctx context.Context, raffleID string) (*models.Raffle, error) {
	raffle, err := s.drawWinner(ctx, raffleID)

	outcome := "completed"
	if err != nil {
		outcome = string(status.KindOf(err))
	}
	s.recorder.IncDraw(outcome)

	return raffle, err
}

func (s *DrawService) drawWinner(ctx context.Context, raffleID string) (*models.Raffle, error) {
	raffle, err := s.findRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	if err := drawableStatus(raffle.Status); err != nil {
		return nil, err
	}

	sales, err := s.store.ListSales(ctx, raffleID)
	if err != nil {
		slog.Error("Failed to list sales", "error", err, "raffle_id", raffleID)
		return nil, status.Wrap(status.KindStorageError, "could not load participants", err)
	}
	if len(sales) == 0 {
		return nil, status.ErrNoParticipants
	}

	idx, err := s.pick(len(sales))
	if err != nil {
		return nil, status.Wrap(status.KindStorageError, "could not pick a winner", err)
	}
	chosen := sales[idx]

	completed := models.RaffleCompleted
	drawnAt := s.now().UTC()
	patch := models.RafflePatch{
		Status: &completed,
		Winner: &models.Winner{
			Name:         chosen.Name,
			Email:        chosen.Email,
			Code:         chosen.Code,
			TicketNumber: chosen.TicketNumber,
		},
		DrawDate: &drawnAt,
	}

	applied, err := s.store.UpdateRaffleIfStatus(ctx, raffleID, models.RaffleActive, patch)
	if err != nil {
		slog.Error("Failed to store draw result", "error", err, "raffle_id", raffleID)
		return nil, status.Wrap(status.KindStorageError, "could not store the draw", err)
	}
	if !applied {
		// Someone else moved the raffle first; report what they did.
		current, err := s.findRaffle(ctx, raffleID)
		if err != nil {
			return nil, err
		}
		if err := drawableStatus(current.Status); err != nil {
			return nil, err
		}
		return nil, status.ErrAlreadyDrawn
	}

	patch.Apply(raffle)
	slog.Info("Winner drawn",
		"raffle_id", raffleID,
		"ticket_number", FormatTicketNumber(chosen.TicketNumber),
		"code", chosen.Code,
		"participants", len(sales))

	s.notifier.WinnerDrawn(ctx, raffle)
	return raffle, nil
}

func (s *DrawService) findRaffle(ctx context.Context, raffleID string) (*models.Raffle, error) {
	raffle, err := s.store.FindRaffleByID(ctx, raffleID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.ErrRaffleNotFound
	}
	if err != nil {
		return nil, status.Wrap(status.KindStorageError, "could not load raffle", err)
	}
	return raffle, nil
}

func drawableStatus(s models.RaffleStatus) error {
	switch s {
	case models.RaffleActive:
		return nil
	case models.RaffleCompleted:
		return status.ErrAlreadyDrawn
	default:
		return status.ErrRaffleNotActive
	}
}
