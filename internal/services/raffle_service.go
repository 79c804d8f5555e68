package services

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"raffle-system/internal/status"
	"raffle-system/internal/store"
	"raffle-system/models"
	"raffle-system/utils"
)

type RaffleInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Prize       string `json:"prize"`
}

// TrackedTicket is the public view of a sale looked up by tracking code.
type TrackedTicket struct {
	Ticket TicketView  `json:"ticket"`
	Raffle RaffleStats `json:"raffle"`
}

type TicketView struct {
	Code                  string    `json:"code"`
	Name                  string    `json:"name"`
	Email                 string    `json:"email"`
	Phone                 string    `json:"phone,omitempty"`
	TicketNumber          int       `json:"ticketNumber"`
	TicketNumberFormatted string    `json:"ticketNumberFormatted"`
	BoughtAt              time.Time `json:"boughtAt"`
}

type RaffleStats struct {
	ID               string              `json:"id"`
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	Prize            string              `json:"prize"`
	Status           models.RaffleStatus `json:"status"`
	IsWinner         bool                `json:"isWinner"`
	PricePerTicket   string              `json:"pricePerTicket"`
	TotalTickets     int                 `json:"totalTickets"`
	TicketsSold      int                 `json:"ticketsSold"`
	TicketsRemaining int                 `json:"ticketsRemaining"`
	SoldPercentage   int                 `json:"soldPercentage"`
	DrawDate         *time.Time          `json:"drawDate"`
	CreatedAt        time.Time           `json:"createdAt"`
}

// RaffleService covers the raffle lifecycle outside of sales and draws, and
// the buyer-side saved tickets.
type RaffleService struct {
	store store.Store
	now   func() time.Time
}

func NewRaffleService(st store.Store) *RaffleService {
	return &RaffleService{store: st, now: time.Now}
}

func (s *RaffleService) CreateRaffle(ctx context.Context, in RaffleInput) (*models.Raffle, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.Validate(in.Title, validation.Required, validation.Length(1, 200)); err != nil {
		return nil, status.ErrInvalidRaffle
	}

	raffle := &models.Raffle{
		Title:          in.Title,
		Description:    strings.TrimSpace(in.Description),
		Prize:          strings.TrimSpace(in.Prize),
		Status:         models.RaffleActive,
		PricePerTicket: models.TicketPrice,
		TotalTickets:   models.PoolSize,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.CreateRaffle(ctx, raffle); err != nil {
		slog.Error("Failed to create raffle", "error", err, "title", in.Title)
		return nil, status.Wrap(status.KindStorageError, "could not create raffle", err)
	}

	slog.Info("Raffle created", "raffle_id", raffle.ID, "title", raffle.Title)
	return raffle, nil
}

func (s *RaffleService) ListRaffles(ctx context.Context) ([]*models.Raffle, error) {
	raffles, err := s.store.ListRaffles(ctx)
	if err != nil {
		return nil, status.Wrap(status.KindStorageError, "could not list raffles", err)
	}
	return raffles, nil
}

func (s *RaffleService) GetRaffle(ctx context.Context, id string) (*models.Raffle, error) {
	raffle, err := s.store.FindRaffleByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.ErrRaffleNotFound
	}
	if err != nil {
		return nil, status.Wrap(status.KindStorageError, "could not load raffle", err)
	}
	return raffle, nil
}

// ListSales returns the sales of a raffle ordered by ticket number.
func (s *RaffleService) ListSales(ctx context.Context, id string) ([]*models.Sale, error) {
	if _, err := s.GetRaffle(ctx, id); err != nil {
		return nil, err
	}
	sales, err := s.store.ListSales(ctx, id)
	if err != nil {
		return nil, status.Wrap(status.KindStorageError, "could not list sales", err)
	}
	return sales, nil
}

// CancelRaffle closes an active raffle without a winner.
func (s *RaffleService) CancelRaffle(ctx context.Context, id string) (*models.Raffle, error) {
	raffle, err := s.GetRaffle(ctx, id)
	if err != nil {
		return nil, err
	}
	if !raffle.AcceptsSales() {
		return nil, status.ErrRaffleNotActive
	}

	cancelled := models.RaffleCancelled
	patch := models.RafflePatch{Status: &cancelled}
	applied, err := s.store.UpdateRaffleIfStatus(ctx, id, models.RaffleActive, patch)
	if err != nil {
		return nil, status.Wrap(status.KindStorageError, "could not cancel raffle", err)
	}
	if !applied {
		return nil, status.ErrRaffleNotActive
	}

	patch.Apply(raffle)
	slog.Info("Raffle cancelled", "raffle_id", id)
	return raffle, nil
}

func (s *RaffleService) TrackTicket(ctx context.Context, code string) (*TrackedTicket, error) {
	sale, err := s.findSale(ctx, code)
	if err != nil {
		return nil, err
	}
	raffle, err := s.GetRaffle(ctx, sale.RaffleID)
	if err != nil {
		return nil, err
	}

	sold := raffle.TicketsSold
	total := raffle.TotalTickets
	if total <= 0 {
		total = models.PoolSize
	}

	return &TrackedTicket{
		Ticket: TicketView{
			Code:                  sale.Code,
			Name:                  sale.Name,
			Email:                 sale.Email,
			Phone:                 sale.Phone,
			TicketNumber:          sale.TicketNumber,
			TicketNumberFormatted: FormatTicketNumber(sale.TicketNumber),
			BoughtAt:              sale.BoughtAt,
		},
		Raffle: RaffleStats{
			ID:               raffle.ID,
			Title:            raffle.Title,
			Description:      raffle.Description,
			Prize:            raffle.Prize,
			Status:           raffle.Status,
			IsWinner:         raffle.Winner != nil && raffle.Winner.Code == sale.Code,
			PricePerTicket:   raffle.PricePerTicket.String(),
			TotalTickets:     total,
			TicketsSold:      sold,
			TicketsRemaining: max(0, total-sold),
			SoldPercentage:   int(math.Round(float64(sold) * 100 / float64(total))),
			DrawDate:         raffle.DrawDate,
			CreatedAt:        raffle.CreatedAt,
		},
	}, nil
}

// SaveTicket bookmarks the sale with the given code for the owner of secret.
// Saving the same code twice returns the existing bookmark. Non-empty email
// and phone replace the contact data copied from the sale.
func (s *RaffleService) SaveTicket(ctx context.Context, secret, code, email, phone string) (*models.SavedTicket, bool, error) {
	owner, code, err := ownerAndCode(secret, code)
	if err != nil {
		return nil, false, err
	}

	if existing, ok, err := s.findSaved(ctx, owner, code); err != nil || ok {
		return existing, false, err
	}

	sale, err := s.findSale(ctx, code)
	if err != nil {
		return nil, false, err
	}
	raffle, err := s.GetRaffle(ctx, sale.RaffleID)
	if err != nil {
		return nil, false, err
	}

	ticket := &models.SavedTicket{
		OwnerKey:     owner,
		Code:         sale.Code,
		TicketNumber: sale.TicketNumber,
		RaffleID:     raffle.ID,
		RaffleTitle:  raffle.Title,
		Name:         sale.Name,
		Email:        firstNonEmpty(email, sale.Email),
		Phone:        firstNonEmpty(phone, sale.Phone),
		BoughtAt:     sale.BoughtAt,
		SavedAt:      s.now().UTC(),
	}

	err = s.store.SaveTicket(ctx, ticket)
	if c, ok := store.AsConflict(err); ok && c.Field == store.FieldOwnerCode {
		// Saved concurrently by another request of the same owner.
		existing, found, err := s.findSaved(ctx, owner, code)
		if err != nil {
			return nil, false, err
		}
		if !found {
			slog.Error("Saved ticket conflict without a stored bookmark", "code", code)
			return nil, false, status.Wrap(status.KindStorageError, "could not read saved ticket", c)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, status.Wrap(status.KindStorageError, "could not save ticket", err)
	}
	return ticket, true, nil
}

func (s *RaffleService) MyTickets(ctx context.Context, secret string) ([]*models.SavedTicket, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, status.ErrMissingOwnerSecret
	}
	tickets, err := s.store.ListSavedTickets(ctx, utils.HashSecret(secret))
	if err != nil {
		return nil, status.Wrap(status.KindStorageError, "could not list saved tickets", err)
	}
	return tickets, nil
}

func (s *RaffleService) RemoveSavedTicket(ctx context.Context, secret, code string) error {
	owner, code, err := ownerAndCode(secret, code)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteSavedTicket(ctx, owner, code)
	if err != nil {
		return status.Wrap(status.KindStorageError, "could not remove saved ticket", err)
	}
	if !deleted {
		return status.ErrSavedTicketNotFound
	}
	return nil
}

func (s *RaffleService) findSale(ctx context.Context, code string) (*models.Sale, error) {
	sale, err := s.store.FindSaleByCode(ctx, strings.TrimSpace(code))
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.ErrSaleNotFound
	}
	if err != nil {
		return nil, status.Wrap(status.KindStorageError, "could not look up ticket", err)
	}
	return sale, nil
}

func (s *RaffleService) findSaved(ctx context.Context, owner, code string) (*models.SavedTicket, bool, error) {
	tickets, err := s.store.ListSavedTickets(ctx, owner)
	if err != nil {
		return nil, false, status.Wrap(status.KindStorageError, "could not list saved tickets", err)
	}
	for _, t := range tickets {
		if t.Code == code {
			return t, true, nil
		}
	}
	return nil, false, nil
}

func ownerAndCode(secret, code string) (string, string, error) {
	secret = strings.TrimSpace(secret)
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return "", "", status.ErrMissingOwnerSecret
	}
	return utils.HashSecret(secret), code, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
