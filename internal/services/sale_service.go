package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"raffle-system/internal/status"
	"raffle-system/internal/store"
	"raffle-system/models"
	"raffle-system/utils"
)

const (
	DefaultMaxCodeAttempts       = 50
	DefaultMaxAllocationAttempts = 5

	OriginPublic   = "public"
	OriginOperator = "operator"
)

var mailboxPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CodeGenerator mints a candidate tracking code.
type CodeGenerator func() (string, error)

type SaleConfig struct {
	MaxCodeAttempts       int
	MaxAllocationAttempts int
	DefaultPaymentMethod  string
}

func (c SaleConfig) withDefaults() SaleConfig {
	if c.MaxCodeAttempts < 1 {
		c.MaxCodeAttempts = DefaultMaxCodeAttempts
	}
	if c.MaxAllocationAttempts < 1 {
		c.MaxAllocationAttempts = DefaultMaxAllocationAttempts
	}
	if strings.TrimSpace(c.DefaultPaymentMethod) == "" {
		c.DefaultPaymentMethod = models.DefaultPaymentMethod
	}
	return c
}

// SaleRequest is the buyer payload of a purchase. TicketNumber is empty for
// auto-assignment or exactly four digits.
type SaleRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	TicketNumber  string `json:"ticketNumber"`
	PaymentMethod string `json:"paymentMethod"`
}

type SaleResult struct {
	SaleID                string `json:"saleId"`
	TicketNumber          int    `json:"ticketNumber"`
	TicketNumberFormatted string `json:"ticketNumberFormatted"`
	TrackingCode          string `json:"trackingCode"`
	RaffleTitle           string `json:"raffleTitle"`
	Message               string `json:"message"`
}

// SaleService is the only write path for sales. It never locks: the store's
// uniqueness constraints decide every race and the service retries within
// bounded budgets.
type SaleService struct {
	store     store.Store
	allocator *TicketAllocator
	notifier  Notifier
	recorder  Recorder
	cfg       SaleConfig

	GenerateCode CodeGenerator
	now          func() time.Time
}

func NewSaleService(st store.Store, notifier Notifier, recorder Recorder, cfg SaleConfig) *SaleService {
	return &SaleService{
		store:        st,
		allocator:    NewTicketAllocator(),
		notifier:     orNopNotifier(notifier),
		recorder:     orNopRecorder(recorder),
		cfg:          cfg.withDefaults(),
		GenerateCode: utils.GenerateTrackingCode,
		now:          time.Now,
	}
}

// RegisterSale validates req, allocates a ticket number and tracking code and
// stores exactly one sale for the raffle.
func (s *SaleService) RegisterSale(ctx context.Context, raffleID string, req SaleRequest, registeredBy string) (*SaleResult, error) {
	start := time.Now()

	registeredBy = strings.TrimSpace(registeredBy)
	if registeredBy == "" {
		registeredBy = models.RegisteredByPublic
	}
	origin := OriginOperator
	if registeredBy == models.RegisteredByPublic {
		origin = OriginPublic
	}

	result, err := s.registerSale(ctx, raffleID, req, registeredBy)

	outcome := "success"
	if err != nil {
		outcome = string(status.KindOf(err))
	}
	s.recorder.ObserveSale(origin, outcome, time.Since(start))

	return result, err
}

func (s *SaleService) registerSale(ctx context.Context, raffleID string, req SaleRequest, registeredBy string) (*SaleResult, error) {
	requested, err := s.normalize(&req)
	if err != nil {
		return nil, err
	}

	raffle, err := s.activeRaffle(ctx, raffleID)
	if err != nil {
		return nil, err
	}

	codeAttempts := 0
	for round := 1; round <= s.cfg.MaxAllocationAttempts; round++ {
		occupied, err := s.store.ListOccupiedTicketNumbers(ctx, raffleID)
		if err != nil {
			slog.Error("Failed to list occupied tickets", "error", err, "raffle_id", raffleID)
			return nil, status.Wrap(status.KindStorageError, "could not read raffle occupancy", err)
		}

		number, err := s.allocator.Resolve(occupied, requested)
		if err != nil {
			return nil, err
		}

		ticketConflict := false
		for !ticketConflict && codeAttempts < s.cfg.MaxCodeAttempts {
			codeAttempts++

			code, err := s.GenerateCode()
			if err != nil {
				return nil, status.Wrap(status.KindStorageError, "could not generate tracking code", err)
			}

			// Sales may have closed since the first read.
			if _, err := s.activeRaffle(ctx, raffleID); err != nil {
				return nil, err
			}

			sale := &models.Sale{
				RaffleID:      raffleID,
				Name:          req.Name,
				Email:         req.Email,
				Phone:         req.Phone,
				TicketNumber:  number,
				Code:          code,
				PaymentMethod: req.PaymentMethod,
				RegisteredBy:  registeredBy,
				BoughtAt:      s.now().UTC(),
			}

			err = s.store.InsertSale(ctx, sale)
			if err == nil {
				return s.committed(ctx, raffle, sale), nil
			}

			conflict, ok := store.AsConflict(err)
			if !ok {
				if errors.Is(err, store.ErrNotFound) {
					return nil, status.ErrRaffleNotFound
				}
				slog.Error("Failed to insert sale", "error", err, "raffle_id", raffleID, "ticket_number", number)
				return nil, status.Wrap(status.KindStorageError, "could not register the sale", err)
			}
			s.recorder.IncSaleConflict(conflict.Field)

			if conflict.Field == store.FieldTicketNumber {
				if requested != nil {
					return nil, ticketTakenError(number)
				}
				slog.Debug("Ticket number taken concurrently, reallocating",
					"raffle_id", raffleID, "ticket_number", number, "round", round)
				ticketConflict = true
				continue
			}

			slog.Debug("Tracking code collision, retrying", "raffle_id", raffleID, "attempt", codeAttempts)
		}

		if codeAttempts >= s.cfg.MaxCodeAttempts {
			break
		}
	}

	slog.Warn("Sale registration retries exhausted",
		"raffle_id", raffleID, "code_attempts", codeAttempts)
	return nil, status.ErrSaleRegistrationExhausted
}

// committed runs the post-insert steps. Neither can undo the sale, so their
// failures are only logged.
func (s *SaleService) committed(ctx context.Context, raffle *models.Raffle, sale *models.Sale) *SaleResult {
	sold, err := s.store.RecountSoldCount(ctx, sale.RaffleID)
	if err != nil {
		slog.Warn("Failed to reconcile sold count", "error", err, "raffle_id", sale.RaffleID)
	} else {
		raffle.TicketsSold = sold
		s.recorder.SetTicketsSold(sale.RaffleID, sold)
	}

	s.notifier.SaleRegistered(ctx, raffle, sale)

	formatted := FormatTicketNumber(sale.TicketNumber)
	slog.Info("Sale registered",
		"raffle_id", sale.RaffleID,
		"ticket_number", formatted,
		"code", sale.Code,
		"registered_by", sale.RegisteredBy)

	return &SaleResult{
		SaleID:                sale.ID,
		TicketNumber:          sale.TicketNumber,
		TicketNumberFormatted: formatted,
		TrackingCode:          sale.Code,
		RaffleTitle:           raffle.Title,
		Message:               fmt.Sprintf("Ticket #%s registered for %s", formatted, raffle.Title),
	}
}

func (s *SaleService) activeRaffle(ctx context.Context, raffleID string) (*models.Raffle, error) {
	raffle, err := s.store.FindRaffleByID(ctx, raffleID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.ErrRaffleNotFound
	}
	if err != nil {
		slog.Error("Failed to load raffle", "error", err, "raffle_id", raffleID)
		return nil, status.Wrap(status.KindStorageError, "could not load raffle", err)
	}
	if !raffle.AcceptsSales() {
		return nil, status.ErrRaffleNotActive
	}
	return raffle, nil
}

// normalize trims and validates req in place and returns the requested
// ticket number, if any.
func (s *SaleService) normalize(req *SaleRequest) (*int, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)

	if err := validation.Validate(req.Name, validation.Required); err != nil {
		return nil, status.ErrMissingRequiredField
	}
	if err := validation.Validate(req.Email, validation.Required); err != nil {
		return nil, status.ErrMissingRequiredField
	}
	if err := validation.Validate(req.Email, validation.Match(mailboxPattern)); err != nil {
		return nil, status.ErrInvalidEmail
	}

	if req.PaymentMethod == "" {
		req.PaymentMethod = s.cfg.DefaultPaymentMethod
	}

	if req.TicketNumber == "" {
		return nil, nil
	}
	n, err := ParseTicketNumber(req.TicketNumber)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
