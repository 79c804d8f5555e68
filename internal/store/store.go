// Package store defines the persistence contract the raffle engine depends on.
//
// Correctness of ticket allocation is delegated to the backends: InsertSale
// must enforce the (raffle, ticket number) and tracking-code uniqueness
// constraints atomically, and UpdateRaffleIfStatus must be a compare-and-swap
// on the raffle status.
package store

import (
	"context"
	"errors"
	"fmt"

	"raffle-system/models"
)

// ErrNotFound is returned when a raffle, sale or saved ticket does not exist.
var ErrNotFound = errors.New("store: record not found")

// Constraint names reported by ConflictError.
const (
	FieldCode         = "code"
	FieldTicketNumber = "ticketNumber"
	FieldOwnerCode    = "ownerCode"
)

// ConflictError reports a uniqueness violation on Field.
type ConflictError struct {
	Field string
	Err   error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: unique constraint on %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("store: unique constraint on %s", e.Field)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// AsConflict returns the conflict carried by err, if any.
func AsConflict(err error) (*ConflictError, bool) {
	var c *ConflictError
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

type Store interface {
	CreateRaffle(ctx context.Context, raffle *models.Raffle) error
	ListRaffles(ctx context.Context) ([]*models.Raffle, error)
	FindRaffleByID(ctx context.Context, id string) (*models.Raffle, error)

	// ListOccupiedTicketNumbers returns the ticket numbers already sold in the
	// raffle, in no particular order.
	ListOccupiedTicketNumbers(ctx context.Context, raffleID string) ([]int, error)

	// InsertSale stores sale and fills its ID. A uniqueness violation leaves
	// nothing behind and is reported as *ConflictError.
	InsertSale(ctx context.Context, sale *models.Sale) error

	// RecountSoldCount sets the raffle sold count to the number of its sales
	// and returns it.
	RecountSoldCount(ctx context.Context, raffleID string) (int, error)

	// UpdateRaffleIfStatus applies patch only while the raffle status equals
	// expected. It reports whether the patch was applied.
	UpdateRaffleIfStatus(ctx context.Context, raffleID string, expected models.RaffleStatus, patch models.RafflePatch) (bool, error)

	ListSales(ctx context.Context, raffleID string) ([]*models.Sale, error)
	FindSaleByCode(ctx context.Context, code string) (*models.Sale, error)

	SaveTicket(ctx context.Context, ticket *models.SavedTicket) error
	ListSavedTickets(ctx context.Context, ownerKey string) ([]*models.SavedTicket, error)
	DeleteSavedTicket(ctx context.Context, ownerKey, code string) (bool, error)
}
