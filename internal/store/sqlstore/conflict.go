package sqlstore

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"raffle-system/internal/store"
)

const pgUniqueViolation = "23505"

// uniqueViolationField maps a unique violation to the store field it guards.
// It returns "" for any other error.
func uniqueViolationField(err error) string {
	if err == nil {
		return ""
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return ""
		}
		switch pgErr.ConstraintName {
		case indexSaleTicket:
			return store.FieldTicketNumber
		case indexSaleCode:
			return store.FieldCode
		case indexSavedTicket:
			return store.FieldOwnerCode
		}
		return ""
	}

	// sqlite: "UNIQUE constraint failed: sales.raffle_id, sales.ticket_number"
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return ""
	}
	switch {
	case strings.Contains(msg, "sales.ticket_number"):
		return store.FieldTicketNumber
	case strings.Contains(msg, "sales.code"):
		return store.FieldCode
	case strings.Contains(msg, "saved_tickets.owner_key"):
		return store.FieldOwnerCode
	}
	return ""
}
