package pbstore

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"raffle-system/internal/store"
)

const codeNotUnique = "validation_not_unique"

// uniqueViolationField maps a failed record save to the store field whose
// unique index rejected it. PocketBase reports the violation either as a
// field validation error or, when two saves race, as the raw SQLite error.
func uniqueViolationField(err error) string {
	if err == nil {
		return ""
	}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		switch {
		case notUnique(fieldErrs, "ticket_number"), notUnique(fieldErrs, "raffle"):
			return store.FieldTicketNumber
		case notUnique(fieldErrs, "owner_key"):
			return store.FieldOwnerCode
		case notUnique(fieldErrs, "code"):
			return store.FieldCode
		}
		return ""
	}

	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return ""
	}
	switch {
	case strings.Contains(msg, "sales.ticket_number"):
		return store.FieldTicketNumber
	case strings.Contains(msg, "saved_tickets.owner_key"):
		return store.FieldOwnerCode
	case strings.Contains(msg, "sales.code"):
		return store.FieldCode
	}
	return ""
}

func notUnique(errs validation.Errors, field string) bool {
	err, ok := errs[field]
	if !ok {
		return false
	}
	var verr validation.Error
	if errors.As(err, &verr) {
		return verr.Code() == codeNotUnique
	}
	return false
}
