package status

import (
	"errors"
	"net/http"
)

// Kind is the stable identifier of a failure, safe to expose to callers.
type Kind string

const (
	KindMissingRequiredField      Kind = "missing_required_field"
	KindInvalidEmail              Kind = "invalid_email"
	KindInvalidTicketNumberFormat Kind = "invalid_ticket_number_format"
	KindInvalidTicketNumber       Kind = "invalid_ticket_number"
	KindRaffleNotFound            Kind = "raffle_not_found"
	KindRaffleNotActive           Kind = "raffle_not_active"
	KindTicketAlreadyTaken        Kind = "ticket_already_taken"
	KindPoolExhausted             Kind = "pool_exhausted"
	KindSaleRegistrationExhausted Kind = "sale_registration_exhausted"
	KindNoParticipants            Kind = "no_participants"
	KindAlreadyDrawn              Kind = "already_drawn"
	KindSaleNotFound              Kind = "sale_not_found"
	KindSavedTicketNotFound       Kind = "saved_ticket_not_found"
	KindMissingOwnerSecret        Kind = "missing_owner_secret"
	KindInvalidRaffle             Kind = "invalid_raffle"
	KindStorageError              Kind = "storage_error"
)

var httpStatuses = map[Kind]int{
	KindRaffleNotFound:      http.StatusNotFound,
	KindSaleNotFound:        http.StatusNotFound,
	KindSavedTicketNotFound: http.StatusNotFound,
	KindStorageError:        http.StatusInternalServerError,
}

// Error is a failure with a kind and a human readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches cause to a new error of the given kind.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels work with custom messages.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// HTTPStatus is the status code the HTTP layer answers with.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatuses[e.Kind]; ok {
		return s
	}
	return http.StatusBadRequest
}

var (
	ErrMissingRequiredField      = New(KindMissingRequiredField, "name and email are required")
	ErrInvalidEmail              = New(KindInvalidEmail, "email is not valid")
	ErrInvalidTicketNumberFormat = New(KindInvalidTicketNumberFormat, "ticket number must have exactly 4 digits")
	ErrInvalidTicketNumber       = New(KindInvalidTicketNumber, "ticket number is out of range")
	ErrRaffleNotFound            = New(KindRaffleNotFound, "raffle not found")
	ErrRaffleNotActive           = New(KindRaffleNotActive, "raffle is no longer active")
	ErrTicketAlreadyTaken        = New(KindTicketAlreadyTaken, "ticket is already taken")
	ErrPoolExhausted             = New(KindPoolExhausted, "tickets sold out")
	ErrSaleRegistrationExhausted = New(KindSaleRegistrationExhausted, "could not register the sale, try again")
	ErrNoParticipants            = New(KindNoParticipants, "raffle has no participants")
	ErrAlreadyDrawn              = New(KindAlreadyDrawn, "raffle was already drawn")
	ErrSaleNotFound              = New(KindSaleNotFound, "ticket not found")
	ErrSavedTicketNotFound       = New(KindSavedTicketNotFound, "saved ticket not found")
	ErrMissingOwnerSecret        = New(KindMissingOwnerSecret, "code and user secret are required")
	ErrInvalidRaffle             = New(KindInvalidRaffle, "raffle title is required")
	ErrStorage                   = New(KindStorageError, "storage failure")
)

// KindOf returns the kind of err, or KindStorageError for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageError
}
