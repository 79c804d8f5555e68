package services

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"raffle-system/internal/status"
	"raffle-system/models"
)

var ticketNumberPattern = regexp.MustCompile(`^[0-9]{4}$`)

// TicketAllocator resolves the ticket number a purchase receives, given the
// numbers already sold in the raffle. It holds no state between calls.
type TicketAllocator struct {
	min int
	max int
}

func NewTicketAllocator() *TicketAllocator {
	return &TicketAllocator{min: models.MinTicketNumber, max: models.MaxTicketNumber}
}

// Resolve returns requested when it is inside the pool and free, or the
// lowest free number when requested is nil.
func (a *TicketAllocator) Resolve(occupied []int, requested *int) (int, error) {
	if requested != nil {
		n := *requested
		if n < a.min || n > a.max {
			return 0, status.New(status.KindInvalidTicketNumber,
				fmt.Sprintf("ticket number must be between %s and %s", FormatTicketNumber(a.min), FormatTicketNumber(a.max)))
		}
		for _, taken := range occupied {
			if taken == n {
				return 0, ticketTakenError(n)
			}
		}
		return n, nil
	}

	next := a.lowestFree(occupied)
	if next > a.max {
		return 0, status.ErrPoolExhausted
	}
	return next, nil
}

func (a *TicketAllocator) lowestFree(occupied []int) int {
	sorted := append([]int(nil), occupied...)
	sort.Ints(sorted)

	next := a.min
	for _, n := range sorted {
		if n < next {
			// duplicates or numbers below the pool
			continue
		}
		if n != next {
			break
		}
		next++
	}
	return next
}

// FormatTicketNumber renders n zero padded to four digits.
func FormatTicketNumber(n int) string {
	return fmt.Sprintf("%0*d", models.TicketDigits, n)
}

// ParseTicketNumber accepts exactly four ASCII digits.
func ParseTicketNumber(raw string) (int, error) {
	if !ticketNumberPattern.MatchString(raw) {
		return 0, status.ErrInvalidTicketNumberFormat
	}
	return strconv.Atoi(raw)
}

func ticketTakenError(n int) error {
	return status.New(status.KindTicketAlreadyTaken,
		fmt.Sprintf("ticket #%s is already taken", FormatTicketNumber(n)))
}
