package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/pocketbase/pocketbase/core"

	"raffle-system/internal/status"
)

const headerUserSecret = "X-User-Secret"

// respondError writes err as {"message", "kind"} with the status its kind maps to.
// Errors without a kind are reported as storage failures without their cause.
func respondError(e *core.RequestEvent, err error) error {
	var se *status.Error
	if !errors.As(err, &se) {
		se = status.Wrap(status.KindStorageError, status.ErrStorage.Message, err)
	}
	if se.Kind == status.KindStorageError {
		slog.Error("Request failed", "error", err, "path", e.Request.URL.Path)
	}

	return e.JSON(se.HTTPStatus(), map[string]any{
		"message": se.Message,
		"kind":    se.Kind,
	})
}

// ticketNumberInput accepts the requested ticket as a JSON string or number.
// A number is kept as its decimal text, so 42 fails the four digit format
// the same way "42" does.
type ticketNumberInput string

func (t *ticketNumberInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = ticketNumberInput(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = ticketNumberInput(n.String())
	return nil
}

func ownerSecret(e *core.RequestEvent, fromBody string) string {
	if secret := strings.TrimSpace(e.Request.Header.Get(headerUserSecret)); secret != "" {
		return secret
	}
	return strings.TrimSpace(fromBody)
}
