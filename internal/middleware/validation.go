package middleware

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/yodabot/support-desk/internal/model"
)

const maxQueryLength = 256

// ValidateTicketID checks the "TCK-<digits>" form.
func ValidateTicketID(id string) error {
	rest, ok := strings.CutPrefix(id, model.IDPrefix)
	if !ok || rest == "" {
		return errors.New("invalid ticket ID format")
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return errors.New("invalid ticket ID format")
		}
	}
	return nil
}

// ValidateSearchQuery checks a search keyword.
func ValidateSearchQuery(q string) error {
	if strings.TrimSpace(q) == "" {
		return errors.New("query cannot be empty")
	}
	if len(q) > maxQueryLength {
		return errors.New("query exceeds maximum length")
	}
	if !utf8.ValidString(q) {
		return errors.New("query must be valid UTF-8")
	}
	return nil
}

// TicketIDParam rejects requests whose {id} URL parameter is not a ticket
// id. Lowercase ids are accepted and normalized.
func TicketIDParam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		id := strings.ToUpper(chi.URLParam(r, "id"))
		if err := ValidateTicketID(id); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if rctx != nil {
			for i, k := range rctx.URLParams.Keys {
				if k == "id" {
					rctx.URLParams.Values[i] = id
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders sets conservative response headers for a JSON API.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
