package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
)

// MaxIDLength bounds identifiers accepted in URL paths.
const MaxIDLength = 64

var (
	// ErrIDTooLong is returned for identifiers longer than MaxIDLength.
	ErrIDTooLong = errors.New("identifier exceeds maximum length")
	// ErrIDInvalid is returned for identifiers with unexpected characters.
	ErrIDInvalid = errors.New("identifier contains invalid characters")
)

// ULIDs, UUIDs and crossIds all fit this alphabet.
var validIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// ValidateID checks a path identifier.
func ValidateID(id string) error {
	if len(id) > MaxIDLength {
		return ErrIDTooLong
	}
	if !validIDPattern.MatchString(id) {
		return ErrIDInvalid
	}
	return nil
}

// ValidateURLParams rejects requests whose named chi URL params are not
// valid identifiers. Params absent from the route are ignored.
func ValidateURLParams(names ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, name := range names {
				value := chi.URLParam(r, name)
				if value == "" {
					continue
				}
				if err := ValidateID(value); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", fmt.Sprintf("%s: %v", name, err))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
