package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"ulid", "01HZY8Q4T6J6V1V0M4B5W3K9QZ", nil},
		{"uuid", "0b3c2d1e-7f6a-4b5c-9d8e-1f2a3b4c5d6e", nil},
		{"environment", "DEFAULT", nil},
		{"cross id with dots", "team.echo-api:v1", nil},
		{"too long", strings.Repeat("a", MaxIDLength+1), ErrIDTooLong},
		{"empty", "", ErrIDInvalid},
		{"slash", "a/b", ErrIDInvalid},
		{"space", "a b", ErrIDInvalid},
		{"unicode", "аpi", ErrIDInvalid},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateID(tt.id); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateID(%q) = %v, want %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateURLParams(t *testing.T) {
	r := chi.NewRouter()
	r.With(ValidateURLParams("apiId", "planId")).Get("/apis/{apiId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/apis/api-1", http.StatusOK},
		{"/apis/" + strings.Repeat("x", MaxIDLength+1), http.StatusBadRequest},
		{"/apis/bad%20id", http.StatusBadRequest},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.wantStatus {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantStatus)
		}
	}
}
