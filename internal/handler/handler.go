// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/apimplane/apim/internal/auth"
	"github.com/apimplane/apim/internal/handler/dto"
	"github.com/apimplane/apim/internal/service"
)

// Router URL parameter names.
const (
	ParamEnvironmentID  = "envId"
	ParamApiID          = "apiId"
	ParamPlanID         = "planId"
	ParamSubscriptionID = "subscriptionId"
	ParamMemberID       = "memberId"
	ParamApplicationID  = "applicationId"
	ParamTokenID        = "tokenId"
)

// NotFound handles unmatched routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

// MethodNotAllowed handles unsupported methods on a known route.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorWithParams(w, status, code, message, nil)
}

func writeErrorWithParams(w http.ResponseWriter, status int, code, message string, params map[string]string) {
	writeJSON(w, status, dto.ErrorResponse{Error: dto.ErrorDetail{
		Code:      code,
		Message:   message,
		HTTPCode:  status,
		Parameter: params,
	}})
}

// decodeJSON decodes the request body into v. An empty body leaves v untouched
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
	return false
}

// executionContext builds the service execution context from the
// authenticated caller and the environment in the path.
func executionContext(r *http.Request) service.ExecutionContext {
	org, user := auth.Principal(r.Context())
	return service.ExecutionContext{
		OrganizationID: org,
		EnvironmentID:  chi.URLParam(r, ParamEnvironmentID),
		UserID:         user,
	}
}

// pageFromQuery reads page and perPage (or size) query parameters. Invalid
// values fall back to the service defaults.
func pageFromQuery(r *http.Request) service.Page {
	q := r.URL.Query()
	page := service.Page{Number: atoiOrZero(q.Get("page"))}
	page.Size = atoiOrZero(q.Get("perPage"))
	if page.Size == 0 {
		page.Size = atoiOrZero(q.Get("size"))
	}
	return page
}

// effectivePage mirrors the service normalization so responses echo the
// bounds actually applied.
func effectivePage(p service.Page) (number, size int) {
	number, size = p.Number, p.Size
	if number <= 0 {
		number = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return number, size
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// splitQuery splits a comma separated query parameter, dropping blanks.
func splitQuery(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
