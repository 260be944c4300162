package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/apimplane/apim/internal/handler/dto"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/service"
)

// AuditHandler serves the audit trail of an API.
type AuditHandler struct {
	apis   *service.ApiService
	audit  *service.AuditService
	logger *slog.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(apis *service.ApiService, audit *service.AuditService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		apis:   apis,
		audit:  audit,
		logger: logger.With("component", "audit_handler"),
	}
}

// List handles GET /apis/{apiId}/audits?events=&from=&to=&page=&perPage=.
// from and to accept RFC 3339 or epoch milliseconds.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	ec := executionContext(r)
	api, err := h.apis.Get(r.Context(), ec, chi.URLParam(r, ParamApiID))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	q := r.URL.Query()
	from, ok := parseTime(q.Get("from"))
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "from must be RFC 3339 or epoch milliseconds")
		return
	}
	to, ok := parseTime(q.Get("to"))
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "to must be RFC 3339 or epoch milliseconds")
		return
	}

	number, size := effectivePage(pageFromQuery(r))
	entries, total, err := h.audit.Search(r.Context(), model.AuditQuery{
		ReferenceType: model.ReferenceAPI,
		ReferenceID:   api.ID,
		Events:        splitQuery(r, "events"),
		From:          from,
		To:            to,
		Page:          number,
		Size:          size,
	})
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewPage(dto.ToAuditEntities(entries), number, size, total))
}

// parseTime returns nil for an empty value.
func parseTime(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t, true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
