package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/apimplane/apim/internal/handler/dto"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/upgrader"
)

// AdminTokenLister defines the interface for listing management tokens.
type AdminTokenLister interface {
	ListTokensByUserID(ctx context.Context, userID string) ([]*model.Token, error)
}

// SubscriptionExpirer closes subscriptions whose end date has passed.
type SubscriptionExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// AdminDeps groups the collaborators of AdminHandler. Nil members disable
// the matching endpoint.
type AdminDeps struct {
	Tokens       AdminTokenLister
	Installation upgrader.InstallationStore
	Upgraders    []string
	Expirer      SubscriptionExpirer
	Version      string
}

// AdminHandler provides admin-only endpoints for debugging and operations.
type AdminHandler struct {
	deps      AdminDeps
	startedAt time.Time
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(deps AdminDeps, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		deps:      deps,
		startedAt: time.Now(),
		logger:    logger.With("component", "admin_handler"),
	}
}

// AdminTokenListResponse represents the response for token listing.
type AdminTokenListResponse struct {
	Tokens []dto.TokenEntity `json:"tokens"`
	Total  int               `json:"total"`
}

// ListTokensByUser handles GET /admin/tokens?userId={id}.
// Lists all management tokens of a user.
func (h *AdminHandler) ListTokensByUser(w http.ResponseWriter, r *http.Request) {
	if h.deps.Tokens == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "token listing is not configured")
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_USER_ID", "query parameter 'userId' is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tokens, err := h.deps.Tokens.ListTokensByUserID(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list tokens", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list tokens")
		return
	}

	response := AdminTokenListResponse{
		Tokens: make([]dto.TokenEntity, 0, len(tokens)),
		Total:  len(tokens),
	}
	for _, t := range tokens {
		response.Tokens = append(response.Tokens, dto.ToTokenEntity(t))
	}
	writeJSON(w, http.StatusOK, response)
}

// UpgraderStatus is the stored outcome of one upgrader.
type UpgraderStatus struct {
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Message   string     `json:"message,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Upgraders handles GET /admin/upgraders. Upgraders that never ran are
// reported with status PENDING.
func (h *AdminHandler) Upgraders(w http.ResponseWriter, r *http.Request) {
	if h.deps.Installation == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "installation store is not configured")
		return
	}

	out := make([]UpgraderStatus, 0, len(h.deps.Upgraders))
	for _, name := range h.deps.Upgraders {
		st, err := h.deps.Installation.Get(r.Context(), name)
		switch {
		case errors.Is(err, upgrader.ErrStatusNotFound):
			out = append(out, UpgraderStatus{Name: name, Status: "PENDING"})
		case err != nil:
			h.logger.Error("failed to read installation status", "error", err, "upgrader", name)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read installation status")
			return
		default:
			updated := st.UpdatedAt
			out = append(out, UpgraderStatus{
				Name:      name,
				Status:    string(st.Value),
				Message:   st.Message,
				UpdatedAt: &updated,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ExpireSubscriptions handles POST /admin/subscriptions/_expire. It runs the
// expiry job immediately.
func (h *AdminHandler) ExpireSubscriptions(w http.ResponseWriter, r *http.Request) {
	if h.deps.Expirer == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "subscription expiry is not configured")
		return
	}

	closed, err := h.deps.Expirer.ExpireDue(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error("subscription expiry failed", "error", err, "closed", closed)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "subscription expiry failed")
		return
	}

	h.logger.Info("subscriptions_expired", "closed", closed, "trigger", "admin")
	writeJSON(w, http.StatusOK, map[string]int{"closed": closed})
}

// StatsResponse represents operational statistics.
type StatsResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime,omitempty"`
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Timestamp: time.Now().UTC(),
		Service:   "apim",
		Version:   h.deps.Version,
		Uptime:    time.Since(h.startedAt).Truncate(time.Second).String(),
	})
}
