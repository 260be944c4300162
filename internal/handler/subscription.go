package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apimplane/apim/internal/handler/dto"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/service"
)

// SubscriptionHandler handles the subscriptions of an API.
type SubscriptionHandler struct {
	svc    *service.SubscriptionService
	logger *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(svc *service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		svc:    svc,
		logger: logger.With("component", "subscription_handler"),
	}
}

// Create handles POST /apis/{apiId}/subscriptions. The API key is returned
// when the plan issued one.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.NewSubscriptionEntity
	if !decodeJSON(w, r, &req, false) {
		return
	}

	sub, key, err := h.svc.Create(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), req.ToInput())
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	h.logger.Info("subscription_created",
		"api_id", sub.ApiID,
		"plan_id", sub.PlanID,
		"subscription_id", sub.ID,
		"status", sub.Status,
		"api_key_issued", key != nil,
	)
	writeJSON(w, http.StatusCreated, dto.CreatedSubscriptionEntity{
		SubscriptionEntity: dto.ToSubscriptionEntity(sub),
		ApiKey:             dto.ToApiKeyEntity(key),
	})
}

// List handles GET /apis/{apiId}/subscriptions?application=&plan=&status=.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := service.SubscriptionFilter{
		ApplicationID: r.URL.Query().Get("application"),
		PlanIDs:       splitQuery(r, "plan"),
	}
	for _, s := range splitQuery(r, "status") {
		filter.Statuses = append(filter.Statuses, model.SubscriptionStatus(s))
	}

	subs, err := h.svc.List(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), filter)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	out := make([]dto.SubscriptionEntity, 0, len(subs))
	for _, sub := range subs {
		out = append(out, dto.ToSubscriptionEntity(sub))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /apis/{apiId}/subscriptions/{subscriptionId}.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Get(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamSubscriptionID))
	h.write(w, sub, err)
}

// ListApiKeys handles GET /apis/{apiId}/subscriptions/{subscriptionId}/api-keys.
func (h *SubscriptionHandler) ListApiKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.svc.ListApiKeys(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamSubscriptionID))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	out := make([]*dto.ApiKeyEntity, 0, len(keys))
	for _, key := range keys {
		out = append(out, dto.ToApiKeyEntity(key))
	}
	writeJSON(w, http.StatusOK, out)
}

// Accept handles POST .../{subscriptionId}/_accept with an optional reason.
func (h *SubscriptionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req dto.ProcessSubscriptionEntity
	if !decodeJSON(w, r, &req, true) {
		return
	}
	sub, err := h.svc.Accept(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamSubscriptionID), req.Reason)
	h.writeTransition(w, sub, err)
}

// Reject handles POST .../{subscriptionId}/_reject with an optional reason.
func (h *SubscriptionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req dto.ProcessSubscriptionEntity
	if !decodeJSON(w, r, &req, true) {
		return
	}
	sub, err := h.svc.Reject(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamSubscriptionID), req.Reason)
	h.writeTransition(w, sub, err)
}

// Pause handles POST .../{subscriptionId}/_pause.
func (h *SubscriptionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Pause(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamSubscriptionID))
	h.writeTransition(w, sub, err)
}

// Resume handles POST .../{subscriptionId}/_resume.
func (h *SubscriptionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Resume(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamSubscriptionID))
	h.writeTransition(w, sub, err)
}

// Close handles POST .../{subscriptionId}/_close.
func (h *SubscriptionHandler) Close(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Close(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamSubscriptionID))
	h.writeTransition(w, sub, err)
}

func (h *SubscriptionHandler) writeTransition(w http.ResponseWriter, sub *model.Subscription, err error) {
	if err == nil {
		h.logger.Info("subscription_transitioned",
			"api_id", sub.ApiID,
			"subscription_id", sub.ID,
			"status", sub.Status,
		)
	}
	h.write(w, sub, err)
}

func (h *SubscriptionHandler) write(w http.ResponseWriter, sub *model.Subscription, err error) {
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToSubscriptionEntity(sub))
}
