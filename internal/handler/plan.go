package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/apimplane/apim/internal/handler/dto"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/service"
)

// PlanHandler handles the plan lifecycle endpoints of an API.
type PlanHandler struct {
	svc    *service.PlanService
	logger *slog.Logger
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(svc *service.PlanService, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{
		svc:    svc,
		logger: logger.With("component", "plan_handler"),
	}
}

// List handles GET /apis/{apiId}/plans?status=PUBLISHED,DEPRECATED.
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []model.PlanStatus
	for _, s := range splitQuery(r, "status") {
		statuses = append(statuses, model.PlanStatus(s))
	}

	plans, err := h.svc.List(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), statuses...)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToPlanEntities(plans))
}

// Get handles GET /apis/{apiId}/plans/{planId}.
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	plan, err := h.svc.Get(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamPlanID))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToPlanEntity(plan))
}

// Create handles POST /apis/{apiId}/plans.
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.NewPlanEntity
	if !decodeJSON(w, r, &req, false) {
		return
	}

	plan, err := h.svc.Create(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), req.ToInput())
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	h.logger.Info("plan_created",
		"api_id", plan.ApiID,
		"plan_id", plan.ID,
		"security", plan.Security,
	)
	writeJSON(w, http.StatusCreated, dto.ToPlanEntity(plan))
}

// Update handles PUT /apis/{apiId}/plans/{planId}.
func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdatePlanEntity
	if !decodeJSON(w, r, &req, false) {
		return
	}

	plan, err := h.svc.Update(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamPlanID), req.ToInput())
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToPlanEntity(plan))
}

// Publish handles POST /apis/{apiId}/plans/{planId}/_publish.
func (h *PlanHandler) Publish(w http.ResponseWriter, r *http.Request) {
	plan, err := h.svc.Publish(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamPlanID))
	h.writeTransition(w, plan, err)
}

// Deprecate handles POST /apis/{apiId}/plans/{planId}/_deprecate.
// allowStaging=true lets a plan that was never published be deprecated.
func (h *PlanHandler) Deprecate(w http.ResponseWriter, r *http.Request) {
	allowStaging, _ := strconv.ParseBool(r.URL.Query().Get("allowStaging"))
	plan, err := h.svc.Deprecate(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamPlanID), allowStaging)
	h.writeTransition(w, plan, err)
}

// Close handles POST /apis/{apiId}/plans/{planId}/_close.
func (h *PlanHandler) Close(w http.ResponseWriter, r *http.Request) {
	plan, err := h.svc.Close(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamPlanID))
	h.writeTransition(w, plan, err)
}

// Delete handles DELETE /apis/{apiId}/plans/{planId}.
func (h *PlanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	apiID, planID := chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamPlanID)
	if err := h.svc.Delete(r.Context(), executionContext(r), apiID, planID); err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	h.logger.Info("plan_deleted", "api_id", apiID, "plan_id", planID)
	w.WriteHeader(http.StatusNoContent)
}

// Reorder handles POST /apis/{apiId}/plans/{planId}/_reorder with body {"order": n}.
func (h *PlanHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req dto.ReorderPlanEntity
	if !decodeJSON(w, r, &req, false) {
		return
	}

	plan, err := h.svc.Reorder(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), chi.URLParam(r, ParamPlanID), req.Order)
	h.writeTransition(w, plan, err)
}

func (h *PlanHandler) writeTransition(w http.ResponseWriter, plan *model.Plan, err error) {
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	h.logger.Info("plan_transitioned",
		"api_id", plan.ApiID,
		"plan_id", plan.ID,
		"status", plan.Status,
		"order", plan.Order,
	)
	writeJSON(w, http.StatusOK, dto.ToPlanEntity(plan))
}
