package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apimplane/apim/internal/handler/dto"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/service"
)

// maxCRDSize bounds a Kubernetes resource body.
const maxCRDSize = 1 << 20

// ApiHandler handles the management endpoints of API definitions.
type ApiHandler struct {
	svc    *service.ApiService
	owners *service.PrimaryOwnerDomainService
	logger *slog.Logger
}

// NewApiHandler creates a new ApiHandler.
func NewApiHandler(svc *service.ApiService, owners *service.PrimaryOwnerDomainService, logger *slog.Logger) *ApiHandler {
	return &ApiHandler{
		svc:    svc,
		owners: owners,
		logger: logger.With("component", "api_handler"),
	}
}

// Create handles POST /apis.
func (h *ApiHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.NewApiEntity
	if !decodeJSON(w, r, &req, false) {
		return
	}

	ec := executionContext(r)
	api, err := h.svc.Create(r.Context(), ec, req.ToInput())
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	h.logger.Info("api_created",
		"api_id", api.ID,
		"environment_id", ec.EnvironmentID,
		"user_id", ec.UserID,
	)
	h.writeApi(w, r, http.StatusCreated, api)
}

// Get handles GET /apis/{apiId}.
func (h *ApiHandler) Get(w http.ResponseWriter, r *http.Request) {
	api, err := h.svc.Get(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	h.writeApi(w, r, http.StatusOK, api)
}

// List handles GET /apis?q=&page=&perPage=.
func (h *ApiHandler) List(w http.ResponseWriter, r *http.Request) {
	page := pageFromQuery(r)
	ec := executionContext(r)

	apis, total, err := h.svc.Search(r.Context(), ec, r.URL.Query().Get("q"), page)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	entities := make([]dto.ApiEntity, 0, len(apis))
	for _, api := range apis {
		owner, err := h.primaryOwner(r, ec, api)
		if err != nil {
			handleServiceError(h.logger, w, err)
			return
		}
		entities = append(entities, dto.ToApiEntity(api, owner))
	}

	number, size := effectivePage(page)
	writeJSON(w, http.StatusOK, dto.NewPage(entities, number, size, total))
}

// Update handles PUT /apis/{apiId}.
func (h *ApiHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateApiEntity
	if !decodeJSON(w, r, &req, false) {
		return
	}

	api, err := h.svc.Update(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID), req.ToInput())
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	h.writeApi(w, r, http.StatusOK, api)
}

// Delete handles DELETE /apis/{apiId}.
func (h *ApiHandler) Delete(w http.ResponseWriter, r *http.Request) {
	apiID := chi.URLParam(r, ParamApiID)
	if err := h.svc.Delete(r.Context(), executionContext(r), apiID); err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	h.logger.Info("api_deleted", "api_id", apiID)
	w.WriteHeader(http.StatusNoContent)
}

// Start handles POST /apis/{apiId}/_start.
func (h *ApiHandler) Start(w http.ResponseWriter, r *http.Request) {
	api, err := h.svc.Start(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	h.writeApi(w, r, http.StatusOK, api)
}

// Stop handles POST /apis/{apiId}/_stop.
func (h *ApiHandler) Stop(w http.ResponseWriter, r *http.Request) {
	api, err := h.svc.Stop(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	h.writeApi(w, r, http.StatusOK, api)
}

// ImportCRD handles PUT /apis/_import/crd. The body is a JSON or YAML
// resource, selected by Content-Type.
func (h *ApiHandler) ImportCRD(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCRDSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Unable to read request body")
		return
	}
	if len(body) > maxCRDSize {
		writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
		return
	}

	crd, err := dto.DecodeApiCRD(r.Header.Get("Content-Type"), body)
	if err != nil {
		if errors.Is(err, dto.ErrEmptyCRD) {
			writeError(w, http.StatusBadRequest, "INVALID_CRD", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_CRD", "Unable to decode resource")
		return
	}

	ec := executionContext(r)
	api, err := h.svc.ImportCRD(r.Context(), ec, crd.ToInput())
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	h.logger.Info("api_imported",
		"api_id", api.ID,
		"cross_id", api.CrossID,
		"environment_id", ec.EnvironmentID,
	)
	h.writeApi(w, r, http.StatusOK, api)
}

func (h *ApiHandler) writeApi(w http.ResponseWriter, r *http.Request, status int, api *model.Api) {
	owner, err := h.primaryOwner(r, executionContext(r), api)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, status, dto.ToApiEntity(api, owner))
}

// primaryOwner resolves the owner shown on an API. An API without a
// resolvable owner is still rendered.
func (h *ApiHandler) primaryOwner(r *http.Request, ec service.ExecutionContext, api *model.Api) (*model.PrimaryOwner, error) {
	owner, err := h.owners.GetApiPrimaryOwner(r.Context(), ec.OrganizationID, api.ID)
	var poErr *service.PrimaryOwnerNotFoundError
	if errors.As(err, &poErr) {
		h.logger.Warn("api without primary owner", "api_id", api.ID)
		return nil, nil
	}
	return owner, err
}
