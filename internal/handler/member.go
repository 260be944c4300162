package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apimplane/apim/internal/handler/dto"
	"github.com/apimplane/apim/internal/model"
	"github.com/apimplane/apim/internal/service"
)

// MemberHandler handles the memberships and the primary owner of an API.
type MemberHandler struct {
	apis    *service.ApiService
	members *service.MembershipService
	owners  *service.PrimaryOwnerDomainService
	logger  *slog.Logger
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(apis *service.ApiService, members *service.MembershipService, owners *service.PrimaryOwnerDomainService, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{
		apis:    apis,
		members: members,
		owners:  owners,
		logger:  logger.With("component", "member_handler"),
	}
}

// List handles GET /apis/{apiId}/members.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	apiID, ok := h.apiID(w, r)
	if !ok {
		return
	}

	members, err := h.members.ListMembers(r.Context(), model.ReferenceAPI, apiID)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToMemberEntities(members))
}

// Add handles POST /apis/{apiId}/members.
func (h *MemberHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req dto.AddMemberEntity
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.MemberID == "" {
		writeErrorWithParams(w, http.StatusBadRequest, "VALIDATION_ERROR", "memberId is required",
			map[string]string{"field": "memberId"})
		return
	}
	apiID, ok := h.apiID(w, r)
	if !ok {
		return
	}

	member, err := h.members.AddMember(r.Context(), executionContext(r), model.ReferenceAPI, apiID, req.MemberID, req.MemberType(), req.Role)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	h.logger.Info("member_added",
		"api_id", apiID,
		"member_id", member.ID,
		"member_type", member.Type,
		"role", member.Role,
	)
	writeJSON(w, http.StatusCreated, dto.ToMemberEntity(member))
}

// Update handles PUT /apis/{apiId}/members/{memberId}.
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateMemberEntity
	if !decodeJSON(w, r, &req, false) {
		return
	}
	apiID, ok := h.apiID(w, r)
	if !ok {
		return
	}

	member, err := h.members.UpdateMemberRole(r.Context(), executionContext(r), model.ReferenceAPI, apiID,
		chi.URLParam(r, ParamMemberID), memberType(req.Type), req.Role)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToMemberEntity(member))
}

// Remove handles DELETE /apis/{apiId}/members/{memberId}?type=GROUP.
func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	apiID, ok := h.apiID(w, r)
	if !ok {
		return
	}

	memberID := chi.URLParam(r, ParamMemberID)
	err := h.members.RemoveMember(r.Context(), executionContext(r), model.ReferenceAPI, apiID,
		memberID, memberType(r.URL.Query().Get("type")))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	h.logger.Info("member_removed", "api_id", apiID, "member_id", memberID)
	w.WriteHeader(http.StatusNoContent)
}

// PrimaryOwner handles GET /apis/{apiId}/primary-owner.
func (h *MemberHandler) PrimaryOwner(w http.ResponseWriter, r *http.Request) {
	apiID, ok := h.apiID(w, r)
	if !ok {
		return
	}

	owner, err := h.owners.GetApiPrimaryOwner(r.Context(), executionContext(r).OrganizationID, apiID)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToPrimaryOwnerEntity(owner))
}

// TransferOwnership handles POST /apis/{apiId}/_transfer-ownership.
func (h *MemberHandler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req dto.TransferOwnershipEntity
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.NewPrimaryOwnerID == "" {
		writeErrorWithParams(w, http.StatusBadRequest, "VALIDATION_ERROR", "newPrimaryOwnerId is required",
			map[string]string{"field": "newPrimaryOwnerId"})
		return
	}
	apiID, ok := h.apiID(w, r)
	if !ok {
		return
	}

	owner, err := h.owners.TransferOwnership(r.Context(), executionContext(r), model.ReferenceAPI, apiID,
		req.NewPrimaryOwnerID, memberType(req.NewPrimaryOwnerType))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	h.logger.Info("ownership_transferred",
		"api_id", apiID,
		"owner_id", owner.ID,
		"owner_type", owner.Type,
	)
	writeJSON(w, http.StatusOK, dto.ToPrimaryOwnerEntity(owner))
}

// apiID returns the API of the path once it is known to exist in the
// caller's environment.
func (h *MemberHandler) apiID(w http.ResponseWriter, r *http.Request) (string, bool) {
	api, err := h.apis.Get(r.Context(), executionContext(r), chi.URLParam(r, ParamApiID))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return "", false
	}
	return api.ID, true
}

func memberType(s string) model.MemberType {
	if s == "" {
		return model.MemberUser
	}
	return model.MemberType(s)
}
