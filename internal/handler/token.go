package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/apimplane/apim/internal/auth"
	"github.com/apimplane/apim/internal/handler/dto"
	"github.com/apimplane/apim/internal/service"
)

// TokenHandler handles the management tokens of the calling user.
type TokenHandler struct {
	svc    *service.TokenService
	logger *slog.Logger
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(svc *service.TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		svc:    svc,
		logger: logger.With("component", "token_handler"),
	}
}

// Create handles POST /tokens. The plaintext token is only returned here.
func (h *TokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !requireCaller(w, r) {
		return
	}
	var req dto.NewTokenEntity
	if !decodeJSON(w, r, &req, false) {
		return
	}

	ec := executionContext(r)
	issued, err := h.svc.Create(r.Context(), ec, req.ToInput())
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	h.logger.Info("token_created",
		slog.String("token_id", issued.Token.ID),
		slog.String("token_prefix", issued.Token.TokenPrefix),
		slog.String("user_id", ec.UserID),
	)
	writeJSON(w, http.StatusCreated, dto.ToIssuedTokenEntity(issued))
}

// List handles GET /tokens.
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	if !requireCaller(w, r) {
		return
	}

	tokens, err := h.svc.List(r.Context(), executionContext(r))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	out := make([]dto.TokenEntity, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, dto.ToTokenEntity(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// Revoke handles DELETE /tokens/{tokenId}. Tokens of other users are
// reported as missing.
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if !requireCaller(w, r) {
		return
	}

	tokenID := chi.URLParam(r, ParamTokenID)
	ec := executionContext(r)
	if err := h.svc.Revoke(r.Context(), ec, tokenID); err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	h.logger.Info("token_revoked",
		slog.String("token_id", tokenID),
		slog.String("user_id", ec.UserID),
	)
	w.WriteHeader(http.StatusNoContent)
}

// Rotate handles POST /tokens/{tokenId}/_rotate.
func (h *TokenHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	if !requireCaller(w, r) {
		return
	}

	tokenID := chi.URLParam(r, ParamTokenID)
	issued, err := h.svc.Rotate(r.Context(), executionContext(r), tokenID)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	h.logger.Info("token_rotated",
		slog.String("old_token_id", tokenID),
		slog.String("new_token_id", issued.Token.ID),
	)
	writeJSON(w, http.StatusOK, dto.ToIssuedTokenEntity(issued))
}

func requireCaller(w http.ResponseWriter, r *http.Request) bool {
	if auth.AuthFromContext(r.Context()) == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return false
	}
	return true
}
