package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/apimplane/apim/internal/mapper"
	"github.com/apimplane/apim/internal/mapper/portal"
	"github.com/apimplane/apim/internal/service"
)

// PortalCache stores encoded portal representations per environment.
type PortalCache interface {
	Get(ctx context.Context, environmentID, key string) ([]byte, bool)
	Set(ctx context.Context, environmentID, key string, body []byte)
}

// PortalConfig holds the deployment values of the portal API.
type PortalConfig struct {
	// OrganizationID owns every environment served by this portal.
	OrganizationID string
	// BaseURL is the public root of this service, used for _links.
	BaseURL string
	// Entrypoints are the gateway base URLs published with each API.
	Entrypoints []string
	// MaxAge is sent as the Cache-Control max-age of cacheable responses.
	MaxAge time.Duration
}

// PortalHandler serves the read-only developer portal API.
type PortalHandler struct {
	svc    *service.PortalService
	cache  PortalCache
	cfg    PortalConfig
	logger *slog.Logger
}

// NewPortalHandler creates a new PortalHandler. cache may be nil.
func NewPortalHandler(svc *service.PortalService, cache PortalCache, cfg PortalConfig, logger *slog.Logger) *PortalHandler {
	return &PortalHandler{
		svc:    svc,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With("component", "portal_handler"),
	}
}

// ListApis handles GET /apis?q=&page=&size=.
func (h *PortalHandler) ListApis(w http.ResponseWriter, r *http.Request) {
	env := chi.URLParam(r, ParamEnvironmentID)
	page := pageFromQuery(r)
	key := "apis?" + r.URL.Query().Encode()

	h.serveCached(w, r, env, key, func(ctx context.Context) (any, error) {
		items, total, err := h.svc.ListApis(ctx, h.cfg.OrganizationID, env, r.URL.Query().Get("q"), page)
		if err != nil {
			return nil, err
		}
		opts := h.apiOptions(env)
		apis := make([]portal.Api, 0, len(items))
		for _, item := range items {
			apis = append(apis, mapper.ConvertApi(item.Api, item.Owner, opts))
		}
		number, size := effectivePage(page)
		return mapper.NewPage(apis, r.URL, number, size, total), nil
	})
}

// GetApi handles GET /apis/{apiId}. Supports If-None-Match.
func (h *PortalHandler) GetApi(w http.ResponseWriter, r *http.Request) {
	env := chi.URLParam(r, ParamEnvironmentID)
	apiID := chi.URLParam(r, ParamApiID)

	h.serveCached(w, r, env, "api:"+apiID, func(ctx context.Context) (any, error) {
		item, err := h.svc.GetApi(ctx, h.cfg.OrganizationID, env, apiID)
		if err != nil {
			return nil, err
		}
		return mapper.ConvertApi(item.Api, item.Owner, h.apiOptions(env)), nil
	})
}

// ListPlans handles GET /apis/{apiId}/plans.
func (h *PortalHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	env := chi.URLParam(r, ParamEnvironmentID)
	apiID := chi.URLParam(r, ParamApiID)

	h.serveCached(w, r, env, "plans:"+apiID, func(ctx context.Context) (any, error) {
		plans, err := h.svc.ListPlans(ctx, env, apiID)
		if err != nil {
			return nil, err
		}
		converted := mapper.ConvertPlans(plans)
		return mapper.NewPage(converted, nil, 1, len(converted), len(converted)), nil
	})
}

// ListApplicationSubscriptions handles GET /applications/{applicationId}/subscriptions.
// Subscriptions are never cached.
func (h *PortalHandler) ListApplicationSubscriptions(w http.ResponseWriter, r *http.Request) {
	env := chi.URLParam(r, ParamEnvironmentID)
	subs, err := h.svc.ListApplicationSubscriptions(r.Context(), env, chi.URLParam(r, ParamApplicationID))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}
	converted := mapper.ConvertSubscriptions(subs)
	writeJSON(w, http.StatusOK, mapper.NewPage(converted, nil, 1, len(converted), len(converted)))
}

// serveCached answers from the representation cache, building and storing
// the body on a miss. The ETag is derived from the encoded body.
func (h *PortalHandler) serveCached(w http.ResponseWriter, r *http.Request, env, key string, build func(context.Context) (any, error)) {
	ctx := r.Context()

	var body []byte
	if h.cache != nil {
		if cached, ok := h.cache.Get(ctx, env, key); ok {
			body = cached
		}
	}

	if body == nil {
		v, err := build(ctx)
		if err != nil {
			handleServiceError(h.logger, w, err)
			return
		}
		body, err = json.Marshal(v)
		if err != nil {
			h.logger.Error("failed to encode portal representation", "key", key, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
			return
		}
		if h.cache != nil {
			h.cache.Set(ctx, env, key, body)
		}
	}

	etag := mapper.ETagBytes(body)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", h.cacheControl())
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *PortalHandler) apiOptions(env string) mapper.ApiOptions {
	opts := mapper.ApiOptions{Entrypoints: h.cfg.Entrypoints}
	if h.cfg.BaseURL != "" {
		opts.BaseURL = strings.TrimRight(h.cfg.BaseURL, "/") + "/portal/environments/" + env
	}
	return opts
}

func (h *PortalHandler) cacheControl() string {
	if h.cfg.MaxAge <= 0 {
		return "no-cache"
	}
	return "public, max-age=" + strconv.Itoa(int(h.cfg.MaxAge.Seconds()))
}

// etagMatches implements the weak comparison of If-None-Match.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
