package server

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/apimplane/apim/internal/handler"
	"github.com/apimplane/apim/internal/metrics"
	"github.com/apimplane/apim/internal/middleware"
)

// Handlers groups every REST resource mounted by the router. Admin and
// Metrics are optional.
type Handlers struct {
	Health        *handler.HealthHandler
	Metrics       *handler.MetricsHandler
	Apis          *handler.ApiHandler
	Plans         *handler.PlanHandler
	Subscriptions *handler.SubscriptionHandler
	Members       *handler.MemberHandler
	Audits        *handler.AuditHandler
	Tokens        *handler.TokenHandler
	Portal        *handler.PortalHandler
	Admin         *handler.AdminHandler
}

// RouterConfig holds the middleware settings of the router.
type RouterConfig struct {
	Logger    *slog.Logger
	Recorder  metrics.Recorder
	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimitConfig
	CORS      middleware.CORSConfig
	Security  middleware.SecurityConfig
}

// pathParams are validated on every management and portal route.
var pathParams = []string{
	handler.ParamEnvironmentID,
	handler.ParamApiID,
	handler.ParamPlanID,
	handler.ParamSubscriptionID,
	handler.ParamMemberID,
	handler.ParamApplicationID,
	handler.ParamTokenID,
}

// NewRouter builds the chi router serving the management API under
// /management/v2 and the developer portal under /portal.
func NewRouter(h Handlers, cfg RouterConfig) *chi.Mux {
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NewNoop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	if cfg.RateLimit.Logger == nil {
		cfg.RateLimit.Logger = cfg.Logger
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Metrics(cfg.Recorder))
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.Security(cfg.Security))
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Security.MaxRequestBodySize > 0 {
		r.Use(middleware.MaxBodySize(cfg.Security.MaxRequestBodySize))
	}

	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	if h.Metrics != nil {
		r.Get("/metrics", h.Metrics.Metrics)
	}

	r.Route("/management/v2", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Auth))
		r.Use(middleware.RateLimitToken(cfg.RateLimit))

		r.Route("/environments/{envId}/apis", func(r chi.Router) {
			r.Use(middleware.ValidateURLParams(handler.ParamEnvironmentID))
			r.With(middleware.RequireRead()).Get("/", h.Apis.List)
			r.With(middleware.RequireWrite()).Post("/", h.Apis.Create)
			r.With(middleware.RequireAdmin()).Put("/_import/crd", h.Apis.ImportCRD)

			r.Route("/{apiId}", func(r chi.Router) {
				mountApi(r, h)
			})
		})

		r.Route("/tokens", func(r chi.Router) {
			r.With(middleware.RequireRead()).Get("/", h.Tokens.List)
			r.With(middleware.RequireAdmin()).Post("/", h.Tokens.Create)
			r.Route("/{tokenId}", func(r chi.Router) {
				r.Use(middleware.ValidateURLParams(handler.ParamTokenID))
				r.With(middleware.RequireAdmin()).Delete("/", h.Tokens.Revoke)
				r.With(middleware.RequireAdmin()).Post("/_rotate", h.Tokens.Rotate)
			})
		})

		if h.Admin != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin())
				r.Get("/tokens", h.Admin.ListTokensByUser)
				r.Get("/upgraders", h.Admin.Upgraders)
				r.Post("/subscriptions/_expire", h.Admin.ExpireSubscriptions)
				r.Get("/stats", h.Admin.Stats)
			})
		}
	})

	r.Route("/portal/environments/{envId}", func(r chi.Router) {
		r.Use(middleware.RateLimitIP(cfg.RateLimit))
		validate := r.With(middleware.ValidateURLParams(pathParams...))
		validate.Get("/apis", h.Portal.ListApis)
		validate.Get("/apis/{apiId}", h.Portal.GetApi)
		validate.Get("/apis/{apiId}/plans", h.Portal.ListPlans)
		validate.Get("/applications/{applicationId}/subscriptions", h.Portal.ListApplicationSubscriptions)
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

func mountApi(r chi.Router, h Handlers) {
	// Inline so the nested params are already routed when validated.
	validate := middleware.ValidateURLParams(pathParams...)
	read := r.With(validate, middleware.RequireRead())
	write := r.With(validate, middleware.RequireWrite())
	admin := r.With(validate, middleware.RequireAdmin())

	read.Get("/", h.Apis.Get)
	write.Put("/", h.Apis.Update)
	admin.Delete("/", h.Apis.Delete)
	write.Post("/_start", h.Apis.Start)
	write.Post("/_stop", h.Apis.Stop)

	read.Get("/audits", h.Audits.List)

	read.Get("/members", h.Members.List)
	write.Post("/members", h.Members.Add)
	write.Put("/members/{memberId}", h.Members.Update)
	write.Delete("/members/{memberId}", h.Members.Remove)
	read.Get("/primary-owner", h.Members.PrimaryOwner)
	admin.Post("/_transfer-ownership", h.Members.TransferOwnership)

	read.Get("/plans", h.Plans.List)
	write.Post("/plans", h.Plans.Create)
	read.Get("/plans/{planId}", h.Plans.Get)
	write.Put("/plans/{planId}", h.Plans.Update)
	write.Delete("/plans/{planId}", h.Plans.Delete)
	write.Post("/plans/{planId}/_publish", h.Plans.Publish)
	write.Post("/plans/{planId}/_deprecate", h.Plans.Deprecate)
	write.Post("/plans/{planId}/_close", h.Plans.Close)
	write.Post("/plans/{planId}/_reorder", h.Plans.Reorder)

	read.Get("/subscriptions", h.Subscriptions.List)
	write.Post("/subscriptions", h.Subscriptions.Create)
	read.Get("/subscriptions/{subscriptionId}", h.Subscriptions.Get)
	read.Get("/subscriptions/{subscriptionId}/api-keys", h.Subscriptions.ListApiKeys)
	write.Post("/subscriptions/{subscriptionId}/_accept", h.Subscriptions.Accept)
	write.Post("/subscriptions/{subscriptionId}/_reject", h.Subscriptions.Reject)
	write.Post("/subscriptions/{subscriptionId}/_pause", h.Subscriptions.Pause)
	write.Post("/subscriptions/{subscriptionId}/_resume", h.Subscriptions.Resume)
	write.Post("/subscriptions/{subscriptionId}/_close", h.Subscriptions.Close)
}
