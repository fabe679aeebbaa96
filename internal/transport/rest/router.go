package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/getkin/kin-openapi/routers"

	"github.com/frahmantamala/song-requests/internal/auth"
	"github.com/frahmantamala/song-requests/internal/checkout"
	"github.com/frahmantamala/song-requests/internal/integrity"
	"github.com/frahmantamala/song-requests/internal/orphan"
	"github.com/frahmantamala/song-requests/internal/reconcile"
	"github.com/frahmantamala/song-requests/internal/refund"
	"github.com/frahmantamala/song-requests/internal/request"
	"github.com/frahmantamala/song-requests/internal/transport/middleware"
	"github.com/frahmantamala/song-requests/internal/transport/swagger"
)

type Handlers struct {
	Health    *HealthHandler
	Request   *request.Handler
	Checkout  *checkout.Handler
	Reconcile *reconcile.Handler
	Orphan    *orphan.Handler
	Refund    *refund.Handler
	Integrity *integrity.Handler
}

type Options struct {
	AllowedOrigins string
	OpenAPIPath    string
	// OpenAPI validates public write routes when set.
	OpenAPI         routers.Router
	SubmitLimiter   middleware.Limiter
	Tokens          auth.TokenValidator
	Permissions     auth.PermissionChecker
	AdminPermission string
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options, logger *slog.Logger) {
	// Apply global middleware
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	// OpenAPI document at root, outside the API prefix
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, opts.OpenAPIPath)
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	validate := func(next http.Handler) http.Handler { return next }
	if opts.OpenAPI != nil {
		validate = middleware.ValidateRequest(opts.OpenAPI, logger)
	}
	throttle := func(next http.Handler) http.Handler { return next }
	if opts.SubmitLimiter != nil {
		throttle = middleware.RateLimit(opts.SubmitLimiter, logger)
	}

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health.healthCheckHandler)
		r.Get("/ping", h.Health.pingHandler)

		// Public guest and kiosk routes
		r.Group(func(pr chi.Router) {
			pr.Use(validate)
			pr.With(throttle).Post("/requests", h.Request.CreateRequest)
			pr.Get("/requests/pay-by-code", h.Request.PayByCode)
			pr.Get("/requests/{id}/payment-status", h.Request.GetPaymentStatus)
			pr.With(throttle).Post("/requests/{id}/checkout", h.Checkout.StartCheckout)
			pr.Get("/checkout/success", h.Checkout.Success)
		})

		// Gateway callbacks authenticate by signature
		r.Post("/payments/webhook", h.Reconcile.Webhook)

		// Admin routes
		r.Group(func(ar chi.Router) {
			ar.Use(middleware.Authenticate(opts.Tokens, logger))
			ar.Use(middleware.RequirePermissions(opts.Permissions, logger, opts.AdminPermission))

			ar.Post("/payments/link", h.Reconcile.LinkPayment)
			ar.Post("/payments/link-by-metadata", h.Reconcile.LinkByMetadata)
			ar.Get("/payments/find", h.Reconcile.FindPayment)
			ar.Post("/payments/sync-orphaned", h.Orphan.SyncOrphaned)

			ar.Post("/requests/confirm-manual", h.Request.ConfirmManualPayment)
			ar.Post("/requests/{id}/refund", h.Refund.RefundRequest)
			ar.Post("/requests/{id}/organization", h.Request.AssignOrganization)

			ar.Post("/organizations/{orgID}/requests/delete", h.Request.DeleteForOrganization)
			ar.Get("/organizations/{orgID}/queue", h.Request.GetQueue)

			ar.Get("/integrity/issues", h.Integrity.ListOpen)
			ar.Post("/integrity/issues/{id}/resolve", h.Integrity.Resolve)
		})
	})
}
