/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logging:    zap request logger, stored in the request context
  4. CORS:       Cross-origin requests for the shop frontend
  5. Auth:       Owner from bearer token (or X-Owner-ID in development),
                 applied to /api only

ROUTE GROUPS:
  /api/customers/*   Customer list, detail, movements, statements
  /api/movements/*   Edit, delete, receipts
  /api/transfers     Internal transfers
  /api/reports/*     Owner summary, cached balances
  /api/settings      Shop branding
  /api/admin/*       Platform profiles (development)
  /api/scenarios/*   Demo scenarios
  /healthz           Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Owner authentication
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/shop-ledger/logger"
)

type RouterOptions struct {
	Auth           Authenticator
	Log            *zap.Logger
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", OwnerHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(opts.Auth.Middleware)

		// Customer routes
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Post("/local", h.CreateLocalCustomer)
			r.Post("/registered", h.CreateRegisteredCustomer)
			r.Get("/{id}", h.GetCustomer)
			r.Delete("/{id}", h.DeleteCustomer)
			r.Post("/{id}/movements", h.RecordMovement)
			r.Post("/{id}/reset", h.ResetAccount)
			r.Get("/{id}/statement", h.GetStatement)
		})
		r.Get("/profiles/search", h.SearchProfiles)

		// Movement routes
		r.Route("/movements", func(r chi.Router) {
			r.Patch("/{id}", h.EditMovement)
			r.Delete("/{id}", h.DeleteMovement)
			r.Get("/{id}/receipt", h.GetReceipt)
		})
		r.Post("/transfers", h.CreateTransfer)

		// Report routes
		r.Get("/profit-loss", h.GetProfitLoss)
		r.Route("/reports", func(r chi.Router) {
			r.Get("/summary", h.GetSummary)
			r.Get("/snapshots", h.ListSnapshots)
		})

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/profiles", h.CreateProfile)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLogger logs one line per request and puts a request-scoped logger
// into the context for handlers and the ledger service.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			log := base.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			ctx := logger.WithContext(r.Context(), log)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case status >= 500:
				log.Error("request", fields...)
			case status >= 400:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
		})
	}
}
