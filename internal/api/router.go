package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mondominator/opsdec/internal/httpmiddleware"
	"github.com/mondominator/opsdec/internal/pushhub"
)

// Router builds the complete chi router: global middleware, the
// unauthenticated health/metrics/websocket surface, and the versioned /api
// tree behind access/admin auth.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(httpmiddleware.RequestID)
	r.Use(httpmiddleware.Recoverer)
	r.Use(httpmiddleware.SecurityHeaders)
	r.Use(httpmiddleware.CORS(a.cfg.Security.CORSOrigins))
	r.Use(httpmiddleware.Prometheus)

	r.Get("/health", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", pushhub.ServeHTTP(a.hub, a.tokens))

	r.Route("/api", func(r chi.Router) {
		r.Use(httpmiddleware.RateLimit(a.cfg.Security))

		r.Route("/auth", func(r chi.Router) {
			r.Get("/setup-required", a.handleSetupRequired)

			r.With(httpmiddleware.RateLimitLogin(a.cfg.Security)).Post("/login", a.handleLogin)
			r.Post("/register", a.handleRegister)
			r.Post("/refresh", a.handleRefresh)
			r.Post("/logout", a.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(a.requireAuth)
				r.Get("/me", a.handleMe)
				r.Put("/password", a.handleChangePassword)

				r.Group(func(r chi.Router) {
					r.Use(requireAdmin)
					r.Get("/users", a.handleListAuthUsers)
					r.Post("/users", a.handleCreateAuthUser)
					r.Put("/users/{id}", a.handleUpdateAuthUser)
					r.Delete("/users/{id}", a.handleDeleteAuthUser)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/activity", a.handleActivity)

			r.Get("/history", a.handleListHistory)
			r.Delete("/history/{id}", a.handleDeleteHistory)

			r.Get("/users", a.handleListUsers)
			r.Get("/users/{id}/stats", a.handleUserStats)

			r.Get("/stats/dashboard", a.handleDashboardStats)

			r.Get("/servers", a.handleListServers)
			r.Post("/servers", a.handleCreateServer)
			r.Put("/servers/{id}", a.handleUpdateServer)
			r.Delete("/servers/{id}", a.handleDeleteServer)
			r.Post("/servers/{id}/test", a.handleTestServer)
			r.Get("/servers/health", a.handleServerHealth)

			r.Get("/proxy/image", a.handleImageProxy)

			r.Get("/settings", a.handleListSettings)
			r.Get("/settings/{key}", a.handleGetSetting)
			r.Put("/settings/{key}", a.handlePutSetting)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/monitoring/restart", a.handleRestart)
			})
		})
	})

	return r
}
