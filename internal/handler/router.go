package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/generations-connect/connect-server-go/internal/config"
	"github.com/generations-connect/connect-server-go/internal/middleware"
)

type RouterConfig struct {
	Auth            *middleware.AuthMiddleware
	RateLimit       *middleware.RateLimitMiddleware
	BodyLimit       *middleware.BodyLimitMiddleware
	SecurityHeaders *middleware.SecurityHeadersMiddleware

	Health      *HealthHandler
	Events      *EventsHandler
	Matches     *MatchHandler
	Connections *ConnectionHandler
	Sessions    *SessionHandler
}

func NewRouter(rc RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(rc.SecurityHeaders.Handler)

	r.Get("/health", rc.Health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(rc.Auth.Handler)
		r.Use(rc.RateLimit.Handler)

		// The event stream outlives the request timeout.
		r.Get("/events", rc.Events.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(rc.BodyLimit.Handler)

			r.Mount("/matches", rc.Matches.Routes())
			r.Get("/users/{userID}/matches", rc.Matches.FindForUser)
			r.Mount("/connections", rc.Connections.Routes())
			r.Mount("/sessions", rc.Sessions.Routes())
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found", "code": "NOT_FOUND"})
	})

	return r
}
