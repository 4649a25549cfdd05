package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/ganttmailer/internal/handler"
	"github.com/ganttmailer/internal/middleware"
)

func (app *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Metrics)

	r.Get("/api/health", handler.Health(app.health))
	r.Handle("/metrics", promhttp.Handler())

	// Manual trigger
	trigger := handler.NewTriggerHandler(app.logger, app)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(rate.Every(10*time.Second), 3))
		r.Use(middleware.RequireToken(app.config.TriggerTokenHash))
		r.Post("/main", trigger.Trigger)
	})

	return r
}
