package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/linkedin-outreach/internal/pkg/logger"
)

// SetupRoutes configures the HTTP surface.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no identity required)
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireUser)

		r.Route("/sequences", func(r chi.Router) {
			r.Get("/", h.ListSequences)
			r.Post("/", h.CreateSequence)
			r.Get("/{id}", h.GetSequence)
			r.Get("/{id}/stats", h.GetSequenceStats)
			r.Get("/{id}/enrollments", h.ListEnrollments)
			r.Post("/{id}/enroll", h.EnrollLeads)
			r.Post("/{id}/unenroll", h.UnenrollLeads)
			r.Post("/{id}/pause", h.PauseSequence)
			r.Post("/{id}/resume", h.ResumeSequence)
			r.Post("/{id}/archive", h.ArchiveSequence)
		})

		r.Route("/leads", func(r chi.Router) {
			r.Get("/", h.ListLeads)
			r.Post("/", h.CreateLead)
			r.Get("/{id}", h.GetLead)
			r.Patch("/{id}", h.UpdateLead)
			r.Post("/{id}/score", h.ScoreLead)
		})

		r.Route("/automation", func(r chi.Router) {
			r.Get("/settings", h.GetAutomationSettings)
			r.Put("/settings", h.UpdateAutomationSettings)
			r.Get("/status", h.GetAutomationStatus)
			r.Get("/logs", h.ListInvitationLogs)
		})

		r.Route("/account", func(r chi.Router) {
			r.Get("/", h.GetMessagingAccount)
			r.Post("/connect", h.ConnectMessagingAccount)
		})

		r.Get("/activity", h.GetRecentActivity)
		r.Get("/scheduler/status", h.SchedulerStatusHandler)
	})

	return r
}

// requestLogger emits one structured access log line per request. Query
// strings can carry lead emails, so they go through the redacting logger
// rather than chi's plaintext one.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
