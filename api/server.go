/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/groups/*        Employer group management
  /api/participants/*  Participants, dependents, enrollment
  /api/plans/*         Plan configuration and rate tables
  /api/enrollments/*   Rate history, termination
  /api/renewals/*      Scheduled and manual renewals
  /api/scenarios/*     Demo scenarios
  /api/reset           Database reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/benefits/serve.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Group routes
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", h.ListGroups)
			r.Post("/", h.CreateGroup)
			r.Get("/{id}", h.GetGroup)
			r.Get("/{id}/participants", h.ListGroupParticipants)
			r.Get("/{id}/plans", h.ListGroupPlans)
		})

		// Participant routes
		r.Route("/participants", func(r chi.Router) {
			r.Post("/", h.CreateParticipant)
			r.Get("/{id}", h.GetParticipant)
			r.Get("/{id}/dependents", h.ListDependents)
			r.Post("/{id}/dependents", h.AddDependent)
			r.Get("/{id}/enrollments", h.ListParticipantEnrollments)
			r.Post("/{id}/enrollments", h.Enroll)
		})

		// Plan routes
		r.Route("/plans", func(r chi.Router) {
			r.Get("/", h.ListPlans)
			r.Post("/", h.CreatePlan)
			r.Get("/{id}", h.GetPlan)
			r.Delete("/{id}", h.DeletePlan)
			r.Post("/{id}/rates", h.AddRate)
			r.Get("/{id}/rates/current", h.CurrentRates)
		})

		// Enrollment routes
		r.Route("/enrollments", func(r chi.Router) {
			r.Get("/{id}/history", h.GetRateHistory)
			r.Post("/{id}/terminate", h.TerminateEnrollment)
		})

		// Renewal routes
		r.Route("/renewals", func(r chi.Router) {
			r.Get("/", h.ListRenewals)
			r.Post("/", h.CreateRenewal)
			r.Get("/{id}", h.GetRenewal)
			r.Post("/{id}/process", h.ProcessRenewal)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
