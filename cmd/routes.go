package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-journey/internal/auth"
	"github.com/ukydev/fleet-journey/internal/db"
	"github.com/ukydev/fleet-journey/internal/handlers"
	"github.com/ukydev/fleet-journey/internal/middleware"
	"github.com/ukydev/fleet-journey/internal/models"
	"github.com/ukydev/fleet-journey/internal/session"
)

// server bundles the dependencies the HTTP routes are built from.
type server struct {
	log      *log.Logger
	auth     *auth.Service
	users    db.UserCollection
	journeys db.JourneyCollection
	vehicles db.VehicleCollection
	manager  *session.Manager
	ping     func(ctx context.Context) error

	rateLimitRequests int
	rateLimitWindow   time.Duration
}

func (s *server) routes() http.Handler {
	authMW := middleware.NewAuthMiddleware(s.auth)
	rateLimiter := middleware.NewRateLimitMiddleware()

	authHandler := handlers.NewAuthHandler(s.auth, s.users, s.log)
	journeyHandler := handlers.NewJourneyHandler(s.manager, s.vehicles, s.log)
	historyHandler := handlers.NewHistoryHandler(s.journeys, s.log)
	vehicleHandler := handlers.NewVehicleHandler(s.vehicles, s.log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewRequestLogger(s.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(rateLimiter.RateLimit(s.rateLimitRequests, s.rateLimitWindow))
	r.Use(authMW.Authenticate)

	r.Get("/health", s.health)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/register", authHandler.Register)
		r.Get("/profile", authHandler.GetProfile)
		r.Post("/password", authHandler.ChangePassword)
	})

	r.With(authMW.RequirePermission(models.PermDrive)).Route("/api/journey", journeyHandler.Routes)

	r.Route("/api/journeys", func(r chi.Router) {
		r.Get("/mine", historyHandler.Mine)
		r.Get("/{id}", historyHandler.Get)
		r.With(authMW.RequirePermission(models.PermViewJourneys)).Get("/", historyHandler.List)
	})

	r.Route("/api/vehicles", func(r chi.Router) {
		r.With(authMW.RequirePermission(models.PermManageVehicles)).Post("/", vehicleHandler.Create)
		r.With(authMW.RequirePermission(models.PermViewVehicles)).Get("/{plate}", vehicleHandler.Get)
	})

	return r
}

type healthResponse struct {
	Status         string `json:"status"`
	Database       string `json:"database"`
	ActiveJourneys int    `json:"active_journeys"`
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "ok", ActiveJourneys: s.manager.ActiveDrivers()}
	status := http.StatusOK
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.log.WithError(err).Warn("health check: database unreachable")
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
