// Package webserver exposes the help request lifecycle and its supporting
// services as a JSON API.
package webserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/apperr"
	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/httpx"
	"github.com/helpinghand/helpinghand/internal/logging"
	"github.com/helpinghand/helpinghand/internal/manager"
	"github.com/helpinghand/helpinghand/internal/moderation"
	"github.com/helpinghand/helpinghand/internal/profile"
	"github.com/helpinghand/helpinghand/internal/ratelimit"
	"github.com/helpinghand/helpinghand/internal/telemetry"
)

// healthMagic identifies a helpinghand server to Client.Ping.
const healthMagic = "helpinghand-ok"

const (
	msgNotAdmin    = "Access denied. Not an admin or authentication failed."
	msgInvalidBody = "Invalid request body"
)

// Deps wires the services behind the API. Limiter and DB are optional.
type Deps struct {
	DB         *gorm.DB
	Manager    *manager.RequestManager
	Accounts   *auth.Service
	Issuer     *auth.Issuer
	Moderation *moderation.Service
	Profiles   *profile.Service
	Logger     *slog.Logger

	Limiter      ratelimit.Limiter
	PerMinute    int
	CORSOrigins  string
	MaxBodyBytes int64
	// ServiceName enables otelhttp spans when non-empty.
	ServiceName string
}

type Server struct {
	Deps
	router chi.Router
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.CORSOrigins == "" {
		d.CORSOrigins = "*"
	}
	s := &Server{Deps: d}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	if s.ServiceName != "" {
		r.Use(telemetry.HTTPMiddleware(s.ServiceName))
	}
	r.Use(logging.Middleware(s.Logger))
	r.Use(httpx.SecurityHeadersMiddleware)
	r.Use(httpx.CORSMiddleware(s.CORSOrigins))
	if s.MaxBodyBytes > 0 {
		r.Use(httpx.LimitBody(s.MaxBodyBytes))
	}

	r.Get("/api/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			s.limit(r)
			r.Post("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(tokenFromQuery)
			r.Use(auth.Middleware(s.Issuer))
			s.limit(r)
			r.Get("/events", s.handleSSE)
			r.Get("/events/ws", s.handleWS)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.Issuer))
			s.limit(r)

			r.Get("/auth/me", s.handleMe)

			r.Route("/requests", func(r chi.Router) {
				r.Post("/", s.handleCreate)
				r.Get("/", s.handleListAll)
				r.Get("/pending", s.handleListPending)
				r.Get("/mine", s.handleListMine)
				r.Get("/me", s.handleListOwn)
				r.Get("/assigned-to-me", s.handleListAssigned)
				r.Get("/{id}", s.handleGet)
				r.Put("/{id}/accept", s.transition(s.Manager.Accept, "Request accepted successfully!"))
				r.Put("/{id}/complete", s.transition(s.Manager.Complete, "Request marked as completed!"))
				r.Put("/{id}/cancel", s.transition(s.Manager.Cancel, "Request cancelled successfully!"))
				r.Put("/{id}/unassign", s.transition(s.Manager.Unassign, "Successfully unassigned from request. It is now pending again."))
				r.Delete("/{id}", s.handleDelete("Request removed", ""))
			})

			r.Get("/volunteer/requests", s.handleVolunteerFeed)
			r.Get("/volunteer/profile/me", s.handleMyProfile)
			r.Post("/volunteer/profile", s.handleUpsertProfile)

			r.Post("/helpseeker/reviews", s.handleSubmitReview)
			r.Post("/complaints", s.handleFileComplaint)

			r.Get("/users/volunteers", s.handleListVolunteers)
			r.Get("/users/{id}/profile", s.handlePublicProfile)
			r.Get("/users/{id}/reviews", s.handleVolunteerReviews)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(msgNotAdmin, db.RoleAdmin))
				r.Get("/users", s.handleListUsers)
				r.Get("/users/{id}", s.handleUserDetails)
				r.Put("/users/{id}/role", s.handleSetUserRole)
				r.Delete("/users/{id}", s.handleDeleteUser)
				r.Get("/requests", s.handleListAll)
				r.Put("/requests/{id}/status", s.handleAdminSetStatus)
				r.Delete("/requests/{id}", s.handleDelete("Help request removed successfully!", "Help request not found"))
				r.Get("/complaints", s.handleListComplaints)
				r.Put("/complaints/{id}/status", s.handleSetComplaintStatus)
				r.Get("/stats/user-roles", s.handleRoleCounts)
				r.Get("/stats/request-statuses", s.handleStatusCounts)
			})
		})
	})
	return r
}

func (s *Server) limit(r chi.Router) {
	if s.Limiter != nil && s.PerMinute > 0 {
		r.Use(ratelimit.Middleware(s.Limiter, s.PerMinute, ratelimit.ByCaller))
	}
}

// tokenFromQuery accepts ?token= for EventSource and websocket clients,
// which cannot set request headers.
func tokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.TokenFromRequest(r) == "" {
			if t := r.URL.Query().Get("token"); t != "" {
				r = r.Clone(r.Context())
				r.Header.Set("x-auth-token", t)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := s.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			s.Logger.Warn("health check failed", "error", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": healthMagic})
}

// writeError is the single place domain errors become HTTP responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		s.Logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	httpx.Error(w, kind.Status(), apperr.Message(err))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(r, v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		httpx.Error(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFromContext(r.Context())
	return p
}
