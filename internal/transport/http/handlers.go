// Copyright 2026 The Authrim Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/authrim/authrim/internal/audit"
	"github.com/authrim/authrim/internal/consent"
	"github.com/authrim/authrim/internal/health"
	"github.com/authrim/authrim/internal/identity"
	"github.com/authrim/authrim/internal/oauth2"
	"github.com/authrim/authrim/internal/session"
	"github.com/authrim/authrim/internal/token"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService *identity.Service
	sessionService  *session.Service
	oauth2Service   *oauth2.Service
	clientService   *oauth2.ClientService
	consentService  *consent.Service
	jwksService     *token.JwksService
	healthRegistry  *health.Registry
	auditLogger     audit.Logger
	sessionConfig   SessionConfig
	serviceName     string
	serviceURL      string
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	CookieName     string
	CookiePath     string
	CookieSecure   bool
	Lifetime       time.Duration
	RememberMeLife time.Duration
}

// HandlerConfig bundles the handler dependencies.
type HandlerConfig struct {
	IdentityService *identity.Service
	SessionService  *session.Service
	OAuth2Service   *oauth2.Service
	ClientService   *oauth2.ClientService
	ConsentService  *consent.Service
	JwksService     *token.JwksService
	HealthRegistry  *health.Registry
	AuditLogger     audit.Logger
	SessionConfig   SessionConfig
	ServiceName     string
	ServiceURL      string
}

// NewHandler creates a new HTTP handler
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		identityService: cfg.IdentityService,
		sessionService:  cfg.SessionService,
		oauth2Service:   cfg.OAuth2Service,
		clientService:   cfg.ClientService,
		consentService:  cfg.ConsentService,
		jwksService:     cfg.JwksService,
		healthRegistry:  cfg.HealthRegistry,
		auditLogger:     cfg.AuditLogger,
		sessionConfig:   cfg.SessionConfig,
		serviceName:     cfg.ServiceName,
		serviceURL:      cfg.ServiceURL,
	}
}

// RouterConfig holds router-level options.
type RouterConfig struct {
	CORSOrigins []string
	LogRequests bool
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	if cfg.LogRequests {
		r.Use(LoggingMiddleware())
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	sessionAPI := h.SessionMiddleware(h.unauthorizedJSON)
	sessionPage := h.SessionMiddleware(h.redirectToLogin)

	r.Get("/", h.Root)
	r.Get("/health", h.HealthCheck)
	r.Get("/health/deep", h.DeepHealthCheck)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", h.LoginPage)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.With(sessionPage).Get("/authorize", h.Authorize)
		r.With(sessionPage).Get("/authorize/consent", h.ConsentPage)
		r.With(sessionPage).Post("/authorize/decision", h.ConsentDecision)

		r.Post("/token", h.Token)
		r.Get("/.well-known/jwks.json", h.JWKS)
	})

	r.Route("/user", func(r chi.Router) {
		r.Post("/", h.Register)

		r.Group(func(r chi.Router) {
			r.Use(sessionAPI)
			r.Get("/me", h.Me)
			r.Put("/me", h.UpdateMe)
			r.Put("/me/password", h.ChangePassword)
			r.Get("/me/consents", h.ListConsents)
			r.Delete("/me/consents/{clientId}", h.RevokeConsent)
			r.Get("/me/sessions", h.ListSessions)
			r.Delete("/me/sessions", h.DeleteSessions)
		})
	})

	r.Route("/client", func(r chi.Router) {
		r.Use(sessionAPI)
		r.Post("/", h.CreateClient)
		r.Get("/", h.ListClients)
		r.Get("/{id}", h.GetClient)
		r.Put("/{id}", h.UpdateClient)
		r.Delete("/{id}", h.DeleteClient)
		r.Post("/{id}/rotate-secret", h.RotateClientSecret)
	})

	return r
}

// Root returns service metadata and the endpoint map
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"service": h.serviceName,
		"url":     h.serviceURL,
		"endpoints": map[string]string{
			"authorize": h.serviceURL + "/auth/authorize",
			"token":     h.serviceURL + "/auth/token",
			"login":     h.serviceURL + "/auth/login",
			"jwks":      h.serviceURL + "/auth/.well-known/jwks.json",
			"register":  h.serviceURL + "/user",
			"health":    h.serviceURL + "/health",
		},
	})
}

// HealthCheck is the liveness endpoint
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": h.serviceName,
	})
}

// DeepHealthCheck runs every registered dependency check
func (h *Handler) DeepHealthCheck(w http.ResponseWriter, r *http.Request) {
	report := h.healthRegistry.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, report)
}

// Cookie helpers

func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string, rememberMe bool) {
	maxAge := int(h.sessionConfig.Lifetime.Seconds())
	if rememberMe {
		maxAge = int(h.sessionConfig.RememberMeLife.Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    sessionID,
		Path:     h.sessionConfig.CookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.sessionConfig.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionConfig.CookieName,
		Value:    "",
		Path:     h.sessionConfig.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.sessionConfig.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) getSessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(h.sessionConfig.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
