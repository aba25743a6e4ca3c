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

package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/authrim/authrim/internal/audit"
	"github.com/authrim/authrim/internal/config"
	"github.com/authrim/authrim/internal/consent"
	"github.com/authrim/authrim/internal/health"
	"github.com/authrim/authrim/internal/identity"
	"github.com/authrim/authrim/internal/oauth2"
	"github.com/authrim/authrim/internal/observability/logger"
	"github.com/authrim/authrim/internal/observability/metrics"
	"github.com/authrim/authrim/internal/observability/tracing"
	"github.com/authrim/authrim/internal/session"
	"github.com/authrim/authrim/internal/store/postgres"
	"github.com/authrim/authrim/internal/token"
	httptransport "github.com/authrim/authrim/internal/transport/http"
)

func main() {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Service.Name,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.OTELEnabled {
		tracer, err := tracing.New(ctx, tracing.Config{
			Enabled:        true,
			ServiceName:    cfg.Service.Name,
			ServiceVersion: cfg.Observability.ServiceVersion,
		})
		if err != nil {
			slog.Error("failed to initialize tracing", logger.Error(err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracer.Shutdown(shutdownCtx); err != nil {
				slog.Error("failed to shut down tracer", logger.Error(err))
			}
		}()
	}

	if _, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Service.Name); err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}

	// Missing key material is fatal: tokens cannot be signed without it.
	keys, err := token.LoadKeys(cfg.JWT.KeysDir)
	if err != nil {
		slog.Error("failed to load signing keys", logger.Error(err))
		os.Exit(1)
	}

	db, err := postgres.New(ctx, postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	clientRepo := postgres.NewClientRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	codeRepo := postgres.NewAuthCodeRepository(db)
	consentRepo := postgres.NewConsentRepository(db)

	// Services
	auditLogger := audit.NewSlogLogger()
	hasher := identity.NewPasswordHasher(cfg.Security.BcryptRounds)
	identityService := identity.NewService(userRepo, hasher, auditLogger)
	sessionService := session.NewService(sessionRepo, cfg.Session.Lifetime, cfg.Session.RememberMeLifetime)
	jwtService := token.NewService(keys, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.KeyID, cfg.JWT.AccessTokenTTL)
	jwksService := token.NewJwksService(keys, cfg.JWT.KeyID)
	oauth2Service := oauth2.NewService(clientRepo, codeRepo, userRepo, jwtService, auditLogger, cfg.OAuth2.AuthCodeTTL)
	clientService := oauth2.NewClientService(clientRepo, auditLogger)
	consentService := consent.NewService(consentRepo, auditLogger)

	healthRegistry := health.NewRegistry()
	healthRegistry.Register(db)
	healthRegistry.Register(health.CheckFunc{
		ComponentName: "jwks",
		Fn: func(ctx context.Context) error {
			_ = jwksService.Get()
			return nil
		},
	})

	handler := httptransport.NewHandler(httptransport.HandlerConfig{
		IdentityService: identityService,
		SessionService:  sessionService,
		OAuth2Service:   oauth2Service,
		ClientService:   clientService,
		ConsentService:  consentService,
		JwksService:     jwksService,
		HealthRegistry:  healthRegistry,
		AuditLogger:     auditLogger,
		SessionConfig: httptransport.SessionConfig{
			CookieName:     cfg.Session.CookieName,
			CookiePath:     cfg.Session.CookiePath,
			CookieSecure:   cfg.IsProduction(),
			Lifetime:       cfg.Session.Lifetime,
			RememberMeLife: cfg.Session.RememberMeLifetime,
		},
		ServiceName: cfg.Service.Name,
		ServiceURL:  cfg.Service.URL,
	})

	rateLimiter := httptransport.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	router := httptransport.NewRouter(handler, rateLimiter, httptransport.RouterConfig{
		CORSOrigins: cfg.CORS.Origins,
		LogRequests: cfg.Observability.LogRequests,
	})

	// Background cleanup of expired sessions and spent codes
	go runCleanup(ctx, cfg.Cleanup.Interval, sessionService, oauth2Service)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("server starting",
			logger.String("addr", server.Addr),
			logger.String("env", cfg.Env),
			logger.String("service_url", cfg.Service.URL),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", logger.Error(err))
	}
}

// runCleanup periodically drops expired sessions and spent authorization
// codes. Failures are logged and retried on the next tick.
func runCleanup(ctx context.Context, interval time.Duration, sessions *session.Service, protocol *oauth2.Service) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)

			if n, err := sessions.CleanupExpired(tickCtx); err != nil {
				slog.ErrorContext(tickCtx, "session cleanup failed", logger.Error(err))
			} else if n > 0 {
				slog.InfoContext(tickCtx, "cleaned up expired sessions", logger.RowsAffected(n))
			}

			if n, err := protocol.CleanupCodes(tickCtx); err != nil {
				slog.ErrorContext(tickCtx, "auth code cleanup failed", logger.Error(err))
			} else if n > 0 {
				slog.InfoContext(tickCtx, "cleaned up authorization codes", logger.RowsAffected(n))
			}

			cancel()
		}
	}
}
