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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/authrim/authrim/internal/observability/logger"
	"github.com/authrim/authrim/internal/session"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Session failure reasons handed to the error handler.
const (
	sessionNoCookie = "no-cookie"
	sessionNotFound = "not-found"
	sessionExpired  = "expired"
)

// sessionErrorHandler renders the failure of session validation. The
// handler is chosen per route: interactive routes redirect to the login
// page, API routes answer with JSON.
type sessionErrorHandler func(w http.ResponseWriter, r *http.Request, reason string)

// SessionMiddleware validates the session cookie and adds user_id and
// session_id to the request context.
func (h *Handler) SessionMiddleware(onError sessionErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(h.sessionConfig.CookieName)
			if err != nil || cookie.Value == "" {
				onError(w, r, sessionNoCookie)
				return
			}

			sess, err := h.sessionService.Get(r.Context(), cookie.Value)
			if err != nil {
				h.clearSessionCookie(w)
				reason := sessionNotFound
				if errors.Is(err, session.ErrSessionExpired) {
					reason = sessionExpired
				}
				onError(w, r, reason)
				return
			}

			slog.DebugContext(r.Context(), "session validated",
				logger.UserID(sess.UserID),
				logger.SessionID(shortSessionID(sess.ID)),
			)

			ctx := context.WithValue(r.Context(), userIDKey, sess.UserID)
			ctx = context.WithValue(ctx, sessionIDKey, sess.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// redirectToLogin sends the user agent to the login page, preserving the
// original URL so the flow can resume after authentication.
func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request, reason string) {
	slog.InfoContext(r.Context(), "redirecting to login",
		logger.Path(r.URL.Path),
		logger.String("reason", reason),
	)
	returnURL := url.QueryEscape(r.URL.RequestURI())
	http.Redirect(w, r, "/auth/login?return_url="+returnURL, http.StatusFound)
}

// unauthorizedJSON answers API routes with a 401 envelope.
func (h *Handler) unauthorizedJSON(w http.ResponseWriter, r *http.Request, reason string) {
	slog.InfoContext(r.Context(), "rejecting unauthenticated request",
		logger.Path(r.URL.Path),
		logger.String("reason", reason),
	)
	respondJSON(w, http.StatusUnauthorized, errorBody{
		Error:      "InvalidSession",
		Message:    "authentication required",
		StatusCode: http.StatusUnauthorized,
	})
}

// shortSessionID truncates a session id for logging. Full ids never go
// to the logs.
func shortSessionID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
