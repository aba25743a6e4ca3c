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
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/authrim/authrim/internal/identity"
)

type registerRequest struct {
	Email    string  `json:"email"`
	Username *string `json:"username,omitempty"`
	Password string  `json:"password"`
	FullName *string `json:"fullName,omitempty"`
}

// Register creates a new user account
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.Register(r.Context(), identity.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"user": user.ToPublic(),
	})
}

// Me returns the authenticated user's profile
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.identityService.GetUser(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user": user.ToPublic(),
	})
}

type updateMeRequest struct {
	Username *string `json:"username,omitempty"`
	FullName *string `json:"fullName,omitempty"`
}

// UpdateMe updates the authenticated user's profile
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.identityService.UpdateProfile(r.Context(), GetUserID(r.Context()), identity.UpdateInput{
		Username: req.Username,
		FullName: req.FullName,
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user": user.ToPublic(),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword updates the authenticated user's password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.identityService.ChangePassword(r.Context(), GetUserID(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		respondAppError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

type consentView struct {
	ClientID  string     `json:"clientId"`
	Scopes    []string   `json:"scopes"`
	GrantedAt time.Time  `json:"grantedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// ListConsents returns the user's active consent grants
func (h *Handler) ListConsents(w http.ResponseWriter, r *http.Request) {
	consents, err := h.consentService.ListForUser(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	views := make([]consentView, 0, len(consents))
	for _, c := range consents {
		views = append(views, consentView{
			ClientID:  c.ClientID,
			Scopes:    c.Scopes,
			GrantedAt: c.GrantedAt,
			ExpiresAt: c.ExpiresAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"consents": views})
}

// RevokeConsent withdraws the user's consent for one client
func (h *Handler) RevokeConsent(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	if err := h.consentService.Revoke(r.Context(), GetUserID(r.Context()), clientID); err != nil {
		respondAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionView struct {
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserAgent string    `json:"userAgent,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	Current   bool      `json:"current"`
}

// ListSessions returns the user's live sessions. Session ids stay
// server-side.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionService.ListForUser(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	current := GetSessionID(r.Context())
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			UserAgent: s.UserAgent,
			IPAddress: s.IPAddress,
			Current:   s.ID == current,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// DeleteSessions signs the user out everywhere
func (h *Handler) DeleteSessions(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionService.DestroyAllForUser(r.Context(), GetUserID(r.Context())); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete sessions")
		return
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
