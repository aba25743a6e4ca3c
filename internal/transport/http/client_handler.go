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

	"github.com/go-chi/chi/v5"

	"github.com/authrim/authrim/internal/oauth2"
)

type createClientRequest struct {
	ClientName   string   `json:"clientName"`
	Description  *string  `json:"description,omitempty"`
	RedirectURIs []string `json:"redirectUris"`
	GrantTypes   []string `json:"grantTypes,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	IsPublic     bool     `json:"isPublic"`
}

// CreateClient registers a new OAuth2 client. The response contains the
// plaintext secret; it is never retrievable again.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.clientService.Create(r.Context(), GetUserID(r.Context()), oauth2.CreateClientInput{
		ClientName:   req.ClientName,
		Description:  req.Description,
		RedirectURIs: req.RedirectURIs,
		GrantTypes:   req.GrantTypes,
		Scopes:       req.Scopes,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// ListClients returns the caller's active clients
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clientService.List(r.Context(), GetUserID(r.Context()))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

// GetClient returns one of the caller's clients
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.clientService.GetByID(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, client)
}

type updateClientRequest struct {
	ClientName   *string  `json:"clientName,omitempty"`
	Description  *string  `json:"description,omitempty"`
	RedirectURIs []string `json:"redirectUris,omitempty"`
	GrantTypes   []string `json:"grantTypes,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// UpdateClient modifies one of the caller's clients
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req updateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	client, err := h.clientService.Update(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"), oauth2.UpdateClientInput{
		ClientName:   req.ClientName,
		Description:  req.Description,
		RedirectURIs: req.RedirectURIs,
		GrantTypes:   req.GrantTypes,
		Scopes:       req.Scopes,
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, client)
}

// DeleteClient soft-deletes one of the caller's clients
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.clientService.Delete(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RotateClientSecret replaces the client secret. The response contains
// the new plaintext secret exactly once.
func (h *Handler) RotateClientSecret(w http.ResponseWriter, r *http.Request) {
	rotated, err := h.clientService.RotateSecret(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rotated)
}
