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
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/authrim/authrim/internal/apperr"
	"github.com/authrim/authrim/internal/audit"
	"github.com/authrim/authrim/internal/consent"
	"github.com/authrim/authrim/internal/oauth2"
	"github.com/authrim/authrim/internal/observability/logger"
)

// maxStateLength bounds the opaque state parameter.
const maxStateLength = 500

// LoginPage renders the login form
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	renderTemplate(w, "login.html", map[string]any{
		"ReturnURL": r.URL.Query().Get("return_url"),
	})
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
	ReturnURL  string `json:"returnUrl"`
}

// Login authenticates the user and establishes a session. Accepts both
// JSON (API clients) and form submissions (the login page).
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	isForm := strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
	if isForm {
		if err := r.ParseForm(); err != nil {
			respondError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		req = loginRequest{
			Email:      r.PostFormValue("email"),
			Password:   r.PostFormValue("password"),
			RememberMe: r.PostFormValue("remember_me") == "true" || r.PostFormValue("remember_me") == "on",
			ReturnURL:  r.PostFormValue("return_url"),
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	sess, err := h.sessionService.Create(r.Context(), user.ID, getClientIP(r), r.UserAgent(), req.RememberMe)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.setSessionCookie(w, sess.ID, req.RememberMe)

	if isForm && isSafeReturnURL(req.ReturnURL) {
		http.Redirect(w, r, req.ReturnURL, http.StatusFound)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user": user.ToPublic(),
	})
}

// Logout destroys the session and clears the cookie
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := h.getSessionFromCookie(r); sessionID != "" {
		if err := h.sessionService.Destroy(r.Context(), sessionID); err != nil {
			slog.ErrorContext(r.Context(), "failed to destroy session", logger.Error(err))
		}
		h.auditLogger.Log(r.Context(), audit.Event{
			Type:     audit.TypeLogout,
			Resource: "session",
		})
	}
	h.clearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// parseAuthorizeRequest validates the /auth/authorize query parameters.
func parseAuthorizeRequest(q url.Values) (*oauth2.AuthorizeRequest, error) {
	clientID, err := oauth2.ParseClientID(q.Get("client_id"))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidateRequest, "invalid client_id", err)
	}

	redirectURI := q.Get("redirect_uri")
	if err := validateRedirectURIShape(redirectURI); err != nil {
		return nil, err
	}

	if q.Get("response_type") != "code" {
		return nil, apperr.New(apperr.KindValidateRequest, "response_type must be code")
	}

	rawChallenge := q.Get("code_challenge")
	method := q.Get("code_challenge_method")
	challenge, err := oauth2.ParseCodeChallenge(rawChallenge, method)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidateRequest, "invalid code_challenge", err)
	}
	// An S256 challenge is a base64url SHA-256 digest, always 43 chars.
	if method == oauth2.MethodS256 && len(rawChallenge) != 43 {
		return nil, apperr.New(apperr.KindValidateRequest, "invalid code_challenge")
	}

	state := q.Get("state")
	if len(state) > maxStateLength {
		return nil, apperr.New(apperr.KindValidateRequest, "state exceeds maximum length")
	}

	return &oauth2.AuthorizeRequest{
		ClientID:      clientID,
		RedirectURI:   redirectURI,
		Scope:         q.Get("scope"),
		State:         state,
		CodeChallenge: challenge,
	}, nil
}

func validateRedirectURIShape(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return apperr.New(apperr.KindValidateRequest, "redirect_uri must be an absolute URL")
	}
	if u.Scheme != "https" && !(u.Scheme == "http" && u.Hostname() == "localhost") {
		return apperr.New(apperr.KindValidateRequest, "redirect_uri must use HTTPS or http://localhost")
	}
	return nil
}

// Authorize runs the authorize state machine for an authenticated user:
// validated request plus existing consent produces a code redirect,
// missing consent signals the consent step.
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	req, err := parseAuthorizeRequest(r.URL.Query())
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	userID := GetUserID(r.Context())

	if _, err := h.oauth2Service.ValidateClient(r.Context(), oauth2.ValidateClientInput{
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		GrantType:   oauth2.GrantAuthorizationCode,
	}); err != nil {
		respondAppError(w, r, err)
		return
	}

	granted, err := h.consentService.Check(r.Context(), userID, req.ClientID.String(), splitScopes(req.Scope))
	if err != nil {
		respondAppError(w, r, err)
		return
	}
	if !granted {
		consentURL := "/auth/authorize/consent?" + r.URL.RawQuery
		respondJSON(w, http.StatusOK, map[string]any{
			"error":      string(apperr.KindConsentRequired),
			"message":    "user consent is required",
			"consentUrl": consentURL,
			"scopes":     splitScopes(req.Scope),
		})
		return
	}

	h.issueCodeAndRedirect(w, r, userID, req)
}

// ConsentPage renders the consent form
func (h *Handler) ConsentPage(w http.ResponseWriter, r *http.Request) {
	req, err := parseAuthorizeRequest(r.URL.Query())
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	client, err := h.oauth2Service.ValidateClient(r.Context(), oauth2.ValidateClientInput{
		ClientID:    req.ClientID,
		RedirectURI: req.RedirectURI,
		GrantType:   oauth2.GrantAuthorizationCode,
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	renderTemplate(w, "consent.html", consent.ScreenData{
		ClientName:          client.ClientName,
		Scopes:              consent.Describe(splitScopes(req.Scope)),
		ClientID:            req.ClientID.String(),
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge.Challenge(),
		CodeChallengeMethod: req.CodeChallenge.Method(),
	})
}

// ConsentDecision processes the approve/deny form submission and, on
// approval, resumes the authorize flow.
func (h *Handler) ConsentDecision(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	params := url.Values{}
	for _, key := range []string{"client_id", "redirect_uri", "scope", "state", "code_challenge", "code_challenge_method"} {
		params.Set(key, r.PostFormValue(key))
	}
	params.Set("response_type", "code")

	req, err := parseAuthorizeRequest(params)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	userID := GetUserID(r.Context())

	switch r.PostFormValue("decision") {
	case consent.DecisionApprove:
		if err := h.consentService.Grant(r.Context(), userID, req.ClientID.String(), splitScopes(req.Scope)); err != nil {
			respondAppError(w, r, err)
			return
		}
		h.issueCodeAndRedirect(w, r, userID, req)
	case consent.DecisionDeny:
		respondAppError(w, r, h.consentService.Deny(r.Context(), userID, req.ClientID.String()))
	default:
		respondError(w, http.StatusBadRequest, "decision must be approve or deny")
	}
}

func (h *Handler) issueCodeAndRedirect(w http.ResponseWriter, r *http.Request, userID string, req *oauth2.AuthorizeRequest) {
	grant, err := h.oauth2Service.GenerateAuthCode(r.Context(), userID, *req)
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	location, err := oauth2.BuildCodeRedirect(req.RedirectURI, grant.Code, grant.State)
	if err != nil {
		respondAppError(w, r, apperr.Wrap(apperr.KindServerError, "failed to build redirect", err))
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

// Token exchanges an authorization code for an access token
// (RFC 6749 Section 4.1.3).
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	if r.PostFormValue("grant_type") != oauth2.GrantAuthorizationCode {
		respondAppError(w, r, apperr.New(apperr.KindValidateRequest, "grant_type must be authorization_code"))
		return
	}

	resp, err := h.oauth2Service.ExchangeToken(r.Context(), oauth2.ExchangeInput{
		Code:         r.PostFormValue("code"),
		ClientID:     r.PostFormValue("client_id"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
	})
	if err != nil {
		respondAppError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// JWKS publishes the public signing keys (RFC 7517)
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	respondJSON(w, http.StatusOK, h.jwksService.Get())
}

// splitScopes parses a space-delimited scope string.
func splitScopes(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}

// isSafeReturnURL accepts only same-origin relative paths.
func isSafeReturnURL(raw string) bool {
	return strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//")
}
