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
	"errors"
	"log/slog"
	"net/http"

	"github.com/authrim/authrim/internal/apperr"
	"github.com/authrim/authrim/internal/observability/logger"
)

// kindStatus maps error kinds to HTTP status codes.
var kindStatus = map[apperr.Kind]int{
	apperr.KindValidateRequest:      http.StatusBadRequest,
	apperr.KindInvalidCredentials:   http.StatusUnauthorized,
	apperr.KindInvalidSession:       http.StatusUnauthorized,
	apperr.KindInvalidClient:        http.StatusUnauthorized,
	apperr.KindInvalidCode:          http.StatusUnauthorized,
	apperr.KindInvalidToken:         http.StatusUnauthorized,
	apperr.KindInvalidUser:          http.StatusUnauthorized,
	apperr.KindInvalidCreationToken: http.StatusInternalServerError,
	apperr.KindConsentRequired:      http.StatusOK,
	apperr.KindDenyConsent:          http.StatusUnauthorized,
	apperr.KindForbidden:            http.StatusForbidden,
	apperr.KindNotFound:             http.StatusNotFound,
	apperr.KindConflict:             http.StatusConflict,
	apperr.KindServerError:          http.StatusInternalServerError,
}

// errorBody is the stable JSON error envelope.
type errorBody struct {
	Error      string   `json:"error"`
	Message    string   `json:"message"`
	StatusCode int      `json:"statusCode"`
	ErrorList  []string `json:"errorList,omitempty"`
}

// respondAppError maps a use-case error to its status code and envelope.
// Untagged errors become ServerError without leaking internals.
func respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := "internal server error"
	var list []string
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
		list = appErr.List
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			logger.Path(r.URL.Path),
			logger.ErrorKind(string(kind)),
			logger.Error(err),
		)
		if kind == apperr.KindServerError {
			message = "internal server error"
		}
	}

	respondJSON(w, status, errorBody{
		Error:      string(kind),
		Message:    message,
		StatusCode: status,
		ErrorList:  list,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{
		Error:      http.StatusText(status),
		Message:    message,
		StatusCode: status,
	})
}
