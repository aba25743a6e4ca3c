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

// Package apperr defines the closed error taxonomy shared by all use
// cases. Services raise kind-tagged errors; the HTTP boundary maps each
// kind to a status code and a stable JSON body.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP boundary.
type Kind string

// Error kinds
const (
	KindValidateRequest      Kind = "ValidateRequest"
	KindInvalidCredentials   Kind = "InvalidCredentials"
	KindInvalidSession       Kind = "InvalidSession"
	KindInvalidClient        Kind = "InvalidClient"
	KindInvalidCode          Kind = "InvalidCode"
	KindInvalidToken         Kind = "InvalidToken"
	KindInvalidUser          Kind = "InvalidUser"
	KindInvalidCreationToken Kind = "InvalidCreationToken"
	KindConsentRequired      Kind = "ConsentRequired"
	KindDenyConsent          Kind = "DenyConsent"
	KindForbidden            Kind = "Forbidden"
	KindNotFound             Kind = "NotFound"
	KindConflict             Kind = "Conflict"
	KindServerError          Kind = "ServerError"
)

// Error is a kind-tagged application error.
type Error struct {
	Kind    Kind
	Message string
	List    []string
	cause   error
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind that wraps a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithList attaches per-field detail messages and returns the error.
func (e *Error) WithList(list []string) *Error {
	e.List = list
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the kind from an error chain. Untagged errors are
// classified as ServerError.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindServerError
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
