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

package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidLoginID     = errors.New("login identifier must be 3 to 30 characters")
	ErrWeakPassword       = errors.New("password does not meet security requirements")
)

// DefaultRole is assigned to every user that registers without explicit roles.
const DefaultRole = "user"

// User represents a user identity in the system
type User struct {
	ID            string
	Email         string // normalized: lowercase, trimmed
	Username      *string
	PasswordHash  string
	FullName      *string
	Roles         []string
	IsActive      bool
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CanLogin reports whether the user may establish new sessions.
func (u *User) CanLogin() bool {
	return u.IsActive
}

// Public is the externally visible projection of a user. The password hash
// never leaves the service layer.
type Public struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      *string   `json:"username,omitempty"`
	FullName      *string   `json:"full_name,omitempty"`
	Roles         []string  `json:"roles"`
	IsActive      bool      `json:"is_active"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ToPublic strips credential material from the user record.
func (u *User) ToPublic() Public {
	return Public{
		ID:            u.ID,
		Email:         u.Email,
		Username:      u.Username,
		FullName:      u.FullName,
		Roles:         u.Roles,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ParseLoginID validates the login identifier (email or username),
// bounded to 3..30 characters.
func ParseLoginID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < 3 || len(trimmed) > 30 {
		return "", ErrInvalidLoginID
	}
	return trimmed, nil
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail retrieves a user by normalized email
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Update updates user information
	Update(ctx context.Context, user *User) error

	// UpdatePassword updates the stored password hash
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}
