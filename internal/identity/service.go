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

	"github.com/google/uuid"

	"github.com/authrim/authrim/internal/apperr"
	"github.com/authrim/authrim/internal/audit"
)

// Service provides identity-related business logic
type Service struct {
	repo        UserRepository
	hasher      *PasswordHasher
	auditLogger audit.Logger
}

// NewService creates a new identity service
func NewService(repo UserRepository, hasher *PasswordHasher, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		hasher:      hasher,
		auditLogger: auditLogger,
	}
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email    string
	Username *string
	Password string
	FullName *string
}

// Register creates a new active user with the default role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := NormalizeEmail(in.Email)
	if !isValidEmail(email) {
		return nil, apperr.Wrap(apperr.KindValidateRequest, "invalid email address", ErrInvalidEmail)
	}
	if !isStrongPassword(in.Password) {
		return nil, apperr.Wrap(apperr.KindValidateRequest, "password must be at least 8 characters", ErrWeakPassword)
	}
	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		if len(trimmed) < 3 || len(trimmed) > 30 {
			return nil, apperr.New(apperr.KindValidateRequest, "username must be 3 to 30 characters")
		}
		in.Username = &trimmed
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindServerError, "failed to create user", err)
	}

	now := time.Now()
	user := &User{
		ID:            uuid.NewString(),
		Email:         email,
		Username:      in.Username,
		PasswordHash:  hash,
		FullName:      in.FullName,
		Roles:         []string{DefaultRole},
		IsActive:      true,
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			return nil, apperr.Wrap(apperr.KindConflict, "email or username already in use", err)
		}
		return nil, apperr.Wrap(apperr.KindServerError, "failed to create user", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		ActorID:  user.ID,
		Resource: "user",
		Metadata: map[string]any{"email": user.Email},
	})

	return user, nil
}

// Authenticate verifies credentials and returns the matching user.
// The login identifier may be an email address or a username.
func (s *Service) Authenticate(ctx context.Context, loginID, password string) (*User, error) {
	id, err := ParseLoginID(loginID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidateRequest, err.Error(), err)
	}

	var user *User
	if strings.Contains(id, "@") {
		user, err = s.repo.GetByEmail(ctx, NormalizeEmail(id))
	} else {
		user, err = s.repo.GetByUsername(ctx, id)
	}
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "user_not_found"},
		})
		return nil, apperr.Wrap(apperr.KindInvalidCredentials, "invalid credentials", ErrInvalidCredentials)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "invalid_password"},
		})
		return nil, apperr.Wrap(apperr.KindInvalidCredentials, "invalid credentials", ErrInvalidCredentials)
	}

	if !user.CanLogin() {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "inactive"},
		})
		return nil, apperr.New(apperr.KindInvalidCredentials, "invalid credentials")
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		ActorID:  user.ID,
		Resource: "login",
	})

	return user, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "user not found", err)
	}
	return user, nil
}

// UpdateInput carries the mutable profile fields.
type UpdateInput struct {
	Username *string
	FullName *string
}

// UpdateProfile updates the caller's profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateInput) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "user not found", err)
	}

	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		if len(trimmed) < 3 || len(trimmed) > 30 {
			return nil, apperr.New(apperr.KindValidateRequest, "username must be 3 to 30 characters")
		}
		user.Username = &trimmed
	}
	if in.FullName != nil {
		user.FullName = in.FullName
	}
	user.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			return nil, apperr.Wrap(apperr.KindConflict, "username already in use", err)
		}
		return nil, apperr.Wrap(apperr.KindServerError, "failed to update user", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserUpdated,
		ActorID:  user.ID,
		Resource: "user",
	})

	return user, nil
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, "user not found", err)
	}

	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		return apperr.Wrap(apperr.KindInvalidCredentials, "current password is incorrect", ErrInvalidCredentials)
	}

	if !isStrongPassword(newPassword) {
		return apperr.Wrap(apperr.KindValidateRequest, "password must be at least 8 characters", ErrWeakPassword)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Wrap(apperr.KindServerError, "failed to change password", err)
	}

	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return apperr.Wrap(apperr.KindServerError, "failed to change password", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePasswordChanged,
		ActorID:  userID,
		Resource: "user_credentials",
	})

	return nil
}

// Helper functions
func isValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return len(email) >= 5 && len(email) < 255 && strings.Contains(email[at:], ".")
}

func isStrongPassword(password string) bool {
	return len(password) >= 8
}
