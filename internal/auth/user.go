// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User field constraints. Maximums match the auth_users column widths.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 64
	MaxEmailLength    = 255
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// User is a directory account.
type User struct {
	ID           ulid.ULID
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	IsSuperuser  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser creates an active, non-superuser User with a fresh ID.
// The email is normalized to lower case.
func NewUser(username, email, passwordHash string) (*User, error) {
	if err := ValidateUsername(username, MinUsernameLength); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, oops.Code("AUTH_INVALID_PASSWORD").Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Claims returns the identity claims embedded in every token issued for u.
func (u *User) Claims() Claims {
	return Claims{
		ClaimUsername:    u.Username,
		ClaimEmail:       u.Email,
		ClaimIsActive:    u.IsActive,
		ClaimIsSuperuser: u.IsSuperuser,
	}
}

// LogValue implements slog.LogValuer. The password hash is never logged.
func (u *User) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", u.ID.String()),
		slog.String("username", u.Username),
		slog.Bool("is_active", u.IsActive),
	)
}

// ValidateUsername checks that username has between minLen and
// MaxUsernameLength characters and no surrounding whitespace.
func ValidateUsername(username string, minLen int) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if !utf8.ValidString(username) {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username must be valid UTF-8")
	}
	if strings.IndexFunc(username, unicode.IsControl) >= 0 {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username cannot contain control characters")
	}
	if strings.TrimSpace(username) != username {
		return oops.Code("AUTH_INVALID_USERNAME").
			Errorf("username cannot start or end with whitespace")
	}
	n := utf8.RuneCountInString(username)
	if n < minLen {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", minLen).
			Errorf("username must be at least %d characters", minLen)
	}
	if n > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	return nil
}

// ValidateEmail checks email address syntax.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if err := validate.Var(email, "email"); err != nil {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email address is not valid")
	}
	return nil
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user.
	// Returns an error wrapping ErrAlreadyExists on a username or email collision.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)
}
