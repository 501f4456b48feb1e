// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Public messages for rejected credentials. They never say which check failed.
const (
	msgInvalidCredentials = "invalid email or password"
	msgInvalidToken       = "could not validate credentials"
)

// dummyPasswordHash is verified against when a user doesn't exist so that
// response time does not reveal whether an account exists.
// It is a well-formed bcrypt hash that matches no password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$2a$10$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service implements registration, login, token refresh and request
// authentication on top of a UserRepository.
type Service struct {
	users          UserRepository
	hasher         PasswordHasher
	tokens         *TokenCodec
	accessTTL      time.Duration
	refreshTTL     time.Duration
	minUsernameLen int
	logger         *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTokenTTLs overrides the access and refresh token lifetimes.
func WithTokenTTLs(access, refresh time.Duration) ServiceOption {
	return func(s *Service) {
		s.accessTTL = access
		s.refreshTTL = refresh
	}
}

// WithMinUsernameLength raises the minimum username length for registration.
func WithMinUsernameLength(n int) ServiceOption {
	return func(s *Service) {
		s.minUsernameLen = n
	}
}

// WithLogger sets the logger used for audit events.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service. All dependencies are required.
func NewService(users UserRepository, hasher PasswordHasher, tokens *TokenCodec, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("token codec is required")
	}

	s := &Service{
		users:          users,
		hasher:         hasher,
		tokens:         tokens,
		accessTTL:      DefaultAccessTokenTTL,
		refreshTTL:     DefaultRefreshTokenTTL,
		minUsernameLen: MinUsernameLength,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.accessTTL <= 0 || s.refreshTTL <= 0 {
		return nil, oops.Code("AUTH_INVALID_SERVICE").
			With("access_ttl", s.accessTTL).
			With("refresh_ttl", s.refreshTTL).
			Errorf("token lifetimes must be positive")
	}
	if s.minUsernameLen < MinUsernameLength {
		s.minUsernameLen = MinUsernameLength
	}
	return s, nil
}

// RegisterOption adjusts a user before it is stored.
type RegisterOption func(*User)

// AsSuperuser marks the new user as a superuser.
func AsSuperuser() RegisterOption {
	return func(u *User) {
		u.IsSuperuser = true
	}
}

// Register creates a new active user.
func (s *Service) Register(ctx context.Context, email, username, password string, opts ...RegisterOption) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || username == "" || password == "" {
		return nil, invalidInput("AUTH_MISSING_FIELDS", "email, username and password are required")
	}
	if err := ValidateUsername(username, s.minUsernameLen); err != nil {
		return nil, rejectInput(err)
	}
	if err := ValidateEmail(email); err != nil {
		return nil, rejectInput(err)
	}
	if len(password) > MaxPasswordBytes {
		return nil, rejectInput(ErrPasswordTooLong)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internal(err, "hash password")
	}

	user, err := NewUser(username, email, hash)
	if err != nil {
		return nil, rejectInput(err)
	}
	for _, opt := range opts {
		opt(user)
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, oops.Code("AUTH_USER_EXISTS").
				Public("a user with this email or username already exists").
				Wrap(withKind(ErrConflict, err))
		}
		return nil, internal(err, "create user")
	}

	s.logger.InfoContext(ctx, "user registered", "user", user)
	return user, nil
}

// Login verifies an email and password and issues an access and refresh token.
func (s *Service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalidInput("AUTH_MISSING_CREDENTIALS", "email and password are required")
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)

	var targetHash string
	userExists := false
	switch {
	case lookupErr == nil:
		if user.PasswordHash == "" {
			return nil, oops.Code("AUTH_MISSING_PASSWORD_HASH").
				With("user_id", user.ID.String()).
				Wrapf(ErrInternal, "user record has no password hash")
		}
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = s.dummyHash()
	default:
		return nil, internal(lookupErr, "get user by email")
	}

	// Always verify, even for unknown users, to keep timing uniform.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil && userExists {
		return nil, oops.Code("AUTH_CORRUPT_PASSWORD_HASH").
			With("user_id", user.ID.String()).
			Wrap(withKind(ErrInternal, verifyErr))
	}

	if !userExists || !valid {
		s.logger.WarnContext(ctx, "login rejected", "reason", "invalid credentials")
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").
			Public(msgInvalidCredentials).
			Wrapf(ErrUnauthorized, "%s", msgInvalidCredentials)
	}

	// Checked after verification to maintain constant time.
	if !user.IsActive {
		s.logger.WarnContext(ctx, "login rejected", "reason", "inactive user", "user", user)
		return nil, oops.Code("AUTH_USER_INACTIVE").
			Public(msgInvalidCredentials).
			Wrapf(ErrUnauthorized, "user is inactive")
	}

	access, err := s.tokens.Issue(user.Claims(), s.accessTTL, TokenKindAccess)
	if err != nil {
		return nil, internal(err, "issue access token")
	}
	refresh, err := s.tokens.Issue(user.Claims(), s.refreshTTL, TokenKindRefresh)
	if err != nil {
		return nil, internal(err, "issue refresh token")
	}

	s.logger.InfoContext(ctx, "login succeeded", "user", user)
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a refresh token for a new access token built from the
// current user record. The refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, token string) (*Token, error) {
	claims, err := s.verify(token, TokenKindRefresh)
	if err != nil {
		return nil, err
	}

	email, ok := claims.String(ClaimEmail)
	if !ok || email == "" {
		return nil, invalidInput("AUTH_MISSING_CLAIM", "token is missing the email claim")
	}

	user, err := s.activeUser(ctx, "get user by email", func() (*User, error) {
		return s.users.GetByEmail(ctx, NormalizeEmail(email))
	})
	if err != nil {
		return nil, err
	}

	access, err := s.tokens.Issue(user.Claims(), s.accessTTL, TokenKindAccess)
	if err != nil {
		return nil, internal(err, "issue access token")
	}
	return access, nil
}

// Authenticate resolves an access token to the active user it was issued for.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	claims, err := s.verify(token, TokenKindAccess)
	if err != nil {
		return nil, err
	}

	username, ok := claims.String(ClaimUsername)
	if !ok || username == "" {
		return nil, invalidInput("AUTH_MISSING_CLAIM", "token is missing the username claim")
	}

	return s.activeUser(ctx, "get user by username", func() (*User, error) {
		return s.users.GetByUsername(ctx, username)
	})
}

// verify decodes token and requires it to be of kind want.
func (s *Service) verify(token string, want TokenKind) (Claims, error) {
	claims, err := s.tokens.Decode(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, oops.Code("AUTH_TOKEN_EXPIRED").
				Public("token has expired").
				Wrap(withKind(ErrUnauthorized, err))
		}
		return nil, oops.Code("AUTH_TOKEN_INVALID").
			Public(msgInvalidToken).
			Wrap(withKind(ErrUnauthorized, err))
	}

	if kind := claims.Kind(); kind != want {
		return nil, oops.Code("AUTH_WRONG_TOKEN_KIND").
			With("expected", string(want)).
			With("actual", string(kind)).
			Public(fmt.Sprintf("expected a %s token", want)).
			Wrapf(ErrUnauthorized, "expected %s token, got %s", want, kind)
	}
	return claims, nil
}

// activeUser runs lookup and requires an active user.
func (s *Service) activeUser(ctx context.Context, operation string, lookup func() (*User, error)) (*User, error) {
	user, err := lookup()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_USER_NOT_FOUND").
				Public(msgInvalidToken).
				Wrap(withKind(ErrUnauthorized, err))
		}
		return nil, internal(err, operation)
	}
	if !user.IsActive {
		s.logger.WarnContext(ctx, "token rejected", "reason", "inactive user", "user", user)
		return nil, oops.Code("AUTH_USER_INACTIVE").
			Public(msgInvalidToken).
			Wrapf(ErrUnauthorized, "user is inactive")
	}
	return user, nil
}

// dummyHash returns a hash at the hasher's own cost when it can provide one.
func (s *Service) dummyHash() string {
	if d, ok := s.hasher.(interface{ DummyHash() string }); ok {
		return d.DummyHash()
	}
	return dummyPasswordHash
}

func invalidInput(code, msg string) error {
	return oops.Code(code).Public(msg).Wrapf(ErrInvalidInput, "%s", msg)
}

// rejectInput tags a validation error as InvalidInput, exposing its message.
func rejectInput(err error) error {
	return oops.Public(err.Error()).Wrap(withKind(ErrInvalidInput, err))
}

func internal(err error, operation string) error {
	return oops.Code("AUTH_INTERNAL").
		With("operation", operation).
		Wrap(withKind(ErrInternal, err))
}
