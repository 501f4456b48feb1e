// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"time"

	"github.com/holomush/authd/internal/auth"
)

type credentialsRequest struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// UserView is the public representation of a user. It never carries the
// password hash.
type UserView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewUserView builds the public view of u.
func NewUserView(u *auth.User) UserView {
	return UserView{
		ID:          u.ID.String(),
		Username:    u.Username,
		Email:       u.Email,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		CreatedAt:   u.CreatedAt,
	}
}

// TokenView is a signed token and its kind.
type TokenView struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

func newTokenView(t *auth.Token) TokenView {
	return TokenView{Token: t.Value, TokenType: string(t.Kind)}
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	AccessToken  TokenView `json:"access_token"`
	RefreshToken TokenView `json:"refresh_token"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
