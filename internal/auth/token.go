// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SigningAlgorithm is the only algorithm tokens are signed and accepted with.
const SigningAlgorithm = "HS256"

// Claim names.
const (
	ClaimTokenType   = "token_type"
	ClaimExpiresAt   = "exp"
	ClaimTokenID     = "jti"
	ClaimUsername    = "username"
	ClaimEmail       = "email"
	ClaimIsActive    = "is_active"
	ClaimIsSuperuser = "is_superuser"
)

// Token lifetimes.
const (
	DefaultAccessTokenTTL  = 5 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Token verification errors.
var (
	ErrTokenExpired = errors.New("token expired")
	ErrBadSignature = errors.New("token signature invalid")
)

// TokenKind discriminates access tokens from refresh tokens.
type TokenKind string

// Token kinds.
const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// Claims is the payload of a signed token.
type Claims map[string]any

// Kind returns the token_type claim, or "" when absent.
func (c Claims) Kind() TokenKind {
	s, _ := c.String(ClaimTokenType)
	return TokenKind(s)
}

// String returns a string claim.
func (c Claims) String(key string) (string, bool) {
	s, ok := c[key].(string)
	return s, ok
}

// Bool returns a boolean claim.
func (c Claims) Bool(key string) (bool, bool) {
	b, ok := c[key].(bool)
	return b, ok
}

// ExpiresAt returns the exp claim as a time.
func (c Claims) ExpiresAt() (time.Time, bool) {
	switch v := c[ClaimExpiresAt].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0).UTC(), true
	case *jwt.NumericDate:
		return v.UTC(), true
	default:
		return time.Time{}, false
	}
}

// Token is an issued, signed token.
type Token struct {
	Value     string
	Kind      TokenKind
	ExpiresAt time.Time
}

// TokenPair is the access and refresh token issued together at login.
type TokenPair struct {
	Access  *Token
	Refresh *Token
}

// TokenCodec signs and verifies tokens with a shared HMAC secret.
// It holds no mutable state and is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the codec's time source.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a TokenCodec signing with secret.
func NewTokenCodec(secret []byte, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, oops.Code("AUTH_SECRET_REQUIRED").Errorf("token signing secret is required")
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode signs claims as a token of the given kind expiring after ttl.
// Claims are copied; exp, token_type and jti are set by the codec.
func (c *TokenCodec) Encode(claims Claims, ttl time.Duration, kind TokenKind) (string, error) {
	tok, err := c.Issue(claims, ttl, kind)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// Issue is Encode returning the token's kind and expiry alongside its value.
func (c *TokenCodec) Issue(claims Claims, ttl time.Duration, kind TokenKind) (*Token, error) {
	if !kind.Valid() {
		return nil, oops.Code("AUTH_INVALID_TOKEN_KIND").
			With("kind", string(kind)).
			Errorf("unknown token kind %q", kind)
	}

	expiresAt := jwt.NewNumericDate(c.now().Add(ttl))
	mc := make(jwt.MapClaims, len(claims)+3)
	for k, v := range claims {
		mc[k] = v
	}
	mc[ClaimExpiresAt] = expiresAt
	mc[ClaimTokenType] = string(kind)
	mc[ClaimTokenID] = ulid.Make().String()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(c.secret)
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_SIGN_FAILED").
			With("kind", string(kind)).
			Wrap(err)
	}
	return &Token{Value: signed, Kind: kind, ExpiresAt: expiresAt.UTC()}, nil
}

// Decode verifies a token and returns its claims.
// It fails with ErrBadSignature for forged or malformed tokens and with
// ErrTokenExpired for authentic tokens past their exp.
func (c *TokenCodec) Decode(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, c.key,
		jwt.WithValidMethods([]string{SigningAlgorithm}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("AUTH_TOKEN_EXPIRED").Wrap(ErrTokenExpired)
		}
		return nil, oops.Code("AUTH_TOKEN_INVALID").
			With("reason", err.Error()).
			Wrap(ErrBadSignature)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, oops.Code("AUTH_TOKEN_INVALID").Wrap(ErrBadSignature)
	}
	claims := Claims(mc)
	if !claims.Kind().Valid() {
		return nil, oops.Code("AUTH_TOKEN_INVALID").
			With("reason", "missing or unknown token_type").
			Wrap(ErrBadSignature)
	}
	return claims, nil
}

func (c *TokenCodec) key(*jwt.Token) (any, error) {
	return c.secret, nil
}
