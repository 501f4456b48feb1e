// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides the credential and token primitives for authd.
//
// # Components
//
//   - PasswordHasher / BcryptHasher - salted one-way password hashing
//   - TokenCodec - HS256 signed tokens with exp and token_type claims
//   - Service - register, login, refresh and authenticate flows
//
// Users should be created with NewUser, which validates the username and
// email and assigns an ID. Repository implementations receive
// pre-validated users.
//
// # Errors
//
// Service operations return errors of four kinds, tested with errors.Is or
// KindOf: ErrInvalidInput, ErrUnauthorized, ErrConflict and ErrInternal.
// PublicMessage extracts the text that is safe to show a caller.
// Unauthorized messages never reveal which credential check failed.
package auth
