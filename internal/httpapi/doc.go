// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package httpapi exposes the auth service over HTTP/JSON using gin.
//
// Routes live under /api/v1. Failures are rendered as {"detail": "..."}
// with the status derived from the error kind: invalid input is 400,
// unauthorized is 401, conflict is 409 and anything else is 500.
package httpapi
