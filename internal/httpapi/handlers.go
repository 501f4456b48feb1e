// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/pkg/errutil"
)

const (
	msgInvalidBody      = "invalid request body"
	msgNotAuthenticated = "not authenticated"
)

func (s *Server) routes(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	v1.GET("/health", s.handleHealth)
	v1.POST("/register", s.handleRegister)
	v1.POST("/login", s.handleLogin)
	v1.POST("/refresh", s.handleRefresh)
	v1.GET("/me", s.handleMe)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: msgInvalidBody})
		return
	}

	user, err := s.svc.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		s.fail(c, "register", err)
		return
	}

	s.metrics.RecordAuthOutcome("register", "success")
	c.JSON(http.StatusCreated, NewUserView(user))
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: msgInvalidBody})
		return
	}

	pair, err := s.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, "login", err)
		return
	}

	s.metrics.RecordAuthOutcome("login", "success")
	s.metrics.RecordTokenIssued(string(pair.Access.Kind))
	s.metrics.RecordTokenIssued(string(pair.Refresh.Kind))
	c.JSON(http.StatusOK, LoginResponse{
		AccessToken:  newTokenView(pair.Access),
		RefreshToken: newTokenView(pair.Refresh),
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		unauthorized(c, msgNotAuthenticated)
		return
	}

	access, err := s.svc.Refresh(c.Request.Context(), token)
	if err != nil {
		s.fail(c, "refresh", err)
		return
	}

	s.metrics.RecordAuthOutcome("refresh", "success")
	s.metrics.RecordTokenIssued(string(access.Kind))
	c.JSON(http.StatusOK, newTokenView(access))
}

func (s *Server) handleMe(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		unauthorized(c, msgNotAuthenticated)
		return
	}

	user, err := s.svc.Authenticate(c.Request.Context(), token)
	if err != nil {
		s.fail(c, "authenticate", err)
		return
	}

	s.metrics.RecordAuthOutcome("authenticate", "success")
	c.JSON(http.StatusOK, NewUserView(user))
}

// fail renders err using its kind. Internal errors are logged with their
// full context and reported without detail.
func (s *Server) fail(c *gin.Context, operation string, err error) {
	kind := auth.KindOf(err)
	s.metrics.RecordAuthOutcome(operation, kind.String())

	status := StatusFor(kind)
	if status == http.StatusInternalServerError {
		errutil.LogErrorContext(c.Request.Context(), s.logger, operation+" failed", err,
			"route", c.FullPath())
	}
	if status == http.StatusUnauthorized {
		unauthorized(c, auth.PublicMessage(err))
		return
	}
	c.JSON(status, ErrorResponse{Detail: auth.PublicMessage(err)})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindInvalidInput:
		return http.StatusBadRequest
	case auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func unauthorized(c *gin.Context, detail string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.JSON(http.StatusUnauthorized, ErrorResponse{Detail: detail})
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
// An empty token after the scheme is returned as present so the service
// rejects it like any other bad token.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}
