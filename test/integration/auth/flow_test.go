// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/internal/httpapi"
)

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) decode(v any) {
	ExpectWithOffset(1, json.Unmarshal(r.body, v)).To(Succeed())
}

func (r response) detail() string {
	var e httpapi.ErrorResponse
	ExpectWithOffset(1, json.Unmarshal(r.body, &e)).To(Succeed())
	return e.Detail
}

func do(method, path, token string, body io.Reader, contentType string) response {
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, body)
	ExpectWithOffset(2, err).NotTo(HaveOccurred())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.server.Client().Do(req)
	ExpectWithOffset(2, err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	ExpectWithOffset(2, err).NotTo(HaveOccurred())
	return response{status: resp.StatusCode, header: resp.Header, body: data}
}

func postJSON(path string, payload any) response {
	data, err := json.Marshal(payload)
	ExpectWithOffset(1, err).NotTo(HaveOccurred())
	return do(http.MethodPost, path, "", bytes.NewReader(data), "application/json")
}

func register(email, username, password string) response {
	return postJSON("/api/v1/register", map[string]string{
		"email": email, "username": username, "password": password,
	})
}

func login(email, password string) response {
	return postJSON("/api/v1/login", map[string]string{"email": email, "password": password})
}

func loginTokens(email, password string) httpapi.LoginResponse {
	resp := login(email, password)
	ExpectWithOffset(1, resp.status).To(Equal(http.StatusOK), string(resp.body))
	var tokens httpapi.LoginResponse
	resp.decode(&tokens)
	return tokens
}

var _ = Describe("Authentication flow", func() {
	BeforeEach(func() {
		env.truncate()
	})

	Describe("registration", func() {
		It("stores a bcrypt hash and never returns it", func() {
			resp := register("Alice@Example.com", "alice", "correct horse")
			Expect(resp.status).To(Equal(http.StatusCreated))
			Expect(string(resp.body)).NotTo(ContainSubstring("password"))

			var view httpapi.UserView
			resp.decode(&view)
			Expect(view.Email).To(Equal("alice@example.com"))
			Expect(view.IsActive).To(BeTrue())
			Expect(view.IsSuperuser).To(BeFalse())

			stored, err := env.repo.GetByUsername(env.ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.PasswordHash).To(HavePrefix("$2"))
			Expect(stored.PasswordHash).NotTo(ContainSubstring("correct horse"))
			ok, err := env.hasher.Verify("correct horse", stored.PasswordHash)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("accepts form-encoded bodies", func() {
			form := url.Values{"email": {"bob@example.com"}, "username": {"bob"}, "password": {"pw"}}
			resp := do(http.MethodPost, "/api/v1/register", "", strings.NewReader(form.Encode()),
				"application/x-www-form-urlencoded")
			Expect(resp.status).To(Equal(http.StatusCreated))
		})

		It("rejects duplicate emails regardless of case", func() {
			Expect(register("alice@example.com", "alice", "pw").status).To(Equal(http.StatusCreated))

			resp := register("ALICE@example.com", "alice2", "pw")
			Expect(resp.status).To(Equal(http.StatusConflict))
		})

		It("rejects duplicate usernames", func() {
			Expect(register("alice@example.com", "alice", "pw").status).To(Equal(http.StatusCreated))

			resp := register("other@example.com", "alice", "pw")
			Expect(resp.status).To(Equal(http.StatusConflict))
		})

		It("rejects short usernames without storing anything", func() {
			resp := register("alice@example.com", "al", "pw")
			Expect(resp.status).To(Equal(http.StatusBadRequest))

			_, err := env.repo.GetByEmail(env.ctx, "alice@example.com")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("login and token use", func() {
		BeforeEach(func() {
			Expect(register("alice@example.com", "alice", "correct horse").status).To(Equal(http.StatusCreated))
		})

		It("issues tokens that authenticate and refresh", func() {
			issuedBefore := testutil.ToFloat64(env.metrics.TokensIssued.WithLabelValues("access"))

			tokens := loginTokens("alice@example.com", "correct horse")
			Expect(tokens.AccessToken.TokenType).To(Equal("access"))
			Expect(tokens.RefreshToken.TokenType).To(Equal("refresh"))

			me := do(http.MethodGet, "/api/v1/me", tokens.AccessToken.Token, nil, "")
			Expect(me.status).To(Equal(http.StatusOK))
			var view httpapi.UserView
			me.decode(&view)
			Expect(view.Username).To(Equal("alice"))

			refreshed := do(http.MethodPost, "/api/v1/refresh", tokens.RefreshToken.Token, nil, "")
			Expect(refreshed.status).To(Equal(http.StatusOK))
			var access httpapi.TokenView
			refreshed.decode(&access)
			Expect(access.TokenType).To(Equal("access"))
			Expect(do(http.MethodGet, "/api/v1/me", access.Token, nil, "").status).To(Equal(http.StatusOK))

			Expect(testutil.ToFloat64(env.metrics.TokensIssued.WithLabelValues("access"))).
				To(BeNumerically(">=", issuedBefore+2))
		})

		It("logs in by email case-insensitively", func() {
			Expect(login("ALICE@EXAMPLE.COM", "correct horse").status).To(Equal(http.StatusOK))
		})

		It("gives wrong passwords and unknown users the same answer", func() {
			wrong := login("alice@example.com", "wrong")
			unknown := login("nobody@example.com", "correct horse")

			Expect(wrong.status).To(Equal(http.StatusUnauthorized))
			Expect(unknown.status).To(Equal(http.StatusUnauthorized))
			Expect(wrong.body).To(Equal(unknown.body))
			Expect(wrong.header.Get("WWW-Authenticate")).To(Equal("Bearer"))
		})

		It("keeps token kinds apart", func() {
			tokens := loginTokens("alice@example.com", "correct horse")

			Expect(do(http.MethodGet, "/api/v1/me", tokens.RefreshToken.Token, nil, "").status).
				To(Equal(http.StatusUnauthorized))
			Expect(do(http.MethodPost, "/api/v1/refresh", tokens.AccessToken.Token, nil, "").status).
				To(Equal(http.StatusUnauthorized))
		})

		It("rejects tampered tokens", func() {
			tokens := loginTokens("alice@example.com", "correct horse")
			tampered := tokens.AccessToken.Token[:len(tokens.AccessToken.Token)-2] + "xx"

			resp := do(http.MethodGet, "/api/v1/me", tampered, nil, "")
			Expect(resp.status).To(Equal(http.StatusUnauthorized))
		})

		It("rejects tokens of a deactivated user", func() {
			tokens := loginTokens("alice@example.com", "correct horse")

			_, err := env.pool.Exec(env.ctx, "UPDATE auth_users SET is_active = false WHERE username = $1", "alice")
			Expect(err).NotTo(HaveOccurred())

			Expect(do(http.MethodGet, "/api/v1/me", tokens.AccessToken.Token, nil, "").status).
				To(Equal(http.StatusUnauthorized))
			Expect(do(http.MethodPost, "/api/v1/refresh", tokens.RefreshToken.Token, nil, "").status).
				To(Equal(http.StatusUnauthorized))
			Expect(login("alice@example.com", "correct horse").status).To(Equal(http.StatusUnauthorized))
		})

		It("rejects tokens for users that no longer exist", func() {
			tokens := loginTokens("alice@example.com", "correct horse")
			env.truncate()

			Expect(do(http.MethodGet, "/api/v1/me", tokens.AccessToken.Token, nil, "").status).
				To(Equal(http.StatusUnauthorized))
		})

		It("rejects expired tokens", func() {
			past := func() time.Time { return time.Now().Add(-time.Hour) }
			codec, err := auth.NewTokenCodec(testSecret, auth.WithClock(past))
			Expect(err).NotTo(HaveOccurred())
			user, err := env.repo.GetByUsername(env.ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			expired, err := codec.Encode(user.Claims(), 5*time.Minute, auth.TokenKindAccess)
			Expect(err).NotTo(HaveOccurred())

			resp := do(http.MethodGet, "/api/v1/me", expired, nil, "")
			Expect(resp.status).To(Equal(http.StatusUnauthorized))
			Expect(resp.detail()).To(Equal("token has expired"))
		})
	})
})
