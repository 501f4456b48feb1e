// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides test doubles for the auth package.
package authtest

import (
	"context"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/authd/internal/auth"
)

// MemoryRepository is an in-memory auth.UserRepository enforcing unique
// usernames and emails. It is safe for concurrent use.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[ulid.ULID]auth.User
}

var _ auth.UserRepository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[ulid.ULID]auth.User)}
}

// Create stores a copy of user.
func (r *MemoryRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email || u.Username == user.Username {
			return auth.ErrAlreadyExists
		}
	}
	r.users[user.ID] = *user
	return nil
}

// GetByID returns a copy of the user with id.
func (r *MemoryRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	return r.find(func(u auth.User) bool { return u.ID == id })
}

// GetByUsername returns a copy of the user with username.
func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	return r.find(func(u auth.User) bool { return u.Username == username })
}

// GetByEmail returns a copy of the user with email, ignoring case.
func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	return r.find(func(u auth.User) bool { return strings.EqualFold(u.Email, email) })
}

// SetActive flips a stored user's active flag.
func (r *MemoryRepository) SetActive(id ulid.ULID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.IsActive = active
		r.users[id] = u
	}
}

// Len returns the number of stored users.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func (r *MemoryRepository) find(match func(auth.User) bool) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			found := u
			return &found, nil
		}
	}
	return nil, auth.ErrNotFound
}
