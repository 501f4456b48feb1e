// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		assert.True(t, pattern.MatchString(name), "file %s should match NNNNNN_name.(up|down).sql", name)
		if base, ok := strings.CutSuffix(name, ".up.sql"); ok {
			ups[base] = true
		}
		if base, ok := strings.CutSuffix(name, ".down.sql"); ok {
			downs[base] = true
		}
	}

	assert.True(t, ups["000001_create_auth_users"])
	assert.Equal(t, ups, downs, "every up migration needs a matching down migration")
}

func TestMigrationsFS_UsersTableConstraints(t *testing.T) {
	up, err := fs.ReadFile(migrationsFS, "migrations/000001_create_auth_users.up.sql")
	require.NoError(t, err)

	sql := string(up)
	assert.Contains(t, sql, "UNIQUE (username)")
	assert.Contains(t, sql, "UNIQUE (email)")
	assert.Contains(t, sql, "is_active     BOOLEAN      NOT NULL DEFAULT TRUE")
	assert.Contains(t, sql, "is_superuser  BOOLEAN      NOT NULL DEFAULT FALSE")
}
