// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authd/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErrCode string
	}{
		{name: "plain integer", input: "2", wantVersion: 2},
		{name: "zero", input: "0", wantVersion: 0},
		{name: "negative parses and is rejected later by Force", input: "-1", wantVersion: -1},
		{name: "leading whitespace is skipped", input: "  42", wantVersion: 42},
		{name: "parsing stops at a dot", input: "1.5", wantVersion: 1},
		{name: "parsing stops at trailing letters", input: "3abc", wantVersion: 3},
		{name: "letters only", input: "abc", wantErrCode: "INVALID_VERSION"},
		{name: "empty", input: "", wantErrCode: "INVALID_VERSION"},
		{name: "whitespace only", input: "   ", wantErrCode: "INVALID_VERSION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)

			if tt.wantErrCode != "" {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Equal(t, 0, version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	migrator := &fakeMigrator{}

	_, err := runCLI(t, migratorDeps(migrator, nil), "migrate", "up")

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "field", "database.url")
	assert.Zero(t, migrator.upCalls)
}

func TestMigrate_DatabaseURLSources(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{
			name: "DATABASE_URL",
			env:  map[string]string{"DATABASE_URL": "postgres://env/alias"},
			want: "postgres://env/alias",
		},
		{
			name: "prefixed variable wins over alias",
			env: map[string]string{
				"DATABASE_URL":        "postgres://env/alias",
				"AUTHD_DATABASE__URL": "postgres://env/prefixed",
			},
			want: "postgres://env/prefixed",
		},
		{
			name: "flag wins over environment",
			env:  map[string]string{"AUTHD_DATABASE__URL": "postgres://env/prefixed"},
			args: []string{"--database-url", "postgres://flag/db"},
			want: "postgres://flag/db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var gotURL string

			_, err := runCLI(t, migratorDeps(&fakeMigrator{}, &gotURL), append([]string{"migrate", "up"}, tt.args...)...)

			require.NoError(t, err)
			assert.Equal(t, tt.want, gotURL)
		})
	}
}

func TestMigrate_Up(t *testing.T) {
	clearEnv(t)
	migrator := &fakeMigrator{pending: []uint{1, 2}}

	out, err := runCLI(t, migratorDeps(migrator, nil), "migrate", "up", "--database-url", testDatabaseURL)

	require.NoError(t, err)
	assert.Equal(t, 1, migrator.upCalls)
	assert.Equal(t, 1, migrator.closeCalls)
	assert.Contains(t, out, "Applying 2 migration(s)")
	assert.Contains(t, out, "version 2")
}

func TestMigrate_BareCommandRunsUp(t *testing.T) {
	clearEnv(t)
	migrator := &fakeMigrator{pending: []uint{1}}

	_, err := runCLI(t, migratorDeps(migrator, nil), "migrate", "--database-url", testDatabaseURL)

	require.NoError(t, err)
	assert.Equal(t, 1, migrator.upCalls)
}

func TestMigrate_UpToDate(t *testing.T) {
	clearEnv(t)
	migrator := &fakeMigrator{version: 2}

	out, err := runCLI(t, migratorDeps(migrator, nil), "migrate", "up", "--database-url", testDatabaseURL)

	require.NoError(t, err)
	assert.Zero(t, migrator.upCalls)
	assert.Contains(t, out, "Schema is up to date")
}

func TestMigrate_UpFailure(t *testing.T) {
	clearEnv(t)
	migrator := &fakeMigrator{pending: []uint{1}, upErr: errors.New("syntax error")}

	_, err := runCLI(t, migratorDeps(migrator, nil), "migrate", "up", "--database-url", testDatabaseURL)

	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "operation", "apply migrations")
	assert.Equal(t, 1, migrator.closeCalls, "migrator must be closed on failure")
}

func TestMigrate_DownRequiresConfirmation(t *testing.T) {
	clearEnv(t)
	migrator := &fakeMigrator{version: 2}

	_, err := runCLI(t, migratorDeps(migrator, nil), "migrate", "down", "--database-url", testDatabaseURL)

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIRMATION_REQUIRED")
	assert.Zero(t, migrator.downCalls)
}

func TestMigrate_Down(t *testing.T) {
	clearEnv(t)
	migrator := &fakeMigrator{version: 2}

	out, err := runCLI(t, migratorDeps(migrator, nil), "migrate", "down", "--yes", "--database-url", testDatabaseURL)

	require.NoError(t, err)
	assert.Equal(t, 1, migrator.downCalls)
	assert.Contains(t, out, "Rollback completed successfully")
}

func TestMigrate_Version(t *testing.T) {
	tests := []struct {
		name     string
		migrator *fakeMigrator
		want     []string
	}{
		{
			name:     "empty database",
			migrator: &fakeMigrator{pending: []uint{1, 2}},
			want:     []string{"Version: 0 (none)", "State:   clean", "Pending: 1, 2"},
		},
		{
			name:     "partially migrated",
			migrator: &fakeMigrator{version: 1, pending: []uint{2}},
			want:     []string{"Version: 1 000001_create_auth_users", "Pending: 2"},
		},
		{
			name:     "current",
			migrator: &fakeMigrator{version: 2},
			want:     []string{"Version: 2 000002_auth_users_updated_at", "Pending: none"},
		},
		{
			name:     "dirty",
			migrator: &fakeMigrator{version: 2, dirty: true},
			want:     []string{"dirty", "migrate force"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)

			out, err := runCLI(t, migratorDeps(tt.migrator, nil), "migrate", "version", "--database-url", testDatabaseURL)

			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestMigrate_Force(t *testing.T) {
	clearEnv(t)
	migrator := &fakeMigrator{version: 2, dirty: true}

	out, err := runCLI(t, migratorDeps(migrator, nil), "migrate", "force", "1", "--database-url", testDatabaseURL)

	require.NoError(t, err)
	assert.Equal(t, []int{1}, migrator.forced)
	assert.Contains(t, out, "Forced schema version to 1")
}

func TestMigrate_ForceInvalidVersion(t *testing.T) {
	clearEnv(t)
	migrator := &fakeMigrator{}

	_, err := runCLI(t, migratorDeps(migrator, nil), "migrate", "force", "abc", "--database-url", testDatabaseURL)

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_VERSION")
	assert.Empty(t, migrator.forced)
}

func TestMigrate_MigratorFactoryError(t *testing.T) {
	clearEnv(t)
	deps := &Deps{
		MigratorFactory: func(string) (Migrator, error) {
			return nil, errors.New("bad url")
		},
	}

	_, err := runCLI(t, deps, "migrate", "up", "--database-url", testDatabaseURL)

	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}
