// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/internal/auth/postgres"
	"github.com/holomush/authd/internal/config"
	"github.com/holomush/authd/internal/httpapi"
)

// userCreateOptions holds flags for user create.
type userCreateOptions struct {
	email         string
	username      string
	superuser     bool
	passwordStdin bool
}

// userShowOptions holds flags for user show.
type userShowOptions struct {
	id       string
	email    string
	username string
}

// NewUserCmd creates the user command and its subcommands.
func NewUserCmd() *cobra.Command {
	return newUserCmdWithDeps(nil)
}

func newUserCmdWithDeps(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer user accounts",
	}
	cmd.AddCommand(newUserCreateCmd(deps))
	cmd.AddCommand(newUserShowCmd(deps))
	return cmd
}

func newUserCreateCmd(deps *Deps) *cobra.Command {
	opts := &userCreateOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user, optionally as a superuser",
		Long: `Create a user directly in the database with the same validation as
registration. The password is prompted for unless --password-stdin is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserCreate(cmd, opts, deps)
		},
	}

	cmd.Flags().StringVar(&opts.email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&opts.username, "username", "", "username (required)")
	cmd.Flags().BoolVar(&opts.superuser, "superuser", false, "grant superuser status")
	cmd.Flags().BoolVar(&opts.passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	_ = cmd.MarkFlagRequired("email")    //nolint:errcheck // flag exists
	_ = cmd.MarkFlagRequired("username") //nolint:errcheck // flag exists

	return cmd
}

func newUserShowCmd(deps *Deps) *cobra.Command {
	opts := &userShowOptions{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUserShow(cmd, opts, deps)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "look up by ID")
	cmd.Flags().StringVar(&opts.email, "email", "", "look up by email")
	cmd.Flags().StringVar(&opts.username, "username", "", "look up by username")
	cmd.MarkFlagsOneRequired("id", "email", "username")
	cmd.MarkFlagsMutuallyExclusive("id", "email", "username")

	return cmd
}

func runUserCreate(cmd *cobra.Command, opts *userCreateOptions, deps *Deps) error {
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := checkDatabaseConfig(cfg); err != nil {
		return err
	}

	password, err := readPassword(cmd, opts.passwordStdin, deps.PasswordReader)
	if err != nil {
		return err
	}

	pool, err := deps.PoolFactory(cmd.Context(), cfg)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	svc, err := newAdminService(cfg, postgres.NewUserRepository(pool))
	if err != nil {
		return err
	}

	var registerOpts []auth.RegisterOption
	if opts.superuser {
		registerOpts = append(registerOpts, auth.AsSuperuser())
	}
	user, err := svc.Register(cmd.Context(), opts.email, opts.username, password, registerOpts...)
	if err != nil {
		return userError(err)
	}

	role := "user"
	if user.IsSuperuser {
		role = "superuser"
	}
	cmd.Printf("Created %s %s (%s)\n", role, user.Username, user.ID)
	return nil
}

func runUserShow(cmd *cobra.Command, opts *userShowOptions, deps *Deps) error {
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := checkDatabaseConfig(cfg); err != nil {
		return err
	}

	var id ulid.ULID
	if opts.id != "" {
		id, err = ulid.ParseStrict(opts.id)
		if err != nil {
			return oops.Code("INVALID_USER_ID").With("id", opts.id).Errorf("invalid user id %q", opts.id)
		}
	}

	pool, err := deps.PoolFactory(cmd.Context(), cfg)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	repo := postgres.NewUserRepository(pool)
	var user *auth.User
	switch {
	case opts.id != "":
		user, err = repo.GetByID(cmd.Context(), id)
	case opts.email != "":
		user, err = repo.GetByEmail(cmd.Context(), auth.NormalizeEmail(opts.email))
	default:
		user, err = repo.GetByUsername(cmd.Context(), opts.username)
	}
	if errors.Is(err, auth.ErrNotFound) {
		return oops.Code("USER_NOT_FOUND").Errorf("user not found")
	}
	if err != nil {
		return oops.With("operation", "look up user").Wrap(err)
	}

	out, err := json.MarshalIndent(httpapi.NewUserView(user), "", "  ")
	if err != nil {
		return oops.Code("RENDER_FAILED").Wrap(err)
	}
	cmd.Println(string(out))
	return nil
}

// newAdminService builds a service for commands that create users but never
// issue tokens. Without a configured secret the codec signs with a random
// one that is discarded on exit.
func newAdminService(cfg *config.Config, users auth.UserRepository) (*auth.Service, error) {
	if cfg.JWT.SecretKey == "" {
		secret := make([]byte, config.MinSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, oops.Code("SECRET_GENERATE_FAILED").Wrap(err)
		}
		adminCfg := *cfg
		adminCfg.JWT.SecretKey = string(secret)
		cfg = &adminCfg
	}
	return newService(cfg, users, slog.Default())
}

// rejectedError prints only the public message of a rejected request.
type rejectedError struct {
	msg string
	err error
}

func (e *rejectedError) Error() string { return e.msg }
func (e *rejectedError) Unwrap() error { return e.err }

// userError shows a rejected registration by its public message and
// leaves other failures intact.
func userError(err error) error {
	switch auth.KindOf(err) {
	case auth.KindInvalidInput, auth.KindConflict:
		return &rejectedError{msg: auth.PublicMessage(err), err: err}
	default:
		return oops.With("operation", "create user").Wrap(err)
	}
}

// readPassword reads the new user's password from stdin or the terminal.
func readPassword(cmd *cobra.Command, fromStdin bool, prompt func(string) (string, error)) (string, error) {
	if fromStdin {
		return readPasswordLine(cmd.InOrStdin())
	}

	password, err := prompt("Password: ")
	if err != nil {
		return "", err
	}
	confirm, err := prompt("Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", oops.Code("PASSWORD_MISMATCH").Errorf("passwords do not match")
	}
	return password, nil
}

// readPasswordLine returns the first line of r without its line ending.
func readPasswordLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", oops.Code("PASSWORD_REQUIRED").Errorf("no password on stdin")
	}
	return line, nil
}

// readPasswordFromTerminal prompts on stderr and reads without echo.
func readPasswordFromTerminal(prompt string) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits in int
	if !term.IsTerminal(fd) {
		return "", oops.Code("PASSWORD_NO_TERMINAL").
			Errorf("stdin is not a terminal; use --password-stdin")
	}
	_, _ = fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", oops.Code("PASSWORD_READ_FAILED").Wrap(err)
	}
	return string(password), nil
}
