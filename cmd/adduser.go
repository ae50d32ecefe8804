package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/websters/query-api/internal/auth"
	"github.com/websters/query-api/internal/config"
	"github.com/websters/query-api/internal/sqlc"
)

// parseAddUserArgs validates the positional arguments for add-user.
func parseAddUserArgs(args []string) (username, password string, err error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("usage: websters add-user <username> <password>")
	}
	if args[0] == "" || args[1] == "" {
		return "", "", fmt.Errorf("username and password must be non-empty")
	}
	return args[0], args[1], nil
}

// runAddUser provisions a login account and exits. Registration is an
// operator action, deliberately not exposed over HTTP.
func runAddUser(args []string) error {
	username, password, err := parseAddUserArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	svc, err := auth.NewService(sqlc.New(pool), cfg.JWTSecret,
		time.Duration(cfg.TokenTTLMinutes)*time.Minute, nil)
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}

	if err := svc.Register(ctx, username, password); err != nil {
		return fmt.Errorf("creating user %q: %w", username, err)
	}

	slog.Info("user created", "username", username)
	return nil
}
