// Package auth is the authentication boundary: password login against
// the user table and stateless bearer tokens for everything after.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/websters/query-api/internal/sqlc"
)

// DefaultTokenTTL is the token lifetime when the config does not set one.
const DefaultTokenTTL = 24 * time.Hour

// Sentinel errors for auth operations. Check with errors.Is().
var (
	// ErrInvalidCredentials covers unknown usernames, wrong passwords,
	// and deactivated accounts alike so responses leak nothing.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken indicates a missing, malformed, expired, or
	// tampered bearer token.
	ErrInvalidToken = errors.New("invalid token")
)

// dummyHash is a valid bcrypt hash of an unused value, compared against
// when the username does not exist so both paths cost one bcrypt run.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Claims is the token payload. Subject carries the username.
type Claims struct {
	jwt.RegisteredClaims
}

// Querier defines the database operations the service needs.
// Satisfied by *sqlc.Queries.
type Querier interface {
	GetUserByUsername(ctx context.Context, username string) (sqlc.User, error)
	CreateUser(ctx context.Context, arg sqlc.CreateUserParams) (sqlc.User, error)
	UpdateUserLastLogin(ctx context.Context, username string) error
}

// Service issues and verifies bearer tokens. Tokens are HS256-signed
// and carry no state beyond the username and expiry, so verification
// needs no database round trip.
type Service struct {
	querier  Querier
	secret   []byte
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewService creates a Service. The signing secret must be non-empty;
// a non-positive ttl selects DefaultTokenTTL.
func NewService(querier Querier, secret string, ttl time.Duration, logger *slog.Logger) (*Service, error) {
	if secret == "" {
		return nil, errors.New("auth signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		querier:  querier,
		secret:   []byte(secret),
		tokenTTL: ttl,
		logger:   logger,
	}, nil
}

// Login verifies the password and returns a signed token with its
// expiry. Unknown users, wrong passwords, and inactive accounts all
// return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if username == "" || password == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}

	user, err := s.querier.GetUserByUsername(ctx, username)
	if err != nil {
		// Equalize timing between unknown and known users.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.logger.Debug("login for unknown user", "username", username)
		return "", time.Time{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if !user.Active {
		return "", time.Time{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.issue(username)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	// Best effort; a failed timestamp update must not fail the login.
	if err := s.querier.UpdateUserLastLogin(ctx, username); err != nil {
		s.logger.Warn("updating last login failed", "username", username, "error", err)
	}

	s.logger.Debug("user logged in", "username", username)
	return token, expiresAt, nil
}

// Verify validates a token and returns the username it was issued to.
func (s *Service) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Register creates a user with a bcrypt-hashed password. Called by the
// add-user command; deliberately not exposed over HTTP.
func (s *Service) Register(ctx context.Context, username, password string) error {
	if username == "" {
		return errors.New("username is required")
	}
	if password == "" {
		return errors.New("password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if _, err := s.querier.CreateUser(ctx, sqlc.CreateUserParams{
		Username:     username,
		PasswordHash: string(hash),
	}); err != nil {
		return fmt.Errorf("creating user %q: %w", username, err)
	}

	s.logger.Info("user registered", "username", username)
	return nil
}

func (s *Service) issue(username string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
