// Package auth implements login with per-account failure throttling.
//
// Every failed attempt is counted in two sliding windows (a short burst
// window and a long one); tripping either places a lockout that is checked
// before credentials are even looked at. The counting and the lock placement
// happen atomically in the limiter, so parallel failed attempts cannot
// undercount.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/veloticket/stagegate/internal/domain"
	"github.com/veloticket/stagegate/internal/monitoring"
	"github.com/veloticket/stagegate/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Limiter is the failure-throttling half of login. Implemented by
// redis.LoginLimiter.
type Limiter interface {
	CheckLimit(ctx context.Context, email string) (locked bool, remaining time.Duration, err error)
	RecordFailure(ctx context.Context, email string) (locked bool, window string, lockFor time.Duration, err error)
	ClearFailure(ctx context.Context, email string) error
}

type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type Service struct {
	users   UserStore
	limiter Limiter
	cfg     Config
	logger  *slog.Logger
}

func New(users UserStore, limiter Limiter, cfg Config, logger *slog.Logger) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &Service{
		users:   users,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Login authenticates an email/password pair.
//
// Unknown accounts and wrong passwords are indistinguishable to the caller
// and both count as failures against the email, so probing for registered
// addresses is throttled the same as password guessing.
//
// Returns:
//   - string: a signed bearer token on success.
//   - error: auth.ErrInvalidCredentials, or a *LockoutError (matches
//     auth.ErrAccountLocked) when the account is throttled.
func (s *Service) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	const op = "service.auth.Login"

	locked, remaining, err := s.limiter.CheckLimit(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if locked {
		return "", nil, fmt.Errorf("%s: %w", op, &LockoutError{Remaining: remaining})
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, s.fail(ctx, op, email)
		}
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, s.fail(ctx, op, email)
	}

	if err := s.limiter.ClearFailure(ctx, email); err != nil {
		// stale counters only make the next failure stricter
		s.logger.Warn("login failure counters not cleared", "error", err)
	}

	token, err := s.mintToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	return token, user, nil
}

// fail records the attempt and returns either the lockout the attempt
// tripped or the generic credentials error.
func (s *Service) fail(ctx context.Context, op, email string) error {
	locked, window, lockFor, err := s.limiter.RecordFailure(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if locked {
		monitoring.LoginLockout(window)
		return fmt.Errorf("%s: %w", op, &LockoutError{Remaining: lockFor})
	}
	return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (s *Service) mintToken(user *domain.User) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	})
	return tok.SignedString([]byte(s.cfg.JWTSecret))
}

// ParseToken validates a bearer token and returns the user ID and email it
// was minted for.
func (s *Service) ParseToken(tokenString string) (uuid.UUID, string, error) {
	const op = "service.auth.ParseToken"

	var c claims
	tok, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !tok.Valid {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return id, c.Email, nil
}
