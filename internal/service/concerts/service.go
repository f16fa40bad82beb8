// Package concerts covers concert administration and lookups. Creating a
// concert also provisions its signing keypair: the public key is stored in
// the clear, the private key is sealed before it ever reaches the store.
package concerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/veloticket/stagegate/internal/domain"
	"github.com/veloticket/stagegate/internal/repository"
	redisrepo "github.com/veloticket/stagegate/internal/repository/redis"
	"github.com/veloticket/stagegate/internal/signature"
)

type Store interface {
	Create(ctx context.Context, c *domain.Concert, privateKeyPEM string) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Concert, error)
}

type Config struct {
	// ConcertCacheTTL bounds staleness of the read-side concert summary.
	ConcertCacheTTL time.Duration
}

type Service struct {
	store Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.ConcertCacheTTL <= 0 {
		cfg.ConcertCacheTTL = time.Minute
	}
	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// CreateConcertParams carries admin input. Zero per-user caps fall back to
// the platform defaults (2 adult, 1 child).
type CreateConcertParams struct {
	Title        string
	Venue        string
	ScheduledAt  time.Time
	TotalTickets int
	AdultPrice   decimal.Decimal
	ChildPrice   decimal.Decimal
	MaxAdult     int
	MaxChild     int
}

// CreateConcert provisions a concert together with its signing keypair.
//
// Returns:
//   - *domain.Concert: the created record, private key excluded.
//   - error: concerts.ErrInvalidConcert, concerts.ErrConcertConflict.
func (s *Service) CreateConcert(ctx context.Context, p CreateConcertParams) (*domain.Concert, error) {
	const op = "service.concerts.CreateConcert"

	if p.Title == "" || p.TotalTickets <= 0 || !p.ScheduledAt.After(time.Now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidConcert)
	}
	if p.AdultPrice.IsNegative() || p.ChildPrice.IsNegative() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidConcert)
	}
	if p.MaxAdult <= 0 {
		p.MaxAdult = 2
	}
	if p.MaxChild <= 0 {
		p.MaxChild = 1
	}

	keys, err := signature.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	concert := &domain.Concert{
		ID:           uuid.New(),
		Title:        p.Title,
		Venue:        p.Venue,
		ScheduledAt:  p.ScheduledAt,
		Status:       domain.ConcertUpcoming,
		TotalTickets: p.TotalTickets,
		AdultPrice:   p.AdultPrice,
		ChildPrice:   p.ChildPrice,
		MaxAdult:     p.MaxAdult,
		MaxChild:     p.MaxChild,
		PublicKey:    keys.PublicKey,
		CreatedAt:    time.Now(),
	}

	if err := s.store.Create(ctx, concert, keys.PrivateKey); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrConcertConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return concert, nil
}

// GetConcert reads a concert through the summary cache when one is wired.
//
// Returns:
//   - error: concerts.ErrConcertNotFound.
func (s *Service) GetConcert(ctx context.Context, id uuid.UUID) (*domain.Concert, error) {
	const op = "service.concerts.GetConcert"

	load := func(ctx context.Context) (*domain.Concert, error) {
		return s.store.Get(ctx, id)
	}

	var concert *domain.Concert
	var err error
	if s.cache != nil {
		concert, err = redisrepo.GetOrSetJSON(ctx, s.cache,
			redisrepo.KeyConcertSummary(id.String()), s.cfg.ConcertCacheTTL, load)
	} else {
		concert, err = load(ctx)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrConcertNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return concert, nil
}
