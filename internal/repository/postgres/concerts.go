package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veloticket/stagegate/internal/domain"
	"github.com/veloticket/stagegate/internal/repository"
	"github.com/veloticket/stagegate/internal/signature"
)

type ConcertRepo struct {
	pool   *pgxpool.Pool
	cipher *signature.KeyCipher
	db     DB
}

func (r *ConcertRepo) With(db DB) *ConcertRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ConcertRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Create inserts a concert together with its signing key pair. The private
// key is sealed before it touches the database; the plaintext PEM never
// leaves this call.
func (r *ConcertRepo) Create(ctx context.Context, c *domain.Concert, privateKeyPEM string) error {
	const op = "postgres.ConcertRepo.Create"

	sealed, err := r.cipher.Seal(privateKeyPEM)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	db := r.handle()

	_, err = db.Exec(ctx,
		`INSERT INTO concerts
		   (id, title, venue, scheduled_at, status,
		    total_tickets, sold_tickets, adult_price, child_price,
		    max_adult_per_user, max_child_per_user,
		    public_key, private_key_enc, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.Title, c.Venue, c.ScheduledAt, c.Status,
		c.TotalTickets, c.AdultPrice, c.ChildPrice,
		c.MaxAdult, c.MaxChild,
		c.PublicKey, sealed, c.CreatedAt,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}

// Get retrieves a concert.
//
// Returns:
//   - error: repository.ErrNotFound if the concert does not exist.
func (r *ConcertRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Concert, error) {
	const op = "postgres.ConcertRepo.Get"

	db := r.handle()

	var c domain.Concert
	err := db.QueryRow(ctx,
		`SELECT id, title, venue, scheduled_at, status,
		        total_tickets, sold_tickets, adult_price, child_price,
		        max_adult_per_user, max_child_per_user, public_key, created_at
		 FROM concerts WHERE id = $1`,
		id,
	).Scan(
		&c.ID, &c.Title, &c.Venue, &c.ScheduledAt, &c.Status,
		&c.TotalTickets, &c.SoldTickets, &c.AdultPrice, &c.ChildPrice,
		&c.MaxAdult, &c.MaxChild, &c.PublicKey, &c.CreatedAt,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &c, nil
}

// GetKeyPair loads the concert's signing keys, opening the private key at the
// persistence boundary. A ciphertext that fails to open surfaces as
// signature.ErrKeyDecrypt; the raw ciphertext is never returned.
func (r *ConcertRepo) GetKeyPair(ctx context.Context, id uuid.UUID) (*domain.ConcertKeyPair, error) {
	const op = "postgres.ConcertRepo.GetKeyPair"

	db := r.handle()

	var pubPEM, sealed string
	err := db.QueryRow(ctx,
		`SELECT public_key, private_key_enc FROM concerts WHERE id = $1`,
		id,
	).Scan(&pubPEM, &sealed)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	privPEM, err := r.cipher.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &domain.ConcertKeyPair{
		ConcertID:     id,
		PublicKeyPEM:  pubPEM,
		PrivateKeyPEM: privPEM,
	}, nil
}

// IncrementSold adjusts the sold counter by delta in a single conditional
// update: a positive delta never pushes sold past total, a negative delta
// never pushes it below zero.
//
// Returns:
//   - error: repository.ErrSoldOut when the adjustment would break a bound.
//   - error: repository.ErrNotFound if the concert does not exist.
func (r *ConcertRepo) IncrementSold(ctx context.Context, id uuid.UUID, delta int) error {
	const op = "postgres.ConcertRepo.IncrementSold"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE concerts
		    SET sold_tickets = sold_tickets + $2
		  WHERE id = $1
		    AND sold_tickets + $2 <= total_tickets
		    AND sold_tickets + $2 >= 0`,
		id, delta,
	)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM concerts WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return wrapDBErr(op, err)
		}
		if !exists {
			return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
		}
		return fmt.Errorf("%s: %w", op, repository.ErrSoldOut)
	}

	return nil
}
