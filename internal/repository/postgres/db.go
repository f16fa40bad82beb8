package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veloticket/stagegate/internal/signature"
)

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool   *pgxpool.Pool
	cipher *signature.KeyCipher
}

func NewStore(pool *pgxpool.Pool, cipher *signature.KeyCipher) *Store {
	return &Store{
		pool:   pool,
		cipher: cipher,
	}
}

// txAttempts bounds how often a serializable transaction is retried after a
// serialization failure or deadlock before the error is surfaced.
const txAttempts = 3

// runSerializable executes fn inside a serializable read-write transaction,
// retrying serialization failures and deadlocks up to txAttempts times.
func runSerializable(
	ctx context.Context,
	pool *pgxpool.Pool,
	fn func(ctx context.Context, tx DB) error,
) error {
	return withTxRetry(txAttempts, func() error {
		tx, err := pool.BeginTx(ctx, pgx.TxOptions{
			IsoLevel:   pgx.Serializable,
			AccessMode: pgx.ReadWrite,
		})
		if err != nil {
			return err
		}

		defer tx.Rollback(ctx)

		if err := fn(ctx, tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}

		return nil
	})
}

// withTxRetry reruns run until it succeeds, fails with a non-retryable error,
// or the attempt budget is spent.
func withTxRetry(attempts int, run func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = run()
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return err
}

func (s *Store) Concerts() *ConcertRepo { return &ConcertRepo{pool: s.pool, cipher: s.cipher} }
func (s *Store) Tickets() *TicketRepo   { return &TicketRepo{pool: s.pool} }
func (s *Store) Users() *UserRepo       { return &UserRepo{pool: s.pool} }
func (s *Store) Verifications() *VerificationRepo {
	return &VerificationRepo{pool: s.pool}
}
