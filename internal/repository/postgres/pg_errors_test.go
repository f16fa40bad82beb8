package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veloticket/stagegate/internal/repository"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock detected", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped serialization failure", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("connection reset"), false},
		{"no rows", pgx.ErrNoRows, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestWithTxRetry(t *testing.T) {
	t.Run("retries serialization failures until success", func(t *testing.T) {
		calls := 0
		err := withTxRetry(txAttempts, func() error {
			calls++
			if calls < 3 {
				return &pgconn.PgError{Code: "40001"}
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry non-retryable errors", func(t *testing.T) {
		calls := 0
		wantErr := errors.New("boom")
		err := withTxRetry(txAttempts, func() error {
			calls++
			return wantErr
		})

		require.ErrorIs(t, err, wantErr)
		assert.Equal(t, 1, calls)
	})

	t.Run("surfaces the last error when attempts run out", func(t *testing.T) {
		calls := 0
		err := withTxRetry(txAttempts, func() error {
			calls++
			return &pgconn.PgError{Code: "40P01"}
		})

		var pgErr *pgconn.PgError
		require.ErrorAs(t, err, &pgErr)
		assert.Equal(t, "40P01", pgErr.Code)
		assert.Equal(t, txAttempts, calls)
	})
}

func TestTranslateDBErr(t *testing.T) {
	assert.NoError(t, translateDBErr(nil))
	assert.ErrorIs(t, translateDBErr(pgx.ErrNoRows), repository.ErrNotFound)
	assert.ErrorIs(t, translateDBErr(&pgconn.PgError{Code: "23505"}), repository.ErrConflict)

	// Unknown errors pass through unwrapped so callers can still inspect
	// the original PgError.
	serErr := &pgconn.PgError{Code: "40001"}
	assert.Same(t, error(serErr), translateDBErr(serErr))
}
