package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter() (*LoginLimiter, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	l := NewLoginLimiter(db,
		WindowConfig{Window: 10 * time.Second, Max: 5, Lockout: 5 * time.Minute},
		WindowConfig{Window: time.Hour, Max: 15, Lockout: 24 * time.Hour},
	)
	return l, mock
}

func TestLoginLimiter_CheckLimit_NoLock(t *testing.T) {
	l, mock := newTestLimiter()
	defer mock.ClearExpect()

	mock.ExpectGet(KeyLoginLock("a@b.com")).RedisNil()

	locked, remaining, err := l.CheckLimit(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Zero(t, remaining)
}

func TestLoginLimiter_CheckLimit_ActiveLock(t *testing.T) {
	l, mock := newTestLimiter()
	defer mock.ClearExpect()

	rec, err := json.Marshal(lockRecord{
		Type:  "short",
		Until: time.Now().Add(3 * time.Minute).UnixMilli(),
	})
	require.NoError(t, err)

	mock.ExpectGet(KeyLoginLock("a@b.com")).SetVal(string(rec))

	locked, remaining, err := l.CheckLimit(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Greater(t, remaining, 2*time.Minute)
	assert.LessOrEqual(t, remaining, 3*time.Minute)
}

func TestLoginLimiter_CheckLimit_ClearsStaleLock(t *testing.T) {
	l, mock := newTestLimiter()
	defer mock.ClearExpect()

	rec, err := json.Marshal(lockRecord{
		Type:  "short",
		Until: time.Now().Add(-time.Second).UnixMilli(),
	})
	require.NoError(t, err)

	mock.ExpectGet(KeyLoginLock("a@b.com")).SetVal(string(rec))
	mock.ExpectDel(KeyLoginLock("a@b.com")).SetVal(1)

	locked, _, err := l.CheckLimit(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.False(t, locked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginLimiter_RecordFailure_TripsShortWindow(t *testing.T) {
	l, mock := newTestLimiter()
	defer mock.ClearExpect()

	// The now_ms argument is taken inside RecordFailure, so args are matched
	// loosely.
	mock.CustomMatch(func(expected, actual []interface{}) error {
		return nil
	}).ExpectEval(luaRecordFailure,
		[]string{
			KeyLoginFailShort("a@b.com"),
			KeyLoginFailLong("a@b.com"),
			KeyLoginLock("a@b.com"),
		},
		0, 0, 0, 0, 0, 0, 0,
	).SetVal([]interface{}{
		int64(1), "short", time.Now().Add(5 * time.Minute).UnixMilli(),
	})

	locked, window, lockFor, err := l.RecordFailure(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, "short", window)
	assert.Greater(t, lockFor, 4*time.Minute)
}

func TestLoginLimiter_RecordFailure_BelowThreshold(t *testing.T) {
	l, mock := newTestLimiter()
	defer mock.ClearExpect()

	mock.CustomMatch(func(expected, actual []interface{}) error {
		return nil
	}).ExpectEval(luaRecordFailure,
		[]string{
			KeyLoginFailShort("a@b.com"),
			KeyLoginFailLong("a@b.com"),
			KeyLoginLock("a@b.com"),
		},
		0, 0, 0, 0, 0, 0, 0,
	).SetVal([]interface{}{int64(0), "", int64(0)})

	locked, window, lockFor, err := l.RecordFailure(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Empty(t, window)
	assert.Zero(t, lockFor)
}

func TestLoginLimiter_ClearFailure(t *testing.T) {
	l, mock := newTestLimiter()
	defer mock.ClearExpect()

	mock.ExpectDel(
		KeyLoginFailShort("a@b.com"),
		KeyLoginFailLong("a@b.com"),
		KeyLoginLock("a@b.com"),
	).SetVal(3)

	err := l.ClearFailure(context.Background(), "a@b.com")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
