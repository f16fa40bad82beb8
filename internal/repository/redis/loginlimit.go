package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script recording one login failure across both sliding windows.
// KEYS[1] = short window list
// KEYS[2] = long window list
// KEYS[3] = lock record key
// ARGV[1] = now_ms
// ARGV[2] = short_window_ms
// ARGV[3] = short_max
// ARGV[4] = short_lockout_ms
// ARGV[5] = long_window_ms
// ARGV[6] = long_max
// ARGV[7] = long_lockout_ms
//
// Appends the failure to both lists, refreshes each list's TTL to its window,
// prunes timestamps that fell out of the window, and writes a lock record if
// either threshold is reached. The short window is checked first.
const luaRecordFailure = `
local now = tonumber(ARGV[1])

redis.call('RPUSH', KEYS[1], now)
redis.call('RPUSH', KEYS[2], now)
redis.call('PEXPIRE', KEYS[1], ARGV[2])
redis.call('PEXPIRE', KEYS[2], ARGV[5])

local function prune(key, window)
  while true do
    local head = redis.call('LINDEX', key, 0)
    if not head then return end
    if tonumber(head) > now - window then return end
    redis.call('LPOP', key)
  end
end
prune(KEYS[1], tonumber(ARGV[2]))
prune(KEYS[2], tonumber(ARGV[5]))

if redis.call('LLEN', KEYS[1]) >= tonumber(ARGV[3]) then
  local untilMs = now + tonumber(ARGV[4])
  redis.call('SET', KEYS[3], cjson.encode({type='short', ['until']=untilMs}), 'PX', ARGV[4])
  return {1, 'short', untilMs}
end
if redis.call('LLEN', KEYS[2]) >= tonumber(ARGV[6]) then
  local untilMs = now + tonumber(ARGV[7])
  redis.call('SET', KEYS[3], cjson.encode({type='long', ['until']=untilMs}), 'PX', ARGV[7])
  return {1, 'long', untilMs}
end
return {0, '', 0}
`

// WindowConfig describes one sliding failure window and the lockout it
// triggers when Max failures land inside Window.
type WindowConfig struct {
	Window  time.Duration
	Max     int
	Lockout time.Duration
}

// LoginLimiter tracks login failures per email across a short and a long
// sliding window, each with its own lockout.
type LoginLimiter struct {
	rdb   *redis.Client
	short WindowConfig
	long  WindowConfig
}

func NewLoginLimiter(rdb *redis.Client, short, long WindowConfig) *LoginLimiter {
	return &LoginLimiter{
		rdb:   rdb,
		short: short,
		long:  long,
	}
}

type lockRecord struct {
	Type  string `json:"type"`
	Until int64  `json:"until"` // unix ms
}

// CheckLimit reports whether the email is currently locked out and, if so,
// for how much longer. A lock record whose deadline already passed is cleared
// on the spot.
func (l *LoginLimiter) CheckLimit(ctx context.Context, email string) (locked bool, remaining time.Duration, err error) {
	const op = "redis.LoginLimiter.CheckLimit"

	raw, err := l.rdb.Get(ctx, KeyLoginLock(email)).Result()
	if err == redis.Nil {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("%s: %w", op, err)
	}

	var rec lockRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return false, 0, fmt.Errorf("%s: %w", op, err)
	}

	nowMs := time.Now().UnixMilli()
	if rec.Until <= nowMs {
		if err := l.rdb.Del(ctx, KeyLoginLock(email)).Err(); err != nil {
			return false, 0, fmt.Errorf("%s: %w", op, err)
		}
		return false, 0, nil
	}

	return true, time.Duration(rec.Until-nowMs) * time.Millisecond, nil
}

// RecordFailure registers a failed attempt in both windows and returns the
// lock decision, if the attempt tripped one. window names the window that
// tripped ("short" or "long") and is empty when no lock was placed.
func (l *LoginLimiter) RecordFailure(ctx context.Context, email string) (locked bool, window string, lockFor time.Duration, err error) {
	const op = "redis.LoginLimiter.RecordFailure"

	nowMs := time.Now().UnixMilli()

	res, err := l.rdb.Eval(ctx, luaRecordFailure,
		[]string{
			KeyLoginFailShort(email),
			KeyLoginFailLong(email),
			KeyLoginLock(email),
		},
		nowMs,
		l.short.Window.Milliseconds(), l.short.Max, l.short.Lockout.Milliseconds(),
		l.long.Window.Milliseconds(), l.long.Max, l.long.Lockout.Milliseconds(),
	).Result()
	if err != nil {
		return false, "", 0, fmt.Errorf("%s: %w", op, err)
	}

	arr, ok := res.([]any)
	if !ok || len(arr) != 3 {
		return false, "", 0, fmt.Errorf("%s: bad script result: %v", op, res)
	}

	if toInt(arr[0]) != 1 {
		return false, "", 0, nil
	}

	window, _ = arr[1].(string)
	untilMs := toInt(arr[2])

	return true, window, time.Duration(untilMs-nowMs) * time.Millisecond, nil
}

// ClearFailure wipes both windows and any lock. Called on successful login.
func (l *LoginLimiter) ClearFailure(ctx context.Context, email string) error {
	const op = "redis.LoginLimiter.ClearFailure"

	err := l.rdb.Del(ctx,
		KeyLoginFailShort(email),
		KeyLoginFailLong(email),
		KeyLoginLock(email),
	).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func toInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		var x int64
		fmt.Sscan(t, &x)
		return x
	default:
		return 0
	}
}
