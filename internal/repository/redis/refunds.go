package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/veloticket/stagegate/internal/domain"
	"github.com/veloticket/stagegate/internal/repository"
)

// Lua script for submitting a refund request.
// KEYS[1] = request body key
// KEYS[2] = pending index
// ARGV[1] = request JSON
// ARGV[2] = pending TTL ms
// ARGV[3] = ticket id
//
// The existence check and the write happen in one script, so two concurrent
// submissions for the same ticket cannot both pass the pending check. The
// index TTL is refreshed to the pending TTL so an idle index expires with
// its newest entry.
const luaSubmitRefund = `
local existing = redis.call('GET', KEYS[1])
if existing then
  local cur = cjson.decode(existing)
  if cur['status'] == 'pending' then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('LREM', KEYS[2], 0, ARGV[3])
redis.call('RPUSH', KEYS[2], ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[2])
return 1
`

// Lua script for completing a review: one atomic move from the pending index
// to the outcome index plus the body rewrite with the shorter retention TTL.
// The outcome index picks up the same retention TTL as the body.
// KEYS[1] = request body key
// KEYS[2] = pending index
// KEYS[3] = outcome index
// ARGV[1] = request JSON
// ARGV[2] = ticket id
// ARGV[3] = processed TTL ms
const luaCompleteRefund = `
redis.call('LREM', KEYS[2], 0, ARGV[2])
redis.call('RPUSH', KEYS[3], ARGV[2])
redis.call('PEXPIRE', KEYS[3], ARGV[3])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`

// RefundQueue keeps refund-request bodies and the per-status ordered indexes
// in Redis. Bodies expire by TTL; pending requests live long enough to
// survive the review SLA, processed ones are retained for less.
type RefundQueue struct {
	rdb          *redis.Client
	pendingTTL   time.Duration
	processedTTL time.Duration
}

func NewRefundQueue(rdb *redis.Client, pendingTTL, processedTTL time.Duration) *RefundQueue {
	return &RefundQueue{
		rdb:          rdb,
		pendingTTL:   pendingTTL,
		processedTTL: processedTTL,
	}
}

// Submit stores a new pending request and appends it to the pending index.
//
// Returns:
//   - error: repository.ErrDuplicate if a pending request already exists for
//     this ticket.
func (q *RefundQueue) Submit(ctx context.Context, req *domain.RefundRequest) error {
	const op = "redis.RefundQueue.Submit"

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	id := req.TicketID.String()

	res, err := q.rdb.Eval(ctx, luaSubmitRefund,
		[]string{KeyRefundRequest(id), KeyRefundIndex(domain.RefundPending)},
		string(body), q.pendingTTL.Milliseconds(), id,
	).Int64()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrDuplicate)
	}

	return nil
}

// Get retrieves the request for a ticket by direct key lookup.
//
// Returns:
//   - error: repository.ErrNotFound if no request exists (or it expired).
func (q *RefundQueue) Get(ctx context.Context, ticketID uuid.UUID) (*domain.RefundRequest, error) {
	const op = "redis.RefundQueue.Get"

	raw, err := q.rdb.Get(ctx, KeyRefundRequest(ticketID.String())).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var req domain.RefundRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &req, nil
}

// ListByStatus loads every request on the given status index, one key at a
// time. Entries whose bodies have expired are dropped from the index as they
// are found, so a long-lived index cannot accumulate dead ids.
func (q *RefundQueue) ListByStatus(
	ctx context.Context,
	status domain.RefundStatus,
) ([]domain.RefundRequest, error) {
	const op = "redis.RefundQueue.ListByStatus"

	ids, err := q.rdb.LRange(ctx, KeyRefundIndex(status), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]domain.RefundRequest, 0, len(ids))
	for _, id := range ids {
		raw, err := q.rdb.Get(ctx, KeyRefundRequest(id)).Result()
		if err == redis.Nil {
			q.rdb.LRem(ctx, KeyRefundIndex(status), 0, id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		var req domain.RefundRequest
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			continue
		}
		if req.Status != status {
			continue
		}

		out = append(out, req)
	}

	return out, nil
}

// Complete moves a reviewed request off the pending index onto its outcome
// index and rewrites the body with the processed retention TTL. The move is a
// single script, so the indexes never disagree with the stored status.
func (q *RefundQueue) Complete(ctx context.Context, req *domain.RefundRequest) error {
	const op = "redis.RefundQueue.Complete"

	if req.Status != domain.RefundApproved && req.Status != domain.RefundRejected {
		return fmt.Errorf("%s: status %q is not a review outcome", op, req.Status)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	id := req.TicketID.String()

	_, err = q.rdb.Eval(ctx, luaCompleteRefund,
		[]string{
			KeyRefundRequest(id),
			KeyRefundIndex(domain.RefundPending),
			KeyRefundIndex(req.Status),
		},
		string(body), id, q.processedTTL.Milliseconds(),
	).Result()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
