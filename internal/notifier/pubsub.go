package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelRefundRejected = "stagegate:v1:notices:refund_rejected"

// PubSubNotifier publishes notices to a Redis channel consumed by the email
// delivery service.
type PubSubNotifier struct {
	rdb *redis.Client
}

func NewPubSubNotifier(rdb *redis.Client) *PubSubNotifier {
	return &PubSubNotifier{rdb: rdb}
}

type refundRejectedMsg struct {
	Type   string               `json:"type"`
	Email  string               `json:"email"`
	Notice RefundRejectedNotice `json:"notice"`
	TsUnix int64                `json:"ts_unix"`
}

func (n *PubSubNotifier) NotifyRefundRejected(ctx context.Context, email string, notice RefundRejectedNotice) error {
	msg := refundRejectedMsg{
		Type:   "refund_rejected",
		Email:  email,
		Notice: notice,
		TsUnix: time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return n.rdb.Publish(ctx, channelRefundRejected, b).Err()
}
