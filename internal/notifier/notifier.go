// Package notifier delivers refund-rejection notices to the user-facing
// messaging pipeline. Delivery is best effort: review decisions never fail
// because a notice could not be sent.
package notifier

import (
	"context"
	"log/slog"
)

// RefundRejectedNotice is the payload handed to the messaging pipeline.
type RefundRejectedNotice struct {
	Username    string `json:"username"`
	ConcertName string `json:"concert_name"`
	Reason      string `json:"reason"`
}

type Notifier interface {
	NotifyRefundRejected(ctx context.Context, email string, notice RefundRejectedNotice) error
}

// LogNotifier records notices to the application log. Used in deployments
// without a messaging pipeline, and in tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyRefundRejected(ctx context.Context, email string, notice RefundRejectedNotice) error {
	n.logger.Info("refund rejected notice",
		"email", email,
		"username", notice.Username,
		"concert", notice.ConcertName,
		"reason", notice.Reason,
	)
	return nil
}
