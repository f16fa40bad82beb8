package redis

import (
	"fmt"

	"github.com/veloticket/stagegate/internal/domain"
)

const ns = "stagegate:v1"

func KeyRefundRequest(ticketID string) string {
	return fmt.Sprintf("%s:refund:req:%s", ns, ticketID)
}

func KeyRefundIndex(status domain.RefundStatus) string {
	return fmt.Sprintf("%s:refund:index:%s", ns, status)
}

func KeyLoginFailShort(email string) string {
	return fmt.Sprintf("%s:login:fail:short:%s", ns, email)
}

func KeyLoginFailLong(email string) string {
	return fmt.Sprintf("%s:login:fail:long:%s", ns, email)
}

func KeyLoginLock(email string) string {
	return fmt.Sprintf("%s:login:lock:%s", ns, email)
}

func KeyConcertSummary(concertID string) string {
	return fmt.Sprintf("%s:concert:%s:summary", ns, concertID)
}

func KeyIdemOrder(concertID, idemKey string) string {
	return fmt.Sprintf("%s:idem:orders:%s:%s", ns, concertID, idemKey)
}
