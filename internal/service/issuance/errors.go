package issuance

import "errors"

// User-facing reason strings are localized the way the platform's clients
// expect them; the transport layer returns them verbatim.
var (
	ErrInvalidOrder        = errors.New("请求参数无效")
	ErrConcertNotFound     = errors.New("演唱会不存在")
	ErrConcertNotOnSale    = errors.New("只能购买未开始的演唱会门票")
	ErrEmptyOrder          = errors.New("购票数量必须大于0")
	ErrInsufficientTickets = errors.New("票数不足")
	ErrPurchaseLimit       = errors.New("超过单人限购数量")
)
