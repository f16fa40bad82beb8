package refund

import "errors"

var (
	ErrTicketNotFound   = errors.New("票据不存在")
	ErrNotTicketOwner   = errors.New("无权操作该票据")
	ErrTicketNotValid   = errors.New("只能退还有效状态的票据")
	ErrConcertStarted   = errors.New("演出已开始，无法退款")
	ErrDuplicateRequest = errors.New("该票据已有待处理的退款申请")
	ErrRequestNotFound  = errors.New("退款申请不存在")
	ErrAlreadyReviewed  = errors.New("该退款申请已处理")
	ErrNoteRequired     = errors.New("拒绝退款必须填写说明")
	ErrListFailed       = errors.New("查询退款申请失败")
)
