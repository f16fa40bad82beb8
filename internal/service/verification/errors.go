package verification

import "errors"

var (
	ErrInvalidPayload = errors.New("无法识别的二维码")
	ErrTicketNotFound = errors.New("票据不存在")
)
