package concerts

import "errors"

var (
	ErrInvalidConcert  = errors.New("演唱会信息不完整")
	ErrConcertConflict = errors.New("演唱会已存在")
	ErrConcertNotFound = errors.New("演唱会不存在")
)
