package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrAccountLocked      = errors.New("账户已锁定")
	ErrInvalidToken       = errors.New("登录凭证无效或已过期")
)

// LockoutError carries how long the caller has to wait. It matches
// ErrAccountLocked under errors.Is so transports can map it without
// inspecting the concrete type.
type LockoutError struct {
	Remaining time.Duration
}

func (e *LockoutError) Error() string {
	secs := int(e.Remaining.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("登录失败次数过多，请在 %d 秒后重试", secs)
}

func (e *LockoutError) Is(target error) bool {
	return target == ErrAccountLocked
}
