package repository

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrSoldOut       = errors.New("not enough tickets left")
	ErrPurchaseLimit = errors.New("per-user purchase limit exceeded")
	ErrStateChanged  = errors.New("record state changed")
	ErrDuplicate     = errors.New("duplicate pending request")
)
