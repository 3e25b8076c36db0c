package apperr

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrQueryFailed = errors.New("query failed")
)
