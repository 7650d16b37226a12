package lead

import "errors"

var (
	ErrNotFound     = errors.New("lead not found")
	ErrInvalidInput = errors.New("invalid lead input")
)
