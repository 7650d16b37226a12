package guide

import "errors"

var (
	ErrNotFound       = errors.New("guide not found")
	ErrInvalidInput   = errors.New("invalid guide")
	ErrNoContent      = errors.New("guide has no content to render")
	ErrPDFUnavailable = errors.New("guide pdf is not available")
)
