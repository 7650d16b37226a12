package article

import "errors"

var (
	ErrNotFound              = errors.New("article not found")
	ErrInvalidInput          = errors.New("invalid article")
	ErrGenerationUnavailable = errors.New("article generation is not configured")
	ErrGenerationFailed      = errors.New("article generation failed")
)
