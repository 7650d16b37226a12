package verification

import "errors"

// Sentinel errors for the verification layer.
var (
	ErrInvalidPhone        = errors.New("invalid French mobile number")
	ErrUnknownVerification = errors.New("verification not found or expired")
	ErrTooManyAttempts     = errors.New("too many verification attempts")
)
