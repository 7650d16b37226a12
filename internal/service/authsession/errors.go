package authsession

import "errors"

// Sentinel errors for the auth session layer.
var (
	ErrNotFound        = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrCodeNotSent     = errors.New("no verification code sent for this session")
	ErrInvalidCode     = errors.New("invalid verification code")
	ErrTooManyAttempts = errors.New("too many verification attempts")
	ErrRateLimited     = errors.New("too many codes requested, try again later")
	ErrNotVerified     = errors.New("phone not verified")
	ErrAlreadyVerified = errors.New("session already verified")
	ErrAlreadyConsumed = errors.New("session already used")
	ErrPhoneRequired   = errors.New("phone number is required")
	ErrPurposeMismatch = errors.New("session purpose mismatch")
)
