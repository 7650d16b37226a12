package sequence

import "errors"

// Sentinel errors for the sequence service layer.
var (
	ErrNotFound         = errors.New("sequence row not found")
	ErrTemplateNotFound = errors.New("email template not found")
	ErrAlreadyScheduled = errors.New("sequence already scheduled for this email and guide")
	ErrInvalidPersona   = errors.New("invalid persona")
	ErrSuppressed       = errors.New("recipient is suppressed")
	ErrInvalidTemplate  = errors.New("invalid email template")
)
