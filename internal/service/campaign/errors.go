package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound       = errors.New("campaign not found")
	ErrNotEditable    = errors.New("campaign can only be edited while draft")
	ErrAlreadySending = errors.New("campaign is already sending or sent")
	ErrInvalidInput   = errors.New("invalid campaign")
	ErrNoTransport    = errors.New("no transport configured for channel")
)
