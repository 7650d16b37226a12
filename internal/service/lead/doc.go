// Package lead owns lead capture and the admin lead book.
//
// Public forms that are gated by SMS verification create leads through
// CreateFromSession, which consumes the verified auth session so one session
// yields at most one lead. Non-gated forms (financing, contact) use Create.
// Guide downloads hand the new lead to the drip sequencer.
package lead
