// Package campaign implements one-off email and SMS broadcasts to lead
// segments.
//
// The service layer holds the lifecycle rules (draft, sending, sent or
// failed), resolves the audience through the lead service, skips suppressed
// addresses and records one recipient row per lead. It depends on repository
// interfaces defined in this package and never imports from api/.
//
// Repository implementations live in repository/postgres/.
package campaign
