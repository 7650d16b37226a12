// Package verification sends and checks one-time SMS codes.
//
// A Provider owns code generation and delivery. TwilioProvider delegates to
// Twilio Verify; LocalProvider generates 6-digit codes itself, keeps them in
// memory with an expiry and an attempt counter, and in dev mode also accepts
// a fixed list of test codes so the flow can be exercised without a phone.
//
// Session bookkeeping (which phone belongs to which visitor, how many sends
// are allowed) lives in the authsession package.
package verification
