// Package authsession implements the short-lived verification sessions
// behind the homepage SMS gate and admin two-factor login.
//
// A session moves created -> code_sent -> verified -> consumed. Consuming is
// single use: a session yields at most one lead (or one admin token).
// Sessions expire ExpiresAt after creation; every operation on an expired
// session fails with ErrSessionExpired.
//
// Sessions live in a Store: Redis when configured (shared by all replicas),
// otherwise an in-process go-cache map.
package authsession
