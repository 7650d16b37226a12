// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handlers use these helpers instead of raw http.ResponseWriter calls so every
// endpoint returns the same JSON error envelope. Public form endpoints rely on
// Decode capping request bodies at 1 MiB.
package httputil
