package pdf

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a stored file does not exist.
var ErrNotFound = errors.New("pdf: file not found")

// Store keeps rendered PDFs.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// URL returns a time-limited direct download URL, or "" when the store
	// cannot serve files itself and the API must stream them.
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}
