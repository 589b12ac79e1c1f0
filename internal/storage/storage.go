package storage

import (
	"context"
	"time"
)

// DocumentStore issues time-limited access to stored documents. The engine
// never touches document bytes; it hands recipients a short-lived URL.
type DocumentStore interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
