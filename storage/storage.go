// Package storage holds the output-file boundary: a local file cache with
// TTL eviction serving the /files routes, and the object store interface
// remote backends would implement.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned for unknown or expired file ids.
var ErrNotFound = errors.New("file not found")

// ObjectStore is the boundary to a remote object storage backend. The
// service itself only serves local files; uploads to cloud storage happen
// on the compute pods, which report the resulting URLs through webhooks.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Presign(ctx context.Context, key string, expiry time.Duration) (string, error)
}
