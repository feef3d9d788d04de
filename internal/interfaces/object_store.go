package interfaces

import "context"

// ObjectStorage is the durable asset store behind the migrator.
// Implementations: S3-compatible bucket (production) and local filesystem
// (development).
type ObjectStorage interface {
	// Upload writes an object at the given path
	Upload(ctx context.Context, path string, data []byte, contentType string) error

	// PublicURL returns the stable public URL serving the object at path
	PublicURL(path string) string

	// Remove deletes the object at path
	Remove(ctx context.Context, path string) error
}
