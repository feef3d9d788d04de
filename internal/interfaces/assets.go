package interfaces

import "context"

// MigrationResult describes a migrated asset: the durable storage key and
// the public URL that serves it.
type MigrationResult struct {
	StoragePath string
	PublicURL   string
}

// AssetMigrator copies finished assets from transient provider URLs into
// durable storage.
type AssetMigrator interface {
	// Migrate downloads sourceURL and re-uploads it under a path namespaced
	// by owner and job. On a failed upload any partially written object is
	// removed before the error is returned.
	Migrate(ctx context.Context, sourceURL, ownerID, jobID string) (*MigrationResult, error)

	// DeleteAsset removes a migrated object. Best-effort: failures are
	// logged by the caller and never block deletion of the owning job.
	DeleteAsset(ctx context.Context, storagePath string) error
}
