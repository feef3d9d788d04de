package objectstore

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/common"
	"github.com/lukisan/renderwatch/internal/interfaces"
)

// New selects the object store implementation from configuration.
func New(ctx context.Context, cfg *common.ObjectStoreConfig, logger arbor.ILogger) (interfaces.ObjectStorage, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Store(ctx, cfg, logger)
	case "filesystem":
		return NewFileStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown object store type: %s", cfg.Type)
	}
}
