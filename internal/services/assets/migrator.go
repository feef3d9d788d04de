// -----------------------------------------------------------------------
// Asset Migrator - copies finished renders from provider URLs to durable storage
// -----------------------------------------------------------------------

package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/common"
	"github.com/lukisan/renderwatch/internal/interfaces"
)

var (
	// ErrFetchFailed means the provider URL could not be downloaded.
	ErrFetchFailed = errors.New("asset fetch failed")

	// ErrUploadFailed means the durable store rejected the upload.
	ErrUploadFailed = errors.New("asset upload failed")
)

// Migrator downloads finished video assets from transient provider URLs and
// re-uploads them to durable object storage. Provider URLs expire, so a job
// is only completed once its asset survives here.
type Migrator struct {
	store        interfaces.ObjectStorage
	httpClient   *http.Client
	maxAssetSize int64
	logger       arbor.ILogger
}

// NewMigrator creates an asset migrator backed by the given object store.
func NewMigrator(store interfaces.ObjectStorage, cfg *common.UpstreamConfig, logger arbor.ILogger) interfaces.AssetMigrator {
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 2 * time.Minute
	}
	maxSize := cfg.MaxAssetSize
	if maxSize <= 0 {
		maxSize = 512 * 1024 * 1024
	}

	return &Migrator{
		store:        store,
		httpClient:   &http.Client{Timeout: fetchTimeout},
		maxAssetSize: maxSize,
		logger:       logger,
	}
}

// Migrate downloads sourceURL and uploads it under a path namespaced by owner
// and job. A random suffix keeps re-migrations from clobbering each other.
func (m *Migrator) Migrate(ctx context.Context, sourceURL, ownerID, jobID string) (*interfaces.MigrationResult, error) {
	if sourceURL == "" {
		return nil, fmt.Errorf("%w: source URL is empty", ErrFetchFailed)
	}

	data, err := m.fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("videos/%s/%s_%s.mp4", ownerID, jobID, common.NewAssetSuffix())

	if err := m.store.Upload(ctx, path, data, "video/mp4"); err != nil {
		// Roll back anything partially written so no orphan is left behind
		if rmErr := m.store.Remove(ctx, path); rmErr != nil {
			m.logger.Warn().
				Err(rmErr).
				Str("path", path).
				Msg("Failed to clean up after upload failure")
		}
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	result := &interfaces.MigrationResult{
		StoragePath: path,
		PublicURL:   m.store.PublicURL(path),
	}

	m.logger.Info().
		Str("job_id", jobID).
		Str("path", path).
		Int("size", len(data)).
		Msg("Asset migrated to durable storage")

	return result, nil
}

// DeleteAsset removes a previously migrated object.
func (m *Migrator) DeleteAsset(ctx context.Context, storagePath string) error {
	if storagePath == "" {
		return nil
	}
	return m.store.Remove(ctx, storagePath)
}

func (m *Migrator) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid source URL: %v", ErrFetchFailed, err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrFetchFailed, resp.StatusCode)
	}

	// Read one byte past the cap to detect oversize bodies
	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxAssetSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrFetchFailed, err)
	}
	if int64(len(data)) > m.maxAssetSize {
		return nil, fmt.Errorf("%w: asset exceeds %d bytes", ErrFetchFailed, m.maxAssetSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrFetchFailed)
	}

	return data, nil
}
