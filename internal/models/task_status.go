package models

// RawStatusPayload is the upstream task-status response. The provider's
// schema is not fixed; the normalizer searches it for status-like and
// URL-like fields.
type RawStatusPayload map[string]interface{}

// NormalizedStatus is the internal reading of one upstream status payload.
// Status completed_pending_asset never reaches storage: the engine keeps
// polling and persists it as processing until an asset URL resolves.
type NormalizedStatus struct {
	Status       JobStatus
	PendingAsset bool   // Upstream says completed but no asset URL resolved yet
	Progress     int    // Percentage in [0,100]
	AssetURL     string // Transient provider URL, empty when unresolved
	ThumbnailURL string // Best-effort, never required
	Error        string // Upstream failure reason, empty unless failed
}
