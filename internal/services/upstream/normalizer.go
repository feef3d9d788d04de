package upstream

import (
	"strconv"
	"strings"

	"github.com/lukisan/renderwatch/internal/models"
)

// Normalize maps a heterogeneous upstream status payload into the closed
// internal status set plus extracted asset URLs. Pure: no I/O, no clock.
//
// Two authoritative rules:
//   - a resolvable asset URL upgrades any status to completed (a finished
//     asset outranks a stale status flag);
//   - a completed status without an asset URL is reported as pending-asset
//     so the engine keeps polling instead of finalizing with a null asset.
func Normalize(payload models.RawStatusPayload) models.NormalizedStatus {
	status := mapStatus(extractStatusString(payload))
	assetURL := extractAssetURL(payload)
	thumbnailURL := extractThumbnailURL(payload)
	errMsg := extractError(payload)

	result := models.NormalizedStatus{
		Status:       status,
		AssetURL:     assetURL,
		ThumbnailURL: thumbnailURL,
	}

	if assetURL != "" && status != models.JobStatusFailed {
		result.Status = models.JobStatusCompleted
	} else if status == models.JobStatusCompleted && assetURL == "" {
		result.Status = models.JobStatusProcessing
		result.PendingAsset = true
	}

	if result.Status == models.JobStatusFailed {
		if errMsg == "" {
			errMsg = "render failed"
		}
		result.Error = errMsg
	}

	result.Progress = normalizeProgress(result, payload)

	return result
}

// mapStatus maps the upstream status vocabulary onto the internal enum.
// Case-insensitive; unknown statuses are treated as processing.
func mapStatus(raw string) models.JobStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "success", "finished", "99":
		return models.JobStatusCompleted
	case "failed", "error", "cancelled":
		return models.JobStatusFailed
	case "pending", "queued", "waiting":
		return models.JobStatusPending
	default:
		return models.JobStatusProcessing
	}
}

// normalizeProgress applies per-status progress defaults. Monotonicity
// against the persisted value is the engine's job, not the normalizer's.
func normalizeProgress(n models.NormalizedStatus, payload models.RawStatusPayload) int {
	switch {
	case n.Status == models.JobStatusCompleted:
		return 100
	case n.Status == models.JobStatusFailed:
		return 0
	case n.PendingAsset:
		return 99
	case n.Status == models.JobStatusPending:
		return 10
	}

	if p, ok := extractProgress(payload); ok {
		return p
	}
	return 50
}

// extractStatusString searches the payload for a status-like field:
// top-level "status", then "data.status", then "state".
func extractStatusString(payload models.RawStatusPayload) string {
	if s, ok := payload["status"].(string); ok {
		return s
	}
	if n, ok := payload["status"].(float64); ok {
		return strconv.Itoa(int(n))
	}
	if data, ok := payload["data"].(map[string]interface{}); ok {
		if s, ok := data["status"].(string); ok {
			return s
		}
		if n, ok := data["status"].(float64); ok {
			return strconv.Itoa(int(n))
		}
	}
	if s, ok := payload["state"].(string); ok {
		return s
	}
	return ""
}

// Candidate keys for the finished asset URL, in search order.
var (
	topLevelAssetKeys = []string{"video_url", "videoUrl", "asset_url", "url"}

	// Without-watermark variants win over plain ones inside work items.
	workNoWatermarkKeys = []string{
		"video_url_without_watermark",
		"videoUrlNoWatermark",
		"no_watermark_url",
		"resource_without_watermark",
	}
	workPlainKeys = []string{"video_url", "videoUrl", "resource", "url"}
)

// extractAssetURL searches a top-level field first, then the first element
// of a nested "works" list, preferring a without-watermark variant.
func extractAssetURL(payload models.RawStatusPayload) string {
	for _, key := range topLevelAssetKeys {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}

	work := firstWorkItem(payload)
	if work == nil {
		return ""
	}

	for _, key := range workNoWatermarkKeys {
		if s, ok := work[key].(string); ok && s != "" {
			return s
		}
	}
	for _, key := range workPlainKeys {
		if s, ok := work[key].(string); ok && s != "" {
			return s
		}
	}
	// Some providers nest the URLs one level deeper under "resource"
	if res, ok := work["resource"].(map[string]interface{}); ok {
		for _, key := range append(workNoWatermarkKeys, workPlainKeys...) {
			if s, ok := res[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func extractThumbnailURL(payload models.RawStatusPayload) string {
	for _, key := range []string{"thumbnail_url", "thumbnailUrl", "cover_url"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	if work := firstWorkItem(payload); work != nil {
		for _, key := range []string{"cover_url", "coverUrl", "thumbnail_url"} {
			if s, ok := work[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func extractError(payload models.RawStatusPayload) string {
	for _, key := range []string{"error", "error_message", "message"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	if data, ok := payload["data"].(map[string]interface{}); ok {
		if s, ok := data["error"].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// extractProgress accepts an integer percentage, a 0-1 fraction, or a
// numeric string, clamped to [0,100].
func extractProgress(payload models.RawStatusPayload) (int, bool) {
	raw, ok := payload["progress"]
	if !ok {
		if data, isMap := payload["data"].(map[string]interface{}); isMap {
			raw, ok = data["progress"]
		}
	}
	if !ok {
		return 0, false
	}

	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		if err != nil {
			return 0, false
		}
		value = parsed
	default:
		return 0, false
	}

	if value > 0 && value <= 1 {
		value = value * 100
	}
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return int(value), true
}

func firstWorkItem(payload models.RawStatusPayload) map[string]interface{} {
	works, ok := payload["works"].([]interface{})
	if !ok {
		if data, isMap := payload["data"].(map[string]interface{}); isMap {
			works, ok = data["works"].([]interface{})
		}
	}
	if !ok || len(works) == 0 {
		return nil
	}
	work, ok := works[0].(map[string]interface{})
	if !ok {
		return nil
	}
	return work
}
