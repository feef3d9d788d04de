package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lukisan/renderwatch/internal/models"
)

func TestNormalize_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected models.JobStatus
	}{
		{"completed", "completed", models.JobStatusCompleted},
		{"success", "success", models.JobStatusCompleted},
		{"finished", "finished", models.JobStatusCompleted},
		{"numeric 99", "99", models.JobStatusCompleted},
		{"failed", "failed", models.JobStatusFailed},
		{"error", "error", models.JobStatusFailed},
		{"cancelled", "cancelled", models.JobStatusFailed},
		{"pending", "pending", models.JobStatusPending},
		{"queued", "queued", models.JobStatusPending},
		{"waiting", "waiting", models.JobStatusPending},
		{"running maps to processing", "running", models.JobStatusProcessing},
		{"unknown maps to processing", "transcoding", models.JobStatusProcessing},
		{"uppercase is accepted", "COMPLETED", models.JobStatusCompleted},
		{"mixed case is accepted", "Failed", models.JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(models.RawStatusPayload{
				"status":    tt.raw,
				"video_url": "https://cdn.example.com/v.mp4",
			})
			if tt.expected == models.JobStatusFailed {
				assert.Equal(t, models.JobStatusFailed, result.Status)
				return
			}
			// Asset present: everything non-failed resolves to completed
			assert.Equal(t, models.JobStatusCompleted, result.Status)
		})
	}
}

func TestNormalize_StatusMappingWithoutAsset(t *testing.T) {
	result := Normalize(models.RawStatusPayload{"status": "queued"})
	assert.Equal(t, models.JobStatusPending, result.Status)
	assert.Equal(t, 10, result.Progress)

	result = Normalize(models.RawStatusPayload{"status": "rendering"})
	assert.Equal(t, models.JobStatusProcessing, result.Status)
	assert.Equal(t, 50, result.Progress)
	assert.False(t, result.PendingAsset)
}

func TestNormalize_AssetURLUpgradesStatus(t *testing.T) {
	result := Normalize(models.RawStatusPayload{
		"status":    "running",
		"video_url": "https://cdn.example.com/final.mp4",
	})

	assert.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Equal(t, "https://cdn.example.com/final.mp4", result.AssetURL)
	assert.Equal(t, 100, result.Progress)
	assert.False(t, result.PendingAsset)
}

func TestNormalize_CompletedWithoutAssetIsPendingAsset(t *testing.T) {
	result := Normalize(models.RawStatusPayload{"status": "completed"})

	assert.Equal(t, models.JobStatusProcessing, result.Status)
	assert.True(t, result.PendingAsset)
	assert.Equal(t, 99, result.Progress)
	assert.Empty(t, result.AssetURL)
}

func TestNormalize_FailedNeverUpgradedByAsset(t *testing.T) {
	result := Normalize(models.RawStatusPayload{
		"status":    "failed",
		"video_url": "https://cdn.example.com/partial.mp4",
		"error":     "render aborted",
	})

	assert.Equal(t, models.JobStatusFailed, result.Status)
	assert.Equal(t, "render aborted", result.Error)
	assert.Equal(t, 0, result.Progress)
}

func TestNormalize_FailedGetsDefaultError(t *testing.T) {
	result := Normalize(models.RawStatusPayload{"status": "error"})

	assert.Equal(t, models.JobStatusFailed, result.Status)
	assert.Equal(t, "render failed", result.Error)
}

func TestNormalize_NestedStatusLocations(t *testing.T) {
	result := Normalize(models.RawStatusPayload{
		"data": map[string]interface{}{"status": "success"},
	})
	assert.True(t, result.PendingAsset)

	result = Normalize(models.RawStatusPayload{"state": "queued"})
	assert.Equal(t, models.JobStatusPending, result.Status)

	// JSON numbers decode as float64
	result = Normalize(models.RawStatusPayload{"status": float64(99)})
	assert.True(t, result.PendingAsset)
}

func TestNormalize_WorksArrayAssetExtraction(t *testing.T) {
	result := Normalize(models.RawStatusPayload{
		"status": "completed",
		"works": []interface{}{
			map[string]interface{}{
				"video_url":                   "https://cdn.example.com/marked.mp4",
				"video_url_without_watermark": "https://cdn.example.com/clean.mp4",
				"cover_url":                   "https://cdn.example.com/cover.jpg",
			},
		},
	})

	require.Equal(t, models.JobStatusCompleted, result.Status)
	assert.Equal(t, "https://cdn.example.com/clean.mp4", result.AssetURL,
		"without-watermark variant must win")
	assert.Equal(t, "https://cdn.example.com/cover.jpg", result.ThumbnailURL)
}

func TestNormalize_WorksArrayFallsBackToPlainURL(t *testing.T) {
	result := Normalize(models.RawStatusPayload{
		"status": "completed",
		"data": map[string]interface{}{
			"works": []interface{}{
				map[string]interface{}{"video_url": "https://cdn.example.com/only.mp4"},
			},
		},
	})

	assert.Equal(t, "https://cdn.example.com/only.mp4", result.AssetURL)
}

func TestNormalize_TopLevelAssetWinsOverWorks(t *testing.T) {
	result := Normalize(models.RawStatusPayload{
		"status":    "completed",
		"video_url": "https://cdn.example.com/top.mp4",
		"works": []interface{}{
			map[string]interface{}{"video_url": "https://cdn.example.com/work.mp4"},
		},
	})

	assert.Equal(t, "https://cdn.example.com/top.mp4", result.AssetURL)
}

func TestNormalize_ProgressExtraction(t *testing.T) {
	result := Normalize(models.RawStatusPayload{"status": "running", "progress": float64(73)})
	assert.Equal(t, 73, result.Progress)

	// Fractional progress scales to a percentage
	result = Normalize(models.RawStatusPayload{"status": "running", "progress": 0.4})
	assert.Equal(t, 40, result.Progress)

	// String progress with percent sign
	result = Normalize(models.RawStatusPayload{"status": "running", "progress": "85%"})
	assert.Equal(t, 85, result.Progress)

	// Out-of-range values are clamped
	result = Normalize(models.RawStatusPayload{"status": "running", "progress": float64(250)})
	assert.Equal(t, 100, result.Progress)
}

func TestNormalize_EmptyPayload(t *testing.T) {
	result := Normalize(models.RawStatusPayload{})

	assert.Equal(t, models.JobStatusProcessing, result.Status)
	assert.Equal(t, 50, result.Progress)
	assert.Empty(t, result.AssetURL)
	assert.False(t, result.PendingAsset)
}
