package interfaces

import (
	"context"

	"github.com/lukisan/renderwatch/internal/models"
)

// TaskStatusClient fetches render task status from the external provider.
// Implementations perform no retries; retry policy belongs to the
// reconciliation engine.
type TaskStatusClient interface {
	// GetStatus returns the raw status payload for a provider task id.
	// Unreachable provider or non-success response -> upstream.ErrUnavailable;
	// provider reports the task does not exist -> upstream.ErrTaskNotFound.
	GetStatus(ctx context.Context, taskID string) (models.RawStatusPayload, error)
}
