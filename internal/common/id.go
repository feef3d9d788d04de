package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewAssetSuffix returns a short random disambiguator used in storage paths
// so repeated migrations for the same job never collide.
func NewAssetSuffix() string {
	return uuid.New().String()[:8]
}
