package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixWatchSession = "watch_"
	PrefixSyncJob      = "job_"
)

// NewWatchSession generates a new viewing session ID with watch_ prefix
func NewWatchSession() string {
	return PrefixWatchSession + uuid.New().String()
}

// NewSyncJob generates a new reconciliation job ID with job_ prefix
func NewSyncJob() string {
	return PrefixSyncJob + uuid.New().String()
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}
