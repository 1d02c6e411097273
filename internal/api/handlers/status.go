package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"vigil/internal/core"
	"vigil/internal/state"
	"vigil/internal/sync"
)

// StatusProvider is the read side of the enforcement engine the status
// endpoint needs.
type StatusProvider interface {
	ShouldBlockApp(ctx context.Context) (core.BlockDecision, error)
	Snapshot(ctx context.Context) (core.EnforcementSnapshot, error)
	Warning() *state.Holder[*core.LockWarning]
	SyncState() *state.Holder[sync.State]
	CurrentlyWatching() string
}

// StatusHandler serves the enforcement state the on-device UI renders.
type StatusHandler struct {
	engine StatusProvider
	logger *slog.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(engine StatusProvider, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{engine: engine, logger: logger}
}

// GetStatus returns the current enforcement verdict and derived state
// GET /v1/status
func (h *StatusHandler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()

	decision, err := h.engine.ShouldBlockApp(ctx)
	if err != nil {
		h.logger.Error("Failed to evaluate enforcement gate",
			"component", "api.status",
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to evaluate enforcement state",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	snap, err := h.engine.Snapshot(ctx)
	if err != nil {
		h.logger.Error("Failed to assemble enforcement snapshot",
			"component", "api.status",
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read enforcement state",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	syncState, _ := h.engine.SyncState().Get()

	response := gin.H{
		"blocked": decision.Blocked,
		"reason":  string(decision.Reason),
		"message": decision.Message,
		"schedule": gin.H{
			"enabled":              snap.Schedule.Enabled,
			"is_currently_allowed": snap.Schedule.IsCurrentlyAllowed,
			"message":              snap.Schedule.Message,
		},
		"time_limit": gin.H{
			"enabled":             snap.TimeLimit.Enabled,
			"daily_limit_minutes": snap.TimeLimit.DailyLimitMinutes,
			"remaining_minutes":   snap.TimeLimit.RemainingMinutes,
			"is_limit_reached":    snap.TimeLimit.IsLimitReached,
		},
		"sync": gin.H{
			"status":     syncState.Status.String(),
			"last_error": syncState.LastError,
		},
		"currently_watching": h.engine.CurrentlyWatching(),
	}
	if !syncState.LastSyncedAt.IsZero() {
		response["sync"].(gin.H)["last_synced_at"] = syncState.LastSyncedAt
	}

	if warning, _ := h.engine.Warning().Get(); warning != nil {
		response["lock_warning"] = gin.H{
			"title":             warning.Title,
			"is_video":          warning.IsVideo,
			"minutes_remaining": warning.MinutesRemaining,
			"is_last_one":       warning.IsLastOne,
		}
	}

	c.JSON(http.StatusOK, response)
}
