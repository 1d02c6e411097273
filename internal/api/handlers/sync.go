package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SyncTrigger queues an out-of-band reconciliation pass.
type SyncTrigger interface {
	RequestImmediateSync()
}

// SyncHandler exposes the on-demand sync trigger.
type SyncHandler struct {
	engine SyncTrigger
	logger *slog.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(engine SyncTrigger, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{engine: engine, logger: logger}
}

// TriggerSync queues an immediate reconciliation pass
// POST /v1/sync
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	h.engine.RequestImmediateSync()
	h.logger.Info("Immediate sync requested", "component", "api.sync")
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
