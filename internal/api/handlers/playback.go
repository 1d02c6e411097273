package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PlaybackController is the write side of the enforcement engine the playback
// surface drives.
type PlaybackController interface {
	NotifyVideoPlaybackStarted(ctx context.Context, title string) error
	NotifyVideoPlaybackEnded(ctx context.Context) error
	OnAppForeground(ctx context.Context) error
	OnAppBackground(ctx context.Context) error
}

// PlaybackHandler receives playback and app lifecycle events from the
// on-device player.
type PlaybackHandler struct {
	engine PlaybackController
	logger *slog.Logger
}

// NewPlaybackHandler creates a new playback handler
func NewPlaybackHandler(engine PlaybackController, logger *slog.Logger) *PlaybackHandler {
	return &PlaybackHandler{engine: engine, logger: logger}
}

// PlaybackStarted records the start of a watching session
// POST /v1/playback/started
func (h *PlaybackHandler) PlaybackStarted(c *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "INVALID_REQUEST",
			"details": err.Error(),
		})
		return
	}

	if err := h.engine.NotifyVideoPlaybackStarted(c.Request.Context(), req.Title); err != nil {
		h.logger.Error("Failed to record playback start",
			"component", "api.playback",
			"title", req.Title,
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to record playback start",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// PlaybackEnded closes the watching session and releases deferred locks
// POST /v1/playback/ended
func (h *PlaybackHandler) PlaybackEnded(c *gin.Context) {
	if err := h.engine.NotifyVideoPlaybackEnded(c.Request.Context()); err != nil {
		h.logger.Error("Failed to record playback end",
			"component", "api.playback",
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to record playback end",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// AppForeground marks the device online
// POST /v1/app/foreground
func (h *PlaybackHandler) AppForeground(c *gin.Context) {
	if err := h.engine.OnAppForeground(c.Request.Context()); err != nil {
		h.logger.Error("Failed to report foreground",
			"component", "api.playback",
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to report foreground",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// AppBackground force-closes any open session and marks the device offline
// POST /v1/app/background
func (h *PlaybackHandler) AppBackground(c *gin.Context) {
	if err := h.engine.OnAppBackground(c.Request.Context()); err != nil {
		h.logger.Error("Failed to report background",
			"component", "api.playback",
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to report background",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}
