package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-insights/internal/models"
	"github.com/irfndi/celebrum-insights/internal/utils"
)

// SnapshotWriter persists domain snapshots.
type SnapshotWriter interface {
	SaveSnapshot(ctx context.Context, data *models.DomainData) error
}

// SnapshotInvalidator drops cached snapshots of a user and domain.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, userID string, domain models.Domain) (int64, error)
}

// SnapshotHandler ingests snapshots pushed by the role systems.
type SnapshotHandler struct {
	writer SnapshotWriter
	cache  SnapshotInvalidator
	logger *logrus.Logger
}

// NewSnapshotHandler creates a new snapshot handler. cache may be nil.
func NewSnapshotHandler(writer SnapshotWriter, cache SnapshotInvalidator, logger *logrus.Logger) *SnapshotHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &SnapshotHandler{writer: writer, cache: cache, logger: logger}
}

// PostSnapshot handles POST /admin/snapshots.
func (h *SnapshotHandler) PostSnapshot(c *gin.Context) {
	var data models.DomainData
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	if err := h.writer.SaveSnapshot(ctx, &data); err != nil {
		if errors.Is(err, utils.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithFields(logrus.Fields{
			"user_id": data.UserID,
			"domain":  data.Domain,
			"error":   err.Error(),
		}).Error("Failed to save snapshot")
		status := http.StatusInternalServerError
		if utils.IsTransient(err) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": "Failed to save snapshot"})
		return
	}

	// Stale cache entries would hide the new snapshot until they expire
	if h.cache != nil {
		if _, err := h.cache.Invalidate(ctx, data.UserID, data.Domain); err != nil {
			h.logger.WithFields(logrus.Fields{
				"user_id": data.UserID,
				"domain":  data.Domain,
				"error":   err.Error(),
			}).Warn("Failed to invalidate snapshot cache")
		}
	}

	c.JSON(http.StatusCreated, gin.H{"status": "stored", "user_id": data.UserID, "domain": data.Domain})
}
