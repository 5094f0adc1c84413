package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-insights/internal/middleware"
	"github.com/irfndi/celebrum-insights/internal/models"
	"github.com/irfndi/celebrum-insights/internal/services"
	"github.com/irfndi/celebrum-insights/internal/utils"
)

// UpdateStamper assigns versions to live updates.
type UpdateStamper interface {
	Stamp(userID, updateType string, payload json.RawMessage) (models.LiveUpdateEnvelope, error)
}

// LiveUpdateHandler versions live updates for the authenticated user.
type LiveUpdateHandler struct {
	stamper UpdateStamper
	logger  *logrus.Logger
}

// NewLiveUpdateHandler creates a new live update handler.
func NewLiveUpdateHandler(stamper UpdateStamper, logger *logrus.Logger) *LiveUpdateHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &LiveUpdateHandler{stamper: stamper, logger: logger}
}

// PostLiveUpdate handles POST /live-updates and returns the stamped
// envelope.
func (h *LiveUpdateHandler) PostLiveUpdate(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req models.LiveUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	envelope, err := h.stamper.Stamp(userID, req.UpdateType, req.Payload)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrSequenceExhausted):
			h.logger.WithFields(logrus.Fields{
				"user_id":     userID,
				"update_type": req.UpdateType,
			}).Error("Live update sequence exhausted")
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stamp live update"})
		}
		return
	}

	c.JSON(http.StatusCreated, envelope)
}
