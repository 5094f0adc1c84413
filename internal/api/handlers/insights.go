package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-insights/internal/analytics"
	"github.com/irfndi/celebrum-insights/internal/middleware"
	"github.com/irfndi/celebrum-insights/internal/models"
	"github.com/irfndi/celebrum-insights/internal/services"
	"github.com/irfndi/celebrum-insights/internal/utils"
)

// DefaultDashboardDays is the window length used when a dashboard request
// names no window.
const DefaultDashboardDays = 30

// InsightProvider is the part of the insight service the handlers use.
type InsightProvider interface {
	Dashboard(ctx context.Context, userID string, window models.TimeWindow, opts services.GenerateOptions) (*services.Dashboard, error)
	Analyze(ctx context.Context, data []models.DomainData, opts services.GenerateOptions) *models.RecommendationBatch
	RecordFeedback(userID string, fb models.Feedback) error
}

// InsightHandler serves dashboards, ad-hoc analysis and feedback.
type InsightHandler struct {
	insights          InsightProvider
	defaultMaxResults int
	logger            *logrus.Logger
	now               func() time.Time
}

// NewInsightHandler creates a new insight handler.
func NewInsightHandler(insights InsightProvider, defaultMaxResults int, logger *logrus.Logger) *InsightHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &InsightHandler{
		insights:          insights,
		defaultMaxResults: defaultMaxResults,
		logger:            logger,
		now:               time.Now,
	}
}

// AnalyzeRequest carries caller-supplied snapshots to analyze.
type AnalyzeRequest struct {
	Data    []models.DomainData      `json:"data" binding:"required"`
	Options services.GenerateOptions `json:"options"`
}

// GetDashboard handles GET /insights/dashboard.
func (h *InsightHandler) GetDashboard(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	window, err := h.parseWindow(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts, err := h.parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dashboard, err := h.insights.Dashboard(c.Request.Context(), userID, window, opts)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrInvalidAggregateRequest), errors.Is(err, utils.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			status = http.StatusGatewayTimeout
		}
		h.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("Dashboard request failed")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dashboard)
}

// PostAnalyze handles POST /insights/analyze. Snapshots without a user id
// are attributed to the caller; snapshots of another user are rejected.
func (h *InsightHandler) PostAnalyze(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	for i := range req.Data {
		switch req.Data[i].UserID {
		case "":
			req.Data[i].UserID = userID
		case userID:
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "Snapshot belongs to another user"})
			return
		}
	}

	opts := req.Options
	if opts.Iterations < 0 || opts.Iterations > analytics.MaxIterations {
		err := utils.NewValidationError("options.iterations", fmt.Sprintf("must be between 0 and %d", analytics.MaxIterations))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts.UserID = userID
	opts.Source = nil
	if opts.MaxResults <= 0 {
		opts.MaxResults = h.defaultMaxResults
	}

	batch := h.insights.Analyze(c.Request.Context(), req.Data, opts)
	c.JSON(http.StatusOK, batch)
}

// PostFeedback handles POST /insights/feedback. Only recommendations issued
// to the caller can be rated.
func (h *InsightHandler) PostFeedback(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var fb models.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.insights.RecordFeedback(userID, fb); err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownRecommendation):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrDuplicateFeedback):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record feedback"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (h *InsightHandler) parseWindow(c *gin.Context) (models.TimeWindow, error) {
	fromParam, toParam := c.Query("from"), c.Query("to")
	if fromParam == "" && toParam == "" {
		return models.LastDays(h.now().UTC(), DefaultDashboardDays), nil
	}

	from, err := time.Parse(time.RFC3339, fromParam)
	if err != nil {
		return models.TimeWindow{}, utils.NewValidationError("from", "must be an RFC3339 timestamp")
	}
	to, err := time.Parse(time.RFC3339, toParam)
	if err != nil {
		return models.TimeWindow{}, utils.NewValidationError("to", "must be an RFC3339 timestamp")
	}

	window := models.TimeWindow{From: from, To: to}
	if err := window.Validate(); err != nil {
		return models.TimeWindow{}, err
	}
	return window, nil
}

func (h *InsightHandler) parseOptions(c *gin.Context) (services.GenerateOptions, error) {
	opts := services.GenerateOptions{MaxResults: h.defaultMaxResults}

	if v := c.Query("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return opts, utils.NewValidationError("min_confidence", "must be a number between 0 and 1")
		}
		opts.MinConfidence = f
	}
	if v := c.Query("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, utils.NewValidationError("max_results", "must be a non-negative integer")
		}
		opts.MaxResults = n
	}
	if v := c.Query("categories"); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				opts.Categories = append(opts.Categories, models.Category(name))
			}
		}
	}
	return opts, nil
}
