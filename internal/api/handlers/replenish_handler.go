package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-replenish/internal/service"
)

// Runner executes one replenishment run.
type Runner interface {
	Run(ctx context.Context, req service.RunRequest) (*domain.RunReport, error)
}

type ReplenishHandler struct {
	runner Runner
}

func NewReplenishHandler(runner Runner) *ReplenishHandler {
	return &ReplenishHandler{runner: runner}
}

type createRunBody struct {
	Source       string `json:"source" binding:"required"`
	HorizonDays  int    `json:"horizon_days" binding:"omitempty,min=1"`
	SubmitOrders bool   `json:"submit_orders"`
	Refresh      bool   `json:"refresh_forecasts"`
}

// CreateRun runs a batch synchronously and returns its report. The batch is either an
// uploaded "file" (multipart) or a JSON body naming a source such as s3://key or drive://id.
func (h *ReplenishHandler) CreateRun(c *gin.Context) {
	var req service.RunRequest

	if c.ContentType() == "multipart/form-data" {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
			return
		}
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read uploaded file"})
			return
		}
		defer f.Close()

		req.Source = file.Filename
		req.Input = f
		if req.HorizonDays, err = intQuery(c, "horizon_days"); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "horizon_days must be an integer"})
			return
		}
		if req.SubmitOrders, err = boolQuery(c, "submit_orders"); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "submit_orders must be a boolean"})
			return
		}
		if req.RefreshForecasts, err = boolQuery(c, "refresh_forecasts"); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_forecasts must be a boolean"})
			return
		}
	} else {
		var body createRunBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Source = body.Source
		req.HorizonDays = body.HorizonDays
		req.SubmitOrders = body.SubmitOrders
		req.RefreshForecasts = body.Refresh
	}

	if req.HorizonDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "horizon_days must be at least 1"})
		return
	}

	rep, err := h.runner.Run(c.Request.Context(), req)
	if err != nil {
		status := statusFor(err)
		log.Error().Err(err).Str("source", req.Source).Int("status", status).Msg("replenishment run failed")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rep)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrNoValidRows):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrInvalidHorizon), errors.Is(err, service.ErrSourceUnavailable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func boolQuery(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
