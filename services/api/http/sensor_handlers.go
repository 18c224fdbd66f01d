package http

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/sensorlink/services/api/db"
	"github.com/02loveslollipop/sensorlink/services/api/internal/sensor"
)

const maxReadingBytes = 64 << 10

// handleIngest accepts one reading from the board.
// POST /api/sensor-data
func (s *Server) handleIngest(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxReadingBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	sample, err := sensor.ParseReading(body, s.deps.Channels, s.now().UTC())
	if err != nil {
		s.log.Warn("sensor_reading_rejected", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	res, err := s.deps.Ingestor.Ingest(ctx, sample)
	if err != nil {
		s.log.Error("sensor_ingest_failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Data received successfully",
		"persisted": res.Persisted,
	})
}

// handleListSamples returns stored samples, oldest first.
// GET /api/sensor-data?limit=&from=&to=
func (s *Server) handleListSamples(c *gin.Context) {
	limit := s.cfg.DefaultLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	var since *time.Time
	var until *time.Time

	if fromStr := c.Query("from"); fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp"})
			return
		}
		tt := t.UTC()
		since = &tt
	}

	if toStr := c.Query("to"); toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp"})
			return
		}
		tt := t.UTC()
		until = &tt
	}

	if since != nil && until != nil && until.Before(*since) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must not be before from"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	samples, err := s.deps.Store.ListSamples(ctx, db.SampleQuery{
		Limit: limit,
		Since: since,
		Until: until,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, samples)
}

// handleLatestSample returns the most recently stored sample.
// GET /api/sensor-data/latest
func (s *Server) handleLatestSample(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	latest, err := s.deps.Store.LatestSample(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No sensor data found"})
		return
	}

	c.JSON(http.StatusOK, latest)
}

// GET /api/last-update
func (s *Server) handleLastUpdate(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	ts, err := s.deps.Store.LastUpdate(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var lastUpdate any
	if ts != nil {
		lastUpdate = ts.UTC().Format(time.RFC3339Nano)
	}
	c.JSON(http.StatusOK, gin.H{"lastUpdate": lastUpdate})
}

// GET /api/esp32-status
func (s *Server) handleDeviceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": s.deps.Liveness.Status(s.now())})
}
