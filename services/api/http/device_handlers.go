package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/sensorlink/services/api/internal/actuator"
	"github.com/02loveslollipop/sensorlink/services/api/internal/command"
	"github.com/02loveslollipop/sensorlink/services/api/internal/sensor"
)

type setCommandRequest struct {
	Action string `json:"action"`
}

// handleSetCommand queues an action for the board, replacing any pending one.
// POST /api/command
func (s *Server) handleSetCommand(c *gin.Context) {
	var req setCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing action"})
		return
	}

	cmd, err := s.deps.Commands.Set(c.Request.Context(), req.Action)
	if err != nil {
		if errors.Is(err, command.ErrEmptyAction) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing action"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Command set", "command": cmd})
}

// handlePollCommand hands the pending action to the board and clears it.
// GET /api/command
func (s *Server) handlePollCommand(c *gin.Context) {
	cmd, ok := s.deps.Commands.PollAndClear()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"command": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"command": cmd.Action})
}

// ackRequest keeps state raw so a missing key can be told apart from null.
type ackRequest struct {
	LED   string          `json:"led"`
	State json.RawMessage `json:"state"`
}

// handleAck records that the board switched one actuator. An explicit null
// state reads as off, like any other falsy value.
// POST /api/ack
func (s *Server) handleAck(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.LED == "" || len(req.State) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "led and state required"})
		return
	}
	var state any
	if err := json.Unmarshal(req.State, &state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "led and state required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	states, err := s.deps.Actuators.ApplyAck(ctx, req.LED, sensor.ParseFlag(state))
	if err != nil {
		if errors.Is(err, actuator.ErrInvalidActuator) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid led id"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "ack received", "states": states})
}

type syncStatesRequest struct {
	States map[string]any `json:"states"`
}

// handleSyncActuatorStates takes the board's full report after boot or a
// reconnect.
// POST /api/led-states
func (s *Server) handleSyncActuatorStates(c *gin.Context) {
	var req syncStatesRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.States == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "states object required"})
		return
	}

	reported := make(map[string]bool, len(req.States))
	for id, v := range req.States {
		reported[id] = sensor.ParseFlag(v)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	states, err := s.deps.Actuators.SyncFullState(ctx, reported)
	if err != nil {
		if errors.Is(err, actuator.ErrInvalidActuator) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid led id"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "states synced", "states": states})
}

// GET /api/led-states
func (s *Server) handleGetActuatorStates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"states": s.deps.Actuators.All()})
}
