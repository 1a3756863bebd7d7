package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/response"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second
)

type MonitorHandler struct {
	rdb   *redis.Client
	state *StateHandler
	log   zerolog.Logger
}

// NewMonitorHandler creates the SSE handler. rdb may be nil, which
// disables the exam monitor stream.
func NewMonitorHandler(rdb *redis.Client, state *StateHandler, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:   rdb,
		state: state,
		log:   log.With().Str("component", "monitor_handler").Logger(),
	}
}

func sseHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
}

// Events godoc
// GET /api/v1/events
// Streams this client's monitor events, starting with a state snapshot.
func (h *MonitorHandler) Events(c *gin.Context) {
	reqCtx := c.Request.Context()
	sseHeaders(c)

	events, stop := h.state.signals.Listen()
	defer stop()

	c.SSEvent("snapshot", h.state.build())
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-reqCtx.Done():
			h.log.Debug().Msg("Event stream closed")
			return
		case ev := <-events:
			c.SSEvent(string(ev.Kind), ev)
			c.Writer.Flush()
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}

// ExamMonitor godoc
// GET /api/v1/exams/:exam_id/monitor
// Relays the Redis violation channel of an exam, starting with the
// violations already recorded for it. Any client sharing the Redis
// instance can watch.
func (h *MonitorHandler) ExamMonitor(c *gin.Context) {
	if h.rdb == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrFanoutDisabled)
		return
	}
	examID, err := strconv.ParseInt(c.Param("exam_id"), 10, 64)
	if err != nil || examID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()
	sseHeaders(c)

	h.sendRecorded(c, reqCtx, examID)

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Int64("exam_id", examID).Msg("Attached to exam monitor")
	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Int64("exam_id", examID).Msg("Detached from exam monitor")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payloads are already JSON.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		case <-keepAlive.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendRecorded writes the snapshot event from the exam's violation list.
func (h *MonitorHandler) sendRecorded(c *gin.Context, parent context.Context, examID int64) {
	ctx, cancel := context.WithTimeout(parent, snapshotTimeout)
	defer cancel()

	raw, err := h.rdb.LRange(ctx, config.CacheKey.ExamViolationsKey(examID), 0, -1).Result()
	if err != nil {
		h.log.Warn().Err(err).Int64("exam_id", examID).Msg("Failed to load recorded violations")
	}
	violations := make([]json.RawMessage, 0, len(raw))
	for _, r := range raw {
		violations = append(violations, json.RawMessage(r))
	}

	c.SSEvent("message", map[string]interface{}{
		"type": "snapshot",
		"data": map[string]interface{}{
			"exam_id":      examID,
			"total_cheats": len(violations),
			"violations":   violations,
		},
	})
	c.Writer.Flush()
}
