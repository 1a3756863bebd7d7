package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/repository"
	"github.com/stemsi/exstem-client/internal/response"
	"github.com/stemsi/exstem-client/internal/service"
)

const healthTimeout = 2 * time.Second

// Dependency states reported by Health.
const (
	depOK       = "ok"
	depDisabled = "disabled"
	depError    = "error"
)

// SystemHandler reports bridge health.
type SystemHandler struct {
	session   *service.ExamService
	signals   *SignalHandler
	rdb       *redis.Client
	journal   *repository.JournalRepository
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates the handler. rdb and journal may be nil.
func NewSystemHandler(session *service.ExamService, signals *SignalHandler, rdb *redis.Client, journal *repository.JournalRepository, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		session:   session,
		signals:   signals,
		rdb:       rdb,
		journal:   journal,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	Screen        string `json:"screen"`
	Kiosks        int    `json:"kiosks"`
	Redis         string `json:"redis"`
	PendingCheats int64  `json:"pending_cheats"`
	Journal       string `json:"journal"`
	Goroutines    int    `json:"goroutines"`
	GoVersion     string `json:"go_version"`
}

// Health godoc
// GET /health
// Always 200; degraded dependencies are reported in the body.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:     "ok",
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Screen:     string(h.session.Screens().Current()),
		Kiosks:     h.signals.Kiosks(),
		Redis:      depDisabled,
		Journal:    depDisabled,
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}

	if h.rdb != nil {
		pipe := h.rdb.Pipeline()
		pingCmd := pipe.Ping(ctx)
		cheatsCmd := pipe.LLen(ctx, config.WorkerKey.PersistCheatsQueue)
		if _, err := pipe.Exec(ctx); err != nil || pingCmd.Err() != nil {
			h.log.Warn().Err(err).Msg("Redis health check failed")
			report.Redis = depError
			report.Status = "degraded"
		} else {
			report.Redis = depOK
			report.PendingCheats = cheatsCmd.Val()
		}
	}

	if h.journal != nil {
		if err := h.journal.Ping(ctx); err != nil {
			h.log.Warn().Err(err).Msg("Journal health check failed")
			report.Journal = depError
			report.Status = "degraded"
		} else {
			report.Journal = depOK
		}
	}

	response.Success(c, http.StatusOK, report)
}
