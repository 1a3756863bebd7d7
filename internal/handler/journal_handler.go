package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/repository"
	"github.com/stemsi/exstem-client/internal/response"
)

const (
	defaultJournalLimit = 100
	maxJournalLimit     = 1000
)

type JournalHandler struct {
	repo *repository.JournalRepository
}

// NewJournalHandler creates the handler. repo may be nil when the journal
// is disabled.
func NewJournalHandler(repo *repository.JournalRepository) *JournalHandler {
	return &JournalHandler{repo: repo}
}

// List godoc
// GET /api/v1/journal?exam_id=&limit=
// Returns journal entries, newest first.
func (h *JournalHandler) List(c *gin.Context) {
	if h.repo == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrJournalDisabled)
		return
	}

	var examID int64
	if raw := c.Query("exam_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				"exam_id": "exam_id must be a positive integer",
			})
			return
		}
		examID = id
	}

	limit := defaultJournalLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
				"limit": "limit must be a positive integer",
			})
			return
		}
		limit = min(n, maxJournalLimit)
	}

	entries, err := h.repo.Entries(c.Request.Context(), examID, limit)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("Journal query failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, entries)
}
