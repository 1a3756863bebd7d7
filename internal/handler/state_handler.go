package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-client/internal/proctor"
	"github.com/stemsi/exstem-client/internal/render"
	"github.com/stemsi/exstem-client/internal/response"
	"github.com/stemsi/exstem-client/internal/service"
	"github.com/stemsi/exstem-client/internal/store"
)

// Badge is one navigator cell.
type Badge struct {
	Index int          `json:"index"`
	Badge render.Badge `json:"badge"`
}

// StateView is what a kiosk overlay needs to render the session.
type StateView struct {
	Session    store.Snapshot `json:"session"`
	Status     service.Status `json:"status"`
	Proctoring proctor.Status `json:"proctoring"`
	Timer      string         `json:"timer"`
	TimerClass string         `json:"timer_class"`
	Navigator  []Badge        `json:"navigator"`
	Kiosks     int            `json:"kiosks"`
}

// StateHandler serves the session state to kiosk overlays.
type StateHandler struct {
	session *service.ExamService
	signals *SignalHandler
}

func NewStateHandler(session *service.ExamService, signals *SignalHandler) *StateHandler {
	return &StateHandler{session: session, signals: signals}
}

// GetState godoc
// GET /api/v1/state
func (h *StateHandler) GetState(c *gin.Context) {
	response.Success(c, http.StatusOK, h.build())
}

func (h *StateHandler) build() StateView {
	snap := h.session.Store().Snapshot()
	nav := make([]Badge, len(snap.Questions))
	for i := range snap.Questions {
		nav[i] = Badge{Index: i, Badge: render.BadgeFor(snap, i)}
	}
	return StateView{
		Session:    snap,
		Status:     h.session.Status(),
		Proctoring: h.session.Monitor().Status(),
		Timer:      render.FormatTime(snap.TimerRemaining),
		TimerClass: render.TimerClass(snap.TimerRemaining),
		Navigator:  nav,
		Kiosks:     h.signals.Kiosks(),
	}
}
