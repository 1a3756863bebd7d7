package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/proctor"
	"github.com/stemsi/exstem-client/internal/response"
	ws "github.com/stemsi/exstem-client/internal/websocket"
)

const (
	// FullscreenReplyTimeout bounds how long a request_fullscreen command
	// waits for the kiosk's fullscreen_result.
	FullscreenReplyTimeout = 5 * time.Second
	kioskSendBuffer        = 32
	listenerBuffer         = 64
)

// ErrNoKiosk is returned by RequestFullscreen when no kiosk is connected.
var ErrNoKiosk = errors.New("no kiosk connected")

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// kiosk is one connected kiosk shell. All writes go through send so the
// writer goroutine is the only one touching the socket.
type kiosk struct {
	conn *ws.Conn
	send chan interface{}
	done chan struct{}
}

// SignalHandler is the bridge between kiosk shells and the proctoring
// monitor. It is the monitor's SignalSource and FullscreenRequester, and it
// relays monitor events back to kiosks and SSE listeners.
type SignalHandler struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	kiosks    map[*kiosk]struct{}
	subs      map[uint64]func(proctor.Signal)
	listeners map[uint64]chan proctor.Event
	nextID    uint64
	pending   map[string]chan bool

	replyTimeout time.Duration
}

// NewSignalHandler creates the bridge.
func NewSignalHandler(log zerolog.Logger, allowedOrigins []string) *SignalHandler {
	return &SignalHandler{
		log:          log.With().Str("component", "signal_bridge").Logger(),
		upgrader:     buildUpgrader(allowedOrigins),
		kiosks:       make(map[*kiosk]struct{}),
		subs:         make(map[uint64]func(proctor.Signal)),
		listeners:    make(map[uint64]chan proctor.Event),
		pending:      make(map[string]chan bool),
		replyTimeout: FullscreenReplyTimeout,
	}
}

// Subscribe implements proctor.SignalSource.
func (h *SignalHandler) Subscribe(fn func(proctor.Signal)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Listen registers an event listener for SSE streams. Events are dropped
// for a listener whose buffer is full.
func (h *SignalHandler) Listen() (<-chan proctor.Event, func()) {
	ch := make(chan proctor.Event, listenerBuffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// Kiosks returns the number of connected kiosks.
func (h *SignalHandler) Kiosks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.kiosks)
}

// Publish relays a monitor event. It never blocks, so it can be passed to
// proctor.Monitor.Observe.
func (h *SignalHandler) Publish(ev proctor.Event) {
	msg := ws.MonitorEvent{Event: ws.Event(ev.Kind), Count: ev.Count, Message: ev.Message}
	if ev.Violation != nil {
		msg.Reason = ev.Violation.Reason
	}

	h.mu.Lock()
	kiosks := h.kioskList()
	listeners := make([]chan proctor.Event, 0, len(h.listeners))
	for _, ch := range h.listeners {
		listeners = append(listeners, ch)
	}
	h.mu.Unlock()

	for _, k := range kiosks {
		h.enqueue(k, msg)
	}
	for _, ch := range listeners {
		select {
		case ch <- ev:
		default:
			h.log.Warn().Str("kind", string(ev.Kind)).Msg("SSE listener full, dropping event")
		}
	}
}

// RequestFullscreen implements proctor.FullscreenRequester: every kiosk is
// asked to enter fullscreen and the first fullscreen_result wins.
func (h *SignalHandler) RequestFullscreen(ctx context.Context) (bool, error) {
	id := uuid.New().String()
	reply := make(chan bool, 1)

	h.mu.Lock()
	kiosks := h.kioskList()
	if len(kiosks) == 0 {
		h.mu.Unlock()
		return false, ErrNoKiosk
	}
	h.pending[id] = reply
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}()

	for _, k := range kiosks {
		h.enqueue(k, ws.FullscreenCommand{Event: ws.EventRequestFullscreen, RequestID: id})
	}

	ctx, cancel := context.WithTimeout(ctx, h.replyTimeout)
	defer cancel()

	select {
	case entered := <-reply:
		return entered, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Stream godoc
// WS /ws/v1/signals
// Upgrades a kiosk shell connection and reads its proctoring signals.
func (h *SignalHandler) Stream(c *gin.Context) {
	if h.rejectPlain(c) {
		return
	}
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	k := &kiosk{
		conn: ws.NewConn(raw),
		send: make(chan interface{}, kioskSendBuffer),
		done: make(chan struct{}),
	}
	wsLog := h.log.With().Str("remote", c.ClientIP()).Logger()

	h.mu.Lock()
	h.kiosks[k] = struct{}{}
	h.mu.Unlock()
	wsLog.Info().Msg("Kiosk connected")

	go h.writePump(k, wsLog)

	defer func() {
		h.mu.Lock()
		delete(h.kiosks, k)
		h.mu.Unlock()
		close(k.done)
		k.conn.Close()
		wsLog.Info().Msg("Kiosk disconnected")
	}()

	for {
		var msg ws.SignalRequest
		if err := k.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionVisibility:
			h.dispatch(proctor.Signal{Kind: proctor.SignalVisibility, Hidden: msg.Hidden})
		case ws.ActionBlur:
			h.dispatch(proctor.Signal{Kind: proctor.SignalBlur})
		case ws.ActionFullscreen:
			h.dispatch(proctor.Signal{Kind: proctor.SignalFullscreen, Fullscreen: msg.Fullscreen})
		case ws.ActionContextMenu:
			h.dispatch(proctor.Signal{Kind: proctor.SignalContextMenu})
		case ws.ActionFullscreenResult:
			h.resolve(msg.RequestID, msg.Entered)
		case ws.ActionPing:
			h.enqueue(k, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			h.enqueue(k, ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		}
	}
}

// rejectPlain answers plain HTTP requests on the WebSocket route with the
// response envelope.
func (h *SignalHandler) rejectPlain(c *gin.Context) bool {
	if websocket.IsWebSocketUpgrade(c.Request) {
		return false
	}
	response.Fail(c, http.StatusBadRequest, response.ErrUpgradeFailed)
	return true
}

func (h *SignalHandler) writePump(k *kiosk, log zerolog.Logger) {
	for {
		select {
		case <-k.done:
			return
		case v := <-k.send:
			if err := k.conn.WriteTyped(v); err != nil {
				log.Warn().Err(err).Msg("Kiosk write failed")
				k.conn.Close()
				return
			}
		}
	}
}

func (h *SignalHandler) enqueue(k *kiosk, v interface{}) {
	select {
	case k.send <- v:
	default:
		h.log.Warn().Msg("Kiosk send buffer full, dropping message")
	}
}

// dispatch delivers sig to every subscriber outside the lock, so a
// subscriber may unsubscribe from inside its handler.
func (h *SignalHandler) dispatch(sig proctor.Signal) {
	h.mu.Lock()
	fns := make([]func(proctor.Signal), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	if len(fns) == 0 {
		h.log.Debug().Str("kind", string(sig.Kind)).Msg("Signal with no subscriber")
	}
	for _, fn := range fns {
		fn(sig)
	}
}

func (h *SignalHandler) resolve(requestID string, entered bool) {
	h.mu.Lock()
	reply, ok := h.pending[requestID]
	h.mu.Unlock()
	if !ok {
		h.log.Debug().Str("request_id", requestID).Msg("Late or unknown fullscreen result")
		return
	}
	select {
	case reply <- entered:
	default:
	}
}

// kioskList copies the kiosk set. Caller holds mu.
func (h *SignalHandler) kioskList() []*kiosk {
	list := make([]*kiosk, 0, len(h.kiosks))
	for k := range h.kiosks {
		list = append(list, k)
	}
	return list
}
