package websocket

// ─── Actions (Kiosk → Client) ───────────────────────────────────────

type Action string

const (
	ActionVisibility       Action = "visibility"
	ActionBlur             Action = "blur"
	ActionFullscreen       Action = "fullscreen"
	ActionContextMenu      Action = "contextmenu"
	ActionFullscreenResult Action = "fullscreen_result"
	ActionPing             Action = "ping"
)

// SignalRequest is every message the kiosk sends. Fields not used by the
// action are ignored.
type SignalRequest struct {
	Action Action `json:"action"`
	// Hidden is set with visibility when the document became hidden.
	Hidden bool `json:"hidden,omitempty"`
	// Fullscreen is the fullscreen state after a fullscreen change.
	Fullscreen bool `json:"fullscreen,omitempty"`
	// RequestID echoes a request_fullscreen command.
	RequestID string `json:"request_id,omitempty"`
	// Entered reports the outcome of a request_fullscreen command.
	Entered bool `json:"entered,omitempty"`
}

// ─── Events (Client → Kiosk) ────────────────────────────────────────

type Event string

const (
	EventViolation         Event = "violation"
	EventPromptFullscreen  Event = "prompt_fullscreen"
	EventPromptDismissed   Event = "prompt_dismissed"
	EventSuppressed        Event = "suppressed"
	EventEscalated         Event = "escalated"
	EventEscalateFailed    Event = "escalate_failed"
	EventRequestFullscreen Event = "request_fullscreen"
	EventPong              Event = "pong"
	EventError             Event = "error"
)

// MonitorEvent mirrors a proctoring monitor notification.
type MonitorEvent struct {
	Event   Event  `json:"event"`
	Reason  string `json:"reason,omitempty"`
	Count   int    `json:"count"`
	Message string `json:"message,omitempty"`
}

// FullscreenCommand asks the kiosk to enter fullscreen; the kiosk answers
// with fullscreen_result carrying the same request id.
type FullscreenCommand struct {
	Event     Event  `json:"event"`
	RequestID string `json:"request_id"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
