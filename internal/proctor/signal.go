package proctor

import "context"

// SignalKind is a kiosk event relevant to proctoring.
type SignalKind string

const (
	SignalVisibility  SignalKind = "visibility"
	SignalBlur        SignalKind = "blur"
	SignalFullscreen  SignalKind = "fullscreen"
	SignalContextMenu SignalKind = "contextmenu"
)

// Signal is one observed kiosk event.
type Signal struct {
	Kind SignalKind
	// Hidden is set for visibility signals when the page became hidden.
	Hidden bool
	// Fullscreen is set for fullscreen signals when fullscreen is active.
	Fullscreen bool
}

// SignalSource delivers kiosk signals to subscribers. The returned function
// unsubscribes and must be safe to call from inside the handler.
type SignalSource interface {
	Subscribe(handler func(Signal)) (unsubscribe func())
}

// FullscreenRequester asks the kiosk to enter fullscreen and reports
// whether it did.
type FullscreenRequester interface {
	RequestFullscreen(ctx context.Context) (entered bool, err error)
}

// Escalator submits the exam once the violation threshold is reached. The
// returned error's text is shown to the candidate.
type Escalator interface {
	Escalate(ctx context.Context, examID int64) error
}

// EscalatorFunc adapts a function to Escalator.
type EscalatorFunc func(ctx context.Context, examID int64) error

func (f EscalatorFunc) Escalate(ctx context.Context, examID int64) error {
	return f(ctx, examID)
}
