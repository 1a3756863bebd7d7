package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation ErrCode = "VALIDATION_ERROR"
	ErrInvalidID  ErrCode = "INVALID_ID"
	ErrNotFound   ErrCode = "NOT_FOUND"

	// ─── Bridge ────────────────────────────────────────────────────────
	ErrJournalDisabled ErrCode = "JOURNAL_DISABLED"
	ErrFanoutDisabled  ErrCode = "FANOUT_DISABLED"
	ErrUpgradeFailed   ErrCode = "UPGRADE_FAILED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrNotFound:
		return "Resource not found."
	case ErrJournalDisabled:
		return "The proctoring journal is not enabled."
	case ErrFanoutDisabled:
		return "Violation fan-out is not configured."
	case ErrUpgradeFailed:
		return "WebSocket upgrade failed."
	case ErrInternal:
		return "Internal error."
	default:
		return "Unexpected error."
	}
}
