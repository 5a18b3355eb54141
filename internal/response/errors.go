package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Session / sections ────────────────────────────────────────────
	ErrNotFound           ErrCode = "NOT_FOUND"
	ErrSectionLocked      ErrCode = "SECTION_LOCKED"
	ErrSectionNotStarted  ErrCode = "SECTION_NOT_STARTED"
	ErrSectionCompleted   ErrCode = "SECTION_COMPLETED"
	ErrSessionFrozen      ErrCode = "SESSION_FROZEN"
	ErrInvalidFilter      ErrCode = "INVALID_FILTER"
	ErrInvalidTransition  ErrCode = "INVALID_TRANSITION"
	ErrReviewNotAvailable ErrCode = "REVIEW_NOT_AVAILABLE"

	// ─── Sync boundary ─────────────────────────────────────────────────
	ErrSyncBusy                ErrCode = "SYNC_IN_FLIGHT"
	ErrOrchestratorRejected    ErrCode = "ORCHESTRATOR_REJECTED"
	ErrOrchestratorUnreachable ErrCode = "ORCHESTRATOR_UNREACHABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is not valid."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The identifier has an invalid format."
	case ErrInvalidPayload:
		return "The request payload is not valid."

	// ─── Session / sections ────────────────────────────────────────────
	case ErrNotFound:
		return "The resource was not found."
	case ErrSectionLocked:
		return "This section is still locked."
	case ErrSectionNotStarted:
		return "This section has not been started yet."
	case ErrSectionCompleted:
		return "This section is already completed."
	case ErrSessionFrozen:
		return "This session is read-only."
	case ErrInvalidFilter:
		return "This filter is not available in the current mode."
	case ErrInvalidTransition:
		return "This action is not allowed in the current section state."
	case ErrReviewNotAvailable:
		return "Review is available after all sections are completed."

	// ─── Sync boundary ─────────────────────────────────────────────────
	case ErrSyncBusy:
		return "A previous action is still being processed. Please retry."
	case ErrOrchestratorRejected:
		return "The action was refused; the session has been refreshed."
	case ErrOrchestratorUnreachable:
		return "The grading service could not be reached. Please retry."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}

// IsRetryable reports whether the failure is transient from the client's
// point of view: the pending input should be kept and the action retried.
func IsRetryable(code ErrCode) bool {
	switch code {
	case ErrSyncBusy, ErrOrchestratorUnreachable, ErrRateLimitExceeded:
		return true
	}
	return false
}
