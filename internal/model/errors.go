package model

import "errors"

// Sentinel errors surfaced by the session engine. Handlers map these to
// typed response codes; services wrap them with context via %w.
var (
	ErrSectionNotFound   = errors.New("section not found")
	ErrQuestionNotFound  = errors.New("question not found")
	ErrSectionLocked     = errors.New("section is locked")
	ErrSectionNotStarted = errors.New("section has not been started")
	ErrSectionCompleted  = errors.New("section is already completed")
	ErrSessionFrozen     = errors.New("session is frozen")
	ErrInvalidFilter     = errors.New("filter selection is not valid for this mode")
	ErrInvalidTransition = errors.New("invalid section transition")

	// ErrSyncBusy means an intent for this session is still in flight.
	// Intents are serialized per session; the caller should retry once the
	// outstanding exchange resolves.
	ErrSyncBusy = errors.New("an intent exchange is already in flight")

	// ErrOrchestratorRejected means the exchange completed but the
	// orchestrator refused the intent; local state has been corrected to
	// the authoritative view.
	ErrOrchestratorRejected = errors.New("orchestrator rejected the intent")

	// ErrOrchestratorUnreachable is a transient exchange failure. Local
	// state is exactly as it was before the attempt; the operation is
	// retryable.
	ErrOrchestratorUnreachable = errors.New("orchestrator unreachable")
)
