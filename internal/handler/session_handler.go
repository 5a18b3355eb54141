package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hummingbirdtestai/mocktest-engine/internal/cache"
	"github.com/hummingbirdtestai/mocktest-engine/internal/engine"
	"github.com/hummingbirdtestai/mocktest-engine/internal/middleware"
	"github.com/hummingbirdtestai/mocktest-engine/internal/model"
	"github.com/hummingbirdtestai/mocktest-engine/internal/response"
	"github.com/hummingbirdtestai/mocktest-engine/internal/validator"
)

// SessionHandler exposes the exam session over HTTP. Every mutating route
// resolves the student's live session from the registry, applies exactly
// one operation and returns the fresh snapshot so the client never has to
// guess at derived state.
type SessionHandler struct {
	registry *engine.Registry
	store    *cache.SnapshotStore
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(registry *engine.Registry, store *cache.SnapshotStore, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		store:    store,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

func (h *SessionHandler) session(c *gin.Context) (*engine.Session, bool) {
	studentID := middleware.GetStudentID(c)
	if studentID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}

	sess, err := h.registry.GetOrCreate(c.Request.Context(), studentID)
	if err != nil {
		h.log.Error().Err(err).Str("student_id", studentID).Msg("Session hydration failed")
		response.Fail(c, http.StatusBadGateway, response.ErrOrchestratorUnreachable)
		return nil, false
	}
	return sess, true
}

// GetSession godoc
// GET /api/v1/session
// Returns the full session snapshot, hydrating from the orchestrator on
// first access.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// StartSection godoc
// POST /api/v1/session/sections/:section_id/start
func (h *SessionHandler) StartSection(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	sectionID := c.Param("section_id")
	if sectionID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := sess.StartSection(c.Request.Context(), sectionID); err != nil {
		h.failFromEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// SubmitAnswer godoc
// POST /api/v1/session/answers
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := sess.SubmitAnswer(c.Request.Context(), req.QuestionID, req.Answer); err != nil {
		h.failFromEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// ToggleMark godoc
// POST /api/v1/session/marks
func (h *SessionHandler) ToggleMark(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req model.ToggleMarkRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := sess.ToggleMark(c.Request.Context(), req.QuestionID); err != nil {
		h.failFromEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// NextQuestion godoc
// POST /api/v1/session/next
// Advances past the current question, flagging it skipped when no answer
// has been recorded.
func (h *SessionHandler) NextQuestion(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	if err := sess.NextQuestion(c.Request.Context()); err != nil {
		h.failFromEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// FinishSection godoc
// POST /api/v1/session/sections/:section_id/finish
func (h *SessionHandler) FinishSection(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	sectionID := c.Param("section_id")
	if sectionID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := sess.FinishSection(c.Request.Context(), sectionID); err != nil {
		h.failFromEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// SelectQuestion godoc
// PUT /api/v1/session/current-question
// Moves the question pointer within the active section. Local only; the
// orchestrator does not track the pointer between intents.
func (h *SessionHandler) SelectQuestion(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req model.SelectQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := sess.SelectQuestion(req.QuestionID); err != nil {
		h.failFromEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// SetFilter godoc
// PUT /api/v1/session/filter
func (h *SessionHandler) SetFilter(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req model.SetFilterRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := sess.SetFilter(model.FilterSelection(req.Filter)); err != nil {
		h.failFromEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// OpenPalette godoc
// POST /api/v1/session/palette/open
func (h *SessionHandler) OpenPalette(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.OpenPalette()
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// ClosePalette godoc
// POST /api/v1/session/palette/close
func (h *SessionHandler) ClosePalette(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sess.ClosePalette()
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// EnterReview godoc
// POST /api/v1/session/review
// Switches the session into review mode once every section is completed.
func (h *SessionHandler) EnterReview(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	if err := sess.EnterReview(c.Request.Context()); err != nil {
		if errors.Is(err, model.ErrSectionNotStarted) {
			response.Fail(c, http.StatusConflict, response.ErrReviewNotAvailable)
			return
		}
		h.failFromEngine(c, err)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// CloseSession godoc
// DELETE /api/v1/session
// Evicts the in-memory session and its cached snapshot. The next GET
// rehydrates from the orchestrator.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	studentID := middleware.GetStudentID(c)
	if studentID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	h.registry.Delete(studentID)
	h.store.Invalidate(c.Request.Context(), studentID)
	response.Success(c, http.StatusOK, gin.H{"closed": true})
}

// failFromEngine maps engine sentinel errors to typed response codes.
func (h *SessionHandler) failFromEngine(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrSectionNotFound), errors.Is(err, model.ErrQuestionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, model.ErrSectionLocked):
		response.Fail(c, http.StatusConflict, response.ErrSectionLocked)
	case errors.Is(err, model.ErrSectionNotStarted):
		response.Fail(c, http.StatusConflict, response.ErrSectionNotStarted)
	case errors.Is(err, model.ErrSectionCompleted):
		response.Fail(c, http.StatusConflict, response.ErrSectionCompleted)
	case errors.Is(err, model.ErrSessionFrozen):
		response.Fail(c, http.StatusConflict, response.ErrSessionFrozen)
	case errors.Is(err, model.ErrInvalidFilter):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidFilter)
	case errors.Is(err, model.ErrInvalidTransition):
		response.Fail(c, http.StatusConflict, response.ErrInvalidTransition)
	case errors.Is(err, model.ErrSyncBusy):
		response.Fail(c, http.StatusConflict, response.ErrSyncBusy)
	case errors.Is(err, model.ErrOrchestratorRejected):
		response.Fail(c, http.StatusConflict, response.ErrOrchestratorRejected)
	case errors.Is(err, model.ErrOrchestratorUnreachable):
		response.Fail(c, http.StatusBadGateway, response.ErrOrchestratorUnreachable)
	default:
		h.log.Error().Err(err).Msg("Unmapped engine error")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
