package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hummingbirdtestai/mocktest-engine/internal/model"
)

// Gateway is the sync boundary to the remote orchestrator. Every intent is a
// single request/response exchange; the orchestrator is the sole authority
// for section unlocking, grading and question allocation.
type Gateway interface {
	Exchange(ctx context.Context, req model.IntentRequest) (*model.IntentResponse, error)
	FetchState(ctx context.Context, studentID string) (*model.RemoteSessionState, error)
}

// SnapshotSink receives best-effort side writes: rendering-cache snapshots
// and bookmark events. The engine never reads either back — resume state
// always comes from the orchestrator.
type SnapshotSink interface {
	WriteSnapshot(ctx context.Context, snap *model.Snapshot)
	EnqueueBookmark(ctx context.Context, studentID string, questionSeq int, marked bool)
}

// frozenAfterFailures is the number of consecutive transient gateway
// failures after which the session degrades to a read-only palette instead
// of letting a flaky network corrupt state.
const frozenAfterFailures = 3

// exchangeTimeout bounds one intent round trip. The context is detached
// from the caller's request on purpose: navigating away must not cancel an
// in-flight exchange, because losing an acknowledged-in-flight answer is a
// worse failure than a stale UI.
const exchangeTimeout = 15 * time.Second

// Session is the aggregate root for one exam attempt. It is the single
// writer for all section, question and timer state: every mutation happens
// under one mutex, so timer ticks and answer submissions interleave but
// never run concurrently against the same state.
type Session struct {
	mu  sync.Mutex
	log zerolog.Logger

	gw   Gateway
	sink SnapshotSink

	studentID string
	mode      model.SessionMode
	frozen    bool

	sections  []*model.Section
	questions []model.Question

	currentSectionID  string
	currentQuestionID int
	filter            model.FilterSelection
	paletteOpen       bool

	timer *Timer

	// sem serializes intents: user-facing operations try-acquire and
	// surface ErrSyncBusy, internal dispatches (the advance after a
	// timeout) block so they never race ahead of an in-flight exchange.
	sem chan struct{}

	failStreak  int
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewSession builds a session from the orchestrator's authoritative state.
// Local storage is never consulted: the remote snapshot fully reconstructs
// the current section, the question pointer and all interaction flags.
func NewSession(studentID string, remote *model.RemoteSessionState, gw Gateway, sink SnapshotSink, log zerolog.Logger) *Session {
	s := &Session{
		log:         log.With().Str("component", "session").Str("student_id", studentID).Logger(),
		gw:          gw,
		sink:        sink,
		studentID:   studentID,
		mode:        model.ModeExam,
		filter:      model.FilterAll,
		sem:         make(chan struct{}, 1),
		subscribers: make(map[chan Event]struct{}),
	}
	if remote.Mode == string(model.ModeReview) {
		s.mode = model.ModeReview
	}

	s.sections = make([]*model.Section, 0, len(remote.Sections))
	for i := range remote.Sections {
		sec := remote.Sections[i]
		s.sections = append(s.sections, &sec)
	}
	s.questions = append([]model.Question(nil), remote.Questions...)
	s.currentSectionID = remote.CurrentSectionID
	s.currentQuestionID = remote.CurrentQuestionID

	s.timer = NewTimer(s.handleTick, s.handleTimeUp)

	// Resume mid-section: re-arm the countdown from the orchestrator's
	// remaining budget. A zero budget fires the terminal event right away.
	if active := s.activeSectionLocked(); active != nil {
		s.timer.Start(active.ID, active.TimeRemainingSec)
	}

	return s
}

// ─── Read model ────────────────────────────────────────────────────

// Snapshot derives the full read model. Statuses are computed here, on
// read, never cached: a palette built from stale derivations after a
// partial update is exactly the bug this design removes.
func (s *Session) Snapshot() *model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *model.Snapshot {
	snap := &model.Snapshot{
		StudentID:         s.studentID,
		Mode:              s.mode,
		Frozen:            s.frozen,
		CurrentSectionID:  s.currentSectionID,
		CurrentQuestionID: s.currentQuestionID,
		Filter:            s.filter,
		PaletteOpen:       s.paletteOpen,
		Palette:           BuildPalette(s.questions, s.mode, s.currentQuestionID),
	}

	snap.Sections = make([]model.Section, 0, len(s.sections))
	for _, sec := range s.sections {
		snap.Sections = append(snap.Sections, *sec)
	}

	if active := s.activeSectionLocked(); active != nil {
		snap.TimeRemainingSec = s.timer.Remaining()
	}

	visible := FilterPalette(s.questions, s.filter, s.mode)
	snap.Visible = BuildPalette(visible, s.mode, s.currentQuestionID)

	return snap
}

// ─── Local operations (no intent exchange) ─────────────────────────

// SelectQuestion moves the current-question pointer. Selection is by
// identity, never by filtered position; the target's section must not be
// locked.
func (s *Session) SelectQuestion(globalSeq int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.questionLocked(globalSeq)
	if q == nil {
		return model.ErrQuestionNotFound
	}
	sec := s.sectionForLocked(globalSeq)
	if sec == nil {
		return model.ErrSectionNotFound
	}
	if sec.Status == model.SectionStatusLocked {
		return model.ErrSectionLocked
	}

	s.currentQuestionID = globalSeq
	s.emitPaletteLocked()
	return nil
}

// SetFilter changes the palette filter. The selection must belong to the
// vocabulary of the session's current mode.
func (s *Session) SetFilter(sel model.FilterSelection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !model.ValidFilter(sel, s.mode) {
		return model.ErrInvalidFilter
	}
	s.filter = sel
	s.emitPaletteLocked()
	return nil
}

// OpenPalette shows the palette overlay.
func (s *Session) OpenPalette() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paletteOpen = true
}

// ClosePalette hides the palette overlay.
func (s *Session) ClosePalette() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paletteOpen = false
}

// ─── Intent-gated operations ───────────────────────────────────────

// StartSection requests the orchestrator's authorization to begin a
// section. The local transition to IN_PROGRESS happens only after the
// acknowledgement, because the orchestrator allocates the question set and
// the authoritative time budget.
func (s *Session) StartSection(ctx context.Context, sectionID string) error {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	sec := s.sectionLocked(sectionID)
	if sec == nil {
		s.mu.Unlock()
		return model.ErrSectionNotFound
	}
	switch sec.Status {
	case model.SectionStatusLocked:
		s.mu.Unlock()
		return model.ErrSectionLocked
	case model.SectionStatusInProgress:
		s.mu.Unlock()
		return model.ErrInvalidTransition
	case model.SectionStatusCompleted:
		s.mu.Unlock()
		return model.ErrSectionCompleted
	}
	if s.activeSectionLocked() != nil {
		s.mu.Unlock()
		return model.ErrInvalidTransition
	}
	if !s.tryAcquireLocked() {
		s.mu.Unlock()
		return model.ErrSyncBusy
	}
	s.mu.Unlock()

	resp, err := s.exchange(model.IntentRequest{
		Intent:    model.IntentStartSection,
		StudentID: s.studentID,
		SectionID: sectionID,
	})

	s.mu.Lock()
	defer func() {
		s.release()
		s.mu.Unlock()
	}()

	if err != nil {
		return err // nothing was mutated; retryable
	}
	if !resp.OK() {
		s.scheduleResync()
		return model.ErrOrchestratorRejected
	}

	// Re-fetch after the exchange: a resync may have replaced the record.
	if sec = s.sectionLocked(sectionID); sec == nil || sec.Status != model.SectionStatusNotStarted {
		return model.ErrInvalidTransition
	}

	if err := s.transitionLocked(sec, model.SectionStatusInProgress); err != nil {
		return err
	}
	s.currentSectionID = sec.ID

	budget := sec.TimeBudgetSec
	if resp.TimeRemaining != nil {
		budget = *resp.TimeRemaining
	}
	if budget < 0 {
		budget = 0
	}
	sec.TimeRemainingSec = budget

	if resp.NextQuestionID != nil {
		s.currentQuestionID = *resp.NextQuestionID
	} else {
		s.currentQuestionID = sec.FirstGlobalSeq
	}
	s.applyUnlockLocked(resp)

	s.timer.Start(sec.ID, budget)
	s.emitSectionLocked(sec)
	s.emitPaletteLocked()
	s.writeSnapshotLocked()
	return nil
}

// SubmitAnswer records an answer for a question. The question record is
// only mutated after the orchestrator acknowledges the exchange; a failed
// exchange leaves the session byte-identical to before the attempt.
func (s *Session) SubmitAnswer(ctx context.Context, globalSeq int, value string) error {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	q := s.questionLocked(globalSeq)
	if q == nil {
		s.mu.Unlock()
		return model.ErrQuestionNotFound
	}
	sec := s.sectionForLocked(globalSeq)
	if sec == nil {
		s.mu.Unlock()
		return model.ErrSectionNotFound
	}
	switch sec.Status {
	case model.SectionStatusLocked:
		s.mu.Unlock()
		return model.ErrSectionLocked
	case model.SectionStatusNotStarted:
		s.mu.Unlock()
		return model.ErrSectionNotStarted
	case model.SectionStatusCompleted:
		s.mu.Unlock()
		return model.ErrSectionCompleted
	}
	if !s.tryAcquireLocked() {
		s.mu.Unlock()
		return model.ErrSyncBusy
	}
	s.mu.Unlock()

	resp, err := s.exchange(model.IntentRequest{
		Intent:     model.IntentSubmitAnswer,
		StudentID:  s.studentID,
		SectionID:  sec.ID,
		QuestionID: globalSeq,
		Answer:     value,
	})

	s.mu.Lock()
	defer func() {
		s.release()
		s.mu.Unlock()
	}()

	if err != nil {
		return err
	}
	if !resp.OK() {
		s.scheduleResync()
		return model.ErrOrchestratorRejected
	}

	// Re-fetch after the exchange: a resync may have replaced the records.
	q = s.questionLocked(globalSeq)
	sec = s.sectionForLocked(globalSeq)
	if q == nil || sec == nil {
		return model.ErrQuestionNotFound
	}

	q.StudentAnswer = &value
	q.IsSkipped = false
	if resp.Correct != nil {
		q.Correct = resp.Correct
	}
	if resp.NextQuestionID != nil {
		s.currentQuestionID = *resp.NextQuestionID
	}
	s.foldTimeLocked(sec, resp)
	s.applyUnlockLocked(resp)

	s.emitPaletteLocked()
	s.writeSnapshotLocked()
	return nil
}

// ToggleMark flips the marked-for-review flag on a question and writes the
// bookmark side-channel. The store is write-only for the engine; it is
// never read back as a resume source.
func (s *Session) ToggleMark(ctx context.Context, globalSeq int) error {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	q := s.questionLocked(globalSeq)
	if q == nil {
		s.mu.Unlock()
		return model.ErrQuestionNotFound
	}
	sec := s.sectionForLocked(globalSeq)
	if sec == nil || sec.Status == model.SectionStatusLocked {
		s.mu.Unlock()
		return model.ErrSectionLocked
	}
	if !s.tryAcquireLocked() {
		s.mu.Unlock()
		return model.ErrSyncBusy
	}
	s.mu.Unlock()

	resp, err := s.exchange(model.IntentRequest{
		Intent:     model.IntentToggleMark,
		StudentID:  s.studentID,
		SectionID:  sec.ID,
		QuestionID: globalSeq,
	})

	s.mu.Lock()
	defer func() {
		s.release()
		s.mu.Unlock()
	}()

	if err != nil {
		return err
	}
	if !resp.OK() {
		s.scheduleResync()
		return model.ErrOrchestratorRejected
	}

	if q = s.questionLocked(globalSeq); q == nil {
		return model.ErrQuestionNotFound
	}

	q.IsReview = !q.IsReview
	s.applyUnlockLocked(resp)
	s.sink.EnqueueBookmark(context.Background(), s.studentID, globalSeq, q.IsReview)

	s.emitPaletteLocked()
	s.writeSnapshotLocked()
	return nil
}

// NextQuestion advances past the current question without answering it,
// flagging it as explicitly skipped when no answer exists.
func (s *Session) NextQuestion(ctx context.Context) error {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	q := s.questionLocked(s.currentQuestionID)
	sec := s.activeSectionLocked()
	if q == nil || sec == nil || !sec.Contains(q.GlobalSequence) {
		s.mu.Unlock()
		return model.ErrSectionNotStarted
	}
	if !s.tryAcquireLocked() {
		s.mu.Unlock()
		return model.ErrSyncBusy
	}
	globalSeq := q.GlobalSequence
	s.mu.Unlock()

	resp, err := s.exchange(model.IntentRequest{
		Intent:     model.IntentAdvance,
		StudentID:  s.studentID,
		SectionID:  sec.ID,
		QuestionID: globalSeq,
	})

	s.mu.Lock()
	defer func() {
		s.release()
		s.mu.Unlock()
	}()

	if err != nil {
		return err
	}
	if !resp.OK() {
		s.scheduleResync()
		return model.ErrOrchestratorRejected
	}

	q = s.questionLocked(globalSeq)
	sec = s.sectionForLocked(globalSeq)
	if q == nil || sec == nil {
		return model.ErrQuestionNotFound
	}

	if q.StudentAnswer == nil {
		q.IsSkipped = true
	}
	if resp.NextQuestionID != nil {
		s.currentQuestionID = *resp.NextQuestionID
	} else if next := globalSeq + 1; sec.Contains(next) {
		s.currentQuestionID = next
	}
	s.foldTimeLocked(sec, resp)
	s.applyUnlockLocked(resp)

	s.emitPaletteLocked()
	s.writeSnapshotLocked()
	return nil
}

// FinishSection is the user-initiated early submit. The orchestrator is
// told first; the local transition to COMPLETED happens only on its
// acknowledgement. This path and the timer timeout converge on the same
// transition.
func (s *Session) FinishSection(ctx context.Context, sectionID string) error {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	sec := s.sectionLocked(sectionID)
	if sec == nil {
		s.mu.Unlock()
		return model.ErrSectionNotFound
	}
	if sec.Status != model.SectionStatusInProgress {
		s.mu.Unlock()
		return model.ErrSectionNotStarted
	}
	if !s.tryAcquireLocked() {
		s.mu.Unlock()
		return model.ErrSyncBusy
	}
	s.mu.Unlock()

	resp, err := s.exchange(model.IntentRequest{
		Intent:    model.IntentAdvance,
		StudentID: s.studentID,
		SectionID: sectionID,
	})

	s.mu.Lock()
	defer func() {
		s.release()
		s.mu.Unlock()
	}()

	if err != nil {
		return err
	}
	if !resp.OK() {
		s.scheduleResync()
		return model.ErrOrchestratorRejected
	}

	if sec = s.sectionLocked(sectionID); sec == nil {
		return model.ErrSectionNotFound
	}
	s.completeSectionLocked(sec)
	s.applyUnlockLocked(resp)
	s.writeSnapshotLocked()
	return nil
}

// EnterReview switches a fully completed attempt into post-hoc review mode.
// Question records are frozen from here on; only filtering and selection
// remain available.
func (s *Session) EnterReview(ctx context.Context) error {
	s.mu.Lock()
	if s.mode == model.ModeReview {
		s.mu.Unlock()
		return nil
	}
	for _, sec := range s.sections {
		if sec.Status != model.SectionStatusCompleted {
			s.mu.Unlock()
			return model.ErrSectionNotStarted
		}
	}
	if !s.tryAcquireLocked() {
		s.mu.Unlock()
		return model.ErrSyncBusy
	}
	s.mu.Unlock()

	resp, err := s.exchange(model.IntentRequest{
		Intent:    model.IntentEnterReview,
		StudentID: s.studentID,
	})

	if err != nil {
		s.mu.Lock()
		s.release()
		s.mu.Unlock()
		return err
	}
	if !resp.OK() {
		s.mu.Lock()
		s.scheduleResync()
		s.release()
		s.mu.Unlock()
		return model.ErrOrchestratorRejected
	}

	// Grading lands on the orchestrator only after the exam closes, so the
	// local records still carry nil correctness. Fetch the authoritative
	// state outside the lock and fold the marks in before review renders.
	fetchCtx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	graded, fetchErr := s.gw.FetchState(fetchCtx, s.studentID)
	cancel()

	s.mu.Lock()
	defer func() {
		s.release()
		s.mu.Unlock()
	}()

	s.mode = model.ModeReview
	s.filter = model.FilterAll
	if fetchErr != nil {
		// Review still opens; every answered question renders PENDING
		// until a later resync delivers the marks.
		s.log.Warn().Err(fetchErr).Msg("graded state fetch failed")
	} else {
		s.foldGradedLocked(graded)
	}
	s.emitPaletteLocked()
	s.writeSnapshotLocked()
	return nil
}

// foldGradedLocked copies correctness marks from the orchestrator's
// authoritative state onto the local question records, matched by global
// sequence. Interaction flags stay local.
func (s *Session) foldGradedLocked(remote *model.RemoteSessionState) {
	marks := make(map[int]*bool, len(remote.Questions))
	for i := range remote.Questions {
		marks[remote.Questions[i].GlobalSequence] = remote.Questions[i].Correct
	}
	for i := range s.questions {
		if correct, ok := marks[s.questions[i].GlobalSequence]; ok && correct != nil {
			s.questions[i].Correct = correct
		}
	}
}

// ─── Timer callbacks ───────────────────────────────────────────────

func (s *Session) handleTick(sectionID string, remaining int) {
	s.mu.Lock()
	sec := s.activeSectionLocked()
	if sec == nil || sec.ID != sectionID {
		// Stale tick from a superseded arm.
		s.mu.Unlock()
		return
	}
	sec.TimeRemainingSec = remaining
	s.publishLocked(Event{Type: EventTick, SectionID: sectionID, RemainingSec: remaining})
	s.mu.Unlock()
}

// handleTimeUp is the timer's terminal event: force-submit the section.
// Time is the one authority the engine holds locally (the budget itself
// came from the orchestrator), so the COMPLETED transition is applied
// immediately and the orchestrator is informed with exactly one advance
// intent. The dispatch blocks on the intent semaphore so it can never
// race ahead of an in-flight submit_answer.
func (s *Session) handleTimeUp(sectionID string) {
	s.mu.Lock()
	sec := s.sectionLocked(sectionID)
	if sec == nil || sec.Status != model.SectionStatusInProgress {
		s.mu.Unlock()
		return
	}
	sec.TimeRemainingSec = 0
	s.completeSectionLocked(sec)
	s.publishLocked(Event{Type: EventTimeUp, SectionID: sectionID})
	s.writeSnapshotLocked()
	s.mu.Unlock()

	go s.dispatchAdvance(sectionID)
}

// dispatchAdvance notifies the orchestrator that a section timed out. It
// waits for any outstanding exchange so intent ordering is preserved.
func (s *Session) dispatchAdvance(sectionID string) {
	s.sem <- struct{}{}
	resp, err := s.exchange(model.IntentRequest{
		Intent:    model.IntentAdvance,
		StudentID: s.studentID,
		SectionID: sectionID,
	})

	s.mu.Lock()
	defer func() {
		s.release()
		s.mu.Unlock()
	}()

	if err != nil {
		s.log.Warn().Err(err).Str("section_id", sectionID).Msg("timeout advance not acknowledged")
		return
	}
	if !resp.OK() {
		s.scheduleResync()
		return
	}
	s.applyUnlockLocked(resp)
	s.writeSnapshotLocked()
}

// ─── Subscriptions ─────────────────────────────────────────────────

// Subscribe returns a channel of session events. The caller must invoke
// the cancel function to avoid leaks. Slow consumers lose intermediate
// events, never block the session.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) publishLocked(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest buffered event for this subscriber.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Close stops the countdown and releases subscribers. An in-flight
// exchange is deliberately left to complete: a submitted answer must be
// allowed to reach the orchestrator even if the UI has moved on.
func (s *Session) Close() {
	s.timer.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// ─── Internals ─────────────────────────────────────────────────────

func (s *Session) mutableLocked() error {
	if s.frozen {
		return model.ErrSessionFrozen
	}
	if s.mode == model.ModeReview {
		return model.ErrSessionFrozen
	}
	return nil
}

func (s *Session) sectionLocked(id string) *model.Section {
	for _, sec := range s.sections {
		if sec.ID == id {
			return sec
		}
	}
	return nil
}

func (s *Session) sectionForLocked(globalSeq int) *model.Section {
	for _, sec := range s.sections {
		if sec.Contains(globalSeq) {
			return sec
		}
	}
	return nil
}

func (s *Session) activeSectionLocked() *model.Section {
	for _, sec := range s.sections {
		if sec.Status == model.SectionStatusInProgress {
			return sec
		}
	}
	return nil
}

func (s *Session) questionLocked(globalSeq int) *model.Question {
	for i := range s.questions {
		if s.questions[i].GlobalSequence == globalSeq {
			return &s.questions[i]
		}
	}
	return nil
}

// transitionLocked enforces the forward-only lifecycle. A status index may
// never decrease, and only adjacent forward edges are legal.
func (s *Session) transitionLocked(sec *model.Section, to model.SectionStatus) error {
	from := sec.Status
	if to.Index() != from.Index()+1 {
		return model.ErrInvalidTransition
	}
	sec.Status = to
	return nil
}

func (s *Session) completeSectionLocked(sec *model.Section) {
	if sec.Status == model.SectionStatusCompleted {
		return
	}
	sec.Status = model.SectionStatusCompleted
	s.timer.Stop()
	if s.currentSectionID == sec.ID {
		s.currentSectionID = ""
	}
	s.emitSectionLocked(sec)
}

// applyUnlockLocked folds the orchestrator's unlock signal. Only the named
// section moves, and only from LOCKED — the signal can never move a
// section backwards. Local code never self-unlocks speculatively; this is
// the single place sections leave LOCKED.
func (s *Session) applyUnlockLocked(resp *model.IntentResponse) {
	if resp.SectionUnlocked == nil {
		return
	}
	sec := s.sectionLocked(*resp.SectionUnlocked)
	if sec == nil || sec.Status != model.SectionStatusLocked {
		return
	}
	sec.Status = model.SectionStatusNotStarted
	s.emitSectionLocked(sec)
}

func (s *Session) foldTimeLocked(sec *model.Section, resp *model.IntentResponse) {
	if resp.TimeRemaining == nil {
		return
	}
	remaining := *resp.TimeRemaining
	if remaining < 0 {
		remaining = 0
	}
	// Never let a delayed response increase the countdown.
	if remaining < sec.TimeRemainingSec {
		sec.TimeRemainingSec = remaining
		if sec.Status == model.SectionStatusInProgress {
			s.timer.Start(sec.ID, remaining)
		}
	}
}

func (s *Session) tryAcquireLocked() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) release() {
	<-s.sem
}

// exchange performs one intent round trip on a detached, bounded context
// and tracks the transient-failure streak that degrades the session to a
// frozen palette.
func (s *Session) exchange(req model.IntentRequest) (*model.IntentResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	defer cancel()

	resp, err := s.gw.Exchange(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failStreak++
		if s.failStreak >= frozenAfterFailures {
			s.frozen = true
			s.log.Warn().Int("failures", s.failStreak).Msg("session degraded to read-only")
		}
		return nil, err
	}
	s.failStreak = 0
	if resp.Status == "" {
		// Missing discriminant: treat as no change, surface retryable.
		return nil, model.ErrOrchestratorUnreachable
	}
	return resp, nil
}

// scheduleResync corrects local state to the orchestrator's authoritative
// view after a rejected intent. The wholesale replacement is a resync, not
// a transition, so it sits outside the forward-only transition relation.
func (s *Session) scheduleResync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
		defer cancel()

		remote, err := s.gw.FetchState(ctx, s.studentID)
		if err != nil {
			s.log.Warn().Err(err).Msg("resync after rejection failed")
			return
		}

		s.mu.Lock()
		s.sections = s.sections[:0]
		for i := range remote.Sections {
			sec := remote.Sections[i]
			s.sections = append(s.sections, &sec)
		}
		s.questions = append(s.questions[:0], remote.Questions...)
		s.currentSectionID = remote.CurrentSectionID
		s.currentQuestionID = remote.CurrentQuestionID
		if remote.Mode == string(model.ModeReview) {
			s.mode = model.ModeReview
		}
		// Copy the re-arm values before unlocking: a tick from the old
		// timer arm can still write TimeRemainingSec under the lock.
		activeID, activeRemaining := "", 0
		if active := s.activeSectionLocked(); active != nil {
			activeID, activeRemaining = active.ID, active.TimeRemainingSec
		}
		s.emitPaletteLocked()
		s.writeSnapshotLocked()
		s.mu.Unlock()

		if activeID != "" {
			s.timer.Start(activeID, activeRemaining)
		} else {
			s.timer.Stop()
		}
	}()
}

func (s *Session) emitSectionLocked(sec *model.Section) {
	s.publishLocked(Event{Type: EventSection, SectionID: sec.ID, SectionStatus: sec.Status})
}

func (s *Session) emitPaletteLocked() {
	visible := FilterPalette(s.questions, s.filter, s.mode)
	s.publishLocked(Event{Type: EventPalette, Palette: BuildPalette(visible, s.mode, s.currentQuestionID)})
}

func (s *Session) writeSnapshotLocked() {
	s.sink.WriteSnapshot(context.Background(), s.snapshotLocked())
}
