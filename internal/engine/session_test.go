package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hummingbirdtestai/mocktest-engine/internal/model"
)

// fakeGateway records every exchange and replies with a scripted response.
type fakeGateway struct {
	mu    sync.Mutex
	calls []model.IntentRequest
	resp  *model.IntentResponse
	err   error
	state *model.RemoteSessionState
	// block, when set, holds an exchange open until released.
	block chan struct{}
}

func (g *fakeGateway) Exchange(_ context.Context, req model.IntentRequest) (*model.IntentResponse, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	block := g.block
	resp, err := g.resp, g.err
	g.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &model.IntentResponse{Status: model.ExchangeSuccess}, nil
	}
	return resp, nil
}

func (g *fakeGateway) FetchState(_ context.Context, _ string) (*model.RemoteSessionState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == nil {
		return nil, errors.New("no scripted state")
	}
	return g.state, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGateway) callsOf(intent model.IntentType) []model.IntentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []model.IntentRequest
	for _, c := range g.calls {
		if c.Intent == intent {
			out = append(out, c)
		}
	}
	return out
}

// fakeSink swallows snapshot and bookmark writes.
type fakeSink struct {
	mu        sync.Mutex
	bookmarks []int
}

func (s *fakeSink) WriteSnapshot(context.Context, *model.Snapshot) {}

func (s *fakeSink) EnqueueBookmark(_ context.Context, _ string, questionSeq int, _ bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookmarks = append(s.bookmarks, questionSeq)
}

// fiveSectionState mirrors the observed configuration: five ordered
// sections, the first unlocked, the rest locked.
func fiveSectionState() *model.RemoteSessionState {
	st := &model.RemoteSessionState{
		Status:            model.ExchangeSuccess,
		Mode:              string(model.ModeExam),
		CurrentSectionID:  "",
		CurrentQuestionID: 1,
	}
	ids := []string{"A", "B", "C", "D", "E"}
	for i, id := range ids {
		status := model.SectionStatusLocked
		if i == 0 {
			status = model.SectionStatusNotStarted
		}
		st.Sections = append(st.Sections, model.Section{
			ID:             id,
			Position:       i + 1,
			Status:         status,
			QuestionCount:  2,
			TimeBudgetSec:  600,
			FirstGlobalSeq: i*2 + 1,
		})
		for j := 0; j < 2; j++ {
			st.Questions = append(st.Questions, model.Question{
				GlobalSequence:  i*2 + 1 + j,
				SectionSequence: j + 1,
			})
		}
	}
	return st
}

func newTestSession(t *testing.T, gw *fakeGateway, st *model.RemoteSessionState) *Session {
	t.Helper()
	if st == nil {
		st = fiveSectionState()
	}
	s := NewSession("student-1", st, gw, &fakeSink{}, zerolog.Nop())
	t.Cleanup(s.Close)
	return s
}

func TestStartSectionTransitionsOnlyAfterAck(t *testing.T) {
	gw := &fakeGateway{resp: &model.IntentResponse{Status: model.ExchangeSuccess}}
	s := newTestSession(t, gw, nil)

	if err := s.StartSection(context.Background(), "A"); err != nil {
		t.Fatalf("StartSection: %v", err)
	}

	snap := s.Snapshot()
	if snap.Sections[0].Status != model.SectionStatusInProgress {
		t.Fatalf("section A status = %s, want IN_PROGRESS", snap.Sections[0].Status)
	}
	if snap.CurrentSectionID != "A" || snap.CurrentQuestionID != 1 {
		t.Fatalf("pointer = (%s, %d), want (A, 1)", snap.CurrentSectionID, snap.CurrentQuestionID)
	}
	if got := gw.callsOf(model.IntentStartSection); len(got) != 1 {
		t.Fatalf("start_section intents = %d, want 1", len(got))
	}
}

func TestStartSectionLockedIsRejectedLocally(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestSession(t, gw, nil)

	if err := s.StartSection(context.Background(), "B"); !errors.Is(err, model.ErrSectionLocked) {
		t.Fatalf("err = %v, want ErrSectionLocked", err)
	}
	if gw.callCount() != 0 {
		t.Fatal("no intent may be dispatched for a locked section")
	}
}

// Scenario C: submitting an answer to a question in a locked section is
// rejected before any network call is made.
func TestSubmitAnswerLockedSectionNoNetworkCall(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestSession(t, gw, nil)

	err := s.SubmitAnswer(context.Background(), 3, "B") // question 3 lives in locked section B
	if !errors.Is(err, model.ErrSectionLocked) {
		t.Fatalf("err = %v, want ErrSectionLocked", err)
	}
	if gw.callCount() != 0 {
		t.Fatalf("gateway was called %d times, want 0", gw.callCount())
	}
}

func TestSubmitAnswerFoldsResponse(t *testing.T) {
	gw := &fakeGateway{resp: &model.IntentResponse{Status: model.ExchangeSuccess}}
	s := newTestSession(t, gw, nil)
	if err := s.StartSection(context.Background(), "A"); err != nil {
		t.Fatalf("StartSection: %v", err)
	}

	next := 2
	gw.mu.Lock()
	gw.resp = &model.IntentResponse{Status: model.ExchangeSuccess, NextQuestionID: &next, Correct: boolptr(true)}
	gw.mu.Unlock()

	if err := s.SubmitAnswer(context.Background(), 1, "C"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	snap := s.Snapshot()
	if snap.CurrentQuestionID != 2 {
		t.Fatalf("pointer = %d, want authoritative next 2", snap.CurrentQuestionID)
	}
	if st := *snap.Palette[0].Status; st != model.StatusAnswered {
		t.Fatalf("question 1 status = %s, want ANSWERED", st)
	}
}

// Scenario D: a section_unlocked signal moves exactly the named section
// from LOCKED to NOT_STARTED and leaves every other section untouched.
func TestSectionUnlockedSignalMovesOnlyNamedSection(t *testing.T) {
	gw := &fakeGateway{resp: &model.IntentResponse{Status: model.ExchangeSuccess}}
	s := newTestSession(t, gw, nil)
	if err := s.StartSection(context.Background(), "A"); err != nil {
		t.Fatalf("StartSection: %v", err)
	}

	before := s.Snapshot()

	unlocked := "B"
	gw.mu.Lock()
	gw.resp = &model.IntentResponse{Status: model.ExchangeSuccess, SectionUnlocked: &unlocked}
	gw.mu.Unlock()

	if err := s.SubmitAnswer(context.Background(), 1, "A"); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	after := s.Snapshot()
	for i, sec := range after.Sections {
		switch sec.ID {
		case "B":
			if sec.Status != model.SectionStatusNotStarted {
				t.Fatalf("section B status = %s, want NOT_STARTED", sec.Status)
			}
		default:
			if sec.Status != before.Sections[i].Status {
				t.Fatalf("section %s changed from %s to %s", sec.ID, before.Sections[i].Status, sec.Status)
			}
		}
	}
}

// Rollback law: a failed exchange leaves the serialized session snapshot
// byte-identical to before the attempt.
func TestFailedExchangeLeavesSnapshotIdentical(t *testing.T) {
	gw := &fakeGateway{err: errors.New("connection reset")}
	s := newTestSession(t, gw, nil)

	before, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatal(err)
	}

	if err := s.ToggleMark(context.Background(), 1); err == nil {
		t.Fatal("expected transient failure")
	}

	after, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatalf("snapshot changed across failed exchange:\nbefore: %s\nafter:  %s", before, after)
	}
}

// Scenario A: a 2520s / 40-question section whose timer fires terminally
// becomes COMPLETED and issues exactly one advance intent.
func TestTimeUpCompletesSectionAndAdvancesOnce(t *testing.T) {
	st := &model.RemoteSessionState{
		Status:           model.ExchangeSuccess,
		Mode:             string(model.ModeExam),
		CurrentSectionID: "A",
		Sections: []model.Section{{
			ID:               "A",
			Position:         1,
			Status:           model.SectionStatusInProgress,
			QuestionCount:    40,
			TimeBudgetSec:    2520,
			TimeRemainingSec: 2520,
			FirstGlobalSeq:   1,
		}},
	}
	for i := 1; i <= 40; i++ {
		st.Questions = append(st.Questions, model.Question{GlobalSequence: i, SectionSequence: i})
	}

	gw := &fakeGateway{resp: &model.IntentResponse{Status: model.ExchangeSuccess}}
	s := newTestSession(t, gw, st)

	s.handleTimeUp("A")

	snap := s.Snapshot()
	if snap.Sections[0].Status != model.SectionStatusCompleted {
		t.Fatalf("section status = %s, want COMPLETED", snap.Sections[0].Status)
	}

	waitFor(t, 2*time.Second, func() bool { return len(gw.callsOf(model.IntentAdvance)) == 1 })

	// A duplicate terminal event must not re-complete or re-advance.
	s.handleTimeUp("A")
	time.Sleep(20 * time.Millisecond)
	if got := len(gw.callsOf(model.IntentAdvance)); got != 1 {
		t.Fatalf("advance intents = %d, want exactly 1", got)
	}
}

// Section monotonicity: the status index never decreases, and at most one
// section is IN_PROGRESS at a time.
func TestSectionMonotonicityAndSingleActive(t *testing.T) {
	gw := &fakeGateway{resp: &model.IntentResponse{Status: model.ExchangeSuccess}}
	s := newTestSession(t, gw, nil)

	if err := s.StartSection(context.Background(), "A"); err != nil {
		t.Fatalf("StartSection: %v", err)
	}

	unlocked := "B"
	gw.mu.Lock()
	gw.resp = &model.IntentResponse{Status: model.ExchangeSuccess, SectionUnlocked: &unlocked}
	gw.mu.Unlock()
	if err := s.FinishSection(context.Background(), "A"); err != nil {
		t.Fatalf("FinishSection: %v", err)
	}

	snap := s.Snapshot()
	if snap.Sections[0].Status != model.SectionStatusCompleted {
		t.Fatalf("section A = %s, want COMPLETED", snap.Sections[0].Status)
	}

	// Completed is terminal: starting A again must fail.
	if err := s.StartSection(context.Background(), "A"); !errors.Is(err, model.ErrSectionCompleted) {
		t.Fatalf("err = %v, want ErrSectionCompleted", err)
	}

	gw.mu.Lock()
	gw.resp = &model.IntentResponse{Status: model.ExchangeSuccess}
	gw.mu.Unlock()
	if err := s.StartSection(context.Background(), "B"); err != nil {
		t.Fatalf("StartSection B: %v", err)
	}

	active := 0
	for _, sec := range s.Snapshot().Sections {
		if sec.Status == model.SectionStatusInProgress {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("sections in progress = %d, want 1", active)
	}
}

// Intents are serialized per session: a second operation while one
// exchange is outstanding surfaces ErrSyncBusy instead of racing.
func TestConcurrentIntentGetsSyncBusy(t *testing.T) {
	gw := &fakeGateway{resp: &model.IntentResponse{Status: model.ExchangeSuccess}}
	s := newTestSession(t, gw, nil)
	if err := s.StartSection(context.Background(), "A"); err != nil {
		t.Fatalf("StartSection: %v", err)
	}

	release := make(chan struct{})
	gw.mu.Lock()
	gw.block = release
	gw.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.SubmitAnswer(context.Background(), 1, "A")
	}()

	waitFor(t, time.Second, func() bool { return gw.callCount() == 2 }) // start + in-flight submit

	if err := s.ToggleMark(context.Background(), 2); !errors.Is(err, model.ErrSyncBusy) {
		t.Fatalf("err = %v, want ErrSyncBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("blocked submit failed: %v", err)
	}
}

// An orchestrator rejection corrects local state from the authoritative
// view instead of trusting the optimistic local one.
func TestRejectionTriggersResync(t *testing.T) {
	gw := &fakeGateway{resp: &model.IntentResponse{Status: model.ExchangeRejected}}
	gw.state = fiveSectionState()
	s := newTestSession(t, gw, nil)

	err := s.StartSection(context.Background(), "A")
	if !errors.Is(err, model.ErrOrchestratorRejected) {
		t.Fatalf("err = %v, want ErrOrchestratorRejected", err)
	}

	// The section must not have flipped to IN_PROGRESS.
	waitFor(t, time.Second, func() bool {
		return s.Snapshot().Sections[0].Status == model.SectionStatusNotStarted
	})
}

// Repeated transient failures degrade the session to a frozen, read-only
// palette rather than crashing or silently retrying forever.
func TestRepeatedFailuresFreezeSession(t *testing.T) {
	gw := &fakeGateway{err: errors.New("timeout")}
	s := newTestSession(t, gw, nil)

	for i := 0; i < frozenAfterFailures; i++ {
		if err := s.ToggleMark(context.Background(), 1); err == nil {
			t.Fatal("expected transient failure")
		}
	}

	if !s.Snapshot().Frozen {
		t.Fatal("session should be frozen after repeated failures")
	}
	if err := s.ToggleMark(context.Background(), 1); !errors.Is(err, model.ErrSessionFrozen) {
		t.Fatalf("err = %v, want ErrSessionFrozen", err)
	}
	// Reads still work.
	if snap := s.Snapshot(); len(snap.Palette) == 0 {
		t.Fatal("frozen session must still serve the palette")
	}
}

func TestToggleMarkWritesBookmarkSideChannel(t *testing.T) {
	gw := &fakeGateway{resp: &model.IntentResponse{Status: model.ExchangeSuccess}}
	sink := &fakeSink{}
	s := NewSession("student-1", fiveSectionState(), gw, sink, zerolog.Nop())
	t.Cleanup(s.Close)

	if err := s.StartSection(context.Background(), "A"); err != nil {
		t.Fatalf("StartSection: %v", err)
	}
	if err := s.ToggleMark(context.Background(), 1); err != nil {
		t.Fatalf("ToggleMark: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.bookmarks) != 1 || sink.bookmarks[0] != 1 {
		t.Fatalf("bookmarks = %v, want [1]", sink.bookmarks)
	}
}

func TestNextQuestionFlagsSkip(t *testing.T) {
	gw := &fakeGateway{resp: &model.IntentResponse{Status: model.ExchangeSuccess}}
	s := newTestSession(t, gw, nil)
	if err := s.StartSection(context.Background(), "A"); err != nil {
		t.Fatalf("StartSection: %v", err)
	}

	if err := s.NextQuestion(context.Background()); err != nil {
		t.Fatalf("NextQuestion: %v", err)
	}

	snap := s.Snapshot()
	if st := *snap.Palette[0].Status; st != model.StatusSkipped {
		t.Fatalf("question 1 status = %s, want SKIPPED", st)
	}
	if snap.CurrentQuestionID != 2 {
		t.Fatalf("pointer = %d, want 2", snap.CurrentQuestionID)
	}
}

func TestEnterReviewRequiresAllSectionsCompleted(t *testing.T) {
	gw := &fakeGateway{resp: &model.IntentResponse{Status: model.ExchangeSuccess}}
	s := newTestSession(t, gw, nil)

	if err := s.EnterReview(context.Background()); err == nil {
		t.Fatal("review must be rejected while sections are outstanding")
	}

	st := fiveSectionState()
	for i := range st.Sections {
		st.Sections[i].Status = model.SectionStatusCompleted
	}
	done := newTestSession(t, gw, st)
	if err := done.EnterReview(context.Background()); err != nil {
		t.Fatalf("EnterReview: %v", err)
	}
	if done.Snapshot().Mode != model.ModeReview {
		t.Fatal("mode should be REVIEW")
	}
	// Question records are frozen in review mode.
	if err := done.SubmitAnswer(context.Background(), 1, "A"); !errors.Is(err, model.ErrSessionFrozen) {
		t.Fatalf("err = %v, want ErrSessionFrozen", err)
	}
}

// Grading happens orchestrator-side after the exam closes, so the local
// records carry no correctness until review begins. Entering review must
// fold the orchestrator's marks in; otherwise every answered question
// renders PENDING and the correct/wrong filters match nothing.
func TestEnterReviewFoldsGradedMarks(t *testing.T) {
	ans := "A"
	st := fiveSectionState()
	for i := range st.Sections {
		st.Sections[i].Status = model.SectionStatusCompleted
	}
	for i := range st.Questions {
		st.Questions[i].StudentAnswer = &ans
	}

	correct, wrong := true, false
	graded := fiveSectionState()
	for i := range graded.Sections {
		graded.Sections[i].Status = model.SectionStatusCompleted
	}
	for i := range graded.Questions {
		graded.Questions[i].StudentAnswer = &ans
		if i < 6 {
			graded.Questions[i].Correct = &correct
		} else {
			graded.Questions[i].Correct = &wrong
		}
	}

	gw := &fakeGateway{
		resp:  &model.IntentResponse{Status: model.ExchangeSuccess},
		state: graded,
	}
	s := newTestSession(t, gw, st)

	if err := s.EnterReview(context.Background()); err != nil {
		t.Fatalf("EnterReview: %v", err)
	}

	if err := s.SetFilter(model.FilterCorrect); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Visible) != 6 {
		t.Fatalf("correct filter matched %d questions, want 6", len(snap.Visible))
	}
	for _, entry := range snap.Visible {
		if entry.ReviewStatus == nil || *entry.ReviewStatus != model.ReviewCorrect {
			t.Fatalf("question %d review status = %v, want CORRECT", entry.GlobalSequence, entry.ReviewStatus)
		}
	}

	if err := s.SetFilter(model.FilterWrong); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	if got := len(s.Snapshot().Visible); got != 4 {
		t.Fatalf("wrong filter matched %d questions, want 4", got)
	}
}

// A failed grading fetch must not block review: the mode still flips and
// every answered question stays PENDING until a later resync.
func TestEnterReviewSurvivesGradingFetchFailure(t *testing.T) {
	ans := "A"
	st := fiveSectionState()
	for i := range st.Sections {
		st.Sections[i].Status = model.SectionStatusCompleted
	}
	for i := range st.Questions {
		st.Questions[i].StudentAnswer = &ans
	}

	// No scripted state: FetchState errors.
	gw := &fakeGateway{resp: &model.IntentResponse{Status: model.ExchangeSuccess}}
	s := newTestSession(t, gw, st)

	if err := s.EnterReview(context.Background()); err != nil {
		t.Fatalf("EnterReview: %v", err)
	}
	snap := s.Snapshot()
	if snap.Mode != model.ModeReview {
		t.Fatal("mode should be REVIEW despite fetch failure")
	}
	for _, entry := range snap.Palette {
		if entry.ReviewStatus == nil || *entry.ReviewStatus != model.ReviewPending {
			t.Fatalf("question %d review status = %v, want PENDING", entry.GlobalSequence, entry.ReviewStatus)
		}
	}
}

func TestSelectQuestionByIdentity(t *testing.T) {
	gw := &fakeGateway{resp: &model.IntentResponse{Status: model.ExchangeSuccess}}
	s := newTestSession(t, gw, nil)
	if err := s.StartSection(context.Background(), "A"); err != nil {
		t.Fatalf("StartSection: %v", err)
	}

	if err := s.SelectQuestion(2); err != nil {
		t.Fatalf("SelectQuestion: %v", err)
	}
	if got := s.Snapshot().CurrentQuestionID; got != 2 {
		t.Fatalf("pointer = %d, want 2", got)
	}

	// Questions in locked sections are not selectable.
	if err := s.SelectQuestion(5); !errors.Is(err, model.ErrSectionLocked) {
		t.Fatalf("err = %v, want ErrSectionLocked", err)
	}
}
