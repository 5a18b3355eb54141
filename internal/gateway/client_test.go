package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hummingbirdtestai/mocktest-engine/internal/config"
	"github.com/hummingbirdtestai/mocktest-engine/internal/model"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&config.Config{
		OrchestratorURL:     baseURL,
		OrchestratorTimeout: 2 * time.Second,
	}, zerolog.Nop())
}

func TestExchangeParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/intents" {
			t.Errorf("path = %s, want /v1/intents", r.URL.Path)
		}
		w.Write([]byte(`{"status":"success","next_question_id":7,"correct":true}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Exchange(context.Background(), model.IntentRequest{
		Intent:    model.IntentSubmitAnswer,
		StudentID: "s1",
	})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if !resp.OK() {
		t.Fatalf("status = %q, want success", resp.Status)
	}
	if resp.NextQuestionID == nil || *resp.NextQuestionID != 7 {
		t.Fatal("next_question_id not folded")
	}
	if resp.Correct == nil || !*resp.Correct {
		t.Fatal("correct not folded")
	}
}

// Absent fields stay nil: the caller must read them as "no state change".
func TestExchangeAbsentFieldsAreNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Exchange(context.Background(), model.IntentRequest{Intent: model.IntentAdvance})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if resp.NextQuestionID != nil || resp.SectionUnlocked != nil || resp.Correct != nil || resp.TimeRemaining != nil {
		t.Fatal("absent fields must decode to nil")
	}
}

// A malformed body must not crash or mutate anything: it comes back as an
// empty-discriminant response.
func TestExchangeMalformedBodyIsNoChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": `)) // truncated JSON
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Exchange(context.Background(), model.IntentRequest{Intent: model.IntentAdvance})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if resp.Status != "" {
		t.Fatalf("status = %q, want empty discriminant", resp.Status)
	}
	if resp.OK() {
		t.Fatal("malformed response must never read as success")
	}
}

func TestExchangeNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := newTestClient(srv.URL).Exchange(context.Background(), model.IntentRequest{Intent: model.IntentAdvance})
	if !errors.Is(err, model.ErrOrchestratorUnreachable) {
		t.Fatalf("err = %v, want ErrOrchestratorUnreachable", err)
	}
}

func TestExchangeServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Exchange(context.Background(), model.IntentRequest{Intent: model.IntentAdvance})
	if !errors.Is(err, model.ErrOrchestratorUnreachable) {
		t.Fatalf("err = %v, want ErrOrchestratorUnreachable", err)
	}
}

func TestFetchStateReconstructsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions/s1" {
			t.Errorf("path = %s, want /v1/sessions/s1", r.URL.Path)
		}
		w.Write([]byte(`{
			"status": "success",
			"mode": "EXAM",
			"current_section_id": "B",
			"current_question_id": 42,
			"sections": [{"id":"A","position":1,"status":"COMPLETED","question_count":40,"time_budget_sec":2520,"first_global_seq":1}],
			"questions": [{"global_sequence":1,"section_sequence":1,"student_answer":"C","is_skipped":false,"is_review":true}]
		}`))
	}))
	defer srv.Close()

	state, err := newTestClient(srv.URL).FetchState(context.Background(), "s1")
	if err != nil {
		t.Fatalf("FetchState: %v", err)
	}
	if state.CurrentSectionID != "B" || state.CurrentQuestionID != 42 {
		t.Fatalf("pointer = (%s, %d), want (B, 42)", state.CurrentSectionID, state.CurrentQuestionID)
	}
	if len(state.Sections) != 1 || state.Sections[0].Status != model.SectionStatusCompleted {
		t.Fatal("sections not reconstructed")
	}
	if len(state.Questions) != 1 || !state.Questions[0].IsReview {
		t.Fatal("question flags not reconstructed")
	}
}

func TestFetchStateRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).FetchState(context.Background(), "s1"); err == nil {
		t.Fatal("expected error for non-200 state fetch")
	}
}
