package model

// IntentType names a single user action sent to the remote orchestrator.
type IntentType string

const (
	IntentStartSection IntentType = "start_section"
	IntentSubmitAnswer IntentType = "submit_answer"
	IntentToggleMark   IntentType = "toggle_mark"
	IntentAdvance      IntentType = "advance"
	IntentEnterReview  IntentType = "enter_review"
)

// IntentRequest is the outbound message for one intent exchange. StudentID
// is the opaque token from the identity provider; the engine never inspects
// or refreshes it.
type IntentRequest struct {
	Intent     IntentType `json:"intent"`
	StudentID  string     `json:"student_id"`
	SectionID  string     `json:"section_id,omitempty"`
	QuestionID int        `json:"question_id,omitempty"`
	Answer     string     `json:"answer,omitempty"`
}

// Exchange statuses reported by the orchestrator.
const (
	ExchangeSuccess  = "success"
	ExchangeRejected = "rejected"
)

// IntentResponse is the orchestrator's answer to one intent. Every field is
// untrusted until parsed, and every absent field means "no state change" —
// a partial response must never corrupt local state. Pointer fields make
// absence explicit.
type IntentResponse struct {
	Status          string  `json:"status"`
	NextQuestionID  *int    `json:"next_question_id,omitempty"`
	SectionUnlocked *string `json:"section_unlocked,omitempty"`
	Correct         *bool   `json:"correct,omitempty"`
	TimeRemaining   *int    `json:"time_remaining,omitempty"`
}

// OK reports whether the orchestrator acknowledged the intent. Anything
// else — including a missing discriminant — must not mutate local state.
func (r *IntentResponse) OK() bool {
	return r.Status == ExchangeSuccess
}

// RemoteSessionState is the orchestrator's authoritative snapshot used to
// reconstruct a session on mount or resume. Local storage is only a
// rendering cache and is never consulted for resume.
type RemoteSessionState struct {
	Status            string     `json:"status"`
	Mode              string     `json:"mode"`
	Sections          []Section  `json:"sections"`
	Questions         []Question `json:"questions"`
	CurrentSectionID  string     `json:"current_section_id"`
	CurrentQuestionID int        `json:"current_question_id"`
}
