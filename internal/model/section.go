package model

// SectionStatus enumerates the lifecycle states of an exam section.
type SectionStatus string

const (
	SectionStatusLocked     SectionStatus = "LOCKED"
	SectionStatusNotStarted SectionStatus = "NOT_STARTED"
	SectionStatusInProgress SectionStatus = "IN_PROGRESS"
	SectionStatusCompleted  SectionStatus = "COMPLETED"
)

// Index returns the ordinal of a status in the forward-only lifecycle.
// Transitions may only increase this index.
func (s SectionStatus) Index() int {
	switch s {
	case SectionStatusLocked:
		return 0
	case SectionStatusNotStarted:
		return 1
	case SectionStatusInProgress:
		return 2
	case SectionStatusCompleted:
		return 3
	}
	return -1
}

// Section is one contiguous, independently timed block of questions.
// Questions are assigned to a section by their global sequence falling
// in [FirstGlobalSeq, FirstGlobalSeq+QuestionCount).
type Section struct {
	ID               string        `json:"id"`
	Position         int           `json:"position"`
	Status           SectionStatus `json:"status"`
	QuestionCount    int           `json:"question_count"`
	TimeBudgetSec    int           `json:"time_budget_sec"`
	TimeRemainingSec int           `json:"time_remaining_sec"`
	FirstGlobalSeq   int           `json:"first_global_seq"`
}

// Contains reports whether a question with the given global sequence
// belongs to this section.
func (s *Section) Contains(globalSeq int) bool {
	return globalSeq >= s.FirstGlobalSeq && globalSeq < s.FirstGlobalSeq+s.QuestionCount
}

// TimeConsumedSec is derived for display. Remaining time is the canonical
// value the engine tracks; consumed is never stored.
func (s *Section) TimeConsumedSec() int {
	consumed := s.TimeBudgetSec - s.TimeRemainingSec
	if consumed < 0 {
		return 0
	}
	return consumed
}
