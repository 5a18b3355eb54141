package model

// Question is a single palette entry: one exam item with its persisted
// interaction flags. Display status is always derived from these fields
// (see status.go), never stored on the struct.
type Question struct {
	GlobalSequence  int     `json:"global_sequence"`
	SectionSequence int     `json:"section_sequence"`
	StudentAnswer   *string `json:"student_answer,omitempty"`
	IsSkipped       bool    `json:"is_skipped"`
	IsReview        bool    `json:"is_review"`
	// Correct is populated only after grading (timed mode) or immediately
	// after submission (practice mode). Nil means grading is outstanding.
	Correct *bool `json:"correct,omitempty"`
}

// Answered reports whether a non-null submitted answer exists.
func (q *Question) Answered() bool {
	return q.StudentAnswer != nil
}
