package model

// QuestionStatus is the display state of a question during the exam.
type QuestionStatus string

const (
	StatusAnswered   QuestionStatus = "ANSWERED"
	StatusMarked     QuestionStatus = "MARKED"
	StatusSkipped    QuestionStatus = "SKIPPED"
	StatusUnanswered QuestionStatus = "UNANSWERED"
)

// DeriveStatus maps a question's persisted fields to its exam-mode display
// status. Pure and total; the same record always yields the same status.
//
// Precedence, first match wins: marked beats skipped beats answered beats
// unanswered. A user can mark a question they already answered, and the
// review workflow must surface "revisit" above "answered", so the mark flag
// is checked first regardless of answer presence.
func DeriveStatus(q *Question) QuestionStatus {
	switch {
	case q.IsReview:
		return StatusMarked
	case q.IsSkipped:
		return StatusSkipped
	case q.StudentAnswer != nil:
		return StatusAnswered
	default:
		return StatusUnanswered
	}
}

// ReviewStatus is the display state of a question in post-submission review.
// It is a separate vocabulary, not an extension of QuestionStatus: an
// answered-but-ungraded question is PENDING, which must never be conflated
// with UNANSWERED in the palette legend.
type ReviewStatus string

const (
	ReviewCorrect    ReviewStatus = "CORRECT"
	ReviewWrong      ReviewStatus = "WRONG"
	ReviewPending    ReviewStatus = "PENDING"
	ReviewSkipped    ReviewStatus = "SKIPPED"
	ReviewUnanswered ReviewStatus = "UNANSWERED"
)

// DeriveReviewStatus overlays correctness on a question once the session is
// in review mode. Correctness is only meaningful when a canonical answer is
// known; until then an answered question stays PENDING.
func DeriveReviewStatus(q *Question) ReviewStatus {
	if q.StudentAnswer == nil {
		if q.IsSkipped {
			return ReviewSkipped
		}
		return ReviewUnanswered
	}
	if q.Correct == nil {
		return ReviewPending
	}
	if *q.Correct {
		return ReviewCorrect
	}
	return ReviewWrong
}
