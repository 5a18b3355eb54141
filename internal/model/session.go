package model

// SessionMode discriminates which status vocabulary the palette uses.
type SessionMode string

const (
	ModeExam   SessionMode = "EXAM"
	ModeReview SessionMode = "REVIEW"
)

// FilterSelection is the active palette filter.
type FilterSelection string

const (
	FilterAll        FilterSelection = "all"
	FilterAnswered   FilterSelection = "answered"
	FilterMarked     FilterSelection = "marked"
	FilterSkipped    FilterSelection = "skipped"
	FilterUnanswered FilterSelection = "unanswered"
	FilterCorrect    FilterSelection = "correct"
	FilterWrong      FilterSelection = "wrong"
)

// ValidFilter reports whether a selection is part of the vocabulary for the
// given mode. Exam mode filters on interaction status; review mode swaps
// answered/marked for correctness.
func ValidFilter(sel FilterSelection, mode SessionMode) bool {
	switch sel {
	case FilterAll, FilterSkipped, FilterUnanswered:
		return true
	case FilterAnswered, FilterMarked:
		return mode == ModeExam
	case FilterCorrect, FilterWrong:
		return mode == ModeReview
	}
	return false
}

// PaletteEntry is the read-model view of one question: raw identity plus
// the status derived at read time.
type PaletteEntry struct {
	GlobalSequence  int             `json:"global_sequence"`
	SectionSequence int             `json:"section_sequence"`
	Status          *QuestionStatus `json:"status,omitempty"`
	ReviewStatus    *ReviewStatus   `json:"review_status,omitempty"`
	Current         bool            `json:"current"`
}

// Snapshot is the full read model consumed by the rendering layer. The
// renderer never touches Section or Question fields directly; this is the
// only shape it sees.
type Snapshot struct {
	StudentID         string          `json:"student_id"`
	Mode              SessionMode     `json:"mode"`
	Frozen            bool            `json:"frozen"`
	Sections          []Section       `json:"sections"`
	CurrentSectionID  string          `json:"current_section_id"`
	CurrentQuestionID int             `json:"current_question_id"`
	TimeRemainingSec  int             `json:"time_remaining_sec"`
	Filter            FilterSelection `json:"filter"`
	PaletteOpen       bool            `json:"palette_open"`
	Palette           []PaletteEntry  `json:"palette"`
	Visible           []PaletteEntry  `json:"visible"`
}
