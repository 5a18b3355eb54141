package model

// Request payloads bound by the HTTP layer. Question identifiers are the
// global sequence numbers, which start at 1.

type SubmitAnswerRequest struct {
	QuestionID int    `json:"question_id" binding:"required,min=1"`
	Answer     string `json:"answer" binding:"required"`
}

type ToggleMarkRequest struct {
	QuestionID int `json:"question_id" binding:"required,min=1"`
}

type SelectQuestionRequest struct {
	QuestionID int `json:"question_id" binding:"required,min=1"`
}

type SetFilterRequest struct {
	Filter string `json:"filter" binding:"required"`
}
