package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType distinguishes multiple-choice from free-text questions.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeExplanation    QuestionType = "EXPLANATION"
)

// Question is a single session-scoped question.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	SessionID     uuid.UUID       `json:"session_id"`
	QuestionText  string          `json:"question_text"`
	QuestionType  QuestionType    `json:"question_type"`
	Options       json.RawMessage `json:"options"`
	CorrectOption string          `json:"correct_option"`
	OrderNum      int             `json:"order_num"`
}

// QuestionForCandidate is a question without the correct answer.
type QuestionForCandidate struct {
	ID           uuid.UUID       `json:"id"`
	QuestionText string          `json:"question_text"`
	QuestionType QuestionType    `json:"question_type"`
	Options      json.RawMessage `json:"options,omitempty"`
	OrderNum     int             `json:"order_num"`
}

// AddQuestionRequest is the payload for adding a question to a session.
type AddQuestionRequest struct {
	QuestionText  string          `json:"question_text" binding:"required,min=1,max=4000"`
	QuestionType  string          `json:"question_type" binding:"required,oneof=MULTIPLE_CHOICE EXPLANATION"`
	Options       json.RawMessage `json:"options" binding:"omitempty"`
	CorrectOption string          `json:"correct_option" binding:"omitempty,max=10"`
	OrderNum      int             `json:"order_num" binding:"min=0"`
}
