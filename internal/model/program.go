package model

import (
	"time"

	"github.com/google/uuid"
)

// Program is a coding problem with hidden test cases.
type Program struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Statement string    `json:"statement"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
}

// ProgramTestCase is a hidden input/output pair used by the grading pipeline.
// Never exposed to candidates.
type ProgramTestCase struct {
	ID             uuid.UUID `json:"id"`
	ProgramID      uuid.UUID `json:"program_id"`
	Stdin          string    `json:"stdin"`
	ExpectedStdout string    `json:"expected_stdout"`
	OrderNum       int       `json:"order_num"`
}

// ProgramForCandidate is the candidate-facing view of an assigned program
// (statement only, no test cases).
type ProgramForCandidate struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Statement string    `json:"statement"`
	Language  string    `json:"language"`
}

// CreateProgramRequest is the payload for creating a program.
type CreateProgramRequest struct {
	Title     string `json:"title" binding:"required,min=3,max=255"`
	Statement string `json:"statement" binding:"required,min=10"`
	Language  string `json:"language" binding:"required,oneof=python javascript go java c cpp"`
}

// AddTestCaseRequest is the payload for attaching a hidden test case.
type AddTestCaseRequest struct {
	Stdin          string `json:"stdin"`
	ExpectedStdout string `json:"expected_stdout" binding:"required"`
	OrderNum       int    `json:"order_num" binding:"min=0"`
}
