package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GradingStatus is the durable marker driving the async grading pipeline.
// PENDING/RUNNING submissions found at startup are requeued, so a crash
// mid-grade is resumable instead of silently lost.
type GradingStatus string

const (
	GradingStatusNone      GradingStatus = "NONE"
	GradingStatusPending   GradingStatus = "PENDING"
	GradingStatusRunning   GradingStatus = "RUNNING"
	GradingStatusCompleted GradingStatus = "COMPLETED"
	GradingStatusFailed    GradingStatus = "FAILED"
)

// Submission is the immutable record created at finalize time. Only the
// grading fields (TestResults, AIEvaluation, GradingStatus) mutate after
// creation, each at most once.
type Submission struct {
	ID             uuid.UUID       `json:"id"`
	AttemptID      uuid.UUID       `json:"attempt_id"`
	Modality       Modality        `json:"modality"`
	Code           string          `json:"code,omitempty"`
	Language       string          `json:"language,omitempty"`
	Answers        json.RawMessage `json:"answers,omitempty"`
	TabSwitchCount int             `json:"tab_switch_count"`
	Reason         FinalizeReason  `json:"reason"`
	GradingStatus  GradingStatus   `json:"grading_status"`
	TestResults    json.RawMessage `json:"test_results,omitempty"`
	AIEvaluation   json.RawMessage `json:"ai_evaluation,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SubmissionPayload carries the answers for a finalize call. For expiry and
// integrity triggers the coordinator fills it from the persisted draft.
type SubmissionPayload struct {
	Code     string            `json:"code,omitempty"`
	Language string            `json:"language,omitempty"`
	Answers  map[string]string `json:"answers,omitempty"`
}

// SubmitManualRequest is the candidate-facing submit body. All fields are
// optional: anything missing is recovered from the persisted draft.
type SubmitManualRequest struct {
	Code     string            `json:"code" binding:"omitempty,max=262144"`
	Language string            `json:"language" binding:"omitempty,max=32"`
	Answers  map[string]string `json:"answers" binding:"omitempty"`
}

// TestRunReport is the Stage A output persisted to Submission.TestResults.
type TestRunReport struct {
	Score      int             `json:"score"`
	Passed     int             `json:"passed"`
	Total      int             `json:"total"`
	Cases      []TestRunCase   `json:"cases"`
	InfraError string          `json:"infra_error,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
	Extra      json.RawMessage `json:"extra,omitempty"`
}

// TestRunCase is a single hidden-case outcome. Expected output is only ever
// shown in admin views.
type TestRunCase struct {
	OrderNum int    `json:"order_num"`
	Passed   bool   `json:"passed"`
	Stdout   string `json:"stdout,omitempty"`
	Expected string `json:"expected,omitempty"`
	Error    string `json:"error,omitempty"`
}
