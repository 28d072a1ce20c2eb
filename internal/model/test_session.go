package model

import (
	"time"

	"github.com/google/uuid"
)

// Modality enumerates the supported test kinds.
type Modality string

const (
	ModalityCoding      Modality = "CODING"
	ModalityMCQ         Modality = "MCQ"
	ModalityExplanation Modality = "EXPLANATION"
)

// SessionStatus enumerates the lifecycle states of a test session template.
type SessionStatus string

const (
	SessionStatusDraft     SessionStatus = "DRAFT"
	SessionStatusPublished SessionStatus = "PUBLISHED"
	SessionStatusArchived  SessionStatus = "ARCHIVED"
)

// TestSession is a test template: modality, duration and content. It becomes
// effectively immutable once candidates have started attempts against it.
type TestSession struct {
	ID              uuid.UUID     `json:"id"`
	Name            string        `json:"name"`
	Modality        Modality      `json:"modality"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          SessionStatus `json:"status"`
	CreatedBy       int           `json:"created_by"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// CreateTestSessionRequest is the payload for creating a test session.
type CreateTestSessionRequest struct {
	Name            string `json:"name" binding:"required,min=3,max=255"`
	Modality        string `json:"modality" binding:"required,oneof=CODING MCQ EXPLANATION"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,min=1,max=480"`
}

// UpdateTestSessionRequest is the payload for updating a session still in DRAFT.
type UpdateTestSessionRequest struct {
	Name            string `json:"name" binding:"omitempty,min=3,max=255"`
	DurationMinutes int    `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
}

// AssignCandidateRequest is the payload for assigning a candidate to a session.
type AssignCandidateRequest struct {
	CandidateID int `json:"candidate_id" binding:"required,min=1"`
}
