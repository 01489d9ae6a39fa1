package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// Attempt represents one timed run of a test by one student.
type Attempt struct {
	ID         uuid.UUID     `json:"id"`
	TestID     uuid.UUID     `json:"test_id"`
	StudentID  int           `json:"student_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     AttemptStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	FinalScore *float64      `json:"final_score,omitempty"`
}

// AttemptResult is returned to the client after a submission is accepted.
type AttemptResult struct {
	AttemptID         uuid.UUID `json:"attempt_id"`
	Score             float64   `json:"score"`
	Reason            string    `json:"reason"`
	RemainingAttempts int       `json:"remainingAttempts"`
}
