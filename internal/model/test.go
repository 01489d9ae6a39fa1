package model

import (
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates the possible states of a test.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusPublished TestStatus = "PUBLISHED"
	TestStatusCompleted TestStatus = "COMPLETED"
	TestStatusArchived  TestStatus = "ARCHIVED"
)

// Test represents a test entity as stored server-side.
type Test struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	AuthorID        int        `json:"author_id"`
	DurationMinutes int        `json:"duration_minutes"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	MaxAttempts     int        `json:"max_attempts"`
	Status          TestStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionTypeMCQ         QuestionType = "MCQ"
	QuestionTypeDescriptive QuestionType = "DESCRIPTIVE"
	QuestionTypeCode        QuestionType = "CODE"
)

// Option is a single MCQ choice. IsCorrect is part of the fetched
// definition so the client can tell single- from multi-correct questions;
// it must never appear in the outgoing submission payload.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question is one question inside a test definition.
type Question struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt"`
	Marks   int          `json:"marks"`
	Options []Option     `json:"options,omitempty"`
}

// CorrectCount returns the number of options flagged correct.
func (q *Question) CorrectCount() int {
	n := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			n++
		}
	}
	return n
}

// MultiCorrect reports whether the question expects an array answer.
func (q *Question) MultiCorrect() bool {
	return q.Type == QuestionTypeMCQ && q.CorrectCount() > 1
}

// TestDefinition is the student-facing test payload. Field names are a
// wire contract with the lockdown client and must not be renamed.
type TestDefinition struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Questions         []Question `json:"questions"`
	DurationInMinutes int        `json:"durationInMinutes"`
	StartDate         time.Time  `json:"startDate"`
	EndDate           *time.Time `json:"endDate,omitempty"`
	MaxAttempts       int        `json:"maxAttempts"`
	RemainingAttempts int        `json:"remainingAttempts"`
}

// QuestionByID returns the question with the given id, or nil.
func (t *TestDefinition) QuestionByID(id string) *Question {
	for i := range t.Questions {
		if t.Questions[i].ID == id {
			return &t.Questions[i]
		}
	}
	return nil
}

// CreateTestRequest is the payload for creating a new test.
type CreateTestRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=255"`
	DurationMinutes int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	ScheduledStart  *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
	MaxAttempts     int        `json:"max_attempts" binding:"required,min=1,max=10"`
}
