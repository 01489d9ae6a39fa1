package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/preplab/proctord/internal/config"
	"github.com/preplab/proctord/internal/model"
	"github.com/preplab/proctord/internal/repository"
)

// Domain errors surfaced to the submission handler.
var (
	ErrTestNotStarted    = errors.New("test has not started yet")
	ErrTestClosed        = errors.New("test is no longer accepting submissions")
	ErrAttemptsExhausted = errors.New("no attempts remaining")
	ErrUnknownQuestion   = errors.New("response references an unknown question")
	ErrInvalidReason     = errors.New("unknown submission reason tag")
)

// AttemptService accepts submissions: eligibility, grading, attempt
// accounting, and handoff to the persistence queue.
type AttemptService struct {
	testService *TestService
	testRepo    *repository.TestRepository
	attemptRepo *repository.AttemptRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	testService *TestService,
	testRepo *repository.TestRepository,
	attemptRepo *repository.AttemptRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		testService: testService,
		testRepo:    testRepo,
		attemptRepo: attemptRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// ValidReason reports whether the reason tag belongs to the contract
// vocabulary: submit | exit | time_up | security_violation_<type>.
func ValidReason(reason string) bool {
	switch reason {
	case model.ReasonSubmit, model.ReasonExit, model.ReasonTimeUp:
		return true
	}
	if v, ok := strings.CutPrefix(reason, "security_violation_"); ok {
		return model.ViolationType(v).Valid()
	}
	return false
}

// History returns the caller's past attempts, newest first.
func (s *AttemptService) History(ctx context.Context, studentID int) ([]model.Attempt, error) {
	attempts, err := s.attemptRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

// Submit accepts one submission payload: verifies eligibility, grades
// MCQs in RAM against the cached answer key, writes the attempt row
// synchronously, and queues responses for background persistence.
func (s *AttemptService) Submit(ctx context.Context, testID uuid.UUID, studentID int, sub *model.Submission) (*model.AttemptResult, error) {
	if !ValidReason(sub.Reason) {
		return nil, ErrInvalidReason
	}

	def, err := s.testService.GetStudentDefinition(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if now.Before(def.StartDate) {
		return nil, ErrTestNotStarted
	}
	if def.EndDate != nil && now.After(*def.EndDate) {
		return nil, ErrTestClosed
	}
	if def.RemainingAttempts <= 0 {
		return nil, ErrAttemptsExhausted
	}

	for _, r := range sub.Responses {
		if def.QuestionByID(r.QuestionID) == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, r.QuestionID)
		}
	}

	score, err := s.grade(ctx, testID, def, sub)
	if err != nil {
		return nil, fmt.Errorf("grade: %w", err)
	}

	attempt := &model.Attempt{
		TestID:     testID,
		StudentID:  studentID,
		Reason:     sub.Reason,
		FinalScore: &score,
	}
	if err := s.attemptRepo.CreateCompleted(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.queueResponses(ctx, attempt, sub)

	s.log.Info().
		Str("test_id", testID.String()).
		Int("student_id", studentID).
		Str("reason", sub.Reason).
		Float64("score", score).
		Msg("Submission accepted")

	return &model.AttemptResult{
		AttemptID:         attempt.ID,
		Score:             score,
		Reason:            sub.Reason,
		RemainingAttempts: def.RemainingAttempts - 1,
	}, nil
}

// grade scores MCQs against the answer key; DESCRIPTIVE and CODE earn
// nothing automatically and await manual review. The score is the earned
// share of auto-gradable marks, 0-100.
func (s *AttemptService) grade(ctx context.Context, testID uuid.UUID, def *model.TestDefinition, sub *model.Submission) (float64, error) {
	key, err := s.testService.GetAnswerKey(ctx, testID)
	if err != nil {
		return 0, err
	}
	return scoreAgainstKey(def, sub, key), nil
}

// scoreAgainstKey computes the earned share of auto-gradable marks, 0-100.
// key maps question id → sorted correct option ids.
func scoreAgainstKey(def *model.TestDefinition, sub *model.Submission, key map[string][]string) float64 {
	answers := make(map[string]model.AnswerValue, len(sub.Responses))
	for _, r := range sub.Responses {
		answers[r.QuestionID] = r.Answer
	}

	earned, total := 0, 0
	for i := range def.Questions {
		q := &def.Questions[i]
		if q.Type != model.QuestionTypeMCQ {
			continue
		}
		total += q.Marks

		correct, ok := key[q.ID]
		if !ok || len(correct) == 0 {
			continue
		}
		answer, ok := answers[q.ID]
		if !ok {
			continue
		}

		given := append([]string(nil), answer.Values()...)
		sort.Strings(given)
		if equalStrings(given, correct) {
			earned += q.Marks
		}
	}

	if total == 0 {
		return 0
	}
	return float64(earned) / float64(total) * 100
}

// queueResponses pushes the per-question responses to the persistence
// queue. Best-effort: a queue failure loses audit detail, not the score.
func (s *AttemptService) queueResponses(ctx context.Context, attempt *model.Attempt, sub *model.Submission) {
	payload, err := json.Marshal(map[string]interface{}{
		"attempt_id": attempt.ID.String(),
		"test_id":    attempt.TestID.String(),
		"student_id": attempt.StudentID,
		"responses":  sub.Responses,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Encode responses payload failed")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResponsesQueue, payload).Err(); err != nil {
		s.log.Error().Err(err).Msg("Queue responses failed")
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
