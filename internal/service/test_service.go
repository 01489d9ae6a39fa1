package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/preplab/proctord/internal/config"
	"github.com/preplab/proctord/internal/model"
	"github.com/preplab/proctord/internal/repository"
)

// Domain errors.
var (
	ErrTestNotPublished = errors.New("test is not published")
)

// TestService serves student-facing test definitions from a Redis
// payload cache with PostgreSQL fallback.
type TestService struct {
	testRepo    *repository.TestRepository
	attemptRepo *repository.AttemptRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewTestService creates a new TestService.
func NewTestService(
	testRepo *repository.TestRepository,
	attemptRepo *repository.AttemptRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *TestService {
	return &TestService{
		testRepo:    testRepo,
		attemptRepo: attemptRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "test_service").Logger(),
	}
}

// cachedPayload is the per-test (student-independent) part of the
// definition kept in Redis. remainingAttempts is stitched in per request.
type cachedPayload struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	Questions         []model.Question `json:"questions"`
	DurationInMinutes int              `json:"durationInMinutes"`
	StartDate         time.Time        `json:"startDate"`
	EndDate           *time.Time       `json:"endDate,omitempty"`
	MaxAttempts       int              `json:"maxAttempts"`
}

// GetStudentDefinition returns the wire-contract test definition for one
// student, with remainingAttempts computed from completed attempts.
func (s *TestService) GetStudentDefinition(ctx context.Context, testID uuid.UUID, studentID int) (*model.TestDefinition, error) {
	payload, err := s.getPayload(ctx, testID)
	if err != nil {
		return nil, err
	}

	used, err := s.attemptRepo.CountCompleted(ctx, testID, studentID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}

	remaining := payload.MaxAttempts - used
	if remaining < 0 {
		remaining = 0
	}

	return &model.TestDefinition{
		ID:                payload.ID,
		Title:             payload.Title,
		Questions:         payload.Questions,
		DurationInMinutes: payload.DurationInMinutes,
		StartDate:         payload.StartDate,
		EndDate:           payload.EndDate,
		MaxAttempts:       payload.MaxAttempts,
		RemainingAttempts: remaining,
	}, nil
}

// GetAnswerKey returns question id → sorted correct option ids for every
// MCQ in the test. Cached in Redis next to the payload.
func (s *TestService) GetAnswerKey(ctx context.Context, testID uuid.UUID) (map[string][]string, error) {
	keyName := config.CacheKey.TestAnswerKey(testID.String())

	raw, err := s.rdb.Get(ctx, keyName).Result()
	if err == nil {
		var key map[string][]string
		if err := json.Unmarshal([]byte(raw), &key); err == nil {
			return key, nil
		}
		// Corrupt cache entry: fall through to rebuild.
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get answer key: %w", err)
	}

	if _, err := s.warmTest(ctx, testID); err != nil {
		return nil, err
	}

	raw, err = s.rdb.Get(ctx, keyName).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key after warm: %w", err)
	}
	var key map[string][]string
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return nil, fmt.Errorf("decode answer key: %w", err)
	}
	return key, nil
}

// getPayload reads the cached payload, warming the cache on a miss.
func (s *TestService) getPayload(ctx context.Context, testID uuid.UUID) (*cachedPayload, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.TestPayloadKey(testID.String())).Result()
	if errors.Is(err, redis.Nil) {
		return s.warmTest(ctx, testID)
	}
	if err != nil {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload cachedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &payload, nil
}

// warmTest builds the payload and the answer key from PostgreSQL and
// stores both in Redis.
func (s *TestService) warmTest(ctx context.Context, testID uuid.UUID) (*cachedPayload, error) {
	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	if test.Status != model.TestStatusPublished {
		return nil, ErrTestNotPublished
	}

	questions, err := s.testRepo.GetQuestions(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}

	startDate := test.CreatedAt
	if test.ScheduledStart != nil {
		startDate = *test.ScheduledStart
	}

	payload := &cachedPayload{
		ID:                test.ID.String(),
		Title:             test.Title,
		Questions:         questions,
		DurationInMinutes: test.DurationMinutes,
		StartDate:         startDate,
		EndDate:           test.ScheduledEnd,
		MaxAttempts:       test.MaxAttempts,
	}

	answerKey := make(map[string][]string)
	for i := range questions {
		q := &questions[i]
		if q.Type != model.QuestionTypeMCQ {
			continue
		}
		var correct []string
		for _, o := range q.Options {
			if o.IsCorrect {
				correct = append(correct, o.ID)
			}
		}
		sort.Strings(correct)
		answerKey[q.ID] = correct
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	keyJSON, err := json.Marshal(answerKey)
	if err != nil {
		return nil, fmt.Errorf("encode answer key: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.TestPayloadKey(testID.String()), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.TestAnswerKey(testID.String()), keyJSON, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		// Cache write failure is non-fatal: the payload is still valid.
		s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Cache warm failed")
	}

	return payload, nil
}

// PrewarmAllCaches loads every published test into Redis before the
// server accepts traffic, avoiding a thundering herd of lazy loads when
// a cohort starts a test at the same minute.
func (s *TestService) PrewarmAllCaches(ctx context.Context) error {
	tests, err := s.testRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published: %w", err)
	}

	for i := range tests {
		if _, err := s.warmTest(ctx, tests[i].ID); err != nil {
			s.log.Warn().Err(err).Str("test_id", tests[i].ID.String()).Msg("Prewarm failed for test")
			continue
		}
	}

	s.log.Info().Int("tests", len(tests)).Msg("Test caches prewarmed")
	return nil
}
