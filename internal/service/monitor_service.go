package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/preplab/proctord/internal/repository"
)

// MonitorService orchestrates live proctoring views for admins.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo}
}

// ProgressSnapshot holds the answered count and violation count for
// every student taking the test.
type ProgressSnapshot struct {
	AnsweredCounts  map[int]int64 `json:"answered_counts"`
	ViolationCounts map[int]int64 `json:"violation_counts"`
	TotalViolations int64         `json:"total_violations"`
}

// GetProgress returns answered counts and violation counts. The two
// fetches are independent and run in parallel; answered counts are
// critical, violation counts best-effort.
func (s *MonitorService) GetProgress(ctx context.Context, testID uuid.UUID) (*ProgressSnapshot, error) {
	snapshot := &ProgressSnapshot{
		AnsweredCounts:  make(map[int]int64),
		ViolationCounts: make(map[int]int64),
	}

	var (
		answered     map[int]int64
		violations   map[int]int64
		answeredErr  error
		violationErr error
		wg           sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		answered, answeredErr = s.monitorRepo.GetAnsweredCounts(ctx, testID)
	}()
	go func() {
		defer wg.Done()
		violations, violationErr = s.monitorRepo.GetViolationCounts(ctx, testID)
	}()
	wg.Wait()

	if answeredErr != nil {
		return nil, answeredErr
	}
	if answered != nil {
		snapshot.AnsweredCounts = answered
	}

	if violationErr == nil && violations != nil {
		snapshot.ViolationCounts = violations
		for _, n := range violations {
			snapshot.TotalViolations += n
		}
	}

	return snapshot, nil
}
