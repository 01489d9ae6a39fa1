package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository aggregates live proctoring data for a test.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// GetAnsweredCounts returns student_id → autosaved answer count.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, testID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM test_answers
		 WHERE test_id = $1
		 GROUP BY student_id`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var studentID int
		var n int64
		if err := rows.Scan(&studentID, &n); err != nil {
			return nil, err
		}
		counts[studentID] = n
	}
	return counts, rows.Err()
}

// GetViolationCounts returns student_id → security event count.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, testID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT student_id, COUNT(*)
		 FROM security_events
		 WHERE test_id = $1
		 GROUP BY student_id`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var studentID int
		var n int64
		if err := rows.Scan(&studentID, &n); err != nil {
			return nil, err
		}
		counts[studentID] = n
	}
	return counts, rows.Err()
}
