package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/preplab/proctord/internal/model"
)

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// CountCompleted returns the number of completed attempts for a
// test-student combination. Drives remainingAttempts.
func (r *AttemptRepository) CountCompleted(ctx context.Context, testID uuid.UUID, studentID int) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM attempts
		 WHERE test_id = $1 AND student_id = $2 AND status = $3`,
		testID, studentID, model.AttemptStatusCompleted,
	).Scan(&n)
	return n, err
}

// CreateCompleted inserts a completed attempt in one shot. The attempt
// row is written synchronously at submission time so a follow-up fetch
// of the definition reflects the decremented remainingAttempts.
func (r *AttemptRepository) CreateCompleted(ctx context.Context, a *model.Attempt) error {
	now := time.Now()
	a.FinishedAt = &now
	a.Status = model.AttemptStatusCompleted
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (test_id, student_id, status, reason, final_score, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, started_at`,
		a.TestID, a.StudentID, a.Status, a.Reason, a.FinalScore, a.FinishedAt,
	).Scan(&a.ID, &a.StartedAt)
}

// ListByStudent retrieves all attempts for a student, newest first.
func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, student_id, started_at, finished_at, status, reason, final_score
		 FROM attempts
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.TestID, &a.StudentID, &a.StartedAt,
			&a.FinishedAt, &a.Status, &a.Reason, &a.FinalScore); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
