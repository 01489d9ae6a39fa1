package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/preplab/proctord/internal/model"
)

// TestRepository handles test and question data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetByID retrieves a test by its UUID.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, author_id, duration_minutes, scheduled_start, scheduled_end,
		        max_attempts, status, created_at, updated_at
		 FROM tests
		 WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.AuthorID, &t.DurationMinutes, &t.ScheduledStart,
		&t.ScheduledEnd, &t.MaxAttempts, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListPublished retrieves all published tests, used for cache prewarming.
func (r *TestRepository) ListPublished(ctx context.Context) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, author_id, duration_minutes, scheduled_start, scheduled_end,
		        max_attempts, status, created_at, updated_at
		 FROM tests
		 WHERE status = $1
		 ORDER BY created_at`, model.TestStatusPublished,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []model.Test
	for rows.Next() {
		var t model.Test
		if err := rows.Scan(&t.ID, &t.Title, &t.AuthorID, &t.DurationMinutes,
			&t.ScheduledStart, &t.ScheduledEnd, &t.MaxAttempts, &t.Status,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// GetQuestions retrieves a test's questions with their options, ordered.
func (r *TestRepository) GetQuestions(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.question_type, q.prompt, q.marks,
		        o.id, o.option_text, o.is_correct
		 FROM questions q
		 LEFT JOIN question_options o ON o.question_id = q.id
		 WHERE q.test_id = $1
		 ORDER BY q.order_num, o.order_num`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	index := make(map[string]int)

	for rows.Next() {
		var (
			qID, prompt  string
			qType        model.QuestionType
			marks        int
			optID, text  *string
			isCorrect    *bool
		)
		if err := rows.Scan(&qID, &qType, &prompt, &marks, &optID, &text, &isCorrect); err != nil {
			return nil, err
		}

		i, seen := index[qID]
		if !seen {
			questions = append(questions, model.Question{
				ID:     qID,
				Type:   qType,
				Prompt: prompt,
				Marks:  marks,
			})
			i = len(questions) - 1
			index[qID] = i
		}

		if optID != nil {
			questions[i].Options = append(questions[i].Options, model.Option{
				ID:        *optID,
				Text:      *text,
				IsCorrect: *isCorrect,
			})
		}
	}
	return questions, rows.Err()
}
