package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/preplab/proctord/internal/config"
)

const (
	ResponseBatchSize    = 50
	ResponseBatchTimeout = 2 * time.Second
	ResponsePollTimeout  = 1 * time.Second
)

// ResponseWorker consumes persist_responses_queue and bulk-inserts the
// final per-question responses of a completed attempt. After a
// successful flush it clears the autosave hash in Redis: the attempt is
// over, the working copy is no longer needed.
type ResponseWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewResponseWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ResponseWorker {
	return &ResponseWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "response_worker").Logger(),
	}
}

// responseEntry keeps the answer as raw JSON so the scalar-vs-array
// shape is written to jsonb verbatim.
type responseEntry struct {
	QuestionID string          `json:"questionId"`
	Answer     json.RawMessage `json:"answer"`
}

type responsesPayload struct {
	AttemptID string          `json:"attempt_id"`
	TestID    string          `json:"test_id"`
	StudentID int             `json:"student_id"`
	Responses []responseEntry `json:"responses"`
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ResponseWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResponseWorker started")

	batch := make([]*responsesPayload, 0, ResponseBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= ResponseBatchSize || time.Since(lastFlush) >= ResponseBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResponsePollTimeout, config.WorkerKey.PersistResponsesQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p responsesPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

// ----------------------------------------------------------------
// Batch insert wrapper
// ----------------------------------------------------------------

func (w *ResponseWorker) flushSafe(ctx context.Context, batch []*responsesPayload) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk response insert failed, using fallback")

		for _, p := range batch {
			if err := w.persistSingle(ctx, p); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed — requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResponsesQueue, raw)
			}
		}
		return
	}

	// After successful inserts → delete autosave buffers in Redis.
	w.bulkClearAutosavedAnswers(ctx, batch)
}

// ----------------------------------------------------------------
// BULK PostgreSQL insert using COPY
// ----------------------------------------------------------------

func (w *ResponseWorker) bulkInsert(ctx context.Context, batch []*responsesPayload) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, p := range batch {
		attemptID, err := uuid.Parse(p.AttemptID)
		if err != nil {
			return err
		}
		for _, r := range p.Responses {
			questionID, err := uuid.Parse(r.QuestionID)
			if err != nil {
				return err
			}
			rows = append(rows, []interface{}{
				attemptID, questionID, string(r.Answer),
			})
		}
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_responses"},
		[]string{"attempt_id", "question_id", "answer"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// ----------------------------------------------------------------
// FALLBACK single attempt insert
// ----------------------------------------------------------------

func (w *ResponseWorker) persistSingle(ctx context.Context, p *responsesPayload) error {
	attemptID, err := uuid.Parse(p.AttemptID)
	if err != nil {
		return err
	}

	for _, r := range p.Responses {
		questionID, err := uuid.Parse(r.QuestionID)
		if err != nil {
			w.log.Error().Str("question_id", r.QuestionID).Msg("Dropping response with invalid UUID")
			continue
		}

		_, err = w.pool.Exec(ctx,
			`INSERT INTO attempt_responses (attempt_id, question_id, answer)
			 VALUES ($1, $2, $3::jsonb)
			 ON CONFLICT (attempt_id, question_id) DO UPDATE
			 SET answer = EXCLUDED.answer`,
			attemptID, questionID, string(r.Answer),
		)
		if err != nil {
			return err
		}
	}

	w.clearAutosavedAnswers(ctx, p)
	return nil
}

// ----------------------------------------------------------------
// Redis DEL for clearing autosaved answers
// ----------------------------------------------------------------

func (w *ResponseWorker) bulkClearAutosavedAnswers(ctx context.Context, batch []*responsesPayload) {
	pipe := w.rdb.Pipeline()

	for _, p := range batch {
		key := config.CacheKey.StudentAnswersKey(p.TestID, p.StudentID)
		pipe.Del(ctx, key)
	}

	_, _ = pipe.Exec(ctx)
}

func (w *ResponseWorker) clearAutosavedAnswers(ctx context.Context, p *responsesPayload) {
	key := config.CacheKey.StudentAnswersKey(p.TestID, p.StudentID)
	_ = w.rdb.Del(ctx, key).Err()
}
