package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/preplab/proctord/internal/model"
)

// AnswerStore is the in-memory map of question id → answer. Writes are
// last-write-wins and unvalidated: validation is deferred to
// serialization so recording stays cheap while the student types.
type AnswerStore struct {
	mu      sync.Mutex
	answers map[string]model.AnswerValue
	sink    AutosaveSink
	log     zerolog.Logger
}

// NewAnswerStore creates an empty store. sink may be nil.
func NewAnswerStore(sink AutosaveSink, log zerolog.Logger) *AnswerStore {
	return &AnswerStore{
		answers: make(map[string]model.AnswerValue),
		sink:    sink,
		log:     log.With().Str("component", "answer_store").Logger(),
	}
}

// Record overwrites any existing answer for questionID.
func (s *AnswerStore) Record(questionID string, value model.AnswerValue) {
	s.mu.Lock()
	s.answers[questionID] = value
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.Autosave(questionID, value); err != nil {
			s.log.Warn().Err(err).Str("question_id", questionID).Msg("Autosave failed")
		}
	}
}

// Get returns the current answer for questionID, if any.
func (s *AnswerStore) Get(questionID string) (model.AnswerValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.answers[questionID]
	return v, ok
}

// Len returns the number of recorded answers.
func (s *AnswerStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// Reset clears the store. Only a fresh session bootstrap may call this.
func (s *AnswerStore) Reset() {
	s.mu.Lock()
	s.answers = make(map[string]model.AnswerValue)
	s.mu.Unlock()
}
