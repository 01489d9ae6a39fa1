package session

import (
	"strings"

	"github.com/preplab/proctord/internal/model"
)

// buildResponses coerces every recorded answer to its question's expected
// shape, in test order. Questions with no answer, or whose answer fails
// coercion, are dropped; the guard's completeness gate compares the
// result length against the question count.
func buildResponses(test *model.TestDefinition, store *AnswerStore) []model.ResponseEntry {
	responses := make([]model.ResponseEntry, 0, len(test.Questions))

	for i := range test.Questions {
		q := &test.Questions[i]
		raw, ok := store.Get(q.ID)
		if !ok {
			continue
		}

		coerced, ok := coerceAnswer(q, raw)
		if !ok {
			continue
		}
		responses = append(responses, model.ResponseEntry{
			QuestionID: q.ID,
			Answer:     coerced,
		})
	}

	return responses
}

// coerceAnswer normalizes raw to the question's cardinality. The second
// return value is false when the answer counts as unanswered.
func coerceAnswer(q *model.Question, raw model.AnswerValue) (model.AnswerValue, bool) {
	switch {
	case q.MultiCorrect():
		return coerceMulti(raw)
	case q.Type == model.QuestionTypeMCQ:
		return coerceSingle(raw)
	default: // DESCRIPTIVE, CODE
		return coerceText(raw)
	}
}

// coerceMulti wraps a scalar into a one-element array. Empty arrays and
// arrays containing any empty element are unanswered: a stale [""] from
// a deselect must not survive to the wire.
func coerceMulti(raw model.AnswerValue) (model.AnswerValue, bool) {
	values := raw.Values()
	if len(values) == 0 {
		return model.AnswerValue{}, false
	}
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return model.AnswerValue{}, false
		}
	}
	return model.List(values...), true
}

// coerceSingle takes the first element of an array answer. Whitespace-only
// strings are unanswered.
func coerceSingle(raw model.AnswerValue) (model.AnswerValue, bool) {
	v := raw.Single()
	if strings.TrimSpace(v) == "" {
		return model.AnswerValue{}, false
	}
	return model.Scalar(v), true
}

// coerceText requires a non-empty, non-whitespace-only string.
func coerceText(raw model.AnswerValue) (model.AnswerValue, bool) {
	if raw.IsMulti() {
		// Free-text questions never legitimately hold an array.
		return model.AnswerValue{}, false
	}
	v := raw.Single()
	if strings.TrimSpace(v) == "" {
		return model.AnswerValue{}, false
	}
	return model.Scalar(v), true
}
