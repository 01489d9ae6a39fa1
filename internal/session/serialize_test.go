package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preplab/proctord/internal/model"
)

func TestBuildResponsesKeepsQuestionOrder(t *testing.T) {
	test := threeQuestionTest(time.Now())
	store := NewAnswerStore(nil, testLogger())

	// Record out of order; serialization must follow the definition.
	store.Record("q-3", model.Scalar("because"))
	store.Record("q-1", model.Scalar("b"))
	store.Record("q-2", model.List("a", "c"))

	responses := buildResponses(test, store)
	require.Len(t, responses, 3)
	assert.Equal(t, "q-1", responses[0].QuestionID)
	assert.Equal(t, "q-2", responses[1].QuestionID)
	assert.Equal(t, "q-3", responses[2].QuestionID)
}

func TestBuildResponsesDropsUnanswered(t *testing.T) {
	test := threeQuestionTest(time.Now())
	store := NewAnswerStore(nil, testLogger())
	store.Record("q-1", model.Scalar("b"))

	responses := buildResponses(test, store)
	require.Len(t, responses, 1)
	assert.Equal(t, "q-1", responses[0].QuestionID)
}

func TestCoerceSingleTakesFirstOfArray(t *testing.T) {
	test := threeQuestionTest(time.Now())
	q := test.QuestionByID("q-1")

	got, ok := coerceAnswer(q, model.List("b", "a"))
	require.True(t, ok)
	assert.False(t, got.IsMulti())
	assert.Equal(t, "b", got.Single())
}

func TestCoerceMultiWrapsScalar(t *testing.T) {
	test := threeQuestionTest(time.Now())
	q := test.QuestionByID("q-2")

	got, ok := coerceAnswer(q, model.Scalar("a"))
	require.True(t, ok)
	assert.True(t, got.IsMulti())
	assert.Equal(t, []string{"a"}, got.Values())
}

func TestCoerceMultiRejectsEmptyAndBlankElements(t *testing.T) {
	test := threeQuestionTest(time.Now())
	q := test.QuestionByID("q-2")

	_, ok := coerceAnswer(q, model.List())
	assert.False(t, ok)

	// A stale [""] left behind by a deselect is unanswered.
	_, ok = coerceAnswer(q, model.List("a", " "))
	assert.False(t, ok)
}

func TestCoerceTextRejectsArrayAndBlank(t *testing.T) {
	test := threeQuestionTest(time.Now())
	q := test.QuestionByID("q-3")

	_, ok := coerceAnswer(q, model.List("a"))
	assert.False(t, ok)

	_, ok = coerceAnswer(q, model.Scalar("   "))
	assert.False(t, ok)

	got, ok := coerceAnswer(q, model.Scalar("an essay"))
	require.True(t, ok)
	assert.Equal(t, "an essay", got.Single())
}

func TestResponsesWireShape(t *testing.T) {
	test := threeQuestionTest(time.Now())
	store := NewAnswerStore(nil, testLogger())
	store.Record("q-1", model.Scalar("b"))
	store.Record("q-2", model.List("a", "c"))
	store.Record("q-3", model.Scalar("because"))

	sub := model.Submission{
		Responses: buildResponses(test, store),
		Reason:    model.ReasonSubmit,
	}
	raw, err := json.Marshal(sub)
	require.NoError(t, err)

	// Scalar answers stay bare strings; multi answers stay arrays.
	assert.JSONEq(t, `{
		"responses": [
			{"questionId": "q-1", "answer": "b"},
			{"questionId": "q-2", "answer": ["a", "c"]},
			{"questionId": "q-3", "answer": "because"}
		],
		"reason": "submit"
	}`, string(raw))
}
