package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerValueMarshalShape(t *testing.T) {
	raw, err := json.Marshal(Scalar("B"))
	require.NoError(t, err)
	assert.Equal(t, `"B"`, string(raw))

	raw, err = json.Marshal(List("A", "C"))
	require.NoError(t, err)
	assert.Equal(t, `["A","C"]`, string(raw))

	// An empty list is an array, never null.
	raw, err = json.Marshal(List())
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(raw))
}

func TestAnswerValueUnmarshal(t *testing.T) {
	var v AnswerValue
	require.NoError(t, json.Unmarshal([]byte(`"B"`), &v))
	assert.False(t, v.IsMulti())
	assert.Equal(t, "B", v.Single())

	require.NoError(t, json.Unmarshal([]byte(`["A","C"]`), &v))
	assert.True(t, v.IsMulti())
	assert.Equal(t, []string{"A", "C"}, v.Values())

	assert.Error(t, json.Unmarshal([]byte(`42`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
}

func TestAnswerValueCoercionAccessors(t *testing.T) {
	// Single() of an array takes the first element.
	assert.Equal(t, "A", List("A", "C").Single())
	assert.Equal(t, "", List().Single())

	// Values() of a scalar wraps it; an empty scalar stays empty.
	assert.Equal(t, []string{"B"}, Scalar("B").Values())
	assert.Nil(t, Scalar("").Values())
}

func TestViolationReasonTag(t *testing.T) {
	assert.Equal(t, "security_violation_tab_switch", ViolationReason(ViolationTabSwitch))
	assert.Equal(t, "security_violation_webcam_stopped", ViolationReason(ViolationWebcamStopped))
}

func TestViolationTypeValid(t *testing.T) {
	for _, v := range []ViolationType{
		ViolationTabSwitch, ViolationFullscreenExit, ViolationWindowBlur,
		ViolationWindowResize, ViolationMouseLeave, ViolationDevTools,
		ViolationCopyPaste, ViolationContextMenu, ViolationPrintScreen,
		ViolationWebcamFailure, ViolationWebcamStopped,
	} {
		assert.True(t, v.Valid(), string(v))
	}
	assert.False(t, ViolationType("phone_detected").Valid())
	assert.False(t, ViolationType("").Valid())
}

func TestQuestionMultiCorrect(t *testing.T) {
	single := Question{Type: QuestionTypeMCQ, Options: []Option{
		{ID: "a", IsCorrect: true}, {ID: "b"},
	}}
	multi := Question{Type: QuestionTypeMCQ, Options: []Option{
		{ID: "a", IsCorrect: true}, {ID: "b", IsCorrect: true},
	}}
	essay := Question{Type: QuestionTypeDescriptive}

	assert.False(t, single.MultiCorrect())
	assert.True(t, multi.MultiCorrect())
	assert.False(t, essay.MultiCorrect())
}
