package model

import (
	"encoding/json"
	"fmt"
)

// AnswerValue is either a single string (free text, code, single-select
// option id) or an array of strings (multi-select option ids). The
// scalar-vs-array distinction is part of the wire contract: a
// single-correct MCQ answer serializes as "B", never ["B"].
type AnswerValue struct {
	multi  bool
	single string
	values []string
}

// Scalar builds a scalar answer value.
func Scalar(s string) AnswerValue {
	return AnswerValue{single: s}
}

// List builds an array answer value.
func List(vs ...string) AnswerValue {
	return AnswerValue{multi: true, values: vs}
}

// IsMulti reports whether the value holds an array.
func (v AnswerValue) IsMulti() bool { return v.multi }

// Single returns the scalar form. For an array value it returns the
// first element, which is the coercion rule for single-correct MCQs.
func (v AnswerValue) Single() string {
	if !v.multi {
		return v.single
	}
	if len(v.values) == 0 {
		return ""
	}
	return v.values[0]
}

// Values returns the array form. A scalar is wrapped into a
// single-element array, per the multi-correct coercion rule.
func (v AnswerValue) Values() []string {
	if v.multi {
		return v.values
	}
	if v.single == "" {
		return nil
	}
	return []string{v.single}
}

// MarshalJSON emits a bare string for scalars and a JSON array otherwise.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.multi {
		if v.values == nil {
			return json.Marshal([]string{})
		}
		return json.Marshal(v.values)
	}
	return json.Marshal(v.single)
}

// UnmarshalJSON accepts either a string or an array of strings.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Scalar(s)
		return nil
	}
	var vs []string
	if err := json.Unmarshal(data, &vs); err == nil {
		*v = List(vs...)
		return nil
	}
	return fmt.Errorf("answer must be a string or an array of strings")
}

// ResponseEntry is one serialized answer inside a submission. Field names
// are a wire contract with the backend and must not be renamed.
type ResponseEntry struct {
	QuestionID string      `json:"questionId"`
	Answer     AnswerValue `json:"answer"`
}

// Submission is the outgoing submit-test payload.
type Submission struct {
	Responses []ResponseEntry `json:"responses"`
	Reason    string          `json:"reason"`
}

// Submission reasons. A violation-triggered submission carries
// "security_violation_" + the violation type tag.
const (
	ReasonSubmit = "submit"
	ReasonExit   = "exit"
	ReasonTimeUp = "time_up"
)

// ViolationReason builds the reason tag for a violation-triggered submission.
func ViolationReason(v ViolationType) string {
	return "security_violation_" + string(v)
}

// Identity is the caller's identity, used only for watermarking.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}
