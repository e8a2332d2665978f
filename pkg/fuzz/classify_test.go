package fuzz

import (
	"errors"
	"testing"

	"github.com/pyneda/apifuzz/pkg/api/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func widgetGetOperation() core.Operation {
	return core.Operation{Method: "GET", Path: "/widgets/{id}", Responses: core.NewStatusSet(200, 404)}
}

func TestClassifier_Classify(t *testing.T) {
	op := widgetGetOperation()
	classifier := NewClassifier([]int{404, 503}, false)

	tests := []struct {
		status int
		want   Outcome
	}{
		{200, OutcomeExpected},
		{404, OutcomeExpected},
		{503, OutcomeExpected},
		{500, OutcomeFinding},
		{201, OutcomeFinding},
		{400, OutcomeFinding},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifier.Classify(op, tt.status), "status %d", tt.status)
	}
}

func TestClassifier_DeclaredOrIgnoredIsAlwaysExpected(t *testing.T) {
	op := widgetGetOperation()
	op.Responses.AddClass(3)
	ignored := []int{418, 502}
	classifier := NewClassifier(ignored, false)

	for status := 100; status < 600; status++ {
		want := OutcomeFinding
		if op.Responses.Contains(status) || classifier.IsIgnored(status) {
			want = OutcomeExpected
		}
		require.Equal(t, want, classifier.Classify(op, status), "status %d", status)
	}
}

func TestClassifier_StrictServerErrors(t *testing.T) {
	op := core.Operation{Method: "POST", Path: "/jobs", Responses: core.NewStatusSet(201, 500)}

	lenient := NewClassifier(nil, false)
	assert.Equal(t, OutcomeExpected, lenient.Classify(op, 500))

	strict := NewClassifier(nil, true)
	assert.Equal(t, OutcomeFinding, strict.Classify(op, 500))
	assert.Equal(t, OutcomeExpected, strict.Classify(op, 201))

	strictIgnoring := NewClassifier([]int{500}, true)
	assert.Equal(t, OutcomeExpected, strictIgnoring.Classify(op, 500))
}

func TestClassifier_ClassifyResult(t *testing.T) {
	op := widgetGetOperation()
	classifier := NewClassifier(nil, false)

	transportErr := &core.TransportError{Operation: op.Identity(), Attempts: 1, Err: errors.New("connection refused")}
	assert.Equal(t, OutcomeTransportFailure, classifier.ClassifyResult(op, 0, transportErr))
	assert.Equal(t, OutcomeFinding, classifier.ClassifyResult(op, 500, nil))
	assert.Equal(t, OutcomeExpected, classifier.ClassifyResult(op, 200, nil))
}

func TestSource_Deterministic(t *testing.T) {
	a, b := NewSource(42), NewSource(42)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Uint64(), b.Uint64())
	}

	bufA, bufB := make([]byte, 13), make([]byte, 13)
	_, _ = NewSource(9).Read(bufA)
	_, _ = NewSource(9).Read(bufB)
	assert.Equal(t, bufA, bufB)

	assert.NotEqual(t, NewSource(1).Uint64(), NewSource(2).Uint64())
	assert.Equal(t, uint64(42), a.Seed())
}

func TestSource_Ranges(t *testing.T) {
	src := NewSource(3)
	for i := 0; i < 1000; i++ {
		v := src.Between(5, 2)
		require.GreaterOrEqual(t, v, 2)
		require.LessOrEqual(t, v, 5)
	}
	assert.Equal(t, 0, src.Intn(0))
	assert.False(t, src.Chance(0))
	assert.True(t, src.Chance(1))
}

func TestBias_Validate(t *testing.T) {
	require.NoError(t, DefaultBias.Validate())

	bad := DefaultBias
	bad.KeepRequired = 1.5
	assert.Error(t, bad.Validate())

	crowded := DefaultBias
	crowded.Boundary = 0.7
	crowded.FullRange = 0.5
	assert.Error(t, crowded.Validate())
}
