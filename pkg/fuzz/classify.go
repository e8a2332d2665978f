package fuzz

import (
	"github.com/pyneda/apifuzz/pkg/api/core"
)

type Outcome string

const (
	OutcomeExpected         Outcome = "expected"
	OutcomeFinding          Outcome = "finding"
	OutcomeTransportFailure Outcome = "transport_failure"
)

// Classifier decides whether an observed status is a finding.
type Classifier struct {
	ignored map[int]struct{}
	// StrictServerErrors reports declared 5xx codes as findings unless they
	// are ignored.
	StrictServerErrors bool
}

func NewClassifier(ignored []int, strictServerErrors bool) *Classifier {
	c := &Classifier{
		ignored:            make(map[int]struct{}, len(ignored)),
		StrictServerErrors: strictServerErrors,
	}
	for _, code := range ignored {
		c.ignored[code] = struct{}{}
	}
	return c
}

func (c *Classifier) IsIgnored(status int) bool {
	_, ok := c.ignored[status]
	return ok
}

// Classify returns OutcomeExpected when status is on the ignore list or
// declared by op, OutcomeFinding otherwise.
func (c *Classifier) Classify(op core.Operation, status int) Outcome {
	if c.IsIgnored(status) {
		return OutcomeExpected
	}
	if !op.Responses.Contains(status) {
		return OutcomeFinding
	}
	if c.StrictServerErrors && status >= 500 {
		return OutcomeFinding
	}
	return OutcomeExpected
}

// ClassifyResult folds a transport error into the outcome.
func (c *Classifier) ClassifyResult(op core.Operation, status int, err error) Outcome {
	if err != nil {
		return OutcomeTransportFailure
	}
	return c.Classify(op, status)
}
