package service

import (
	"errors"
	"fmt"
)

// Outcome of handling a single chat event.
type Outcome int

const (
	Stored Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

var (
	ErrUnrecognizedType = errors.New("unrecognized message type")
	ErrTargetNotFound   = errors.New("removed message not found")
	ErrMissingTarget    = errors.New("removal without target message id")
)

// Result reports what happened to one event. A failed result never stops
// the worker; Err says why the event produced no record.
type Result struct {
	Outcome Outcome
	Err     error
}

func stored() Result {
	return Result{Outcome: Stored}
}

func skipped(reason error) Result {
	return Result{Outcome: Skipped, Err: reason}
}

func failed(format string, args ...any) Result {
	return Result{Outcome: Failed, Err: fmt.Errorf(format, args...)}
}

// OK is true when the event was stored or deliberately ignored.
func (r Result) OK() bool {
	return r.Outcome != Failed
}
