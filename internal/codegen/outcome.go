package codegen

import (
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/codeproxy/internal/provider"
)

// Sentinel errors matched by a failed Outcome's error.
var (
	// ErrExhausted means every candidate failed transiently.
	ErrExhausted = errors.New("all models overloaded or unavailable")

	// ErrFatal means a candidate failed with a non-retryable error.
	ErrFatal = errors.New("generation failed")
)

// OutcomeKind is the terminal state of one orchestration.
type OutcomeKind int

// Outcome kinds.
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeExhausted
	OutcomeFatal
)

// String returns a lowercase label for the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Attempt is the result of one provider call. Exactly one of Text and Err
// is meaningful.
type Attempt struct {
	Index   int
	Model   string
	Text    string
	Err     error
	Class   provider.Class
	Latency time.Duration
}

// ErrorInfo describes the failure that ended (or last preceded) an outcome.
// Class is that failure's class, except when no provider was called (no
// candidates, template error): Model is then empty and Class is ClassFatal.
// Branch on Outcome.Kind to tell exhaustion from a fatal stop.
type ErrorInfo struct {
	Message string
	Class   provider.Class
	Model   string
	Err     error
}

// Outcome is the terminal result of Orchestrate. On success Model is the
// model that answered and Code the extracted payload; otherwise Model is
// the last model tried (empty if none) and Cause the deciding failure.
type Outcome struct {
	Kind     OutcomeKind
	Model    string
	Code     string
	Cause    ErrorInfo
	Attempts int
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess }

// Err returns nil on success and an *OutcomeError otherwise.
func (o Outcome) Err() error {
	if o.Kind == OutcomeSuccess {
		return nil
	}
	return &OutcomeError{Kind: o.Kind, Model: o.Model, Cause: o.Cause, Attempts: o.Attempts}
}

// OutcomeError is the error form of a failed Outcome. It matches ErrExhausted
// or ErrFatal, and the underlying provider error, under errors.Is.
type OutcomeError struct {
	Kind     OutcomeKind
	Model    string
	Cause    ErrorInfo
	Attempts int
}

func (e *OutcomeError) Error() string {
	if e.Kind == OutcomeExhausted {
		if e.Attempts == 0 {
			return e.Cause.Message
		}
		return fmt.Sprintf("%s (last: %s: %s)", ErrExhausted, e.Cause.Model, e.Cause.Message)
	}
	return e.Cause.Message
}

func (e *OutcomeError) Unwrap() []error {
	sentinel := ErrFatal
	if e.Kind == OutcomeExhausted {
		sentinel = ErrExhausted
	}
	if e.Cause.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Cause.Err}
}
