package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a step failure. Classification happens at the
// executor boundary; everything above it only sees the kind.
type ErrorKind string

const (
	// KindConfig covers malformed steps and unresolved placeholders.
	// Fatal: the step is aborted before any action and never retried.
	KindConfig ErrorKind = "config_error"
	// KindElementNotFound means all three resolver tiers missed.
	KindElementNotFound ErrorKind = "element_not_found"
	// KindInteraction means the target was found but the primitive
	// action failed (stale reference, obstruction, interrupted
	// navigation).
	KindInteraction ErrorKind = "interaction_error"
	// KindTimeout means a wait, new-tab, or download wait exceeded its
	// allotment.
	KindTimeout ErrorKind = "timeout_error"
)

// Retryable reports whether failures of this kind consume retry budget.
func (k ErrorKind) Retryable() bool {
	return k == KindElementNotFound || k == KindInteraction || k == KindTimeout
}

// StepError is a classified step failure.
type StepError struct {
	Kind ErrorKind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func configErr(format string, args ...any) error {
	return &StepError{Kind: KindConfig, Err: fmt.Errorf(format, args...)}
}

func notFoundErr(format string, args ...any) error {
	return &StepError{Kind: KindElementNotFound, Err: fmt.Errorf(format, args...)}
}

func interactionErr(err error) error {
	return &StepError{Kind: KindInteraction, Err: err}
}

func timeoutErr(err error) error {
	return &StepError{Kind: KindTimeout, Err: err}
}

// classify wraps a raw driver error. Deadline expiry becomes a timeout;
// anything else on an already-found target is an interaction failure.
func classify(err error) error {
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutErr(err)
	}
	return interactionErr(err)
}

// KindOf extracts the classification, or "" for unclassified errors.
func KindOf(err error) ErrorKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// PhaseFailure propagates to the workflow engine when a non-optional
// step exhausts its retries. The engine transitions to FAILED and skips
// all remaining phases.
type PhaseFailure struct {
	Phase string
	Step  string
	Err   error
}

func (e *PhaseFailure) Error() string {
	return fmt.Sprintf("phase %s failed at step %q: %v", e.Phase, e.Step, e.Err)
}

func (e *PhaseFailure) Unwrap() error {
	return e.Err
}
