package pipeline

import (
	"errors"
	"fmt"
)

// FailureKind is the value written to the error field of ERROR records.
type FailureKind string

const (
	KindValidation        FailureKind = "validation"
	KindTimeout           FailureKind = "timeout"
	KindMalformed         FailureKind = "malformed"
	KindInconsistency     FailureKind = "inconsistency"
	KindConnectionFailure FailureKind = "connection-failure"
	KindNotFound          FailureKind = "not-found"
)

func (k FailureKind) String() string {
	return string(k)
}

// Failure describes where and why a chain stopped.
type Failure struct {
	Stage  Stage       `json:"stage"`
	Kind   FailureKind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

// ValidationError rejects a request before any work is done.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StageError is a fault raised by the stage handling the request.
type StageError struct {
	Stage  Stage
	Kind   FailureKind
	Detail string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Stage, e.Kind, e.Detail)
}

func (e *StageError) Failure() Failure {
	return Failure{Stage: e.Stage, Kind: e.Kind, Detail: e.Detail}
}

// HopError is a failed call from one stage to the next. Status is the HTTP
// status returned by the callee, or zero when the callee never answered.
type HopError struct {
	Stage  Stage
	Kind   FailureKind
	Status int
	Detail string
	Err    error
}

func (e *HopError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("call %s: %s: %s", e.Stage, e.Kind, e.Detail)
	}
	return fmt.Sprintf("call %s: %s (status %d): %s", e.Stage, e.Kind, e.Status, e.Detail)
}

func (e *HopError) Unwrap() error {
	return e.Err
}

// Transport reports whether the callee never answered. In that case the
// callee wrote no record and the caller is the only witness.
func (e *HopError) Transport() bool {
	return e.Status == 0
}

func (e *HopError) Failure() Failure {
	return Failure{Stage: e.Stage, Kind: e.Kind, Detail: e.Detail}
}

// AsHopError returns err as a HopError against stage. Errors of any other
// type are treated as the callee being unreachable.
func AsHopError(stage Stage, err error) *HopError {
	if err == nil {
		return nil
	}
	var hopErr *HopError
	if errors.As(err, &hopErr) {
		return hopErr
	}
	return &HopError{Stage: stage, Kind: KindConnectionFailure, Detail: err.Error(), Err: err}
}

// FailureOf converts a hop error into the failure reported up the chain.
func FailureOf(stage Stage, err error) Failure {
	return AsHopError(stage, err).Failure()
}
