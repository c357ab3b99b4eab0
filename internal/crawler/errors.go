package crawler

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Sentinel errors shared by the orchestration layer.
var (
	ErrRejected           = errors.New("job rejected")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrFault              = errors.New("job faulted")
	ErrNotFound           = errors.New("not found")
)

// Admission rejection reasons.
const (
	ReasonBusy       = "busy"
	ReasonNoTargets  = "no targets"
	ReasonNoAccounts = "no valid accounts"
)

// AdmissionError is returned when a job is rejected before any batch runs.
type AdmissionError struct {
	Reason        string
	ActiveJobID   string
	ActiveAccount string
}

func (e *AdmissionError) Error() string {
	switch e.Reason {
	case ReasonBusy:
		return fmt.Sprintf("a job is already running (job id: %s, account: %s), try again later",
			e.ActiveJobID, e.ActiveAccount)
	case ReasonNoTargets:
		return "creatorIds must not be empty"
	case ReasonNoAccounts:
		return "no logged-in account available"
	default:
		return "job rejected: " + e.Reason
	}
}

// Is reports AdmissionError as ErrRejected.
func (e *AdmissionError) Is(target error) bool {
	return target == ErrRejected
}

// FaultError wraps an unexpected error that aborted a running job.
type FaultError struct {
	Stage string
	Err   error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("job faulted during %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FaultError) Unwrap() error {
	return e.Err
}

// Is reports FaultError as ErrFault.
func (e *FaultError) Is(target error) bool {
	return target == ErrFault
}

// TargetErrors maps each failed target of a batch to its error. A Crawler
// returns it alongside the notes of the targets that succeeded.
type TargetErrors map[string]error

func (e TargetErrors) Error() string {
	keys := slices.Sorted(maps.Keys(e))
	parts := make([]string, 0, len(keys))
	for _, target := range keys {
		parts = append(parts, fmt.Sprintf("creator %s: %v", target, e[target]))
	}
	return strings.Join(parts, "\n")
}

// Unwrap exposes every target error to errors.Is and errors.As.
func (e TargetErrors) Unwrap() []error {
	out := make([]error, 0, len(e))
	for _, target := range slices.Sorted(maps.Keys(e)) {
		out = append(out, e[target])
	}
	return out
}
