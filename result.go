package tracetree

import (
	"errors"
	"fmt"
)

// Phase identifies the pipeline stage an error or warning originated from.
type Phase string

const (
	PhaseIndex         Phase = "index"
	PhaseCorrelate     Phase = "correlate"
	PhaseTreeBuild     Phase = "tree_build"
	PhaseDepthCompute  Phase = "depth_compute"
	PhaseStats         Phase = "stats"
	PhaseArtifactWrite Phase = "artifact_write"
	PhaseLogPolicy     Phase = "log_policy"
)

// ErrCycle is returned when a transcript's parent chain revisits a node.
// Cycles never occur in valid input and indicate a producer bug.
var ErrCycle = errors.New("cycle in parent chain")

// ErrDuplicateID is returned when one source log contains the same id twice.
var ErrDuplicateID = errors.New("duplicate id")

// Error is a phase-tagged pipeline error with structured context.
type Error struct {
	Phase   Phase          `json:"phase"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	Err     error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Phase, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Phase, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a phase-tagged error. Context key-value pairs are given
// alternating, in the logger style.
func NewError(phase Phase, message string, err error, keysAndValues ...any) *Error {
	return &Error{
		Phase:   phase,
		Message: message,
		Err:     err,
		Context: kvMap(keysAndValues),
	}
}

// WarningKind classifies non-fatal diagnostics.
type WarningKind string

const (
	WarningIndexing    WarningKind = "indexing"
	WarningCorrelation WarningKind = "correlation"
	WarningOrphan      WarningKind = "orphan"
	WarningLogPolicy   WarningKind = "log_policy"
)

// Warning is a non-fatal diagnostic. Warnings are always carried into the
// persisted artifact and never suppressed.
type Warning struct {
	Phase   Phase          `json:"phase"`
	Kind    WarningKind    `json:"kind"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s/%s: %s", w.Phase, w.Kind, w.Message)
}

func newWarning(phase Phase, kind WarningKind, message string, keysAndValues ...any) Warning {
	return Warning{
		Phase:   phase,
		Kind:    kind,
		Message: message,
		Context: kvMap(keysAndValues),
	}
}

func kvMap(keysAndValues []any) map[string]any {
	if len(keysAndValues) == 0 {
		return nil
	}
	m := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		m[key] = keysAndValues[i+1]
	}
	return m
}

// Result carries a phase's outcome: a value plus accumulated warnings on
// success, or a phase-tagged error plus the best-available partial value on
// failure. Phases never panic or throw; callers can always persist whatever
// was computed.
type Result[T any] struct {
	Value    T
	Warnings []Warning
	Err      *Error
}

// Success wraps a value and its accumulated warnings.
func Success[T any](value T, warnings []Warning) Result[T] {
	return Result[T]{Value: value, Warnings: warnings}
}

// Failure wraps a phase error together with whatever partial value was
// computed before the failure.
func Failure[T any](err *Error, partial T, warnings []Warning) Result[T] {
	return Result[T]{Value: partial, Warnings: warnings, Err: err}
}

// Failed reports whether the phase ended in error.
func (r Result[T]) Failed() bool {
	return r.Err != nil
}
