package analytics

import (
	"errors"
	"fmt"
)

// Package analytics holds the error taxonomy shared by the statistical
// engine packages (profile, anomaly, cluster, explore, forecast).
//
// Three terminal outcomes exist besides success:
//   - InputError: the request could not be served at all (no usable numeric
//     columns, empty dataset, invalid cluster count). Reported verbatim,
//     before any partial work.
//   - ErrCancelled: the caller cancelled the run between stages. Never
//     accompanied by a partial result.
//   - everything else: unexpected conditions, normalized into InputError at
//     the engine boundary so hosts present one consistent failure message.
//
// Degenerate distributions (zero standard deviation or IQR) are NOT errors;
// the profiler silently substitutes 1 to keep downstream arithmetic defined.

// InputError marks a request the engine rejected before doing any work.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return e.Reason }

// NewInputError builds an InputError with a formatted reason.
func NewInputError(format string, args ...interface{}) *InputError {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}

// IsInputError reports whether err is (or wraps) an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// ErrCancelled is returned when a run observes caller cancellation at a
// stage boundary. It is distinct from both success and failure: no partial
// anomaly or cluster results accompany it.
var ErrCancelled = errors.New("analysis cancelled")
