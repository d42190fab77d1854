package progress

// Package progress defines the callback sink the engine uses to surface
// stage transitions to its host. The engine stays host-agnostic: the
// dashboard wires a WebSocket broadcaster here, tests wire a recorder, and
// batch callers wire nothing at all.
//
// Reporters must not block indefinitely; the engine invokes them
// synchronously between algorithm stages on the computation goroutine.

// Event is one stage-boundary notification.
type Event struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Reporter receives progress events.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Event)

// Report implements Reporter.
func (f ReporterFunc) Report(e Event) { f(e) }

type nopReporter struct{}

func (nopReporter) Report(Event) {}

// Nop returns a reporter that discards every event.
func Nop() Reporter { return nopReporter{} }

// OrNop substitutes the no-op reporter for nil so callers can pass nil
// without every call site guarding.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop()
	}
	return r
}
