// Package engine is the boundary to the external move-evaluation engine.
// The engine takes an encoded request string and an operation kind and
// returns an opaque result string.
package engine

import (
	"fmt"
	"time"

	"github.com/freeeve/stackrabbit/api/internal/metrics"
)

// Kind selects the engine operation.
type Kind int

const (
	KindTopMovesHybrid Kind = iota
	KindRateMove
)

// String returns the wire name of the operation, also used as the route name.
func (k Kind) String() string {
	switch k {
	case KindTopMovesHybrid:
		return "top-moves-hybrid"
	case KindRateMove:
		return "rate-move"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Engine evaluates an encoded request. Implementations must be safe for
// concurrent use; one call runs per pool worker.
type Engine interface {
	Evaluate(kind Kind, input string) (string, error)
}

// Failure is an error reported by the engine itself.
type Failure struct {
	Kind   Kind
	Stderr string
	Err    error
}

func (f *Failure) Error() string {
	if f.Stderr != "" {
		return fmt.Sprintf("engine %s: %v: %s", f.Kind, f.Err, f.Stderr)
	}
	return fmt.Sprintf("engine %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

type instrumented struct {
	next    Engine
	metrics *metrics.Metrics
}

// Instrument records call counts and latency for every evaluation.
func Instrument(e Engine, m *metrics.Metrics) Engine {
	if m == nil {
		return e
	}
	return &instrumented{next: e, metrics: m}
}

func (i *instrumented) Evaluate(kind Kind, input string) (string, error) {
	start := time.Now()
	out, err := i.next.Evaluate(kind, input)
	status := "ok"
	if err != nil {
		status = "error"
	}
	i.metrics.ObserveEngine(kind.String(), status, time.Since(start))
	return out, err
}
