package workflow

import (
	"sync"

	"github.com/rotisserie/eris"
)

// Collector is the fan-in barrier shared by the two join steps: it
// accumulates events until the expected count is reached, then releases the
// whole batch exactly once. Each barrier step owns an independent instance
// per run.
//
// The expected count is re-read on every arrival because a barrier further
// up the pipeline may extend it mid-run; arrivals after release, or beyond
// the expected count, indicate a miscounted fan-out and fail the run.
type Collector struct {
	mu       sync.Mutex
	events   []Event
	released bool
}

// Collect adds ev to the accumulator. When the count reported by expected
// matches the accumulated size, the full batch is returned once; every
// other call returns nil. The size check and the release transition happen
// under one lock so concurrent arrivals from a worker pool cannot double
// release.
func (c *Collector) Collect(ev Event, expected func() int) ([]Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return nil, eris.Wrapf(ErrBarrierMiscount, "event %s arrived after release", ev.Kind())
	}

	c.events = append(c.events, ev)

	want := expected()
	switch {
	case want <= 0:
		return nil, eris.Wrapf(ErrBarrierMiscount, "expected count %d with %d events collected", want, len(c.events))
	case len(c.events) > want:
		return nil, eris.Wrapf(ErrBarrierMiscount, "collected %d events, expected %d", len(c.events), want)
	case len(c.events) == want:
		c.released = true
		return c.events, nil
	default:
		return nil, nil
	}
}

// Released reports whether the barrier has fired.
func (c *Collector) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Size returns the number of events accumulated so far.
func (c *Collector) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
