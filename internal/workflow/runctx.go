package workflow

import (
	"sync"
)

// RunContext is the per-run shared state handed to every step invocation:
// the expected-count cell both barriers evaluate against, the barrier
// collectors themselves, and the two outbound paths (Send for downstream
// events, Publish for observers). It lives exactly as long as one run.
type RunContext struct {
	runID string

	mu         sync.Mutex
	expected   int
	collectors map[string]*Collector

	send    func(Event)
	publish func(Event)
}

// RunID returns the unique id of this workflow invocation.
func (rc *RunContext) RunID() string { return rc.runID }

// SetExpected publishes a new expected fan-in count. Callers that extend
// the count mid-run must do so before emitting the events the new total
// accounts for, otherwise a barrier may release early.
func (rc *RunContext) SetExpected(n int) {
	rc.mu.Lock()
	rc.expected = n
	rc.mu.Unlock()
}

// Expected returns the current expected fan-in count.
func (rc *RunContext) Expected() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.expected
}

// Collector returns the barrier accumulator owned by the named step,
// creating it on first use.
func (rc *RunContext) Collector(step string) *Collector {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	c, ok := rc.collectors[step]
	if !ok {
		c = &Collector{}
		rc.collectors[step] = c
	}
	return c
}

// Send routes an event to its consuming step. Safe to call after the run
// ended; the event is dropped.
func (rc *RunContext) Send(ev Event) {
	rc.send(ev)
}

// Publish delivers a progress event to the observer stream. Publishing
// never blocks the step: events queue internally and a pump goroutine
// forwards them to the handle's stream channel.
func (rc *RunContext) Publish(ev Event) {
	rc.publish(ev)
}
