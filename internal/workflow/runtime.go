package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/docsuite/docflow/internal/model"
)

const (
	defaultRunTimeout   = 600 * time.Second
	defaultStreamBuffer = 256
	defaultInboxBuffer  = 1024

	// streamFlushGrace bounds how long a finished run waits for a slow
	// observer before dropping the remaining progress events.
	streamFlushGrace = time.Second
)

// Handler processes one event of a step's registered kind. It may emit
// follow-up events through rc.Send and progress through rc.Publish. A
// returned error is downgraded to an error-level status event unless it is
// fatal (barrier miscount), which aborts the run.
type Handler func(ctx context.Context, rc *RunContext, ev Event) error

type step struct {
	name    string
	kind    Kind
	workers int
	fn      Handler
}

// Runtime dispatches typed events to registered step handlers, each with
// its own bounded worker pool, and owns the per-run lifecycle: stream,
// timeout, and terminal result.
type Runtime struct {
	steps     map[Kind]*step
	timeout   time.Duration
	streamBuf int
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithTimeout overrides the default 600s wall-clock run timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithStreamBuffer overrides the observer stream channel capacity.
func WithStreamBuffer(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.streamBuf = n
		}
	}
}

// NewRuntime creates an empty runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		steps:     make(map[Kind]*step),
		timeout:   defaultRunTimeout,
		streamBuf: defaultStreamBuffer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds a handler to an event kind with the given worker pool
// size. Exactly one handler may consume each kind.
func (r *Runtime) Register(name string, kind Kind, workers int, fn Handler) error {
	if name == "" || fn == nil {
		return eris.New("workflow: step needs a name and a handler")
	}
	if workers < 1 {
		return eris.Errorf("workflow: step %s needs at least one worker", name)
	}
	if kind == KindStop || kind == KindStatus {
		return eris.Errorf("workflow: kind %s is reserved", kind)
	}
	if existing, ok := r.steps[kind]; ok {
		return eris.Errorf("workflow: kind %s already consumed by step %s", kind, existing.name)
	}
	r.steps[kind] = &step{name: name, kind: kind, workers: workers, fn: fn}
	return nil
}

// RunHandle is the caller's view of one in-flight run: a single-pass
// stream of progress events plus the awaited terminal result.
type RunHandle struct {
	runID  string
	stream chan Event
	done   chan struct{}

	mu      sync.Mutex
	results []model.ProcessingResult
	err     error
}

// RunID returns the run's unique id.
func (h *RunHandle) RunID() string { return h.runID }

// Stream returns the run's progress events: Status and ProcessingComplete
// events in emission order, ending with the terminal Stop. The channel is
// closed once the run ends and the queue drains; it cannot be restarted.
func (h *RunHandle) Stream() <-chan Event { return h.stream }

// Wait blocks until the run reaches its terminal event and returns the
// final result sequence. Result order is completion order, not submission
// order.
func (h *RunHandle) Wait(ctx context.Context) ([]model.ProcessingResult, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "workflow: wait")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.results, h.err
}

func (h *RunHandle) finish(results []model.ProcessingResult, err error) {
	h.mu.Lock()
	h.results = results
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Submit starts a new run from the given start event. It returns
// immediately; progress is observed through the handle.
func (r *Runtime) Submit(ctx context.Context, start Event) (*RunHandle, error) {
	if _, ok := r.steps[start.Kind()]; !ok {
		return nil, eris.Errorf("workflow: no step registered for start event %s", start.Kind())
	}

	h := &RunHandle{
		runID:  uuid.New().String(),
		stream: make(chan Event, r.streamBuf),
		done:   make(chan struct{}),
	}

	ru := &run{
		rt:     r,
		handle: h,
		inbox:  make(chan Event, defaultInboxBuffer),
		fatalc: make(chan error, 1),
		queues: make(map[Kind]*eventQueue, len(r.steps)),
		queue:  newEventQueue(),
	}
	ru.rc = &RunContext{
		runID:      h.runID,
		collectors: make(map[string]*Collector),
		send:       ru.enqueue,
		publish:    ru.queue.push,
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	for kind, st := range r.steps {
		q := newEventQueue()
		ru.queues[kind] = q
		for i := 0; i < st.workers; i++ {
			go ru.worker(runCtx, st, q)
		}
	}
	go ru.pump()
	go ru.loop(runCtx, cancel, start)

	return h, nil
}

// run is the mutable state of one workflow invocation.
type run struct {
	rt     *Runtime
	rc     *RunContext
	handle *RunHandle
	inbox  chan Event
	fatalc chan error
	queue  *eventQueue
	queues map[Kind]*eventQueue
}

// enqueue routes an emitted event into the dispatcher. Events emitted
// after the run ended are dropped.
func (ru *run) enqueue(ev Event) {
	select {
	case ru.inbox <- ev:
	case <-ru.handle.done:
	}
}

// loop is the run's central dispatcher: it drains the inbox, routes events
// onto step queues, and owns termination (Stop, fatal error, timeout).
func (ru *run) loop(ctx context.Context, cancel context.CancelFunc, start Event) {
	defer cancel()

	log := zap.L().With(zap.String("run_id", ru.handle.runID))
	log.Info("workflow: run starting", zap.String("start_event", string(start.Kind())))
	ru.dispatch(start)

	for {
		select {
		case ev := <-ru.inbox:
			if stop, ok := ev.(StopEvent); ok {
				log.Info("workflow: run complete", zap.Int("results", len(stop.Results)))
				ru.queue.push(stop)
				ru.handle.finish(stop.Results, nil)
				return
			}
			ru.dispatch(ev)

		case err := <-ru.fatalc:
			log.Error("workflow: run aborted", zap.Error(err))
			ru.queue.push(errStatus("", fmt.Sprintf("run aborted: %s", err)))
			ru.handle.finish(nil, fmt.Errorf("%w: %w", ErrRunFailed, err))
			return

		case <-ctx.Done():
			if eris.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Error("workflow: run timed out", zap.Duration("timeout", ru.rt.timeout))
				ru.queue.push(errStatus("", "run timed out"))
				ru.handle.finish(nil, ErrRunTimeout)
			} else {
				log.Warn("workflow: run cancelled")
				ru.handle.finish(nil, eris.Wrap(ctx.Err(), "workflow: run cancelled"))
			}
			return
		}
	}
}

// dispatch appends an event to its step's queue. Each step owns one FIFO
// queue drained by its pool of workers, so events of a kind are handled in
// arrival order and a slow collaborator call never holds the dispatcher
// itself.
func (ru *run) dispatch(ev Event) {
	q, ok := ru.queues[ev.Kind()]
	if !ok {
		zap.L().Warn("workflow: dropping event with no consumer",
			zap.String("run_id", ru.handle.runID),
			zap.String("event", string(ev.Kind())),
		)
		return
	}
	q.push(ev)
}

// worker drains one step's queue for the life of the run. Events still
// queued when the run context ends are abandoned.
func (ru *run) worker(ctx context.Context, st *step, q *eventQueue) {
	for {
		ev, ok := q.pop()
		if !ok {
			select {
			case <-q.signal:
				continue
			case <-ctx.Done():
				return
			}
		}
		ru.invoke(ctx, st, ev)
	}
}

// invoke runs one handler and applies the failure policy: panics and
// ordinary errors become error-level status events and the run continues;
// fatal errors (barrier miscounts) abort the run.
func (ru *run) invoke(ctx context.Context, st *step, ev Event) {
	log := zap.L().With(
		zap.String("run_id", ru.handle.runID),
		zap.String("step", st.name),
		zap.String("event", string(ev.Kind())),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("workflow: step panicked", zap.Any("panic", r))
			ru.rc.Publish(errStatus("", fmt.Sprintf("step %s panicked: %v", st.name, r)))
		}
	}()

	if err := st.fn(ctx, ru.rc, ev); err != nil {
		if isFatal(err) {
			select {
			case ru.fatalc <- err:
			default:
			}
			return
		}
		log.Error("workflow: step failed", zap.Error(err))
		ru.rc.Publish(errStatus("", fmt.Sprintf("step %s failed: %s", st.name, err)))
	}
}

// pump forwards queued progress events to the handle's stream channel.
// After the run ends it grants a short grace period for slow observers,
// then closes the stream.
func (ru *run) pump() {
	out, done := ru.handle.stream, ru.handle.done
	for {
		ev, ok := ru.queue.pop()
		if !ok {
			select {
			case <-ru.queue.signal:
				continue
			case <-done:
				ru.flush()
				return
			}
		}
		select {
		case out <- ev:
		case <-done:
			// Deliver this one during flush along with the rest.
			ru.queue.requeue(ev)
			ru.flush()
			return
		}
	}
}

func (ru *run) flush() {
	grace := time.NewTimer(streamFlushGrace)
	defer grace.Stop()
	for {
		ev, ok := ru.queue.pop()
		if !ok {
			close(ru.handle.stream)
			return
		}
		select {
		case ru.handle.stream <- ev:
		case <-grace.C:
			close(ru.handle.stream)
			return
		}
	}
}

// eventQueue is an unbounded FIFO with a wake signal. Each step's worker
// pool drains one, and the stream pump drains another, so a stalled
// observer or a slow handler can never block the dispatcher.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// Re-arm so a sibling consumer wakes for the remainder. Pushes
		// coalesce on the buffered signal, one wake per pop keeps a
		// multi-worker pool from sleeping on a non-empty queue.
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	return ev, true
}

func (q *eventQueue) requeue(ev Event) {
	q.mu.Lock()
	q.items = append([]Event{ev}, q.items...)
	q.mu.Unlock()
}
