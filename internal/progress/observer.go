package progress

import (
	"sync"
	"time"
)

// DefaultInactivityTimeout marks an observer timed out when no event has
// arrived for this long and the job is not yet terminal. Advisory only:
// the pipeline keeps running server-side.
const DefaultInactivityTimeout = 30 * time.Second

// State is the observer's view of one job.
type State struct {
	Percent    int
	Stage      string
	IsError    bool
	IsComplete bool
	IsTimedOut bool
}

// Observer consumes a job's event stream and maintains a monotonic view:
// percent never regresses even if events arrive duplicated or out of
// order. Close releases the subscription and the inactivity timer on
// every exit path.
type Observer struct {
	mu      sync.Mutex
	state   State
	timer   *time.Timer
	timeout time.Duration
	release func()
	done    chan struct{}
	closed  bool
}

// NewObserver starts observing events. release is the subscription's
// cleanup func and is guaranteed to run exactly once, on Close or on
// stream end.
func NewObserver(events <-chan Event, release func(), timeout time.Duration) *Observer {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	o := &Observer{
		state:   State{Percent: 0, Stage: StagePending},
		timeout: timeout,
		release: release,
		done:    make(chan struct{}),
	}
	o.timer = time.AfterFunc(timeout, o.markTimedOut)

	go o.consume(events)
	return o
}

// State returns a snapshot of the current view.
func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Done is closed when the stream has ended or the observer was closed.
func (o *Observer) Done() <-chan struct{} {
	return o.done
}

// Close tears the observer down: unsubscribes and cancels the timer.
// Safe to call multiple times and concurrently with event delivery.
func (o *Observer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.timer.Stop()
	release := o.release
	o.release = nil
	o.mu.Unlock()

	if release != nil {
		release()
	}
}

func (o *Observer) consume(events <-chan Event) {
	defer close(o.done)
	defer o.Close()

	for ev := range events {
		o.apply(ev)
		if ev.Terminal() {
			return
		}
	}
}

func (o *Observer) apply(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ev.Percent > o.state.Percent {
		o.state.Percent = ev.Percent
	}
	o.state.Stage = ev.Stage

	switch ev.Stage {
	case StageError:
		o.state.IsError = true
	case StageComplete:
		o.state.IsComplete = true
	}

	if o.state.IsError || o.state.IsComplete {
		o.timer.Stop()
		return
	}

	// Any event resets the inactivity window.
	o.state.IsTimedOut = false
	o.timer.Reset(o.timeout)
}

func (o *Observer) markTimedOut() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.IsError || o.state.IsComplete || o.closed {
		return
	}
	o.state.IsTimedOut = true
}
