// Package lifecycle tracks in-flight requests and drives graceful shutdown.
//
// A Controller starts Accepting. Shutdown moves it to Draining, where new
// requests are rejected, and then to Stopped once in-flight work reaches
// zero (a clean stop) or the drain timeout elapses (a forced stop).
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/soroban-registry/statecache/internal/stats"
)

// ErrDraining is returned by Enter once shutdown has begun.
var ErrDraining = errors.New("lifecycle: draining, not accepting requests")

// State is the controller's position in its lifecycle.
type State int32

const (
	StateAccepting State = iota
	StateDraining
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAccepting:
		return "accepting"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outcome says how draining ended.
type Outcome int

const (
	// OutcomeClean means every in-flight request finished.
	OutcomeClean Outcome = iota
	// OutcomeForced means the drain timeout elapsed or the shutdown
	// context was cancelled with requests still in flight.
	OutcomeForced
)

// String returns the outcome name.
func (o Outcome) String() string {
	if o == OutcomeClean {
		return "clean"
	}
	return "forced"
}

// ExitCode returns the process exit code for the outcome: 0 clean, 1 forced.
func (o Outcome) ExitCode() int {
	if o == OutcomeClean {
		return 0
	}
	return 1
}

// Result reports how shutdown went.
type Result struct {
	Outcome   Outcome
	Remaining int64         // requests still in flight when draining ended
	Elapsed   time.Duration // time spent draining
}

// Controller gates request admission and coordinates draining.
type Controller struct {
	drainTimeout time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
	collector    stats.Collector

	state    atomic.Int32
	inFlight atomic.Int64

	once   sync.Once
	done   chan struct{}
	result Result
}

// New creates a controller in the Accepting state.
func New(opts ...Option) *Controller {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	return &Controller{
		drainTimeout: o.drainTimeout,
		pollInterval: o.pollInterval,
		logger:       o.logger.Named("lifecycle"),
		collector:    o.collector,
		done:         make(chan struct{}),
	}
}

// Enter admits one request. The returned release must be called when the
// request finishes, on every path; calling it more than once is harmless.
// Enter fails with ErrDraining once shutdown has begun.
func (c *Controller) Enter() (release func(), err error) {
	// Count first, then check state, so Shutdown never misses a request
	// that was admitted.
	n := c.inFlight.Add(1)
	if c.State() != StateAccepting {
		c.leave()
		c.collector.IncCounter(stats.MetricRejected, 1)
		return nil, ErrDraining
	}
	c.collector.SetGauge(stats.MetricInFlight, n)

	var once sync.Once
	return func() { once.Do(c.leave) }, nil
}

func (c *Controller) leave() {
	n := c.inFlight.Add(-1)
	c.collector.SetGauge(stats.MetricInFlight, n)
}

// Track runs fn as one admitted request. The request is released when fn
// returns or panics.
func (c *Controller) Track(ctx context.Context, fn func(context.Context) error) error {
	release, err := c.Enter()
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Shutdown stops admitting requests and waits for in-flight ones to finish.
// It returns once the controller is Stopped: cleanly when in-flight reaches
// zero, forced when the drain timeout elapses or ctx is done first.
// Later calls wait for the first one and return its result.
func (c *Controller) Shutdown(ctx context.Context) Result {
	c.once.Do(func() {
		c.result = c.drain(ctx)
		close(c.done)
	})
	return c.result
}

func (c *Controller) drain(ctx context.Context) Result {
	start := time.Now()
	c.state.Store(int32(StateDraining))
	c.logger.Info("draining",
		zap.Int64("in_flight", c.inFlight.Load()),
		zap.Duration("timeout", c.drainTimeout),
	)

	deadline := time.NewTimer(c.drainTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(c.pollInterval)
	defer poll.Stop()

	outcome := OutcomeClean
wait:
	for c.inFlight.Load() > 0 {
		select {
		case <-poll.C:
		case <-deadline.C:
			outcome = OutcomeForced
			break wait
		case <-ctx.Done():
			outcome = OutcomeForced
			break wait
		}
	}

	c.state.Store(int32(StateStopped))
	res := Result{
		Outcome:   outcome,
		Remaining: c.inFlight.Load(),
		Elapsed:   time.Since(start),
	}

	if outcome == OutcomeForced {
		c.logger.Warn("forced stop",
			zap.Int64("remaining", res.Remaining),
			zap.Duration("elapsed", res.Elapsed),
		)
	} else {
		c.logger.Info("stopped cleanly", zap.Duration("elapsed", res.Elapsed))
	}
	return res
}

// Done is closed once the controller reaches Stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Accepting reports whether new requests are admitted.
func (c *Controller) Accepting() bool {
	return c.State() == StateAccepting
}

// InFlight returns the number of admitted requests not yet released.
func (c *Controller) InFlight() int64 {
	return c.inFlight.Load()
}
