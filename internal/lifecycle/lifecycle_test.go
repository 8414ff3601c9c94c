package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// The drain scenario runs at 1/10 scale: a 500ms timeout stands in for 5s.
const (
	testDrainTimeout = 500 * time.Millisecond
	testPoll         = 5 * time.Millisecond
	testSlack        = 150 * time.Millisecond
)

func newTestController() *Controller {
	return New(WithDrainTimeout(testDrainTimeout), WithPollInterval(testPoll))
}

func TestController_InitialState(t *testing.T) {
	c := New()
	if got := c.State(); got != StateAccepting {
		t.Errorf("State() = %v, want %v", got, StateAccepting)
	}
	if !c.Accepting() {
		t.Error("Accepting() = false, want true")
	}
	if got := c.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d, want 0", got)
	}
}

func TestController_EnterRelease(t *testing.T) {
	c := New()

	r1, err := c.Enter()
	if err != nil {
		t.Fatalf("Enter() error = %v", err)
	}
	r2, _ := c.Enter()
	if got := c.InFlight(); got != 2 {
		t.Errorf("InFlight() = %d, want 2", got)
	}

	r1()
	r1() // idempotent
	if got := c.InFlight(); got != 1 {
		t.Errorf("InFlight() after double release = %d, want 1", got)
	}
	r2()
	if got := c.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d, want 0", got)
	}
}

func TestController_ShutdownIdle(t *testing.T) {
	c := newTestController()

	res := c.Shutdown(context.Background())
	if res.Outcome != OutcomeClean {
		t.Errorf("Outcome = %v, want %v", res.Outcome, OutcomeClean)
	}
	if res.Elapsed > testSlack {
		t.Errorf("Elapsed = %v, want near zero", res.Elapsed)
	}
	if got := c.State(); got != StateStopped {
		t.Errorf("State() = %v, want %v", got, StateStopped)
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after Shutdown()")
	}
}

func TestController_RejectsWhileDraining(t *testing.T) {
	c := newTestController()
	release, _ := c.Enter()

	go c.Shutdown(context.Background())
	waitForState(t, c, StateDraining)

	if _, err := c.Enter(); !errors.Is(err, ErrDraining) {
		t.Errorf("Enter() while draining error = %v, want %v", err, ErrDraining)
	}
	if got := c.InFlight(); got != 1 {
		t.Errorf("InFlight() = %d, want 1; rejected request must not count", got)
	}

	release()
	<-c.Done()
	if _, err := c.Enter(); !errors.Is(err, ErrDraining) {
		t.Errorf("Enter() after stop error = %v, want %v", err, ErrDraining)
	}
}

func TestController_CleanDrain(t *testing.T) {
	c := newTestController()

	var releases []func()
	for i := 0; i < 3; i++ {
		r, err := c.Enter()
		if err != nil {
			t.Fatalf("Enter() error = %v", err)
		}
		releases = append(releases, r)
	}

	// All three finish within 2/5 of the timeout.
	for i, r := range releases {
		go func(d time.Duration, release func()) {
			time.Sleep(d)
			release()
		}(time.Duration(i+1)*(testDrainTimeout*2/5)/3, r)
	}

	res := c.Shutdown(context.Background())
	if res.Outcome != OutcomeClean {
		t.Errorf("Outcome = %v, want %v", res.Outcome, OutcomeClean)
	}
	if res.Outcome.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0", res.Outcome.ExitCode())
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
	if res.Elapsed >= testDrainTimeout {
		t.Errorf("Elapsed = %v, want < %v", res.Elapsed, testDrainTimeout)
	}
}

func TestController_ForcedDrain(t *testing.T) {
	c := newTestController()

	for i := 0; i < 2; i++ {
		r, _ := c.Enter()
		go func() {
			time.Sleep(testDrainTimeout / 5)
			r()
		}()
	}
	hung, _ := c.Enter()
	defer hung()

	res := c.Shutdown(context.Background())
	if res.Outcome != OutcomeForced {
		t.Errorf("Outcome = %v, want %v", res.Outcome, OutcomeForced)
	}
	if res.Outcome.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", res.Outcome.ExitCode())
	}
	if res.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", res.Remaining)
	}
	if res.Elapsed < testDrainTimeout || res.Elapsed > testDrainTimeout+testSlack {
		t.Errorf("Elapsed = %v, want at the %v deadline", res.Elapsed, testDrainTimeout)
	}
}

func TestController_ContextCancelForcesStop(t *testing.T) {
	c := New(WithDrainTimeout(time.Hour), WithPollInterval(testPoll))
	release, _ := c.Enter()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := c.Shutdown(ctx)
	if res.Outcome != OutcomeForced {
		t.Errorf("Outcome = %v, want %v", res.Outcome, OutcomeForced)
	}
	if res.Elapsed > time.Second {
		t.Errorf("Elapsed = %v, want prompt stop after cancel", res.Elapsed)
	}
}

func TestController_RepeatedShutdown(t *testing.T) {
	c := newTestController()
	release, _ := c.Enter()
	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Shutdown(context.Background())
		}(i)
	}
	wg.Wait()

	for i, r := range results[1:] {
		if r != results[0] {
			t.Errorf("Shutdown() call %d = %+v, want %+v", i+1, r, results[0])
		}
	}
}

func TestController_Track(t *testing.T) {
	c := newTestController()

	wantErr := errors.New("boom")
	err := c.Track(context.Background(), func(context.Context) error {
		if got := c.InFlight(); got != 1 {
			t.Errorf("InFlight() inside Track = %d, want 1", got)
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Track() error = %v, want %v", err, wantErr)
	}
	if got := c.InFlight(); got != 0 {
		t.Errorf("InFlight() after error = %d, want 0", got)
	}

	func() {
		defer func() { _ = recover() }()
		_ = c.Track(context.Background(), func(context.Context) error {
			panic("handler panic")
		})
	}()
	if got := c.InFlight(); got != 0 {
		t.Errorf("InFlight() after panic = %d, want 0", got)
	}

	c.Shutdown(context.Background())
	called := false
	err = c.Track(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrDraining) || called {
		t.Errorf("Track() after shutdown = %v, called=%v; want %v, not called", err, called, ErrDraining)
	}
}

func TestController_ConcurrentEnterDuringShutdown(t *testing.T) {
	c := newTestController()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := c.Enter()
			if err != nil {
				return
			}
			time.Sleep(time.Millisecond)
			release()
		}()
	}

	res := c.Shutdown(context.Background())
	wg.Wait()

	if res.Outcome != OutcomeClean {
		t.Errorf("Outcome = %v, want %v", res.Outcome, OutcomeClean)
	}
	if got := c.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d, want 0", got)
	}
}

func TestOutcomeAndState_String(t *testing.T) {
	if OutcomeClean.String() != "clean" || OutcomeForced.String() != "forced" {
		t.Errorf("Outcome strings = %q/%q", OutcomeClean, OutcomeForced)
	}
	if StateDraining.String() != "draining" || State(9).String() != "unknown" {
		t.Errorf("State strings = %q/%q", StateDraining, State(9))
	}
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("State() = %v, want %v", c.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}
