package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker(cfg)
	cb.now = clock.Now
	return cb, clock
}

func fail(context.Context) error    { return errTest }
func succeed(context.Context) error { return nil }

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "test"})
	if cb.cfg.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", cb.cfg.MaxFailures)
	}
	if cb.cfg.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", cb.cfg.ResetTimeout)
	}
	if cb.cfg.HalfOpenProbes != 1 {
		t.Errorf("HalfOpenProbes = %d, want 1", cb.cfg.HalfOpenProbes)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ReturnsCallErrorUnchanged(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "test", MaxFailures: 3})
	err := cb.Execute(context.Background(), fail)
	if err != errTest {
		t.Fatalf("Execute error = %v, want errTest unchanged", err)
	}
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "test", MaxFailures: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	for range 3 {
		_ = cb.Execute(ctx, fail)
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("fn must not run while open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "test", MaxFailures: 3})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)

	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	cb, clock := newTestBreaker(Config{Name: "test", MaxFailures: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(time.Minute)

	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(Config{Name: "test", MaxFailures: 1, ResetTimeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(time.Minute)
	_ = cb.Execute(ctx, fail)

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "test", MaxFailures: 1})
	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var got []State
	cb, clock := newTestBreaker(Config{
		Name:         "atlas",
		MaxFailures:  1,
		ResetTimeout: time.Second,
		OnStateChange: func(name string, _, to State) {
			if name != "atlas" {
				t.Errorf("name = %q, want atlas", name)
			}
			got = append(got, to)
		},
	})
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(time.Second)
	_ = cb.Execute(ctx, succeed)

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(Config{Name: "test", MaxFailures: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(context.Background(), fail)
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed", cb.State())
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
