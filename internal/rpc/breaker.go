package rpc

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned without attempting the call while the
	// breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTimeout is returned when a call exceeds the breaker's call timeout.
	// It counts as a failure.
	ErrTimeout = errors.New("call timed out")
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

type BreakerOptions struct {
	FailureThreshold int
	SuccessThreshold int
	CallTimeout      time.Duration
	ResetTimeout     time.Duration
}

// Breaker guards calls to one downstream service. Consecutive failures in
// the closed state trip it open; once ResetTimeout has elapsed a single
// probe call is let through (half-open), and SuccessThreshold consecutive
// successes close it again. Any half-open failure reopens it immediately.
type Breaker struct {
	opts BreakerOptions

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time

	now func() time.Time
}

func NewBreaker(opts BreakerOptions) *Breaker {
	return &Breaker{
		opts: opts,
		now:  time.Now,
	}
}

// Execute runs op under the breaker, racing it against CallTimeout. The
// returned error is ErrCircuitOpen if no call was attempted, ErrTimeout if
// the call ran out of time, or op's own error.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.opts.CallTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(callCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = ErrTimeout
		} else {
			err = callCtx.Err()
		}
	}

	if err != nil {
		b.onFailure()
		return err
	}

	b.onSuccess()
	return nil
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// allow decides whether the next call may proceed, moving the breaker to
// half-open when the reset timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.lastFailure) < b.opts.ResetTimeout {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
	}

	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0

	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.opts.SuccessThreshold {
			b.state = StateClosed
			b.successes = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.successes = 0
		return
	}

	if b.failures >= b.opts.FailureThreshold {
		b.state = StateOpen
	}
}
