// Package retry runs an operation under a bounded, fixed-backoff retry policy.
//
// Each call walks an explicit state machine:
//
//	Attempting -> Succeeded
//	Attempting -> BackingOff -> Attempting ... -> Exhausted
//
// Backoff waits on a timer inside a select with the caller's context, so a
// waiting retry never holds up other goroutines and stops promptly on cancel.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// State is a step in the retry state machine.
type State int

// Retry states.
const (
	Attempting State = iota
	BackingOff
	Succeeded
	Exhausted
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case BackingOff:
		return "backing_off"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Policy bounds the number of attempts and the wait between them.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Transition describes one state change. Err is the failure that caused a
// move to BackingOff or Exhausted.
type Transition struct {
	State   State
	Attempt int
	Err     error
	Wait    time.Duration
}

// Observer receives every transition. It may be nil.
type Observer func(Transition)

// Op is one attempt. attempt is 1-based.
type Op func(ctx context.Context, attempt int) error

// Do runs op until it succeeds, attempts run out, or ctx is done.
// It returns nil, an error wrapping ErrExhausted and the last failure, or
// the context error.
func Do(ctx context.Context, p Policy, op Op, observe Observer) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	notify := func(tr Transition) {
		if observe != nil {
			observe(tr)
		}
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		notify(Transition{State: Attempting, Attempt: attempt})
		err := op(ctx, attempt)
		if err == nil {
			notify(Transition{State: Succeeded, Attempt: attempt})
			return nil
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt >= maxAttempts {
			notify(Transition{State: Exhausted, Attempt: attempt, Err: lastErr})
			return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, lastErr)
		}
		notify(Transition{State: BackingOff, Attempt: attempt, Err: err, Wait: p.Backoff})
		if err := Sleep(ctx, p.Backoff); err != nil {
			return err
		}
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
