package system

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/syncbench/tdk/pkg/lib/validate"
	"github.com/syncbench/tdk/pkg/tdkerrors"
)

const (
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 30 * time.Second
)

// PollSpec controls how often and for how long a StateWaiter polls.
type PollSpec struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultPollSpec polls once a second for up to thirty seconds.
func DefaultPollSpec() PollSpec {
	return PollSpec{Interval: DefaultPollInterval, Timeout: DefaultPollTimeout}
}

// Validate requires a positive interval and a timeout of at least one interval.
func (s PollSpec) Validate() error {
	return errors.Join(
		validate.IsGreaterThanZero(s.Interval, "poll interval must be positive, got %s", s.Interval),
		validate.IsGreaterOrEqual(s.Timeout, s.Interval,
			"poll timeout %s must be at least the interval %s", s.Timeout, s.Interval),
	)
}

// StateWaiter repeatedly fetches a remote state until Predicate holds or the
// timeout elapses. The first fetch happens immediately. Errors returned by
// Fetch end the wait and are returned unchanged.
type StateWaiter[S any] struct {
	Name      string
	Fetch     func(ctx context.Context) (S, error)
	Predicate func(S) bool
	Spec      PollSpec
	Clock     clock.Clock
}

// Wait polls until the predicate holds. On timeout it returns a
// *tdkerrors.TimeoutError whose State is the last fetched state.
func (waiter *StateWaiter[S]) Wait(ctx context.Context) (S, error) {
	var last S
	if err := waiter.Spec.Validate(); err != nil {
		return last, err
	}
	clk := waiter.Clock
	if clk == nil {
		clk = clock.New()
	}

	start := clk.Now()
	attempts := 0
	for {
		state, err := waiter.Fetch(ctx)
		if err != nil {
			return state, err
		}
		attempts++
		last = state
		if waiter.Predicate(state) {
			return state, nil
		}

		if elapsed := clk.Since(start); elapsed > waiter.Spec.Timeout {
			log.Ctx(ctx).Warn().
				Str("name", waiter.Name).
				Int("attempts", attempts).
				Dur("elapsed", elapsed).
				Msg("timed out waiting for state")
			return last, tdkerrors.NewTimeoutError(last, "%s after %s", waiter.Name, waiter.Spec.Timeout)
		}

		timer := clk.Timer(waiter.Spec.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}
}

// WaitFor is a shorthand for a StateWaiter on the wall clock.
func WaitFor[S any](
	ctx context.Context, fetch func(context.Context) (S, error), predicate func(S) bool, spec PollSpec,
) (S, error) {
	waiter := &StateWaiter[S]{
		Name:      "state",
		Fetch:     fetch,
		Predicate: predicate,
		Spec:      spec,
	}
	return waiter.Wait(ctx)
}
