package session

import (
	"context"
	"fmt"
	"time"

	"github.com/lowaak/fitness-link/internal/go_func_utils"

	"github.com/sirupsen/logrus"
)

// raceTimeout runs op against a timer. Whichever settles first wins: a
// successful op stops the timer; on timeout (or ctx cancellation) op's
// context is cancelled and its eventual result is handed to discard instead
// of being acted upon.
func raceTimeout[T any](
	ctx context.Context,
	logger logrus.FieldLogger,
	timeout time.Duration,
	timeoutErr error,
	op func(ctx context.Context) (T, error),
	discard func(T),
) (T, error) {
	type result struct {
		value T
		err   error
	}

	opCtx, cancel := context.WithCancel(ctx)
	done := make(chan result, 1)
	go_func_utils.SafeGo(logger, func() {
		v, err := op(opCtx)
		done <- result{value: v, err: err}
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	abandon := func() {
		cancel()
		go_func_utils.SafeGo(logger, func() {
			r := <-done
			if r.err == nil && discard != nil {
				logger.Debug("discarding result of abandoned operation")
				discard(r.value)
			}
		})
	}

	var zero T
	select {
	case r := <-done:
		cancel()
		return r.value, r.err
	case <-timer.C:
		abandon()
		return zero, fmt.Errorf("%w (after %v)", timeoutErr, timeout)
	case <-ctx.Done():
		abandon()
		return zero, ctx.Err()
	}
}
