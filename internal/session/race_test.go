package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTestTimeout = errors.New("test timeout")

func TestRaceTimeout_OpWins(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var opCtx context.Context
	v, err := raceTimeout(context.Background(), logger, time.Second, errTestTimeout,
		func(ctx context.Context) (int, error) {
			opCtx = ctx
			return 42, nil
		}, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	// the op context is released once the race is settled
	assert.Error(t, opCtx.Err())
}

func TestRaceTimeout_OpError(t *testing.T) {
	logger, _ := test.NewNullLogger()
	boom := errors.New("boom")
	_, err := raceTimeout(context.Background(), logger, time.Second, errTestTimeout,
		func(context.Context) (int, error) { return 0, boom }, nil)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, errTestTimeout)
}

func TestRaceTimeout_TimerWinsAndLateResultIsDiscarded(t *testing.T) {
	logger, _ := test.NewNullLogger()
	release := make(chan struct{})
	discarded := make(chan int, 1)

	_, err := raceTimeout(context.Background(), logger, 10*time.Millisecond, errTestTimeout,
		func(context.Context) (int, error) {
			<-release
			return 7, nil
		},
		func(v int) { discarded <- v })
	assert.ErrorIs(t, err, errTestTimeout)
	assert.Contains(t, err.Error(), "after 10ms")

	close(release)
	select {
	case v := <-discarded:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("late result was not handed to discard")
	}
}

func TestRaceTimeout_TimeoutCancelsOp(t *testing.T) {
	logger, _ := test.NewNullLogger()
	opErr := make(chan error, 1)

	_, err := raceTimeout(context.Background(), logger, 10*time.Millisecond, errTestTimeout,
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			opErr <- ctx.Err()
			return 0, ctx.Err()
		},
		func(int) { t.Error("failed op must not be discarded") })
	assert.ErrorIs(t, err, errTestTimeout)
	select {
	case err := <-opErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("op context was not cancelled")
	}
}

func TestRaceTimeout_ParentCancelled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := raceTimeout(ctx, logger, time.Second, errTestTimeout,
		func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
