package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) SweepExpired(ctx context.Context) (int, error) {
	s.calls.Add(1)
	return 0, s.err
}

func TestStart_SweepsUntilCancelled(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Start(ctx, sweeper, 5*time.Millisecond, zerolog.Nop())
		close(done)
	}()

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStart_ContinuesAfterError(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{err: errors.New("disk on fire")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Start(ctx, sweeper, 5*time.Millisecond, zerolog.Nop())

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestStart_DisabledInterval(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{}

	done := make(chan struct{})
	go func() {
		Start(context.Background(), sweeper, 0, zerolog.Nop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return immediately for a zero interval")
	}
	assert.Zero(t, sweeper.calls.Load())
}
