package jobmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func blocker(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type exit struct {
	name string
	err  error
}

func TestStartStop(t *testing.T) {
	jm := NewManager(zerolog.Nop())
	exits := make(chan exit, 1)
	jm.OnExit = func(name string, err error) { exits <- exit{name, err} }

	require.NoError(t, jm.Start(context.Background(), "a", blocker))
	assert.ErrorIs(t, jm.Start(context.Background(), "a", blocker), ErrRunning)
	assert.True(t, jm.Running("a"))
	assert.Equal(t, []string{"a"}, jm.List())

	require.NoError(t, jm.Stop("a"))
	assert.False(t, jm.Running("a"))
	assert.ErrorIs(t, jm.Stop("a"), ErrNotRunning)
	assert.Equal(t, exit{"a", nil}, <-exits, "cancellation is a clean exit")
}

func TestStopAll(t *testing.T) {
	jm := NewManager(zerolog.Nop())
	for _, n := range []string{"z", "x", "y"} {
		require.NoError(t, jm.Start(context.Background(), n, blocker))
	}
	assert.Equal(t, []string{"x", "y", "z"}, jm.List())
	jm.StopAll()
	assert.Empty(t, jm.List())
}

func TestFinishedJobIsRemovedAndReported(t *testing.T) {
	jm := NewManager(zerolog.Nop())
	exits := make(chan exit, 1)
	jm.OnExit = func(name string, err error) { exits <- exit{name, err} }

	boom := errors.New("boom")
	require.NoError(t, jm.Start(context.Background(), "f", func(context.Context) error { return boom }))
	got := <-exits
	assert.Equal(t, "f", got.name)
	assert.ErrorIs(t, got.err, boom)
	assert.False(t, jm.Running("f"))
}

func TestParentCancelStopsJob(t *testing.T) {
	jm := NewManager(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, jm.Start(ctx, "p", blocker))
	cancel()
	require.Eventually(t, func() bool { return !jm.Running("p") }, time.Second, time.Millisecond)
}
