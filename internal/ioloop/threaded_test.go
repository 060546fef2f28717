package ioloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThreadedEventLoopNextRoundRobins(t *testing.T) {
	pool, err := NewThreadedEventLoop(3, testLogger())
	require.NoError(t, err)

	seen := make([]*Loop, 6)
	for i := range seen {
		seen[i] = pool.Next()
	}

	require.Same(t, seen[0], seen[3])
	require.Same(t, seen[1], seen[4])
	require.Same(t, seen[2], seen[5])
	require.NotSame(t, seen[0], seen[1])
}

func TestThreadedEventLoopClampsToAtLeastOneLoop(t *testing.T) {
	pool, err := NewThreadedEventLoop(0, testLogger())
	require.NoError(t, err)
	require.Len(t, pool.Loops(), 1)
}

func TestThreadedEventLoopRunReturnsAfterStop(t *testing.T) {
	pool, err := NewThreadedEventLoop(2, testLogger())
	require.NoError(t, err)

	runReturned := make(chan error, 1)
	go func() { runReturned <- pool.Run() }()

	pool.Stop()

	select {
	case err := <-runReturned:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run never returned after Stop")
	}
}
