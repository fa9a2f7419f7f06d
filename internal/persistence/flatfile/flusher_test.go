package flatfile

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingStore struct {
	flushes atomic.Int32
	forced  atomic.Int32
}

func (c *countingStore) Flush(force bool) error {
	c.flushes.Add(1)
	if force {
		c.forced.Add(1)
	}
	return nil
}

func TestFlusherTicks(t *testing.T) {
	s := &countingStore{}
	fl := NewFlusher(10*time.Millisecond, s)
	fl.Start()
	defer fl.Close()

	require.Eventually(t, func() bool { return s.flushes.Load() >= 2 },
		time.Second, 5*time.Millisecond)
	require.Zero(t, s.forced.Load(), "periodic flushes are not forced")
}

func TestFlusherCloseForcesFinalFlush(t *testing.T) {
	s := &countingStore{}
	fl := NewFlusher(time.Hour, s) // never ticks during the test
	fl.Start()
	fl.Close()

	require.Equal(t, int32(1), s.flushes.Load())
	require.Equal(t, int32(1), s.forced.Load(), "shutdown always force-flushes")

	fl.Close() // idempotent
	require.Equal(t, int32(1), s.flushes.Load())
}

func TestFlusherCloseWithoutStart(t *testing.T) {
	s := &countingStore{}
	fl := NewFlusher(time.Hour, s)
	fl.Close()
	require.Equal(t, int32(1), s.forced.Load())
}
