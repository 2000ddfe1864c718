package concurrency

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewPoolBoundsWorkers(t *testing.T) {
	p := NewPool(2)

	var running, peak atomic.Int32
	for range 10 {
		p.Go(func() error {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}

	require.NoError(t, p.Wait())
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestNewPoolKeepsRunningAfterFailure(t *testing.T) {
	p := NewPool(1)
	first := errors.New("first")

	var finished atomic.Int32
	p.Go(func() error { return first })
	p.Go(func() error {
		finished.Add(1)
		return errors.New("second")
	})

	err := p.Wait()
	require.ErrorIs(t, err, first)
	require.Equal(t, int32(1), finished.Load())
}
