package syncio_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/fortsort/pkg/syncio"
)

func TestNew_RejectsNonPositiveClassLimits(t *testing.T) {
	_, err := syncio.New(0, 1, 0)
	require.ErrorIs(t, err, syncio.ErrInvalidInput)

	_, err = syncio.New(1, 0, 0)
	require.ErrorIs(t, err, syncio.ErrInvalidInput)
}

func TestGate_TotalSmallerThanClassTightensIt(t *testing.T) {
	g, err := syncio.New(2, 2, 1)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, syncio.Writer))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, g.Acquire(ctx, syncio.Writer))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second writer acquired despite total of 1")
	case <-time.After(20 * time.Millisecond):
	}

	g.Release(syncio.Writer)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second writer never acquired after release")
	}
	g.Release(syncio.Writer)
}

func TestGate_PerClassLimitEnforced(t *testing.T) {
	g, err := syncio.New(1, 1, 0)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, syncio.Reader))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, g.Acquire(ctx, syncio.Reader))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second reader acquired before release")
	case <-time.After(20 * time.Millisecond):
	}

	g.Release(syncio.Reader)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second reader never acquired after release")
	}
	g.Release(syncio.Reader)
}

func TestGate_ClassesAreIndependentWithoutTotal(t *testing.T) {
	g, err := syncio.New(1, 1, 0)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, syncio.Reader))
	require.NoError(t, g.Acquire(ctx, syncio.Writer))

	g.Release(syncio.Reader)
	g.Release(syncio.Writer)
}

func TestGate_TotalBoundsCombinedConcurrency(t *testing.T) {
	g, err := syncio.New(2, 2, 2)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, syncio.Reader))
	require.NoError(t, g.Acquire(ctx, syncio.Writer))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, g.Acquire(ctx, syncio.Reader))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("third acquisition exceeded total of 2")
	case <-time.After(20 * time.Millisecond):
	}

	g.Release(syncio.Writer)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquisition never unblocked after a release freed total capacity")
	}
	g.Release(syncio.Reader)
	g.Release(syncio.Reader)
}

func TestGate_ContextCancellationUnblocksAcquire(t *testing.T) {
	g, err := syncio.New(1, 1, 1)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, g.Acquire(ctx, syncio.Reader))

	cctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Acquire(cctx, syncio.Reader)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("cancellation did not unblock Acquire")
	}
}

func TestGate_ConcurrentAcquireReleaseNeverExceedsLimit(t *testing.T) {
	const limit = 3
	const workers = 20

	g, err := syncio.New(limit, limit, 0)
	require.NoError(t, err)

	var inFlight int64
	var maxSeen int64
	var wg sync.WaitGroup

	ctx := context.Background()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				require.NoError(t, g.Acquire(ctx, syncio.Writer))

				n := atomic.AddInt64(&inFlight, 1)
				for {
					old := atomic.LoadInt64(&maxSeen)
					if n <= old || atomic.CompareAndSwapInt64(&maxSeen, old, n) {
						break
					}
				}

				atomic.AddInt64(&inFlight, -1)
				g.Release(syncio.Writer)
			}
		}()
	}

	wg.Wait()
	require.LessOrEqual(t, atomic.LoadInt64(&maxSeen), int64(limit))
}
