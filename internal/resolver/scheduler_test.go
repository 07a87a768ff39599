package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yamba-project/yamba-daemon-go/internal/apperrors"
)

// blockingResolve lets a test hold one in-flight resolve open until release
// is closed, so single-flight and round-robin ordering can be observed.
func blockingResolve(release <-chan struct{}) ResolveFunc {
	return func(ctx context.Context, url string) (Songs, error) {
		<-release
		return Songs{}, nil
	}
}

func TestDispatchResolveReturnsIncreasingTickets(t *testing.T) {
	s := NewScheduler(1, 64, func(ctx context.Context, url string) (Songs, error) {
		return Songs{}, nil
	})
	defer s.Close()

	var tickets []uint64
	var mu sync.Mutex
	done := make(chan struct{}, 3)

	for i := 0; i < 3; i++ {
		ticket, err := s.DispatchResolve(1, "url", func(ticket uint64, songs Songs, err error) {
			done <- struct{}{}
		})
		require.NoError(t, err)
		mu.Lock()
		tickets = append(tickets, ticket)
		mu.Unlock()
	}

	for i := 0; i < 3; i++ {
		<-done
	}
	require.Equal(t, []uint64{0, 1, 2}, tickets)
}

// TestQueueOverloadScenarioS3 mirrors spec scenario S3: worker pool N=1,
// 65 enqueues for one instance. First 64 accepted with tickets 0..63; the
// 65th returns QueueOverload.
func TestQueueOverloadScenarioS3(t *testing.T) {
	release := make(chan struct{})
	s := NewScheduler(1, 64, blockingResolve(release))
	defer func() {
		close(release)
		s.Close()
	}()

	// First dispatch occupies the single worker so the queue actually
	// backs up behind it instead of draining as fast as it fills.
	_, err := s.DispatchResolve(7, "url-0", func(uint64, Songs, error) {})
	require.NoError(t, err)

	for i := 1; i < 64; i++ {
		ticket, err := s.DispatchResolve(7, "url", func(uint64, Songs, error) {})
		require.NoError(t, err)
		require.Equal(t, uint64(i), ticket)
	}

	_, err = s.DispatchResolve(7, "overload", func(uint64, Songs, error) {})
	require.Error(t, err)
	appErr := apperrors.EnsureAppError(err)
	require.Equal(t, apperrors.ErrorCodeQueueOverload, appErr.Code)
}

func TestSingleFlightPerInstance(t *testing.T) {
	var active, maxActive int
	var mu sync.Mutex
	done := make(chan struct{}, 10)

	s := NewScheduler(4, 64, func(ctx context.Context, url string) (Songs, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return Songs{}, nil
	})
	defer s.Close()

	for i := 0; i < 10; i++ {
		_, err := s.DispatchResolve(1, "url", func(uint64, Songs, error) { done <- struct{}{} })
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	require.Equal(t, 1, maxActive, "only one request for the same instance should run at a time")
}

func TestRoundRobinAcrossInstances(t *testing.T) {
	var mu sync.Mutex
	var order []string
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	s := NewScheduler(1, 64, func(ctx context.Context, url string) (Songs, error) {
		if url == "blocker" {
			started <- struct{}{}
			<-release
		}
		mu.Lock()
		order = append(order, url)
		mu.Unlock()
		return Songs{}, nil
	})
	defer s.Close()

	done := make(chan struct{}, 5)
	dispatch := func(id int, url string) {
		_, err := s.DispatchResolve(id, url, func(uint64, Songs, error) { done <- struct{}{} })
		require.NoError(t, err)
	}

	// Occupy the single worker with instance 1's first request so every
	// later request queues up behind it before any of them is claimed.
	dispatch(1, "blocker")
	<-started

	// Instance 1 queues two more requests before instances 2 and 3 queue
	// one each; instance 1's second request must still wait for 2 and 3.
	dispatch(1, "1a")
	dispatch(1, "1b")
	dispatch(2, "2a")
	dispatch(3, "3a")

	close(release)
	for i := 0; i < 5; i++ {
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 5)
	require.Equal(t, "blocker", order[0])
	require.ElementsMatch(t, []string{"1a", "2a", "3a"}, order[1:4])
	require.Equal(t, "1b", order[4], "instance 1 must not be served twice before instances 2 and 3")
}

func TestCancelInstanceInvokesCancelledCallback(t *testing.T) {
	release := make(chan struct{})
	s := NewScheduler(1, 64, blockingResolve(release))
	defer func() {
		close(release)
		s.Close()
	}()

	// Occupy the worker, then queue a second request that will be cancelled
	// before it ever runs.
	_, err := s.DispatchResolve(5, "blocker", func(uint64, Songs, error) {})
	require.NoError(t, err)

	cancelledCh := make(chan error, 1)
	_, err = s.DispatchResolve(5, "queued", func(ticket uint64, songs Songs, err error) {
		cancelledCh <- err
	})
	require.NoError(t, err)

	s.CancelInstance(5)

	select {
	case err := <-cancelledCh:
		appErr := apperrors.EnsureAppError(err)
		require.Equal(t, apperrors.ErrorCodeCancelled, appErr.Code)
	case <-time.After(time.Second):
		t.Fatal("cancelled callback never invoked")
	}
}
