package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue[int](1)
	result := make(chan int, 1)
	errCh := make(chan error, 1)

	go func() {
		page, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- page
	}()

	require.NoError(t, q.Enqueue(context.Background(), 7))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, 7, got)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return page")
	}
}

func TestQueueIsBounded(t *testing.T) {
	t.Parallel()

	q := NewQueue[int](2)
	require.Equal(t, 2, q.Cap())
	require.NoError(t, q.Enqueue(context.Background(), 1))
	require.NoError(t, q.Enqueue(context.Background(), 2))
	require.Equal(t, 2, q.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.Enqueue(ctx, 3), context.DeadlineExceeded)
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := qDequeue.Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")

	qEnqueue := NewQueue[int](1)
	require.NoError(t, qEnqueue.Enqueue(context.Background(), 1))
	require.EqualError(t, qEnqueue.Enqueue(ctx, 2), "enqueue canceled: context canceled")
}

func TestQueueCloseDrainsBufferedItems(t *testing.T) {
	t.Parallel()

	q := NewQueue[int](2)
	require.NoError(t, q.Enqueue(context.Background(), 1))
	q.Close()

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, got)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	// Closing twice should be safe.
	q.Close()
}
