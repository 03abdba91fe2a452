package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalSendRecvRoundTrip(t *testing.T) {
	ranks := NewLocal(2)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	var recvErr error
	go func() {
		defer wg.Done()
		got, recvErr = ranks[1].Recv(ctx, 0, 7)
	}()

	require.NoError(t, ranks[0].Send(ctx, 1, 7, []byte("hello")))
	wg.Wait()
	require.NoError(t, recvErr)
	require.Equal(t, []byte("hello"), got)
}

func TestLocalSendRecvDistinguishesTags(t *testing.T) {
	ranks := NewLocal(2)
	ctx := context.Background()

	require.NoError(t, ranks[0].Send(ctx, 1, 1, []byte("first")))
	require.NoError(t, ranks[0].Send(ctx, 1, 2, []byte("second")))

	got2, err := ranks[1].Recv(ctx, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got2)

	got1, err := ranks[1].Recv(ctx, 0, 1)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), got1)
}

func TestLocalSendOutOfRangeDestination(t *testing.T) {
	ranks := NewLocal(2)
	err := ranks[0].Send(context.Background(), 5, 0, []byte("x"))
	require.Error(t, err)
}

func TestLocalBarrierReleasesAllRanksTogether(t *testing.T) {
	const size = 4
	ranks := NewLocal(size)
	ctx := context.Background()

	var wg sync.WaitGroup
	done := make([]bool, size)
	var mu sync.Mutex
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			time.Sleep(time.Duration(r) * time.Millisecond)
			err := ranks[r].Barrier(ctx)
			mu.Lock()
			done[r] = err == nil
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	for i, ok := range done {
		require.True(t, ok, "rank %d barrier failed", i)
	}
}

func TestLocalBroadcastDeliversRootValueToAll(t *testing.T) {
	const size = 3
	ranks := NewLocal(size)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]byte, size)
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			data, err := ranks[r].Broadcast(ctx, 0, []byte("payload"))
			require.NoError(t, err)
			results[r] = data
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		require.Equal(t, []byte("payload"), got, "rank %d", i)
	}
}

func TestLocalRankAndSize(t *testing.T) {
	ranks := NewLocal(3)
	for i, r := range ranks {
		require.Equal(t, i, r.Rank())
		require.Equal(t, 3, r.Size())
	}
}

func TestLocalSendRespectsContextCancellation(t *testing.T) {
	ranks := NewLocal(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Fill the mailbox so a second send has to block on the cancelled ctx.
	require.NoError(t, ranks[0].Send(context.Background(), 1, 9, []byte("first")))
	err := ranks[0].Send(ctx, 1, 9, []byte("second"))
	require.ErrorIs(t, err, context.Canceled)
}
