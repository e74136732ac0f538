package workerpool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duskchain/fullnode/internal/workerpool"
)

func TestSubmitDeliversResultsOnDone(t *testing.T) {
	pool := workerpool.New(context.Background(), 4)
	require.NoError(t, pool.Submit(workerpool.Job{ID: 1, Work: func(ctx context.Context) error {
		return nil
	}}))
	require.NoError(t, pool.Submit(workerpool.Job{ID: 2, Work: func(ctx context.Context) error {
		return errors.New("boom")
	}}))

	seen := make(map[uint64]error)
	for i := 0; i < 2; i++ {
		select {
		case r := <-pool.Done():
			seen[r.ID] = r.Err
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for job completion")
		}
	}
	require.NoError(t, seen[1])
	require.Error(t, seen[2])
}

func TestSubmitBoundsConcurrency(t *testing.T) {
	pool := workerpool.New(context.Background(), 2)
	var current int32
	var maxSeen int32
	const jobs = 8

	for i := 0; i < jobs; i++ {
		i := uint64(i)
		require.NoError(t, pool.Submit(workerpool.Job{ID: i, Work: func(ctx context.Context) error {
			n := atomic.AddInt32(&current, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return nil
		}}))
	}

	for i := 0; i < jobs; i++ {
		select {
		case <-pool.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for job completion")
		}
	}
	require.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(2))
}
