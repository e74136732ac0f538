package wanted_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duskchain/fullnode/internal/wanted"
	"github.com/duskchain/fullnode/pkg/core"
)

func TestWantIsIdempotent(t *testing.T) {
	r := wanted.New(time.Minute)
	key := core.NewHashTRand()
	now := time.Now()

	require.True(t, r.Want(key, now))
	require.False(t, r.Want(key, now))
	require.Equal(t, 1, r.Len())
}

func TestFulfilRemovesAndReportsPriorPresence(t *testing.T) {
	r := wanted.New(time.Minute)
	key := core.NewHashTRand()
	now := time.Now()
	r.Want(key, now)

	require.True(t, r.Fulfil(key))
	require.False(t, r.IsWanted(key))
	require.False(t, r.Fulfil(key))
}

func TestExpireBeforeReturnsFIFOOrder(t *testing.T) {
	r := wanted.New(time.Minute)
	now := time.Now()

	keyA := core.NewHashTRand()
	keyB := core.NewHashTRand()
	r.Want(keyA, now)
	r.Want(keyB, now.Add(time.Second))

	require.Empty(t, r.ExpireBefore(now.Add(30*time.Second)))

	expired := r.ExpireBefore(now.Add(2 * time.Minute))
	require.Len(t, expired, 2)
	require.Equal(t, keyA, expired[0].Key)
	require.Equal(t, keyB, expired[1].Key)
	require.Equal(t, 0, r.Len())
}

func TestNextDeadlineReflectsHeadItem(t *testing.T) {
	r := wanted.New(time.Minute)
	_, ok := r.NextDeadline()
	require.False(t, ok)

	now := time.Now()
	r.Want(core.NewHashTRand(), now)
	deadline, ok := r.NextDeadline()
	require.True(t, ok)
	require.Equal(t, now.Add(time.Minute), deadline)
}
