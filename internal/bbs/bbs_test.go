package bbs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duskchain/fullnode/internal/bbs"
	"github.com/duskchain/fullnode/pkg/core"
)

func TestPublishRejectsExpiredAndDuplicate(t *testing.T) {
	b := bbs.New(bbs.Limits{MaxCount: 10, MaxBytes: 1 << 20})
	now := time.Now()

	msg := bbs.Message{Channel: "ch1", MsgID: core.NewHashTRand(), Payload: []byte("hi"), Expiry: now.Add(-time.Second)}
	result, _ := b.Publish(msg, now)
	require.Equal(t, bbs.Expired, result)
	require.EqualValues(t, 0, b.TotalCount())

	msg.Expiry = now.Add(time.Minute)
	result, _ = b.Publish(msg, now)
	require.Equal(t, bbs.Published, result)

	result, _ = b.Publish(msg, now)
	require.Equal(t, bbs.Duplicate, result)
	require.EqualValues(t, 1, b.TotalCount())
}

func TestPublishFansOutToSubscribers(t *testing.T) {
	b := bbs.New(bbs.Limits{MaxCount: 10, MaxBytes: 1 << 20})
	now := time.Now()

	b.Subscribe("peer-a", "ch1", now.Add(-time.Hour))
	b.Subscribe("peer-b", "ch1", now.Add(-time.Hour))
	b.Subscribe("peer-c", "ch2", now.Add(-time.Hour))

	_, targets := b.Publish(bbs.Message{Channel: "ch1", MsgID: core.NewHashTRand(), Payload: []byte("x"), Expiry: now.Add(time.Minute)}, now)
	require.ElementsMatch(t, []string{"peer-a", "peer-b"}, targets)
}

func TestPublishEvictsOldestUnderCountCap(t *testing.T) {
	b := bbs.New(bbs.Limits{MaxCount: 2, MaxBytes: 1 << 20})
	now := time.Now()

	first := core.NewHashTRand()
	b.Publish(bbs.Message{Channel: "ch1", MsgID: first, Payload: []byte("a"), Expiry: now.Add(time.Second)}, now)
	b.Publish(bbs.Message{Channel: "ch1", MsgID: core.NewHashTRand(), Payload: []byte("b"), Expiry: now.Add(2 * time.Second)}, now)
	require.EqualValues(t, 2, b.TotalCount())

	// A third message forces eviction of the earliest-expiring one to stay within MaxCount.
	third := core.NewHashTRand()
	result, _ := b.Publish(bbs.Message{Channel: "ch1", MsgID: third, Payload: []byte("c"), Expiry: now.Add(3 * time.Second)}, now)
	require.Equal(t, bbs.Published, result)
	require.EqualValues(t, 2, b.TotalCount())

	backlog := b.Subscribe("watcher", "ch1", now.Add(-time.Hour))
	ids := make([]core.HashT, 0, len(backlog))
	for _, m := range backlog {
		ids = append(ids, m.MsgID)
	}
	require.NotContains(t, ids, first)
	require.Contains(t, ids, third)
}

func TestPublishEvictsUnderByteCap(t *testing.T) {
	b := bbs.New(bbs.Limits{MaxCount: 100, MaxBytes: 5})
	now := time.Now()

	b.Publish(bbs.Message{Channel: "ch1", MsgID: core.NewHashTRand(), Payload: []byte("abcde"), Expiry: now.Add(time.Minute)}, now)
	require.EqualValues(t, 5, b.TotalBytes())

	b.Publish(bbs.Message{Channel: "ch1", MsgID: core.NewHashTRand(), Payload: []byte("xy"), Expiry: now.Add(time.Minute)}, now)
	require.LessOrEqual(t, b.TotalBytes(), uint64(5))
}

func TestSubscribeIsIdempotentAndReturnsBacklog(t *testing.T) {
	b := bbs.New(bbs.Limits{MaxCount: 10, MaxBytes: 1 << 20})
	now := time.Now()
	msgID := core.NewHashTRand()
	b.Publish(bbs.Message{Channel: "ch1", MsgID: msgID, Payload: []byte("x"), Expiry: now.Add(time.Minute)}, now)

	backlog1 := b.Subscribe("peer-a", "ch1", now.Add(-time.Hour))
	backlog2 := b.Subscribe("peer-a", "ch1", now.Add(-time.Hour))
	require.Len(t, backlog1, 1)
	require.Len(t, backlog2, 1)

	_, targets := b.Publish(bbs.Message{Channel: "ch1", MsgID: core.NewHashTRand(), Payload: []byte("y"), Expiry: now.Add(time.Minute)}, now)
	require.Equal(t, []string{"peer-a"}, targets)
}

func TestUnsubscribeAndTeardownPeer(t *testing.T) {
	b := bbs.New(bbs.Limits{MaxCount: 10, MaxBytes: 1 << 20})
	now := time.Now()
	b.Subscribe("peer-a", "ch1", now)
	b.Subscribe("peer-a", "ch2", now)

	b.Unsubscribe("peer-a", "ch1")
	_, targets := b.Publish(bbs.Message{Channel: "ch1", MsgID: core.NewHashTRand(), Payload: []byte("z"), Expiry: now.Add(time.Minute)}, now)
	require.Empty(t, targets)

	b.TeardownPeer("peer-a")
	_, targets = b.Publish(bbs.Message{Channel: "ch2", MsgID: core.NewHashTRand(), Payload: []byte("z"), Expiry: now.Add(time.Minute)}, now)
	require.Empty(t, targets)
}

func TestCleanupRemovesExpiredAndKeepsTotalsConsistent(t *testing.T) {
	b := bbs.New(bbs.Limits{MaxCount: 10, MaxBytes: 1 << 20})
	now := time.Now()

	b.Publish(bbs.Message{Channel: "ch1", MsgID: core.NewHashTRand(), Payload: []byte("keep"), Expiry: now.Add(time.Hour)}, now)
	b.Publish(bbs.Message{Channel: "ch1", MsgID: core.NewHashTRand(), Payload: []byte("dying"), Expiry: now.Add(time.Millisecond)}, now)

	removed := b.Cleanup(now.Add(time.Second))
	require.Equal(t, 1, removed)
	require.EqualValues(t, 1, b.TotalCount())
	require.EqualValues(t, len("keep"), b.TotalBytes())
}
