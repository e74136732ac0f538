package task_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duskchain/fullnode/internal/task"
	"github.com/duskchain/fullnode/pkg/core"
)

func testCaps() task.Caps {
	return task.Caps{
		MaxConcurrentHdrPacks: 10,
		MaxConcurrentBodies:   10,
		MaxPerPeerHeaders:     2,
		MaxPerPeerBodies:      2,
	}
}

func TestRequestIsIdempotentByKey(t *testing.T) {
	r := task.New()
	key := task.Key{BlockID: core.NewHashTRand(), IsBody: false}

	t1, created1 := r.Request(key, core.HashT{}, nil)
	require.True(t, created1)
	t2, created2 := r.Request(key, core.HashT{}, nil)
	require.False(t, created2)
	require.Same(t, t1, t2)
	require.Equal(t, 2, t1.NeededCount)
}

func TestAssignPendingRespectsPerPeerCap(t *testing.T) {
	r := task.New()
	caps := testCaps()
	candidates := []task.Candidate{
		{PeerID: "peer-a", Connected: true, LoggedIn: true, TipHeight: 100},
	}

	keys := make([]task.Key, 0, 5)
	for i := 0; i < 5; i++ {
		key := task.Key{BlockID: core.NewHashTRand(), IsBody: false}
		r.Request(key, core.HashT{}, nil)
		keys = append(keys, key)
	}

	assignments := r.AssignPending(time.Now(), candidates, caps)
	require.Len(t, assignments, caps.MaxPerPeerHeaders)
	require.Equal(t, 5-caps.MaxPerPeerHeaders, r.Unassigned())
}

func TestAssignPendingSkipsIneligiblePeers(t *testing.T) {
	r := task.New()
	caps := testCaps()
	key := task.Key{BlockID: core.NewHashTRand(), IsBody: false}
	r.Request(key, core.HashT{}, nil)

	candidates := []task.Candidate{
		{PeerID: "not-connected", Connected: false, LoggedIn: true},
		{PeerID: "not-logged-in", Connected: true, LoggedIn: false},
		{PeerID: "rejected", Connected: true, LoggedIn: true, RejectedKeys: map[task.Key]bool{key: true}},
	}
	assignments := r.AssignPending(time.Now(), candidates, caps)
	require.Empty(t, assignments)
	require.Equal(t, 1, r.Unassigned())
}

func TestAssignPendingTieBreakChain(t *testing.T) {
	r := task.New()
	caps := testCaps()
	key := task.Key{BlockID: core.NewHashTRand(), IsBody: false}
	r.Request(key, core.HashT{}, nil)

	candidates := []task.Candidate{
		{PeerID: "low-rating", Connected: true, LoggedIn: true, AdjustedRating: 1.0},
		{PeerID: "high-rating", Connected: true, LoggedIn: true, AdjustedRating: 5.0},
	}
	assignments := r.AssignPending(time.Now(), candidates, caps)
	require.Len(t, assignments, 1)
	require.Equal(t, "high-rating", assignments[0].PeerID)

	// Equal rating: the shorter queue wins.
	r = task.New()
	r.Request(task.Key{BlockID: core.NewHashTRand(), IsBody: false}, core.HashT{}, nil)
	candidates = []task.Candidate{
		{PeerID: "deep-queue", Connected: true, LoggedIn: true, AdjustedRating: 1.0, QueueDepth: 3},
		{PeerID: "shallow-queue", Connected: true, LoggedIn: true, AdjustedRating: 1.0, QueueDepth: 1},
	}
	assignments = r.AssignPending(time.Now(), candidates, caps)
	require.Len(t, assignments, 1)
	require.Equal(t, "shallow-queue", assignments[0].PeerID)

	// Equal rating and queue depth: the lower latency wins.
	r = task.New()
	r.Request(task.Key{BlockID: core.NewHashTRand(), IsBody: false}, core.HashT{}, nil)
	candidates = []task.Candidate{
		{PeerID: "slow", Connected: true, LoggedIn: true, AdjustedRating: 1.0, QueueDepth: 1, LatencyMs: 200},
		{PeerID: "fast", Connected: true, LoggedIn: true, AdjustedRating: 1.0, QueueDepth: 1, LatencyMs: 20},
	}
	assignments = r.AssignPending(time.Now(), candidates, caps)
	require.Len(t, assignments, 1)
	require.Equal(t, "fast", assignments[0].PeerID)
}

func TestAssignPendingRespectsGlobalCap(t *testing.T) {
	r := task.New()
	caps := testCaps()
	caps.MaxConcurrentHdrPacks = 1
	candidates := []task.Candidate{
		{PeerID: "peer-a", Connected: true, LoggedIn: true},
	}
	r.Request(task.Key{BlockID: core.NewHashTRand(), IsBody: false}, core.HashT{}, nil)
	r.Request(task.Key{BlockID: core.NewHashTRand(), IsBody: false}, core.HashT{}, nil)

	assignments := r.AssignPending(time.Now(), candidates, caps)
	require.Len(t, assignments, 1)
	require.Equal(t, 1, r.Unassigned())
}

func TestCompleteRemovesTask(t *testing.T) {
	r := task.New()
	caps := testCaps()
	key := task.Key{BlockID: core.NewHashTRand(), IsBody: false}
	r.Request(key, core.HashT{}, nil)
	r.AssignPending(time.Now(), []task.Candidate{{PeerID: "peer-a", Connected: true, LoggedIn: true}}, caps)

	r.Complete(key)
	require.Empty(t, r.All())
	require.Empty(t, r.QueueOf("peer-a"))
}

func TestTimeoutReturnsTaskAndPromotesAfterMaxRetries(t *testing.T) {
	r := task.New()
	caps := testCaps()
	key := task.Key{BlockID: core.NewHashTRand(), IsBody: false}
	r.Request(key, core.HashT{}, nil)

	for i := 0; i < 2; i++ {
		r.AssignPending(time.Now(), []task.Candidate{{PeerID: "peer-a", Connected: true, LoggedIn: true}}, caps)
		reject := r.Timeout(key, "peer-a", 2)
		if i == 0 {
			require.False(t, reject)
		} else {
			require.True(t, reject)
		}
	}
}

func TestReassignAllOfPreservesOrder(t *testing.T) {
	r := task.New()
	caps := testCaps()
	keyA := task.Key{BlockID: core.NewHashTRand(), IsBody: false}
	keyB := task.Key{BlockID: core.NewHashTRand(), IsBody: false}
	r.Request(keyA, core.HashT{}, nil)
	r.Request(keyB, core.HashT{}, nil)
	r.AssignPending(time.Now(), []task.Candidate{{PeerID: "peer-a", Connected: true, LoggedIn: true}}, caps)

	require.Len(t, r.QueueOf("peer-a"), 2)
	r.ReassignAllOf("peer-a")
	require.Equal(t, 2, r.Unassigned())
	require.Empty(t, r.QueueOf("peer-a"))
}

func TestPeerQueueBytesSumsAssignedTasks(t *testing.T) {
	r := task.New()
	caps := testCaps()
	key := task.Key{BlockID: core.NewHashTRand(), IsBody: false}
	tsk, _ := r.Request(key, core.HashT{}, nil)
	tsk.SizeBytes = 1000

	r.AssignPending(time.Now(), []task.Candidate{{PeerID: "peer-a", Connected: true, LoggedIn: true}}, caps)
	require.EqualValues(t, 1000, r.PeerQueueBytes("peer-a"))
}
