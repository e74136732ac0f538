package syncctl_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rs/zerolog"

	"github.com/duskchain/fullnode/internal/eventbus"
	"github.com/duskchain/fullnode/internal/processor"
	"github.com/duskchain/fullnode/internal/processor/fake"
	"github.com/duskchain/fullnode/internal/syncctl"
	"github.com/duskchain/fullnode/internal/task"
	"github.com/duskchain/fullnode/pkg/core"
)

func newController(horizon, maxAutoRollback uint64) (*syncctl.Controller, *fake.Processor) {
	proc := fake.New(horizon, maxAutoRollback, processor.Observer{})
	c := syncctl.New(syncctl.Params{
		MaxAutoRollback:       maxAutoRollback,
		RollbackTimeoutSince:  time.Minute,
		TipGapResyncThreshold: 5,
	}, proc, task.New(), eventbus.New(), zerolog.Nop())
	return c, proc
}

func TestOnPeerTipFromIdleBeginsHeaderSync(t *testing.T) {
	c, _ := newController(1000, 100)
	require.Equal(t, syncctl.Idle, c.State())

	c.OnPeerTip("peer-a", 10, core.NewHashTRand(), time.Now())
	require.Equal(t, syncctl.HeaderSync, c.State())
}

func TestOnPeerTipIgnoresLowerOrEqualTip(t *testing.T) {
	c, _ := newController(1000, 100)
	c.OnPeerTip("peer-a", 0, core.HashT{}, time.Now())
	require.Equal(t, syncctl.Idle, c.State())
}

func TestOnHeaderPackRejectsParentMismatch(t *testing.T) {
	c, _ := newController(1000, 100)
	err := c.OnHeaderPack(core.NewHashTRand(), []core.HashT{core.NewHashTRand()})
	require.Error(t, err)
}

func TestOnHeaderPackTransitionsToFastSyncBodiesAtTargetTip(t *testing.T) {
	c, proc := newController(1000, 100)
	c.OnPeerTip("peer-a", 3, core.NewHashTRand(), time.Now())
	require.Equal(t, syncctl.HeaderSync, c.State())

	tip := proc.Tip()
	h1, h2, h3 := core.NewHashTRand(), core.NewHashTRand(), core.NewHashTRand()
	err := c.OnHeaderPack(tip.Hash, []core.HashT{h1, h2, h3})
	require.NoError(t, err)
	require.Equal(t, syncctl.FastSyncBodies, c.State())
}

func TestOnBodyAppliedReachesTip(t *testing.T) {
	c, proc := newController(1000, 100)
	c.OnPeerTip("peer-a", 2, core.NewHashTRand(), time.Now())
	tip := proc.Tip()
	h1, h2 := core.NewHashTRand(), core.NewHashTRand()
	require.NoError(t, c.OnHeaderPack(tip.Hash, []core.HashT{h1, h2}))
	require.Equal(t, syncctl.FastSyncBodies, c.State())

	require.NoError(t, c.OnBodyApplied(h1, []byte("body1")))
	require.Equal(t, syncctl.FastSyncBodies, c.State())
	require.NoError(t, c.OnBodyApplied(h2, []byte("body2")))
	require.Equal(t, syncctl.Tip, c.State())
}

func TestTryRollbackRefusesBeyondMaxDepth(t *testing.T) {
	c, proc := newController(1000, 1)
	c.OnPeerTip("peer-a", 3, core.NewHashTRand(), time.Now())
	tip := proc.Tip()
	h1, h2, h3 := core.NewHashTRand(), core.NewHashTRand(), core.NewHashTRand()
	require.NoError(t, c.OnHeaderPack(tip.Hash, []core.HashT{h1, h2, h3}))

	err := c.TryRollback(h1, time.Now().Add(time.Hour))
	require.Error(t, err)
}

func TestTryRollbackRefusesTooSoonAfterTipAdopted(t *testing.T) {
	c, proc := newController(1000, 100)
	c.OnPeerTip("peer-a", 1, core.NewHashTRand(), time.Now())
	tip := proc.Tip()
	h1 := core.NewHashTRand()
	require.NoError(t, c.OnHeaderPack(tip.Hash, []core.HashT{h1}))

	err := c.TryRollback(tip.Hash, time.Now())
	require.Error(t, err)
}
