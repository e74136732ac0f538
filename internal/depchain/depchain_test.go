package depchain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duskchain/fullnode/internal/depchain"
	"github.com/duskchain/fullnode/pkg/core"
)

func TestAppendChainsSequentially(t *testing.T) {
	tip := core.NewHashTRand()
	c := depchain.New(tip)
	require.Equal(t, tip, c.Head())

	ctx1 := core.NewHashTRand()
	require.True(t, c.Append(tip, ctx1, core.NewHashTRand(), []byte("tx1")))
	require.Equal(t, ctx1, c.Head())

	ctx2 := core.NewHashTRand()
	require.True(t, c.Append(ctx1, ctx2, core.NewHashTRand(), []byte("tx2")))
	require.Equal(t, ctx2, c.Head())
	require.Equal(t, 2, c.Len())
}

func TestAppendRejectsNonHeadParent(t *testing.T) {
	tip := core.NewHashTRand()
	c := depchain.New(tip)
	ctx1 := core.NewHashTRand()
	c.Append(tip, ctx1, core.NewHashTRand(), []byte("tx1"))

	// Building on the root again, after the head has moved, is rejected.
	require.False(t, c.Append(tip, core.NewHashTRand(), core.NewHashTRand(), []byte("tx2")))
	require.Equal(t, 1, c.Len())
}

func TestResetDropsChainAndReroots(t *testing.T) {
	tip := core.NewHashTRand()
	c := depchain.New(tip)
	ctx1 := core.NewHashTRand()
	c.Append(tip, ctx1, core.NewHashTRand(), []byte("tx1"))

	newTip := core.NewHashTRand()
	c.Reset(newTip)
	require.Equal(t, 0, c.Len())
	require.Equal(t, newTip, c.Head())
	require.Empty(t, c.Links())
}

func TestLinksReturnsInOrder(t *testing.T) {
	tip := core.NewHashTRand()
	c := depchain.New(tip)
	ctx1 := core.NewHashTRand()
	ctx2 := core.NewHashTRand()
	c.Append(tip, ctx1, core.NewHashTRand(), []byte("tx1"))
	c.Append(ctx1, ctx2, core.NewHashTRand(), []byte("tx2"))

	links := c.Links()
	require.Len(t, links, 2)
	require.Equal(t, ctx1, links[0].NewCtx)
	require.Equal(t, ctx2, links[1].NewCtx)
}
