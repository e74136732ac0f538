package mempool_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duskchain/fullnode/internal/mempool"
	"github.com/duskchain/fullnode/pkg/core"
)

func testParams() mempool.Params {
	return mempool.Params{
		FluffProbability: 1 << 15, // ~50%
		TimeoutMin:       time.Second,
		TimeoutMax:       2 * time.Second,
		OutputsMin:       2,
		OutputsMax:       8,
		StemConfirmDepth: 3,
		MaxCount:         4,
		MaxBytes:         1 << 20,
		DummyLifetimeLo:  10,
		DummyLifetimeHi:  20,
	}
}

func TestAdmitFluffRejectsDuplicate(t *testing.T) {
	p := mempool.New(testParams())
	fp := core.NewHashTRand()
	now := time.Now()

	require.Equal(t, mempool.Accepted, p.AdmitFluff(fp, []byte("tx"), core.HashT{}, 10, now))
	require.Equal(t, mempool.AlreadyKnown, p.AdmitFluff(fp, []byte("tx"), core.HashT{}, 10, now))
	require.EqualValues(t, 1, p.Count())
}

func TestAdmitFluffEnforcesCountCap(t *testing.T) {
	params := testParams()
	params.MaxCount = 2
	p := mempool.New(params)
	now := time.Now()

	require.Equal(t, mempool.Accepted, p.AdmitFluff(core.NewHashTRand(), []byte("a"), core.HashT{}, 10, now))
	require.Equal(t, mempool.Accepted, p.AdmitFluff(core.NewHashTRand(), []byte("b"), core.HashT{}, 20, now))

	// A low fee-rate arrival at capacity, with nothing lower to evict, is rejected.
	require.Equal(t, mempool.TooLowFee, p.AdmitFluff(core.NewHashTRand(), []byte("c"), core.HashT{}, 5, now))
	require.EqualValues(t, 2, p.Count())

	// A higher fee-rate arrival evicts the current lowest.
	require.Equal(t, mempool.Accepted, p.AdmitFluff(core.NewHashTRand(), []byte("d"), core.HashT{}, 30, now))
	require.EqualValues(t, 2, p.Count())
}

func TestAdmitFluffEnforcesByteCap(t *testing.T) {
	params := testParams()
	params.MaxBytes = 5
	p := mempool.New(params)
	now := time.Now()

	require.Equal(t, mempool.Accepted, p.AdmitFluff(core.NewHashTRand(), []byte("abcde"), core.HashT{}, 10, now))
	require.Equal(t, mempool.TooLowFee, p.AdmitFluff(core.NewHashTRand(), []byte("x"), core.HashT{}, 5, now))
	require.EqualValues(t, 5, p.Bytes())
}

func TestStemToFluffTransitionIsOneWay(t *testing.T) {
	p := mempool.New(testParams())
	fp := core.NewHashTRand()
	now := time.Now()

	p.AdmitFluff(fp, []byte("tx"), core.HashT{}, 10, now)

	// Once resident in fluff, TransitionToFluff on the same fingerprint is a no-op
	// because it was never in the stem pool to begin with.
	require.False(t, p.TransitionToFluff(fp, now))

	stemFp := core.NewHashTRand()
	result, forward := p.AdmitStemOrFluff(stemFp, []byte("stx"), core.HashT{}, 10, "peer-a", []string{"peer-b", "peer-c"}, now)
	if result == mempool.Accepted && forward != "" {
		require.EqualValues(t, 1, p.StemCount())
		require.True(t, p.TransitionToFluff(stemFp, now))
		require.EqualValues(t, 0, p.StemCount())
		// A second transition attempt fails: the move happens at most once.
		require.False(t, p.TransitionToFluff(stemFp, now))
	}
}

func TestAdmitStemOrFluffExcludesOriginPeer(t *testing.T) {
	p := mempool.New(testParams())
	now := time.Now()
	for i := 0; i < 20; i++ {
		fp := core.NewHashTRand()
		_, forward := p.AdmitStemOrFluff(fp, []byte("tx"), core.HashT{}, 10, "peer-a", []string{"peer-a"}, now)
		require.NotEqual(t, "peer-a", forward)
	}
}

func TestExpiredStemsBoundary(t *testing.T) {
	p := mempool.New(testParams())
	now := time.Now()
	fp := core.NewHashTRand()

	for {
		result, forward := p.AdmitStemOrFluff(fp, []byte("tx"), core.HashT{}, 10, "peer-a", []string{"peer-b"}, now)
		if result == mempool.Accepted && forward != "" {
			break
		}
		fp = core.NewHashTRand()
	}

	require.Empty(t, p.ExpiredStems(now))
	future := now.Add(10 * time.Second)
	require.Contains(t, p.ExpiredStems(future), fp)
}

func TestAggregationEligibleThreshold(t *testing.T) {
	p := mempool.New(testParams())
	now := time.Now()
	var fp core.HashT
	for {
		var forward string
		var result mempool.AdmitResult
		fp = core.NewHashTRand()
		result, forward = p.AdmitStemOrFluff(fp, []byte("tx"), core.HashT{}, 10, "peer-a", []string{"peer-b"}, now)
		if result == mempool.Accepted && forward != "" {
			break
		}
	}

	require.False(t, p.AggregationEligible(fp))
	p.AddAggregatedOutput(fp)
	require.False(t, p.AggregationEligible(fp))
	p.AddAggregatedOutput(fp)
	require.True(t, p.AggregationEligible(fp))
}

func TestDropStemsForwardedToReturnsOnlyMatching(t *testing.T) {
	p := mempool.New(testParams())
	now := time.Now()

	var toDrop core.HashT
	for i := 0; i < 50; i++ {
		fp := core.NewHashTRand()
		result, forward := p.AdmitStemOrFluff(fp, []byte("tx"), core.HashT{}, 10, "", []string{"peer-x", "peer-y"}, now)
		if result == mempool.Accepted && forward == "peer-x" {
			toDrop = fp
			break
		}
	}
	require.NotEqual(t, core.HashT{}, toDrop)

	dropped := p.DropStemsForwardedTo("peer-x")
	require.Len(t, dropped, 1)
	require.Equal(t, toDrop, dropped[0].Fingerprint)
	require.False(t, p.Has(toDrop))
}

func TestHasCoversBothPools(t *testing.T) {
	p := mempool.New(testParams())
	now := time.Now()
	fluffFp := core.NewHashTRand()
	p.AdmitFluff(fluffFp, []byte("tx"), core.HashT{}, 10, now)
	require.True(t, p.Has(fluffFp))
	require.False(t, p.Has(core.NewHashTRand()))
}
