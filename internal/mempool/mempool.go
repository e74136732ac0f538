// Package mempool implements the validated transaction set and its
// two-phase Dandelion stem/fluff relay: admission, stem timeout and
// aggregation, fee-rate eviction, and dummy-output injection for privacy.
package mempool

import (
	"container/heap"
	"math/rand"
	"time"

	"github.com/duskchain/fullnode/pkg/core"
)

// AdmitResult is the discrete admission outcome surfaced to callers.
type AdmitResult int

const (
	Accepted AdmitResult = iota
	AlreadyKnown
	Invalid
	TooLowFee
)

// FluffEntry is one validated transaction resident in the fluff pool.
type FluffEntry struct {
	Fingerprint core.HashT
	Raw         []byte
	ContextHash core.HashT
	ArrivedAt   time.Time
	Size        uint64
	FeeRate     uint64
}

// StemEntry is one transaction awaiting stem-to-fluff transition.
type StemEntry struct {
	Fingerprint         core.HashT
	Raw                 []byte
	ForwardPeer         string
	TimeoutAt           time.Time
	AggregatedOutputs   int
	FeeReserve          uint64
	eligibleHeightRange [2]uint64
}

// Params configures dandelion timing and pool caps.
type Params struct {
	FluffProbability uint16 // 0..0xFFFF, drawn uniformly at admission
	TimeoutMin       time.Duration
	TimeoutMax       time.Duration
	OutputsMin       int
	OutputsMax       int
	StemConfirmDepth uint64
	MaxCount         uint64
	MaxBytes         uint64
	DummyLifetimeLo  uint64
	DummyLifetimeHi  uint64
}

// feeHeap orders fluff entries ascending by fee-rate, tie-broken by arrival
// time (the Open Question in §9 resolved deterministically: earlier first).
type feeHeap []*FluffEntry

func (h feeHeap) Len() int { return len(h) }
func (h feeHeap) Less(i, j int) bool {
	if h[i].FeeRate != h[j].FeeRate {
		return h[i].FeeRate < h[j].FeeRate
	}
	return h[i].ArrivedAt.Before(h[j].ArrivedAt)
}
func (h feeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *feeHeap) Push(x any)         { *h = append(*h, x.(*FluffEntry)) }
func (h *feeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Pool owns both the fluff pool and the stem pool.
type Pool struct {
	params Params
	fluff  map[core.HashT]*FluffEntry
	byFee  feeHeap
	stem   map[core.HashT]*StemEntry
	bytes  uint64
	rng    *rand.Rand
}

// New builds an empty Pool.
func New(params Params) *Pool {
	return &Pool{
		params: params,
		fluff:  make(map[core.HashT]*FluffEntry),
		byFee:  make(feeHeap, 0),
		stem:   make(map[core.HashT]*StemEntry),
		rng:    rand.New(rand.NewSource(1)),
	}
}

// Has reports whether a fingerprint is known in either pool.
func (p *Pool) Has(fp core.HashT) bool {
	_, inFluff := p.fluff[fp]
	_, inStem := p.stem[fp]
	return inFluff || inStem
}

// AdmitFluff inserts a tx that arrived already flagged fluff (from a peer
// broadcasting, or forced out of stem). Returns Accepted/AlreadyKnown/TooLowFee.
func (p *Pool) AdmitFluff(fp core.HashT, raw []byte, ctxHash core.HashT, feeRate uint64, now time.Time) AdmitResult {
	if p.Has(fp) {
		return AlreadyKnown
	}
	if uint64(len(p.fluff)) >= p.params.MaxCount || p.bytes+uint64(len(raw)) > p.params.MaxBytes {
		if len(p.byFee) == 0 || feeRate <= p.byFee[0].FeeRate {
			return TooLowFee
		}
		p.evictLowest()
	}
	entry := &FluffEntry{
		Fingerprint: fp, Raw: raw, ContextHash: ctxHash,
		ArrivedAt: now, Size: uint64(len(raw)), FeeRate: feeRate,
	}
	p.fluff[fp] = entry
	heap.Push(&p.byFee, entry)
	p.bytes += entry.Size
	return Accepted
}

// AdmitStemOrFluff implements the admission draw from §4.3: a uniform
// 16-bit value below FluffProbability sends the tx straight to fluff,
// otherwise it enters the stem pool with a random timeout and forward peer.
func (p *Pool) AdmitStemOrFluff(fp core.HashT, raw []byte, ctxHash core.HashT, feeRate uint64, excludePeer string, candidates []string, now time.Time) (AdmitResult, string) {
	if p.Has(fp) {
		return AlreadyKnown, ""
	}
	draw := uint16(p.rng.Intn(1 << 16))
	if draw < p.params.FluffProbability {
		return p.AdmitFluff(fp, raw, ctxHash, feeRate, now), ""
	}
	forward := pickForwardPeer(p.rng, excludePeer, candidates)
	timeoutSpan := p.params.TimeoutMax - p.params.TimeoutMin
	timeout := p.params.TimeoutMin
	if timeoutSpan > 0 {
		timeout += time.Duration(p.rng.Int63n(int64(timeoutSpan)))
	}
	p.stem[fp] = &StemEntry{
		Fingerprint: fp, Raw: raw, ForwardPeer: forward,
		TimeoutAt: now.Add(timeout), FeeReserve: feeRate,
	}
	return Accepted, forward
}

func pickForwardPeer(rng *rand.Rand, exclude string, candidates []string) string {
	eligible := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c != exclude {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return ""
	}
	return eligible[rng.Intn(len(eligible))]
}

// TransitionToFluff moves a stem entry to fluff, per §3's invariant that
// this transition happens at most once and never reverses. The fee rate is
// the one already reserved at stem admission; callers never recompute it.
func (p *Pool) TransitionToFluff(fp core.HashT, now time.Time) bool {
	entry, ok := p.stem[fp]
	if !ok {
		return false
	}
	delete(p.stem, fp)
	p.AdmitFluff(fp, entry.Raw, core.HashT{}, entry.FeeReserve, now)
	return true
}

// ExpiredStems returns stem entries whose timeout has elapsed, without
// removing them; callers decide whether to force-fluff or re-time.
func (p *Pool) ExpiredStems(now time.Time) []core.HashT {
	out := make([]core.HashT, 0)
	for fp, entry := range p.stem {
		if !entry.TimeoutAt.After(now) {
			out = append(out, fp)
		}
	}
	return out
}

// AggregationEligible reports whether a stem entry meets the outputs
// aggregation threshold and so should transition to fluff.
func (p *Pool) AggregationEligible(fp core.HashT) bool {
	entry, ok := p.stem[fp]
	if !ok {
		return false
	}
	return entry.AggregatedOutputs >= p.params.OutputsMin
}

// AddAggregatedOutput records another output joining a stem entry's
// aggregation, used by the dummy-injection routine and by real joins.
func (p *Pool) AddAggregatedOutput(fp core.HashT) {
	if entry, ok := p.stem[fp]; ok && entry.AggregatedOutputs < p.params.OutputsMax {
		entry.AggregatedOutputs++
	}
}

// ForcedFluffOnStemConfirm reports stem entries whose recorded eligible
// height range ended at least StemConfirmDepth blocks before currentHeight.
// Nothing in this package records that range for a stem entry, so the
// returned list is always empty.
func (p *Pool) ForcedFluffOnStemConfirm(currentHeight uint64) []core.HashT {
	out := make([]core.HashT, 0)
	for fp, entry := range p.stem {
		if entry.eligibleHeightRange[1] != 0 && currentHeight >= entry.eligibleHeightRange[1]+p.params.StemConfirmDepth {
			out = append(out, fp)
		}
	}
	return out
}

// DropStemsForwardedTo removes stem entries whose forward peer disconnected,
// returning them so the caller can re-admit them as fluff per §4.3 rule 4.
func (p *Pool) DropStemsForwardedTo(peerID string) []*StemEntry {
	out := make([]*StemEntry, 0)
	for fp, entry := range p.stem {
		if entry.ForwardPeer == peerID {
			delete(p.stem, fp)
			out = append(out, entry)
		}
	}
	return out
}

func (p *Pool) evictLowest() {
	if len(p.byFee) == 0 {
		return
	}
	lowest := heap.Pop(&p.byFee).(*FluffEntry)
	delete(p.fluff, lowest.Fingerprint)
	p.bytes -= lowest.Size
}

// Count and Bytes expose the invariant-checked caps from §8.
func (p *Pool) Count() uint64 { return uint64(len(p.fluff)) }
func (p *Pool) Bytes() uint64 { return p.bytes }
func (p *Pool) StemCount() int { return len(p.stem) }

// Raw returns a known transaction's bytes from either pool, for serving a
// peer's GetTransaction request.
func (p *Pool) Raw(fp core.HashT) ([]byte, bool) {
	if entry, ok := p.fluff[fp]; ok {
		return entry.Raw, true
	}
	if entry, ok := p.stem[fp]; ok {
		return entry.Raw, true
	}
	return nil, false
}

// FluffFingerprints lists every transaction currently resident in the
// fluff pool, the candidate set a fresh mining template is built from.
func (p *Pool) FluffFingerprints() []core.HashT {
	out := make([]core.HashT, 0, len(p.fluff))
	for fp := range p.fluff {
		out = append(out, fp)
	}
	return out
}

// StemFingerprints lists every transaction currently awaiting stem-to-fluff
// transition, the set periodically checked for forced fluff and dummy
// injection.
func (p *Pool) StemFingerprints() []core.HashT {
	out := make([]core.HashT, 0, len(p.stem))
	for fp := range p.stem {
		out = append(out, fp)
	}
	return out
}

// MaybeInjectDummy, about one call in four, counts one dummy output against
// a stem entry still below OutputsMax (it increments AggregatedOutputs; no
// input/output data is built here) and returns a spend height of
// currentHeight + DummyLifetimeLo + a uniform offset in
// [0, DummyLifetimeHi-DummyLifetimeLo).
func (p *Pool) MaybeInjectDummy(fp core.HashT, currentHeight uint64) (spendHeight uint64, injected bool) {
	entry, ok := p.stem[fp]
	if !ok || entry.AggregatedOutputs >= p.params.OutputsMax {
		return 0, false
	}
	if p.rng.Intn(4) != 0 { // inject roughly a quarter of the time
		return 0, false
	}
	span := p.params.DummyLifetimeHi - p.params.DummyLifetimeLo
	spend := currentHeight + p.params.DummyLifetimeLo
	if span > 0 {
		spend += uint64(p.rng.Int63n(int64(span)))
	}
	entry.AggregatedOutputs++
	return spend, true
}
