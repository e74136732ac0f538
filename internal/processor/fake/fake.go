// Package fake provides an in-memory processor.Processor used by tests and
// local development, standing in for the real validator/UTXO engine.
package fake

import (
	"fmt"
	"sync"

	"github.com/duskchain/fullnode/internal/processor"
	"github.com/duskchain/fullnode/pkg/core"
)

// Processor is a minimal, deterministic in-memory stand-in for the real
// block/tx validator. It accepts any header pack whose parent hash matches
// its current tip, any body for a block id whose header it holds (again if
// repeated), and any non-empty tx it hasn't already seen.
type Processor struct {
	mu             sync.Mutex
	tip            processor.Tip
	horizon        uint64
	maxAutoRollback uint64
	knownTxs       map[core.HashT][]byte
	knownBodies    map[core.HashT][]byte
	ancestry       map[core.HashT]core.HashT // block -> parent
	heights        map[core.HashT]uint64
	byHeight       map[uint64]core.HashT // reverse of heights, for serving header packs
	obs            processor.Observer
}

// New constructs a fake processor seeded at genesis.
func New(horizon uint64, maxAutoRollback uint64, obs processor.Observer) *Processor {
	genesis := core.HashT{}
	p := &Processor{
		tip:            processor.Tip{Height: 0, Hash: genesis},
		horizon:        horizon,
		maxAutoRollback: maxAutoRollback,
		knownTxs:       make(map[core.HashT][]byte),
		knownBodies:    make(map[core.HashT][]byte),
		ancestry:       make(map[core.HashT]core.HashT),
		heights:        map[core.HashT]uint64{genesis: 0},
		byHeight:       map[uint64]core.HashT{0: genesis},
		obs:            obs,
	}
	return p
}

func (p *Processor) Tip() processor.Tip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tip
}

func (p *Processor) FastSyncWindow(targetHeight uint64) processor.FastSyncWindow {
	if targetHeight <= p.horizon {
		return processor.FastSyncWindow{H0: 0, HTxoLo: targetHeight}
	}
	return processor.FastSyncWindow{H0: targetHeight - p.horizon, HTxoLo: targetHeight}
}

func (p *Processor) SubmitHeaderPack(pack processor.HeaderPack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pack.ParentHash != p.tip.Hash {
		return fmt.Errorf("header pack parent %s does not match tip %s", pack.ParentHash, p.tip.Hash)
	}
	parent := pack.ParentHash
	height := pack.StartHeight
	for _, h := range pack.Headers {
		p.ancestry[h] = parent
		p.heights[h] = height
		p.byHeight[height] = h
		parent = h
		height++
	}
	if len(pack.Headers) > 0 {
		p.tip = processor.Tip{Height: height - 1, Hash: parent, Work: core.DHashUint64(height - 1)}
		if p.obs.OnStateChanged != nil {
			p.obs.OnStateChanged(p.tip.Height, p.tip.Hash)
		}
	}
	return nil
}

func (p *Processor) SubmitBody(blockID core.HashT, raw []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.heights[blockID]; !ok {
		return fmt.Errorf("unknown block id %s", blockID)
	}
	p.knownBodies[blockID] = raw
	return nil
}

func (p *Processor) SubmitTx(raw []byte, depCtx *core.HashT) (processor.TxStatus, core.HashT, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fp := core.DHashBytes(raw)
	if _, ok := p.knownTxs[fp]; ok {
		return processor.TxAlreadyKnown, fp, nil
	}
	if len(raw) == 0 {
		return processor.TxInvalid, fp, nil
	}
	p.knownTxs[fp] = raw
	return processor.TxAccepted, fp, nil
}

func (p *Processor) TxFingerprint(raw []byte) core.HashT {
	return core.DHashBytes(raw)
}

func (p *Processor) TxFeeRate(raw []byte) uint64 {
	if len(raw) == 0 {
		return 0
	}
	// Deterministic stand-in: derive a plausible fee-rate from tx bytes.
	return core.DHashBytes(raw).BigInt().Uint64() % 10_000
}

func (p *Processor) Rollback(toHeight uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tip.Height-toHeight > p.maxAutoRollback {
		return fmt.Errorf("rollback of %d blocks exceeds max auto rollback %d", p.tip.Height-toHeight, p.maxAutoRollback)
	}
	fromHeight := p.tip.Height
	p.tip = processor.Tip{Height: toHeight, Hash: p.tip.Hash}
	if p.obs.OnRolledBack != nil {
		p.obs.OnRolledBack(fromHeight, toHeight)
	}
	return nil
}

func (p *Processor) LCA(candidateTip core.HashT) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.heights[candidateTip]
	if !ok {
		return 0, fmt.Errorf("unknown candidate tip %s", candidateTip)
	}
	return h, nil
}

// MiningTarget derives a deterministic stand-in target from the next
// height, the same DHashUint64 pattern already used for Tip.Work.
func (p *Processor) MiningTarget() core.HashT {
	p.mu.Lock()
	defer p.mu.Unlock()
	return core.DHashUint64(p.tip.Height + 1)
}

func (p *Processor) HeadersFrom(fromHeight, count uint64) (core.HashT, []core.HashT, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fromHeight > p.tip.Height || count == 0 {
		return core.HashT{}, nil, false
	}
	parent := core.HashT{}
	if fromHeight > 0 {
		parent = p.byHeight[fromHeight-1]
	}
	end := fromHeight + count - 1
	if end > p.tip.Height {
		end = p.tip.Height
	}
	headers := make([]core.HashT, 0, end-fromHeight+1)
	for h := fromHeight; h <= end; h++ {
		headers = append(headers, p.byHeight[h])
	}
	return parent, headers, true
}

func (p *Processor) Body(blockID core.HashT) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw, ok := p.knownBodies[blockID]
	return raw, ok
}

// ServeOpaque has nothing to answer with: the fake processor tracks no
// proof, contract, or event state at all.
func (p *Processor) ServeOpaque(kind string, payload []byte) ([]byte, bool) {
	return nil, false
}
