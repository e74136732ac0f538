// Package depchain implements the dependent-transaction chain: an off-chain
// sequence of txs each validated against a not-yet-mined context hash
// produced by the previous one, atop the current tip. The whole chain is
// dropped whenever the tip advances.
package depchain

import "github.com/duskchain/fullnode/pkg/core"

// Link is one element of the dependent chain.
type Link struct {
	ParentCtx core.HashT
	NewCtx    core.HashT
	TxID      core.HashT
	Raw       []byte
}

// Chain is the ordered sequence of dependent txs built atop the tip.
type Chain struct {
	tipCtx core.HashT
	byCtx  map[core.HashT]*Link
	order  []core.HashT // ctx hashes in chain order
}

// New builds an empty chain rooted at the given tip context.
func New(tipCtx core.HashT) *Chain {
	return &Chain{
		tipCtx: tipCtx,
		byCtx:  make(map[core.HashT]*Link),
	}
}

// Append validates that parentCtx is either the chain's root tip or the
// most recently appended context, then appends newCtx as its dependent.
func (c *Chain) Append(parentCtx, newCtx, txID core.HashT, raw []byte) bool {
	head := c.tipCtx
	if len(c.order) > 0 {
		head = c.order[len(c.order)-1]
	}
	if parentCtx != head {
		return false
	}
	c.byCtx[newCtx] = &Link{ParentCtx: parentCtx, NewCtx: newCtx, TxID: txID, Raw: raw}
	c.order = append(c.order, newCtx)
	return true
}

// Head returns the context hash the next dependent tx must build on.
func (c *Chain) Head() core.HashT {
	if len(c.order) == 0 {
		return c.tipCtx
	}
	return c.order[len(c.order)-1]
}

// Links returns the chain in order.
func (c *Chain) Links() []*Link {
	out := make([]*Link, len(c.order))
	for i, ctx := range c.order {
		out[i] = c.byCtx[ctx]
	}
	return out
}

// Reset drops the entire chain and re-roots it at a new tip context,
// called on every Processor OnNewState per §4.4: still-valid dependents
// must be resubmitted by peers, this module makes no attempt to replay them.
func (c *Chain) Reset(newTipCtx core.HashT) {
	c.tipCtx = newTipCtx
	c.byCtx = make(map[core.HashT]*Link)
	c.order = nil
}

// Len reports how many dependent txs are currently chained.
func (c *Chain) Len() int { return len(c.order) }
