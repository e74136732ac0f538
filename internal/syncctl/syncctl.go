// Package syncctl implements the chain sync state machine: header sync,
// fast-sync body fetch within a checkpointed window, tip-following catch-up,
// congestion recovery, and the bounded automatic rollback policy.
package syncctl

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/duskchain/fullnode/internal/eventbus"
	"github.com/duskchain/fullnode/internal/processor"
	"github.com/duskchain/fullnode/internal/task"
	"github.com/duskchain/fullnode/pkg/core"
)

// State is one node of the sync state machine described in §4.2.
type State int

const (
	Idle State = iota
	HeaderSync
	FastSyncBodies
	Tip
	Congested
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case HeaderSync:
		return "HeaderSync"
	case FastSyncBodies:
		return "FastSyncBodies"
	case Tip:
		return "Tip"
	case Congested:
		return "Congested"
	default:
		return "Unknown"
	}
}

// Weights for the weighted SyncProgress reported in §4.2: headers count 1,
// bodies count 8 (bodies are the expensive, fully-applied unit of work).
const (
	headerWeight = 1
	bodyWeight   = 8
)

// Params configures rollback bounds and congestion thresholds.
type Params struct {
	MaxAutoRollback       uint64
	RollbackTimeoutSince  time.Duration
	TipGapResyncThreshold uint64
}

// Controller drives the Processor from peer-advertised tips.
type Controller struct {
	params    Params
	proc      processor.Processor
	tasks     *task.Registry
	bus       *eventbus.Bus
	log       zerolog.Logger
	state     State
	targetTip uint64
	window    processor.FastSyncWindow
	tipAt     time.Time

	headersTotal, headersDone uint64
	bodiesTotal, bodiesDone   uint64
}

// New builds a Controller starting in Idle.
func New(params Params, proc processor.Processor, tasks *task.Registry, bus *eventbus.Bus, log zerolog.Logger) *Controller {
	return &Controller{
		params: params,
		proc:   proc,
		tasks:  tasks,
		bus:    bus,
		log:    log,
		state:  Idle,
		tipAt:  time.Now(),
	}
}

// State reports the controller's current state.
func (c *Controller) State() State { return c.state }

// OnPeerTip handles a peer's advertised tip, per state.
func (c *Controller) OnPeerTip(peerID string, tipHeight uint64, tipHash core.HashT, now time.Time) {
	localTip := c.proc.Tip()

	switch c.state {
	case Idle:
		if tipHeight <= localTip.Height {
			return
		}
		c.beginHeaderSync(localTip.Height, tipHeight)

	case Tip:
		gap := int64(tipHeight) - int64(localTip.Height)
		if gap <= 0 {
			return
		}
		if uint64(gap) > c.params.TipGapResyncThreshold {
			c.beginHeaderSync(localTip.Height, tipHeight)
			return
		}
		if gap == 1 {
			key := task.Key{BlockID: tipHash, IsBody: true}
			c.tasks.Request(key, tipHash, nil)
		}

	case Congested:
		if tipHeight > localTip.Height {
			c.beginHeaderSync(localTip.Height, tipHeight)
		}
	}
}

func (c *Controller) beginHeaderSync(fromHeight, toHeight uint64) {
	c.state = HeaderSync
	c.targetTip = toHeight
	c.headersTotal = toHeight - fromHeight
	c.headersDone = 0
	c.bodiesTotal, c.bodiesDone = 0, 0
	c.bus.SyncProgress.Pub(eventbus.SyncProgressEvent{Done: 0, Total: c.weightedTotal()})
}

// OnHeaderPack validates a delivered pack's continuity and hands it to the
// Processor, enforcing the §8 invariant that the Processor never observes
// a pack whose parent hash mismatches its current tip.
func (c *Controller) OnHeaderPack(parentHash core.HashT, headers []core.HashT) error {
	tip := c.proc.Tip()
	if parentHash != tip.Hash {
		return errParentMismatch(parentHash, tip.Hash)
	}
	if err := c.proc.SubmitHeaderPack(processor.HeaderPack{
		ParentHash: parentHash, Headers: headers, StartHeight: tip.Height + 1,
	}); err != nil {
		return err
	}
	if len(headers) > 0 {
		c.tipAt = time.Now()
	}
	c.headersDone += uint64(len(headers))
	c.publishProgress()

	newTip := c.proc.Tip()
	if newTip.Height >= c.targetTip && c.state == HeaderSync {
		c.window = c.proc.FastSyncWindow(c.targetTip)
		c.bodiesTotal = c.window.HTxoLo - c.window.H0
		c.state = FastSyncBodies
	}
	return nil
}

// Window exposes the active fast-sync window so the node can enqueue body
// tasks for each height once it has mapped height to block id from the
// headers just applied above.
func (c *Controller) Window() processor.FastSyncWindow { return c.window }

// OnBodyApplied records a fast-sync body's application progress.
func (c *Controller) OnBodyApplied(blockID core.HashT, raw []byte) error {
	if err := c.proc.SubmitBody(blockID, raw); err != nil {
		return err
	}
	c.bodiesDone++
	c.publishProgress()
	if c.state == FastSyncBodies && c.bodiesDone >= c.bodiesTotal {
		c.state = Tip
		c.tipAt = time.Now()
	}
	return nil
}

// OnCongested transitions to Congested when no eligible peer can serve
// outstanding tasks.
func (c *Controller) OnCongested() {
	if c.state != Congested {
		c.state = Congested
	}
}

// TryRollback applies the automatic-rollback bound from §4.2: allowed up to
// MaxAutoRollback blocks below the current tip, and only once
// RollbackTimeoutSince has elapsed since the tip was adopted.
func (c *Controller) TryRollback(candidateTipHash core.HashT, now time.Time) error {
	tip := c.proc.Tip()
	lcaHeight, err := c.proc.LCA(candidateTipHash)
	if err != nil {
		return err
	}
	depth := tip.Height - lcaHeight
	if depth > c.params.MaxAutoRollback {
		c.bus.SyncError.Pub(eventbus.SyncErrorEvent{Reason: "rollback exceeds max auto rollback"})
		return errRollbackRefused(depth, c.params.MaxAutoRollback)
	}
	if now.Sub(c.tipAt) < c.params.RollbackTimeoutSince {
		c.bus.SyncError.Pub(eventbus.SyncErrorEvent{Reason: "tip too recent for automatic rollback"})
		return errRollbackTooSoon
	}
	if err := c.proc.Rollback(lcaHeight); err != nil {
		return err
	}
	c.tipAt = now
	return nil
}

func (c *Controller) weightedTotal() uint64 {
	return c.headersTotal*headerWeight + c.bodiesTotal*bodyWeight
}

func (c *Controller) publishProgress() {
	done := c.headersDone*headerWeight + c.bodiesDone*bodyWeight
	c.bus.SyncProgress.Pub(eventbus.SyncProgressEvent{Done: done, Total: c.weightedTotal()})
}
