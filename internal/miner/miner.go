// Package miner implements the block template refresh coordinator that hands
// jobs to an external solver. Adapted from the teacher's single-thread
// nonce-searching miner into a message-passing coordinator per the spec's
// redesign note: template updates and solutions are messages, not shared
// mutable state guarded by a stop-flag mutex.
package miner

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/duskchain/fullnode/internal/eventbus"
	"github.com/duskchain/fullnode/pkg/core"
	"github.com/duskchain/fullnode/pkg/topic"
)

// Template is the immutable block template currently being worked.
type Template struct {
	JobID  uint64
	Head   core.HashT
	Height uint64
	Target core.HashT
	TxIDs  []core.HashT
}

// ExternalSolver is the narrow interface to an out-of-process solver,
// treated per §1 as an opaque job queue with a solution callback.
type ExternalSolver interface {
	Submit(t Template)
	Cancel(jobID uint64)
}

// Params configures a Coordinator.
type Params struct {
	SoftRestart time.Duration
	Internal    bool // not read by Coordinator; no local nonce workers exist
}

type subscriptions struct {
	MinerTargetChanged *topic.SubCh[eventbus.MinerTargetChangedEvent]
}

// Coordinator holds the current mining job and hands it to the external
// solver; it runs no internal worker threads.
type Coordinator struct {
	params   Params
	bus      *eventbus.Bus
	log      zerolog.Logger
	subs     *subscriptions
	solver   ExternalSolver
	current  *Template
	nextJob  uint64
}

// New constructs a Coordinator subscribed to target-changed events.
func New(params Params, bus *eventbus.Bus, log zerolog.Logger, solver ExternalSolver) *Coordinator {
	return &Coordinator{
		params: params,
		bus:    bus,
		log:    log,
		subs:   &subscriptions{MinerTargetChanged: bus.MinerTargetChanged.SubCh()},
		solver: solver,
	}
}

// Loop runs the coordinator's reactor: rebuild the template on every
// OnNewState-derived target change or every SoftRestart tick.
func (c *Coordinator) Loop() {
	defer c.subs.MinerTargetChanged.Close()
	ticker := time.NewTicker(c.params.SoftRestart)
	defer ticker.Stop()
	for {
		select {
		case event := <-c.subs.MinerTargetChanged.C:
			c.rebuild(event)
		case <-ticker.C:
			if c.current != nil {
				c.redispatch()
			}
		}
	}
}

func (c *Coordinator) rebuild(event eventbus.MinerTargetChangedEvent) {
	if c.current != nil {
		c.solver.Cancel(c.current.JobID)
	}
	c.nextJob++
	c.current = &Template{
		JobID:  c.nextJob,
		Head:   event.Head,
		Height: event.Height,
		Target: event.Target,
		TxIDs:  event.TxIDs,
	}
	c.solver.Submit(*c.current)
	c.log.Debug().Uint64("job_id", c.current.JobID).Uint64("height", c.current.Height).Msg("rebuilt mining template")
}

func (c *Coordinator) redispatch() {
	c.solver.Submit(*c.current)
}

// SubmitSolution accepts a solved job id. Stale job ids (not the current
// job) are discarded per §4.7.
func (c *Coordinator) SubmitSolution(jobID uint64) bool {
	if c.current == nil || c.current.JobID != jobID {
		return false
	}
	c.bus.MinerSolutionFound.Pub(eventbus.MinerSolutionFoundEvent{JobID: jobID, Height: c.current.Height})
	return true
}
