package node

import (
	"context"
	"time"

	"github.com/duskchain/fullnode/internal/bbs"
	"github.com/duskchain/fullnode/internal/eventbus"
	"github.com/duskchain/fullnode/internal/mempool"
	"github.com/duskchain/fullnode/internal/peer"
	"github.com/duskchain/fullnode/internal/processor"
	"github.com/duskchain/fullnode/internal/syncctl"
	"github.com/duskchain/fullnode/internal/task"
	"github.com/duskchain/fullnode/internal/workerpool"
	"github.com/duskchain/fullnode/pkg/core"
)

func (n *Node) onPeerLoggedIn(event eventbus.PeerLoggedInEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ps, ok := n.peers[event.PeerID]
	if !ok {
		return
	}
	ps.loggedIn = true
}

func (n *Node) onPeerClosing(event eventbus.PeerClosingEvent) {
	n.mu.Lock()
	delete(n.peers, event.PeerID)
	n.mu.Unlock()

	n.tasks.ReassignAllOf(event.PeerID)
	now := time.Now()
	for _, entry := range n.mem.DropStemsForwardedTo(event.PeerID) {
		if n.mem.AdmitFluff(entry.Fingerprint, entry.Raw, core.HashT{}, entry.FeeReserve, now) == mempool.Accepted {
			n.fanoutFluff(entry.Fingerprint, entry.Raw, "")
		}
	}
	n.board.TeardownPeer(event.PeerID)
	if n.metrics != nil {
		n.metrics.PeerDisconnects.WithLabelValues(event.Reason).Inc()
	}
}

func (n *Node) onPeerTip(event eventbus.PeerTipAdvertisedEvent) {
	n.mu.Lock()
	if ps, ok := n.peers[event.PeerID]; ok {
		ps.tipHeight = event.TipHeight
		ps.tipHash = event.TipHash
	}
	n.mu.Unlock()
	n.sync.OnPeerTip(event.PeerID, event.TipHeight, event.TipHash, time.Now())
}

// driveSync converts the sync controller's current state into outstanding
// fetch tasks: one header-pack task keyed by our current tip while in
// HeaderSync, one body task per block hash the store enumerates from the
// fast-sync window's lower bound H0 upward while in FastSyncBodies (hashes
// are not checked against bodies already fetched). The wanted registries dedupe repeated
// requests for the same item across ticks until it is fulfilled or expires.
func (n *Node) driveSync() {
	now := time.Now()
	tip := n.proc.Tip()

	switch n.sync.State() {
	case syncctl.HeaderSync:
		if n.wantedHeaders.Want(tip.Hash, now) {
			n.tasks.Request(task.Key{BlockID: tip.Hash, IsBody: false}, tip.Hash, nil)
		}

	case syncctl.FastSyncBodies:
		window := n.sync.Window()
		hashes, err := n.st.Enumerate(window.H0)
		if err != nil {
			return
		}
		for _, h := range hashes {
			if n.wantedBodies.Want(h, now) {
				win := task.FastSyncWindow{H0: window.H0, HTxoLo: window.HTxoLo}
				n.tasks.Request(task.Key{BlockID: h, IsBody: true}, tip.Hash, &win)
			}
		}
	}
}

// expireWantedItems drops stale want-registrations so driveSync retries
// them against a possibly different peer next tick; the bound task itself
// is separately retried via TaskTimedOutEvent once its assigned peer
// misses its deadline.
func (n *Node) expireWantedItems() {
	now := time.Now()
	expiredHeaders := n.wantedHeaders.ExpireBefore(now)
	expiredBodies := n.wantedBodies.ExpireBefore(now)
	if len(expiredHeaders)+len(expiredBodies) > 0 {
		n.log.Debug().Int("headers", len(expiredHeaders)).Int("bodies", len(expiredBodies)).Msg("wanted items expired")
	}
}

func (n *Node) onHdrPack(event eventbus.HdrPackReceivedEvent) {
	n.tasks.Complete(task.Key{BlockID: event.ParentHash, IsBody: false})
	n.wantedHeaders.Fulfil(event.ParentHash)
	if err := n.sync.OnHeaderPack(event.ParentHash, event.HeaderHashes); err != nil {
		n.log.Warn().Err(err).Str("peer_id", event.PeerID).Msg("header pack rejected")
		n.mu.Lock()
		if ps, ok := n.peers[event.PeerID]; ok {
			ps.rejected[task.Key{BlockID: event.ParentHash, IsBody: false}] = true
		}
		n.mu.Unlock()
		if len(event.HeaderHashes) == 0 {
			return
		}
		candidateTip := event.HeaderHashes[len(event.HeaderHashes)-1]
		if rbErr := n.sync.TryRollback(candidateTip, time.Now()); rbErr != nil {
			n.log.Warn().Err(rbErr).Str("peer_id", event.PeerID).Msg("branch rollback refused")
		}
	}
}

func (n *Node) onBody(event eventbus.BodyReceivedEvent) {
	key := task.Key{BlockID: event.BlockID, IsBody: true}
	n.tasks.Complete(key)
	n.wantedBodies.Fulfil(event.BlockID)
	if err := n.sync.OnBodyApplied(event.BlockID, nil); err != nil {
		n.log.Warn().Err(err).Str("peer_id", event.PeerID).Msg("body rejected")
	}
}

// onTx offloads the opaque processor's signature/proof verification of a
// freshly-arrived transaction to the worker pool, per the concurrency
// model's rule that only cheap bookkeeping runs on the reactor thread.
// admitVerifiedTx picks the result back up once the job completes.
func (n *Node) onTx(event eventbus.TxReceivedEvent) {
	fp := n.proc.TxFingerprint(event.Raw)
	if n.mem.Has(fp) {
		if n.metrics != nil {
			n.metrics.TxAdmitted.WithLabelValues(processor.TxAlreadyKnown.String()).Inc()
		}
		return
	}

	n.nextJobID++
	jobID := n.nextJobID
	pending := &pendingTx{fp: fp, raw: event.Raw, fromPeerID: event.FromPeerID, fluff: event.Fluff, depCtx: event.DepCtx}
	n.pendingTx[jobID] = pending

	if err := n.pool.Submit(workerpool.Job{ID: jobID, Work: func(ctx context.Context) error {
		status, _, err := n.proc.SubmitTx(pending.raw, pending.depCtx)
		pending.status = status
		return err
	}}); err != nil {
		delete(n.pendingTx, jobID)
		n.log.Warn().Err(err).Msg("tx verification job rejected by worker pool")
	}
}

func (n *Node) onWorkerJobDone(result workerpool.Result) {
	pending, ok := n.pendingTx[result.ID]
	if !ok {
		return
	}
	delete(n.pendingTx, result.ID)
	if n.metrics != nil {
		n.metrics.TxAdmitted.WithLabelValues(pending.status.String()).Inc()
	}
	if result.Err != nil || pending.status != processor.TxAccepted {
		return
	}
	n.admitVerifiedTx(pending)
}

func (n *Node) admitVerifiedTx(pending *pendingTx) {
	feeRate := n.proc.TxFeeRate(pending.raw)
	candidates := n.connectedPeerIDs(pending.fromPeerID)
	now := time.Now()
	if pending.fluff {
		n.mem.AdmitFluff(pending.fp, pending.raw, core.HashT{}, feeRate, now)
		n.fanoutFluff(pending.fp, pending.raw, pending.fromPeerID)
		return
	}
	result, forward := n.mem.AdmitStemOrFluff(pending.fp, pending.raw, core.HashT{}, feeRate, pending.fromPeerID, candidates, now)
	if result != mempool.Accepted {
		return
	}
	if forward == "" {
		n.mem.TransitionToFluff(pending.fp, now)
		n.fanoutFluff(pending.fp, pending.raw, pending.fromPeerID)
		return
	}
	n.bus.TxRelayed.Pub(eventbus.TxRelayedEvent{TxID: pending.fp, Raw: pending.raw, TargetPeerID: forward, Fluff: false})
}

func (n *Node) fanoutFluff(fp core.HashT, raw []byte, exclude string) {
	for _, peerID := range n.connectedPeerIDs(exclude) {
		n.bus.TxRelayed.Pub(eventbus.TxRelayedEvent{TxID: fp, Raw: raw, TargetPeerID: peerID, Fluff: true})
	}
}

func (n *Node) onBbsPublish(event eventbus.BbsPublishEvent) {
	msg := bbs.Message{Channel: event.Channel, MsgID: event.MsgID, Payload: event.Payload, Expiry: event.Expiry}
	result, targets := n.board.Publish(msg, time.Now())
	if result != bbs.Published {
		return
	}
	for _, peerID := range targets {
		n.bus.BbsDelivered.Pub(eventbus.BbsDeliveredEvent{
			TargetPeerID: peerID, Channel: event.Channel, MsgID: event.MsgID, Payload: event.Payload,
		})
	}
}

func (n *Node) onBbsSubscribe(event eventbus.BbsSubscribeEvent) {
	backlog := n.board.Subscribe(event.PeerID, event.Channel, event.Since)
	for _, msg := range backlog {
		n.bus.BbsDelivered.Pub(eventbus.BbsDeliveredEvent{
			TargetPeerID: event.PeerID, Channel: msg.Channel, MsgID: msg.MsgID, Payload: msg.Payload,
		})
	}
}

func (n *Node) onDependentContext(event eventbus.DependentContextSetEvent) {
	if event.ParentCtx != n.dep.Head() {
		return
	}
	n.dep.Append(event.ParentCtx, event.NewCtx, core.HashT{}, nil)
}

// sweepExpiredStems forces every stem entry whose timeout has elapsed into
// fluff and fans it out immediately, mirroring admitVerifiedTx's own
// fluff path rather than routing through an intermediate event: there is
// no other subscriber that would ever act on a stem timeout.
func (n *Node) sweepExpiredStems() {
	now := time.Now()
	for _, fp := range n.mem.ExpiredStems(now) {
		if !n.mem.TransitionToFluff(fp, now) {
			continue
		}
		raw, ok := n.mem.Raw(fp)
		if !ok {
			continue
		}
		n.fanoutFluff(fp, raw, "")
	}
}

// assignPendingTasks builds this round's candidate set from connected,
// logged-in peers and hands it to the task registry.
func (n *Node) assignPendingTasks() {
	n.mu.Lock()
	candidates := make([]task.Candidate, 0, len(n.peers))
	for id, ps := range n.peers {
		if !ps.loggedIn {
			continue
		}
		queue := n.tasks.QueueOf(id)
		var hdrs, bodies int
		for _, t := range queue {
			if t.Key.IsBody {
				bodies++
			} else {
				hdrs++
			}
		}
		candidates = append(candidates, task.Candidate{
			PeerID:          id,
			Connected:       true,
			LoggedIn:        ps.loggedIn,
			TipHeight:       ps.tipHeight,
			RejectedKeys:    ps.rejected,
			InFlightHeaders: hdrs,
			InFlightBodies:  bodies,
			QueueDepth:      len(queue),
			LatencyMs:       ps.latencyMs,
			AdjustedRating:  n.mgr.AdjustedRating(id, time.Now()),
		})
	}
	n.mu.Unlock()

	for _, a := range n.tasks.AssignPending(time.Now(), candidates, n.caps) {
		n.dispatchTask(a)
	}
	if n.tasks.Unassigned() > 0 && len(candidates) == 0 {
		n.sync.OnCongested()
	}
	n.applyChocking()
}

func (n *Node) dispatchTask(a task.Assignment) {
	n.bus.TaskAssigned.Pub(eventbus.TaskAssignedEvent{
		TargetPeerID: a.PeerID,
		IsBody:       a.Task.Key.IsBody,
		BlockID:      a.Task.Key.BlockID,
		FromHeight:   n.proc.Tip().Height + 1,
	})
	n.log.Debug().Str("peer_id", a.PeerID).Str("kind", a.Task.Kind()).Msg("task assigned")
}

// applyChocking flips FlagChocking on sessions whose bound queue exceeds
// the configured byte threshold, per the per-peer backpressure rule.
func (n *Node) applyChocking() {
	n.mu.Lock()
	defer n.mu.Unlock()
	chocking := 0
	for id, ps := range n.peers {
		bytes := n.tasks.PeerQueueBytes(id)
		isChocking := bytes > n.cfg.Bandwidth.ChockingBytes
		ps.session.SetChocking(isChocking)
		if isChocking {
			chocking++
		}
		if bytes >= n.cfg.Bandwidth.DrownBytes {
			ps.session.RequestClose(peer.ReasonDrown)
		}
	}
	if n.metrics != nil {
		n.metrics.PeersChocking.Set(float64(chocking))
	}
}

func (n *Node) connectedPeerIDs(exclude string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.peers))
	for id, ps := range n.peers {
		if id == exclude || !ps.loggedIn {
			continue
		}
		out = append(out, id)
	}
	return out
}

// taskDeadline bounds how long an assigned fetch task waits for its peer
// before checkTaskDeadlines reclaims it. taskMaxRetries is the number of
// timeouts from the same peer before that peer is barred from being
// reassigned the same task, per task.Registry.Timeout's contract.
const (
	taskDeadline   = 20 * time.Second
	taskMaxRetries = 3
)

// checkTaskDeadlines reclaims fetch tasks whose assigned peer missed its
// deadline, feeding driveSync/assignPendingTasks a fresh shot at a
// different candidate next round.
func (n *Node) checkTaskDeadlines(now time.Time) {
	for _, t := range n.tasks.All() {
		if t.AssignedPeer == "" || now.Sub(t.AssignedTime) < taskDeadline {
			continue
		}
		peerID := t.AssignedPeer
		rejectPeer := n.tasks.Timeout(t.Key, peerID, taskMaxRetries)
		n.bus.TaskTimedOut.Pub(eventbus.TaskTimedOutEvent{PeerID: peerID, BlockID: t.Key.BlockID, IsBody: t.Key.IsBody})
		if n.metrics != nil {
			n.metrics.TasksTimedOut.Inc()
		}
		if rejectPeer {
			n.mu.Lock()
			if ps, ok := n.peers[peerID]; ok {
				ps.rejected[t.Key] = true
			}
			n.mu.Unlock()
		}
	}
}

// onNewState mirrors the Processor's OnNewState callback: the dependent-tx
// chain re-roots at the new tip, stems sitting past their confirm depth are
// forced to fluff, aggregating stems occasionally gain a dummy output, and
// the miner is handed a fresh template target.
func (n *Node) onNewState(event eventbus.NewStateEvent) {
	n.dep.Reset(event.Hash)

	now := time.Now()
	for _, fp := range n.mem.ForcedFluffOnStemConfirm(event.Height) {
		if !n.mem.TransitionToFluff(fp, now) {
			continue
		}
		if raw, ok := n.mem.Raw(fp); ok {
			n.fanoutFluff(fp, raw, "")
		}
	}
	for _, fp := range n.mem.StemFingerprints() {
		n.mem.MaybeInjectDummy(fp, event.Height)
	}

	n.bus.MinerTargetChanged.Pub(eventbus.MinerTargetChangedEvent{
		Head: event.Hash, Height: event.Height,
		Target: n.proc.MiningTarget(), TxIDs: n.mem.FluffFingerprints(),
	})
}

func (n *Node) onRolledBack(event eventbus.RolledBackEvent) {
	tip := n.proc.Tip()
	n.dep.Reset(tip.Hash)
	if n.metrics != nil {
		n.metrics.RollbacksTotal.Inc()
	}
	n.log.Warn().Uint64("from_height", event.FromHeight).Uint64("to_height", event.ToHeight).Msg("chain rolled back")
}

func (n *Node) onSyncError(event eventbus.SyncErrorEvent) {
	n.log.Warn().Str("reason", event.Reason).Msg("sync error")
}

// onHeadersRequested answers a peer's single-header, enumerate, or pack
// request uniformly, since the Processor's HeadersFrom already folds all
// three shapes into a from/count query.
func (n *Node) onHeadersRequested(event eventbus.HeadersRequestedEvent) {
	parentHash, headers, ok := n.proc.HeadersFrom(event.FromHeight, event.Count)
	if !ok {
		n.bus.DataMissing.Pub(eventbus.DataMissingEvent{TargetPeerID: event.PeerID, Kind: "Hdr"})
		return
	}
	n.bus.HeadersReady.Pub(eventbus.HeadersReadyEvent{
		TargetPeerID: event.PeerID, ParentHash: parentHash, StartHeight: event.FromHeight, HeaderIDs: headers,
	})
}

func (n *Node) onBodiesRequested(event eventbus.BodiesRequestedEvent) {
	bodies := make(map[core.HashT][]byte, len(event.BlockIDs))
	for _, id := range event.BlockIDs {
		if raw, ok := n.proc.Body(id); ok {
			bodies[id] = raw
		} else {
			n.bus.DataMissing.Pub(eventbus.DataMissingEvent{TargetPeerID: event.PeerID, Kind: "Body", ID: id})
		}
	}
	if len(bodies) > 0 {
		n.bus.BodiesReady.Pub(eventbus.BodiesReadyEvent{TargetPeerID: event.PeerID, Bodies: bodies})
	}
}

func (n *Node) onTxRequested(event eventbus.TxRequestedEvent) {
	raw, ok := n.mem.Raw(event.TxID)
	if !ok {
		n.bus.DataMissing.Pub(eventbus.DataMissingEvent{TargetPeerID: event.PeerID, Kind: "Transaction", ID: event.TxID})
		return
	}
	n.bus.TxReady.Pub(eventbus.TxReadyEvent{TargetPeerID: event.PeerID, Raw: raw})
}

// onOpaqueQuery relays a proof, contract, or event query straight to the
// Processor, and its raw answer straight back, without interpreting either.
func (n *Node) onOpaqueQuery(event eventbus.OpaqueQueryEvent) {
	response, ok := n.proc.ServeOpaque(event.Kind, event.Payload)
	if !ok {
		n.bus.DataMissing.Pub(eventbus.DataMissingEvent{TargetPeerID: event.PeerID, Kind: event.Kind})
		return
	}
	n.bus.OpaqueReply.Pub(eventbus.OpaqueReplyEvent{TargetPeerID: event.PeerID, Kind: event.Kind, Payload: response})
}

func (n *Node) onBbsMsgRequested(event eventbus.BbsMsgRequestedEvent) {
	msg, ok := n.board.Get(event.MsgID)
	if !ok {
		n.bus.DataMissing.Pub(eventbus.DataMissingEvent{TargetPeerID: event.PeerID, Kind: "BbsMsg", ID: event.MsgID})
		return
	}
	n.bus.BbsDelivered.Pub(eventbus.BbsDeliveredEvent{
		TargetPeerID: event.PeerID, Channel: msg.Channel, MsgID: msg.MsgID, Payload: msg.Payload,
	})
}

func (n *Node) reportMetrics() {
	if n.metrics == nil {
		return
	}
	n.mu.Lock()
	n.metrics.PeersConnected.Set(float64(len(n.peers)))
	n.mu.Unlock()
	n.metrics.TasksUnassigned.Set(float64(n.tasks.Unassigned()))
	n.metrics.MempoolCount.Set(float64(n.mem.Count()))
	n.metrics.MempoolBytes.Set(float64(n.mem.Bytes()))
	n.metrics.StemPoolCount.Set(float64(n.mem.StemCount()))
	n.metrics.BbsCount.Set(float64(n.board.TotalCount()))
	n.metrics.BbsBytes.Set(float64(n.board.TotalBytes()))
	n.metrics.SyncHeight.Set(float64(n.proc.Tip().Height))
}
