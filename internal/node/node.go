// Package node wires every component into the single-reactor-thread node
// core: one goroutine per peer session, one for the address book, one for
// the miner coordinator, and everything else - task assignment, mempool
// admission, sync state, bbs replication, dependent-tx chaining - driven
// from this package's own reactor loop, the pattern the teacher used for
// its peer and peerfactory loops generalized to the whole node.
package node

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/duskchain/fullnode/internal/adminhttp"
	"github.com/duskchain/fullnode/internal/bbs"
	"github.com/duskchain/fullnode/internal/beacon"
	"github.com/duskchain/fullnode/internal/config"
	"github.com/duskchain/fullnode/internal/depchain"
	"github.com/duskchain/fullnode/internal/eventbus"
	"github.com/duskchain/fullnode/internal/mempool"
	"github.com/duskchain/fullnode/internal/metrics"
	"github.com/duskchain/fullnode/internal/miner"
	"github.com/duskchain/fullnode/internal/netconn"
	"github.com/duskchain/fullnode/internal/peer"
	"github.com/duskchain/fullnode/internal/peermgr"
	"github.com/duskchain/fullnode/internal/processor"
	"github.com/duskchain/fullnode/internal/store"
	"github.com/duskchain/fullnode/internal/syncctl"
	"github.com/duskchain/fullnode/internal/task"
	"github.com/duskchain/fullnode/internal/wanted"
	"github.com/duskchain/fullnode/internal/workerpool"
	"github.com/duskchain/fullnode/pkg/core"
	"github.com/duskchain/fullnode/pkg/topic"
)

// peerState is the node's local bookkeeping for one connected session,
// enough to build a task.Candidate each assignment round without asking
// the peer package to know about tasks.
type peerState struct {
	session      *peer.Session
	loggedIn     bool
	tipHeight    uint64
	tipHash      core.HashT
	latencyMs    int64
	rejected     map[task.Key]bool
}

// pendingTx is an in-flight tx admission verification job offloaded to the
// worker pool; onWorkerJobDone completes it back on the reactor thread once
// the opaque processor has finished the CPU-heavy validation work.
type pendingTx struct {
	fp         core.HashT
	raw        []byte
	fromPeerID string
	fluff      bool
	depCtx     *core.HashT
	status     processor.TxStatus
}

type subscriptions struct {
	PeerLoggedIn        *topic.SubCh[eventbus.PeerLoggedInEvent]
	PeerClosing         *topic.SubCh[eventbus.PeerClosingEvent]
	PeerTipAdvertised   *topic.SubCh[eventbus.PeerTipAdvertisedEvent]
	HdrPackReceived     *topic.SubCh[eventbus.HdrPackReceivedEvent]
	BodyReceived        *topic.SubCh[eventbus.BodyReceivedEvent]
	TxReceived          *topic.SubCh[eventbus.TxReceivedEvent]
	BbsPublish          *topic.SubCh[eventbus.BbsPublishEvent]
	BbsSubscribe        *topic.SubCh[eventbus.BbsSubscribeEvent]
	BbsMsgRequested     *topic.SubCh[eventbus.BbsMsgRequestedEvent]
	DependentContextSet *topic.SubCh[eventbus.DependentContextSetEvent]
	MinerSolutionFound  *topic.SubCh[eventbus.MinerSolutionFoundEvent]
	HeadersRequested    *topic.SubCh[eventbus.HeadersRequestedEvent]
	BodiesRequested     *topic.SubCh[eventbus.BodiesRequestedEvent]
	TxRequested         *topic.SubCh[eventbus.TxRequestedEvent]
	OpaqueQuery         *topic.SubCh[eventbus.OpaqueQueryEvent]
	NewState            *topic.SubCh[eventbus.NewStateEvent]
	RolledBack          *topic.SubCh[eventbus.RolledBackEvent]
	SyncError           *topic.SubCh[eventbus.SyncErrorEvent]
}

// Node owns every peer session, the task and want registries, the mempool,
// dependent-tx chain, bulletin board, sync controller, and miner
// coordinator, per the ownership rule that nothing outside this package
// mutates their state directly.
type Node struct {
	cfg     config.Config
	bus     *eventbus.Bus
	log     zerolog.Logger
	metrics *metrics.Registry
	proc    processor.Processor
	st      store.Store
	pool    *workerpool.Pool

	mgr    *peermgr.Manager
	sync   *syncctl.Controller
	miner  *miner.Coordinator
	beacon *beacon.Beacon
	admin  *adminhttp.Server

	tasks         *task.Registry
	wantedHeaders *wanted.Registry
	wantedBodies  *wanted.Registry
	mem           *mempool.Pool
	dep           *depchain.Chain
	board         *bbs.Board

	subs *subscriptions

	mu    sync.Mutex
	peers map[string]*peerState

	nextJobID  uint64
	pendingTx  map[uint64]*pendingTx

	caps task.Caps
}

// New wires every component onto bus, the caller-supplied event bus. bus is
// supplied rather than constructed here so a processor.Observer built
// before the node exists (main.go wires it at Processor construction time)
// can publish onto the same bus this node reads from. solver is the
// external mining job queue; a nil solver disables the miner coordinator
// entirely.
func New(cfg config.Config, bus *eventbus.Bus, proc processor.Processor, st store.Store, solver miner.ExternalSolver, log zerolog.Logger, reg *metrics.Registry) *Node {
	tip := proc.Tip()

	taskRegistry := task.New()
	n := &Node{
		cfg:     cfg,
		bus:     bus,
		log:     log,
		metrics: reg,
		proc:    proc,
		st:      st,
		pool:    workerpool.New(context.Background(), cfg.VerifyThreads),
		mgr: peermgr.New(peermgr.Params{
			RuntimeID:     cfg.RuntimeID,
			ListenAddr:    cfg.ListenAddr,
			Listen:        cfg.Listen,
			MinPeers:      cfg.MinPeers,
			MaxPeers:      cfg.MaxPeers,
			SeekPeersFreq: cfg.SeekPeersFreq,
			SeedAddrs:     cfg.ConnectAddrs,
		}, bus, log.With().Str("subsystem", "peermgr").Logger()),
		sync: syncctl.New(syncctl.Params{
			MaxAutoRollback:       cfg.Sync.MaxAutoRollback,
			RollbackTimeoutSince:  cfg.Sync.RollbackTimeoutSince,
			TipGapResyncThreshold: cfg.Sync.TipGapResyncThreshold,
		}, proc, taskRegistry, bus, log.With().Str("subsystem", "syncctl").Logger()),
		tasks:         taskRegistry,
		wantedHeaders: wanted.New(30 * time.Second),
		wantedBodies:  wanted.New(60 * time.Second),
		mem: mempool.New(mempool.Params{
			FluffProbability: cfg.Dandelion.FluffProbability,
			TimeoutMin:       cfg.Dandelion.TimeoutMin,
			TimeoutMax:       cfg.Dandelion.TimeoutMax,
			OutputsMin:       cfg.Dandelion.OutputsMin,
			OutputsMax:       cfg.Dandelion.OutputsMax,
			StemConfirmDepth: cfg.Dandelion.StemConfirmDepth,
			MaxCount:         cfg.Mempool.MaxCount,
			MaxBytes:         cfg.Mempool.MaxBytes,
			DummyLifetimeLo:  cfg.Dandelion.DummyLifetimeLo,
			DummyLifetimeHi:  cfg.Dandelion.DummyLifetimeHi,
		}),
		dep: depchain.New(tip.Hash),
		board: bbs.New(bbs.Limits{
			MaxCount: cfg.Bbs.MaxCount,
			MaxBytes: cfg.Bbs.MaxBytes,
		}),
		peers:     make(map[string]*peerState),
		pendingTx: make(map[uint64]*pendingTx),
		caps: task.Caps{
			MaxConcurrentHdrPacks: cfg.Sync.MaxConcurrentHdrPacks,
			MaxConcurrentBodies:   cfg.Sync.MaxConcurrentBodies,
			MaxPerPeerHeaders:     4,
			MaxPerPeerBodies:      16,
		},
	}
	if solver != nil {
		n.miner = miner.New(miner.Params{SoftRestart: 30 * time.Second}, bus, log.With().Str("subsystem", "miner").Logger(), solver)
	}
	if cfg.BeaconPort != 0 {
		n.beacon = beacon.New(beacon.Params{
			Port: cfg.BeaconPort, BroadcastFreq: 5 * time.Second,
			NodeID: cfg.RuntimeID, ListenAddr: cfg.ListenAddr,
		}, bus, log.With().Str("subsystem", "beacon").Logger())
	}
	var gatherer prometheus.Gatherer
	if reg != nil {
		gatherer = reg.Gatherer
	}
	n.admin = adminhttp.New(adminhttp.Params{
		Addr: cfg.AdminHTTPAddr, Password: cfg.AdminPassword, Enabled: cfg.AdminEnabled, Version: "duskd/0",
	}, bus, func() any { return n.Status() }, gatherer, log.With().Str("subsystem", "adminhttp").Logger())
	n.subs = &subscriptions{
		PeerLoggedIn:        bus.PeerLoggedIn.SubCh(),
		PeerClosing:         bus.PeerClosing.SubCh(),
		PeerTipAdvertised:   bus.PeerTipAdvertised.SubCh(),
		HdrPackReceived:     bus.HdrPackReceived.SubCh(),
		BodyReceived:        bus.BodyReceived.SubCh(),
		TxReceived:          bus.TxReceived.SubCh(),
		BbsPublish:          bus.BbsPublish.SubCh(),
		BbsSubscribe:        bus.BbsSubscribe.SubCh(),
		BbsMsgRequested:     bus.BbsMsgRequested.SubCh(),
		DependentContextSet: bus.DependentContextSet.SubCh(),
		MinerSolutionFound:  bus.MinerSolutionFound.SubCh(),
		HeadersRequested:    bus.HeadersRequested.SubCh(),
		BodiesRequested:     bus.BodiesRequested.SubCh(),
		TxRequested:         bus.TxRequested.SubCh(),
		OpaqueQuery:         bus.OpaqueQuery.SubCh(),
		NewState:            bus.NewState.SubCh(),
		RolledBack:          bus.RolledBack.SubCh(),
		SyncError:           bus.SyncError.SubCh(),
	}
	return n
}

// Bus exposes the event bus. internal/adminhttp does not call it; it is
// handed the bus directly by its constructor.
func (n *Node) Bus() *eventbus.Bus { return n.bus }

// Run starts every component's goroutine and blocks running the node's own
// reactor loop until ctx is cancelled.
func (n *Node) Run(ctx context.Context) {
	go n.mgr.Loop()
	if n.miner != nil {
		go n.miner.Loop()
	}
	if n.beacon != nil {
		go n.beacon.Run(ctx)
	}
	go func() {
		if err := n.admin.Run(); err != nil {
			n.log.Warn().Err(err).Msg("admin http server stopped")
		}
	}()

	assignTicker := time.NewTicker(1 * time.Second)
	defer assignTicker.Stop()
	maintTicker := time.NewTicker(n.cfg.Bbs.CleanupInterval)
	defer maintTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-n.mgr.NewConns():
			n.promoteConn(conn)

		case event := <-n.subs.PeerLoggedIn.C:
			n.onPeerLoggedIn(event)

		case event := <-n.subs.PeerClosing.C:
			n.onPeerClosing(event)

		case event := <-n.subs.PeerTipAdvertised.C:
			n.onPeerTip(event)

		case event := <-n.subs.HdrPackReceived.C:
			n.onHdrPack(event)

		case event := <-n.subs.BodyReceived.C:
			n.onBody(event)

		case event := <-n.subs.TxReceived.C:
			n.onTx(event)

		case event := <-n.subs.BbsPublish.C:
			n.onBbsPublish(event)

		case event := <-n.subs.BbsSubscribe.C:
			n.onBbsSubscribe(event)

		case event := <-n.subs.BbsMsgRequested.C:
			n.onBbsMsgRequested(event)

		case event := <-n.subs.DependentContextSet.C:
			n.onDependentContext(event)

		case event := <-n.subs.MinerSolutionFound.C:
			n.log.Info().Uint64("job_id", event.JobID).Uint64("height", event.Height).Msg("miner solution found")

		case event := <-n.subs.HeadersRequested.C:
			n.onHeadersRequested(event)

		case event := <-n.subs.BodiesRequested.C:
			n.onBodiesRequested(event)

		case event := <-n.subs.TxRequested.C:
			n.onTxRequested(event)

		case event := <-n.subs.OpaqueQuery.C:
			n.onOpaqueQuery(event)

		case event := <-n.subs.NewState.C:
			n.onNewState(event)

		case event := <-n.subs.RolledBack.C:
			n.onRolledBack(event)

		case event := <-n.subs.SyncError.C:
			n.onSyncError(event)

		case result := <-n.pool.Done():
			n.onWorkerJobDone(result)

		case <-assignTicker.C:
			n.driveSync()
			n.checkTaskDeadlines(time.Now())
			n.assignPendingTasks()
			n.sweepExpiredStems()
			n.expireWantedItems()
			n.reportMetrics()

		case <-maintTicker.C:
			n.board.Cleanup(time.Now())
		}
	}
}

// promoteConn spins up a peer session for a freshly-handshaken connection
// and registers it in the address book as connected.
func (n *Node) promoteConn(conn *netconn.Conn) {
	sess := peer.New(n.bus, n.log.With().Str("subsystem", "peer").Logger(), conn, minSupportedFork)
	n.mu.Lock()
	n.peers[sess.PeerID] = &peerState{session: sess, rejected: make(map[task.Key]bool)}
	n.mu.Unlock()
	n.mgr.MarkConnected(sess.PeerID)
	n.bus.PeerAnnouncedAddr.Pub(eventbus.PeerAnnouncedAddrEvent{PeerID: sess.PeerID, Addr: sess.RemoteAddr})
	go sess.Loop()
}

// minSupportedFork is the lowest MinPeerFork value this node accepts during
// login; a plain constant since no fork-activation schedule module exists
// in this scope.
const minSupportedFork = 0
