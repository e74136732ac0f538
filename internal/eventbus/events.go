package eventbus

import (
	"time"

	"github.com/duskchain/fullnode/pkg/core"
)

// PeerConnectedEvent fires once a raw connection has completed handshake.
type PeerConnectedEvent struct {
	PeerID     string
	Addr       string
	WeInitiated bool
}

// PeerClosingEvent fires as a peer session tears down.
type PeerClosingEvent struct {
	PeerID string
	Reason string
}

// PeerLoggedInEvent fires once a peer has exchanged Login and is task-eligible.
type PeerLoggedInEvent struct {
	PeerID       string
	Flags        uint16
	TipHeight    uint64
	MinPeerFork  uint64
}

// PeerAnnouncedAddrEvent records a peer's self-reported dial-back address.
type PeerAnnouncedAddrEvent struct {
	PeerID string
	Addr   string
}

// PeersReceivedEvent carries an address book fragment from a peer.
type PeersReceivedEvent struct {
	FromPeerID string
	PeerAddrs  map[string]string
}

// PeersRequestedEvent is raised when a peer asks for our address book.
type PeersRequestedEvent struct {
	PeerID string
}

// SendPeersEvent instructs a peer session to transmit an address book fragment.
type SendPeersEvent struct {
	TargetPeerID string
	PeerAddrs    map[string]string
}

// ShouldAnnounceAddrEvent instructs a peer session to announce our dial-back addr.
type ShouldAnnounceAddrEvent struct {
	TargetPeerID string
	Addr         string
}

// ShouldRequestPeersEvent instructs a peer session to request its peer's address book.
type ShouldRequestPeersEvent struct {
	TargetPeerID string
}

// BeaconRxEvent is a UDP beacon broadcast received from the local network.
type BeaconRxEvent struct {
	NodeID     string
	ListenAddr string
}

// PeerTipAdvertisedEvent records a peer's declared chain tip.
type PeerTipAdvertisedEvent struct {
	PeerID     string
	TipHeight  uint64
	TipHash    core.HashT
}

// HdrPackReceivedEvent carries a header pack, as decoded from a peer, up to
// the sync controller, which checks its continuity.
type HdrPackReceivedEvent struct {
	PeerID      string
	ParentHash  core.HashT
	HeaderHashes []core.HashT
}

// BodyReceivedEvent reports up to the sync controller that a peer delivered
// the body of BlockID; the body bytes themselves are not carried.
type BodyReceivedEvent struct {
	PeerID  string
	BlockID core.HashT
	Height  uint64
}

// TaskAssignedEvent instructs a peer session to send a GetHdrPack or
// GetBodyPack request for a task the registry just bound to it.
type TaskAssignedEvent struct {
	TargetPeerID string
	IsBody       bool
	BlockID      core.HashT
	FromHeight   uint64
}

// TaskTimedOutEvent fires when an outstanding fetch task's deadline elapses.
type TaskTimedOutEvent struct {
	PeerID  string
	BlockID core.HashT
	IsBody  bool
}

// NewStateEvent mirrors the Processor's OnNewState callback.
type NewStateEvent struct {
	Height uint64
	Hash   core.HashT
}

// RolledBackEvent mirrors the Processor's OnRolledBack callback.
type RolledBackEvent struct {
	FromHeight uint64
	ToHeight   uint64
}

// SyncProgressEvent reports weighted sync completion.
type SyncProgressEvent struct {
	Done  uint64
	Total uint64
}

// SyncErrorEvent mirrors the Processor's OnSyncError callback.
type SyncErrorEvent struct {
	Reason string
}

// TxReceivedEvent carries a newly-arrived transaction into the mempool.
type TxReceivedEvent struct {
	FromPeerID string // empty if locally originated
	TxID       core.HashT
	Raw        []byte
	Fluff      bool
	DepCtx     *core.HashT
}

// TxRelayedEvent fires once a tx has been dispatched to a peer (stem or fluff).
type TxRelayedEvent struct {
	TxID       core.HashT
	Raw        []byte
	TargetPeerID string
	Fluff      bool
}

// HeadersRequestedEvent fires when a peer asks for a run of headers, either
// as a single header, an enumeration, or a full pack.
type HeadersRequestedEvent struct {
	PeerID     string
	FromHeight uint64
	Count      uint64
}

// HeadersReadyEvent instructs a peer session to answer a headers request.
type HeadersReadyEvent struct {
	TargetPeerID string
	ParentHash   core.HashT
	StartHeight  uint64
	HeaderIDs    []core.HashT
}

// BodiesRequestedEvent fires when a peer asks for one or more block bodies.
type BodiesRequestedEvent struct {
	PeerID   string
	BlockIDs []core.HashT
}

// BodiesReadyEvent instructs a peer session to answer a bodies request.
type BodiesReadyEvent struct {
	TargetPeerID string
	Bodies       map[core.HashT][]byte
}

// TxRequestedEvent fires when a peer asks for a transaction by fingerprint.
type TxRequestedEvent struct {
	PeerID string
	TxID   core.HashT
}

// TxReadyEvent instructs a peer session to answer a transaction request.
type TxReadyEvent struct {
	TargetPeerID string
	Raw          []byte
}

// OpaqueQueryEvent carries a proof, contract, or event query payload this
// module never interprets up to the Processor to answer.
type OpaqueQueryEvent struct {
	PeerID  string
	Kind    string
	Payload []byte
}

// OpaqueReplyEvent instructs a peer session to answer an opaque query.
type OpaqueReplyEvent struct {
	TargetPeerID string
	Kind         string
	Payload      []byte
}

// DataMissingEvent instructs a peer session to report that a requested item
// isn't held.
type DataMissingEvent struct {
	TargetPeerID string
	Kind         string
	ID           core.HashT
}

// BbsPublishEvent carries a new bulletin-board message for storage/fan-out.
type BbsPublishEvent struct {
	Channel string
	MsgID   core.HashT
	Payload []byte
	Expiry  time.Time
}

// BbsSubscribeEvent registers a peer's interest in a bbs channel.
type BbsSubscribeEvent struct {
	PeerID  string
	Channel string
	Since   time.Time
}

// BbsMsgRequestedEvent fires when a peer asks for one stored message by id.
type BbsMsgRequestedEvent struct {
	PeerID  string
	Channel string
	MsgID   core.HashT
}

// BbsDeliveredEvent instructs a peer session to forward a bbs message.
type BbsDeliveredEvent struct {
	TargetPeerID string
	Channel      string
	MsgID        core.HashT
	Payload      []byte
}

// DependentContextSetEvent carries a peer-announced dependent-tx chain head.
type DependentContextSetEvent struct {
	PeerID    string
	ParentCtx core.HashT
	NewCtx    core.HashT
}

// MinerTargetChangedEvent instructs the miner to rebuild its template.
type MinerTargetChangedEvent struct {
	Head      core.HashT
	Height    uint64
	Target    core.HashT
	TxIDs     []core.HashT
}

// MinerSolutionFoundEvent reports that a mining job was solved; the node
// logs it.
type MinerSolutionFoundEvent struct {
	JobID  uint64
	Height uint64
}

// PrintUpdateEvent requests components print a diagnostic summary line.
type PrintUpdateEvent struct {
	Component string
}

// TerminateCommand requests an orderly node shutdown.
type TerminateCommand struct {
	Reason string
}
