// Package wireproto defines the peer-to-peer wire message kinds and their
// payloads. Framing and byte-level codec live in internal/netconn; this
// package only names what can be said on the wire.
package wireproto

import "github.com/duskchain/fullnode/pkg/core"

// Kind identifies a wire message's payload shape.
type Kind string

const (
	// Session
	KindAuthentication  Kind = "Authentication"
	KindBye             Kind = "Bye"
	KindPing            Kind = "Ping"
	KindPong            Kind = "Pong"
	KindLogin           Kind = "Login"
	KindPeerInfoSelf    Kind = "PeerInfoSelf"
	KindPeerInfo        Kind = "PeerInfo"
	KindGetExternalAddr Kind = "GetExternalAddr"

	// Chain
	KindNewTip            Kind = "NewTip"
	KindGetHdr            Kind = "GetHdr"
	KindGetHdrPack        Kind = "GetHdrPack"
	KindHdrPack           Kind = "HdrPack"
	KindEnumHdrs          Kind = "EnumHdrs"
	KindGetBody           Kind = "GetBody"
	KindGetBodyPack       Kind = "GetBodyPack"
	KindBody              Kind = "Body"
	KindBodyPack          Kind = "BodyPack"
	KindDataMissing       Kind = "DataMissing"
	KindGetCommonState    Kind = "GetCommonState"
	KindGetProofState     Kind = "GetProofState"
	KindGetProofChainWork Kind = "GetProofChainWork"

	// Proofs (opaque payloads relayed to/from the Processor)
	KindGetProofKernel        Kind = "GetProofKernel"
	KindGetProofKernel2       Kind = "GetProofKernel2"
	KindGetProofUtxo          Kind = "GetProofUtxo"
	KindGetProofShieldedOutp  Kind = "GetProofShieldedOutp"
	KindGetProofShieldedInp   Kind = "GetProofShieldedInp"
	KindGetProofAsset         Kind = "GetProofAsset"
	KindGetShieldedList       Kind = "GetShieldedList"
	KindGetShieldedOutputsAt  Kind = "GetShieldedOutputsAt"

	// Tx
	KindNewTransaction Kind = "NewTransaction"
	KindHaveTransaction Kind = "HaveTransaction"
	KindGetTransaction Kind = "GetTransaction"

	// BBS
	KindBbsMsg       Kind = "BbsMsg"
	KindBbsHaveMsg   Kind = "BbsHaveMsg"
	KindBbsGetMsg    Kind = "BbsGetMsg"
	KindBbsSubscribe Kind = "BbsSubscribe"
	KindBbsResetSync Kind = "BbsResetSync"

	// Events & contracts (opaque payloads relayed to/from the Processor)
	KindGetEvents         Kind = "GetEvents"
	KindGetStateSummary   Kind = "GetStateSummary"
	KindContractVarsEnum  Kind = "ContractVarsEnum"
	KindContractLogsEnum  Kind = "ContractLogsEnum"
	KindGetContractVar    Kind = "GetContractVar"
	KindGetContractLogProof Kind = "GetContractLogProof"

	// Dependent tx
	KindSetDependentContext Kind = "SetDependentContext"
)

// LoginFlags advertise session capabilities, sent in Login.
type LoginFlags uint16

const (
	FlagSpreadingTransactions LoginFlags = 1 << iota
	FlagBbs
	FlagSendPeers
	FlagMining
	FlagOwner
	FlagViewer
)

func (f LoginFlags) Has(bit LoginFlags) bool { return f&bit != 0 }

// LoginPayload is the Login message body.
type LoginPayload struct {
	Flags       LoginFlags
	MinPeerFork uint64
}

// PeerInfoPayload advertises one address-book entry.
type PeerInfoPayload struct {
	ID   string
	Addr string
}

// NewTipPayload announces a session's chain tip.
type NewTipPayload struct {
	Height uint64
	Hash   core.HashT
}

// GetHdrPackPayload requests a run of headers.
type GetHdrPackPayload struct {
	FromHeight uint64
	Count      uint64
}

// HdrPackPayload carries a contiguous run of headers.
type HdrPackPayload struct {
	ParentHash  core.HashT
	StartHeight uint64
	HeaderIDs   []core.HashT
}

// GetBodyPackPayload requests a run of bodies by id.
type GetBodyPackPayload struct {
	BlockIDs []core.HashT
}

// BodyPackPayload carries fetched bodies keyed by id.
type BodyPackPayload struct {
	Bodies map[core.HashT][]byte
}

// NewTransactionPayload carries a relayed or newly-submitted transaction.
type NewTransactionPayload struct {
	Raw    []byte
	Fluff  bool
	DepCtx *core.HashT
}

// BbsMsgPayload carries one bulletin-board message.
type BbsMsgPayload struct {
	Channel string
	MsgID   core.HashT
	Payload []byte
	Expiry  int64
}

// BbsSubscribePayload registers interest in a channel from a backlog cursor.
type BbsSubscribePayload struct {
	Channel   string
	SinceUnix int64
}

// SetDependentContextPayload informs a peer of a new dependent-tx context head.
type SetDependentContextPayload struct {
	ParentCtx core.HashT
	NewCtx    core.HashT
}

// GetHdrPayload requests a single header by height.
type GetHdrPayload struct {
	Height uint64
}

// EnumHdrsPayload requests a contiguous run of header ids without bodies,
// used to discover height/hash pairs ahead of fetching full packs.
type EnumHdrsPayload struct {
	FromHeight uint64
	Count      uint64
}

// GetBodyPayload requests a single body by id.
type GetBodyPayload struct {
	ID core.HashT
}

// BodyPayload carries one fetched body, in answer to GetBody.
type BodyPayload struct {
	ID  core.HashT
	Raw []byte
}

// GetTransactionPayload requests a transaction by fingerprint.
type GetTransactionPayload struct {
	ID core.HashT
}

// HaveTransactionPayload announces that the sender holds a transaction,
// without pushing its bytes.
type HaveTransactionPayload struct {
	ID core.HashT
}

// BbsHaveMsgPayload announces that the sender holds a bulletin-board
// message, without pushing its bytes.
type BbsHaveMsgPayload struct {
	Channel string
	MsgID   core.HashT
}

// BbsGetMsgPayload requests one bulletin-board message by id.
type BbsGetMsgPayload struct {
	Channel string
	MsgID   core.HashT
}

// BbsResetSyncPayload asks a peer to resend a channel's backlog from scratch.
type BbsResetSyncPayload struct {
	Channel string
}

// DataMissingPayload tells a peer that a requested item isn't held.
type DataMissingPayload struct {
	Kind string
	ID   core.HashT
}

// ByeReason codes a disconnect's cause, sent in Bye before closing.
type ByeReason uint8

const (
	ByeGraceful ByeReason = iota
	ByeProtocolViolation
	ByeTimeout
	ByeInsanePeer
	ByeDrown
	ByeForkTooOld
	ByeBanned
)

// BindingPeerFork is the local minimum accepted fork height. Nothing in this
// module reads it; peer sessions compare a peer's MinPeerFork against the
// value internal/node passes them.
const BindingPeerFork = 0
