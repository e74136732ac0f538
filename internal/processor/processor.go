// Package processor defines the narrow interface the node core uses to
// treat block/transaction validation and UTXO/contract state as an opaque
// collaborator. Nothing in this module implements consensus rules,
// signature checks, or PoW verification; those live behind this interface,
// grounded on the InvReader/InvWriter split the teacher used to isolate
// its own chain-state engine.
package processor

import "github.com/duskchain/fullnode/pkg/core"

// TxStatus is the discrete outcome of submitting a transaction for validation.
type TxStatus int

const (
	TxAccepted TxStatus = iota
	TxAlreadyKnown
	TxInvalid
	TxDoubleSpend
	TxTooLowFee
	TxHeightOutOfRange
	TxContextMismatch
)

func (s TxStatus) String() string {
	switch s {
	case TxAccepted:
		return "Accepted"
	case TxAlreadyKnown:
		return "AlreadyKnown"
	case TxInvalid:
		return "Invalid"
	case TxDoubleSpend:
		return "DoubleSpend"
	case TxTooLowFee:
		return "TooLowFee"
	case TxHeightOutOfRange:
		return "HeightOutOfRange"
	case TxContextMismatch:
		return "ContextMismatch"
	default:
		return "Unknown"
	}
}

// HeaderPack is a validated, contiguous run of block headers.
type HeaderPack struct {
	ParentHash core.HashT
	Headers    []core.HashT
	StartHeight uint64
}

// Tip describes the processor's current best-chain head.
type Tip struct {
	Height uint64
	Hash   core.HashT
	Work   core.HashT
	AdoptedAt int64 // unix seconds
}

// FastSyncWindow is the height range whose bodies may be applied against a
// checkpointed UTXO snapshot rather than full from-genesis replay.
type FastSyncWindow struct {
	H0     uint64
	HTxoLo uint64
}

// Processor is the opaque validator and state engine. The core calls into
// it to submit fetched data and reads its current tip; it never inspects
// block or transaction internals directly.
type Processor interface {
	// Tip returns the processor's current best-chain head.
	Tip() Tip

	// FastSyncWindow computes the window to request bodies within, given a
	// target tip height, using the processor's configured horizon.
	FastSyncWindow(targetHeight uint64) FastSyncWindow

	// SubmitHeaderPack hands a validated header pack to the processor. The
	// processor rejects it if the parent hash does not match its current tip.
	SubmitHeaderPack(pack HeaderPack) error

	// SubmitBody hands a fetched block body to the processor for application.
	SubmitBody(blockID core.HashT, raw []byte) error

	// SubmitTx validates a transaction, optionally against a dependent
	// context hash, and returns its admission status.
	SubmitTx(raw []byte, depCtx *core.HashT) (TxStatus, core.HashT, error)

	// TxFingerprint returns the canonical dedup key for a raw transaction
	// without fully validating it.
	TxFingerprint(raw []byte) core.HashT

	// TxFeeRate returns the fee-per-byte the processor computed for a raw tx.
	TxFeeRate(raw []byte) uint64

	// Rollback reverts the chain to ancestor height. Returns an error if the
	// distance exceeds what the processor is willing to do automatically.
	Rollback(toHeight uint64) error

	// LCA returns the height of the last common ancestor between the current
	// tip and a candidate branch identified by its tip hash.
	LCA(candidateTip core.HashT) (uint64, error)

	// MiningTarget returns the PoW target the next block template must meet.
	// Difficulty retargeting itself is out of scope; this exposes whatever
	// value the processor currently holds so the miner coordinator has
	// something concrete to build a Template around.
	MiningTarget() core.HashT

	// HeadersFrom answers a peer's header-pack request: up to count header
	// hashes starting at fromHeight, and the hash immediately preceding
	// fromHeight (its parent). ok is false once fromHeight is past the tip.
	HeadersFrom(fromHeight, count uint64) (parentHash core.HashT, headers []core.HashT, ok bool)

	// Body returns a previously-applied block body's raw bytes, if the
	// processor still holds them.
	Body(blockID core.HashT) (raw []byte, ok bool)

	// ServeOpaque answers the wire protocol's proof, contract, and event
	// query kinds. This module never interprets their payloads; the
	// processor owns their shape entirely. ok is false when it holds no
	// answer for kind.
	ServeOpaque(kind string, payload []byte) (response []byte, ok bool)
}

// Observer is the capability set the processor calls back into, replacing
// the teacher's virtual-observer pattern with a plain struct of funcs
// configured once at construction.
type Observer struct {
	OnSyncProgress func(done, total uint64)
	OnStateChanged func(height uint64, hash core.HashT)
	OnRolledBack   func(fromHeight, toHeight uint64)
	OnSyncError    func(reason string)
}
