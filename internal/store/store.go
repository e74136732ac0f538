// Package store defines the narrow persistence interface the node core
// uses for chain state and bbs history, keeping the actual key/value
// layout opaque per the spec's Database collaborator boundary.
package store

import "github.com/duskchain/fullnode/pkg/core"

// PeerRecord is a persisted address-book entry.
type PeerRecord struct {
	ID     string
	Addr   string
	Rating int64
}

// BbsRecord is a persisted bulletin-board message.
type BbsRecord struct {
	Channel string
	MsgID   core.HashT
	Payload []byte
	Expiry  int64 // unix seconds
}

// Store is the opaque persistence collaborator. Its on-disk layout is not
// this module's concern; callers only see this interface.
type Store interface {
	GetTip() (height uint64, hash core.HashT, err error)
	SaveBlock(height uint64, hash core.HashT, raw []byte) error
	Rollback(toHeight uint64) error
	Enumerate(fromHeight uint64) ([]core.HashT, error)

	GetBbs(channel string) ([]BbsRecord, error)
	SaveBbs(rec BbsRecord) error
	DeleteBbsBefore(cutoffUnix int64) error

	GetPeers() ([]PeerRecord, error)
	SavePeers(recs []PeerRecord) error

	Close() error
}
