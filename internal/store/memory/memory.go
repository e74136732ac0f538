// Package memory implements store.Store entirely in-memory, for tests and
// for running a node without a durable data directory.
package memory

import (
	"sync"

	"github.com/duskchain/fullnode/internal/store"
	"github.com/duskchain/fullnode/pkg/core"
)

type Store struct {
	mu        sync.Mutex
	tipHeight uint64
	tipHash   core.HashT
	blocks    map[uint64]core.HashT
	bbs       map[string][]store.BbsRecord
	peers     []store.PeerRecord
}

func New() *Store {
	return &Store{
		blocks: make(map[uint64]core.HashT),
		bbs:    make(map[string][]store.BbsRecord),
	}
}

func (s *Store) GetTip() (uint64, core.HashT, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tipHeight, s.tipHash, nil
}

func (s *Store) SaveBlock(height uint64, hash core.HashT, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[height] = hash
	if height >= s.tipHeight {
		s.tipHeight = height
		s.tipHash = hash
	}
	return nil
}

func (s *Store) Rollback(toHeight uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h := range s.blocks {
		if h > toHeight {
			delete(s.blocks, h)
		}
	}
	s.tipHeight = toHeight
	s.tipHash = s.blocks[toHeight]
	return nil
}

func (s *Store) Enumerate(fromHeight uint64) ([]core.HashT, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.HashT, 0)
	for h := fromHeight; h <= s.tipHeight; h++ {
		if hash, ok := s.blocks[h]; ok {
			out = append(out, hash)
		}
	}
	return out, nil
}

func (s *Store) GetBbs(channel string) ([]store.BbsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.BbsRecord, len(s.bbs[channel]))
	copy(out, s.bbs[channel])
	return out, nil
}

func (s *Store) SaveBbs(rec store.BbsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bbs[rec.Channel] = append(s.bbs[rec.Channel], rec)
	return nil
}

func (s *Store) DeleteBbsBefore(cutoffUnix int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, recs := range s.bbs {
		kept := recs[:0]
		for _, r := range recs {
			if r.Expiry >= cutoffUnix {
				kept = append(kept, r)
			}
		}
		s.bbs[ch] = kept
	}
	return nil
}

func (s *Store) GetPeers() ([]store.PeerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.PeerRecord, len(s.peers))
	copy(out, s.peers)
	return out, nil
}

func (s *Store) SavePeers(recs []store.PeerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = append([]store.PeerRecord{}, recs...)
	return nil
}

func (s *Store) Close() error { return nil }
