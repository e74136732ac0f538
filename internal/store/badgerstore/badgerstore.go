// Package badgerstore implements store.Store atop an embedded badger key
// value database, giving the node a durable data directory without
// exposing badger's key layout to the rest of the tree.
package badgerstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/duskchain/fullnode/internal/store"
	"github.com/duskchain/fullnode/pkg/core"
)

var (
	keyTip      = []byte("tip")
	prefixBlock = []byte("block/")
	prefixBbs   = []byte("bbs/")
	keyPeers    = []byte("peers")
)

type Store struct {
	db *badger.DB
}

// Open opens or creates a badger database rooted at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func blockKey(height uint64) []byte {
	key := make([]byte, len(prefixBlock)+8)
	copy(key, prefixBlock)
	binary.BigEndian.PutUint64(key[len(prefixBlock):], height)
	return key
}

func bbsKey(channel string, msgID core.HashT) []byte {
	data := msgID.Data()
	return append(append(append([]byte{}, prefixBbs...), []byte(channel+"/")...), data[:]...)
}

type tipRecord struct {
	Height uint64
	Hash   core.HashT
}

func (s *Store) GetTip() (uint64, core.HashT, error) {
	var tip tipRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyTip)
		if err == badger.ErrKeyNotFound {
			return nil
		} else if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tip)
		})
	})
	if err != nil {
		return 0, core.HashT{}, err
	}
	return tip.Height, tip.Hash, nil
}

func (s *Store) SaveBlock(height uint64, hash core.HashT, raw []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(blockKey(height), raw); err != nil {
			return err
		}
		tipBytes, err := json.Marshal(tipRecord{Height: height, Hash: hash})
		if err != nil {
			return err
		}
		return txn.Set(keyTip, tipBytes)
	})
}

func (s *Store) Rollback(toHeight uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		toDelete := make([][]byte, 0)
		for it.Seek(prefixBlock); it.ValidForPrefix(prefixBlock); it.Next() {
			key := it.Item().KeyCopy(nil)
			height := binary.BigEndian.Uint64(key[len(prefixBlock):])
			if height > toHeight {
				toDelete = append(toDelete, key)
			}
		}
		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		item, err := txn.Get(blockKey(toHeight))
		var hash core.HashT
		if err == nil {
			_ = item.Value(func(val []byte) error {
				hash = core.DHashBytes(val)
				return nil
			})
		}
		tipBytes, err := json.Marshal(tipRecord{Height: toHeight, Hash: hash})
		if err != nil {
			return err
		}
		return txn.Set(keyTip, tipBytes)
	})
}

func (s *Store) Enumerate(fromHeight uint64) ([]core.HashT, error) {
	out := make([]core.HashT, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(blockKey(fromHeight)); it.ValidForPrefix(prefixBlock); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				out = append(out, core.DHashBytes(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) GetBbs(channel string) ([]store.BbsRecord, error) {
	out := make([]store.BbsRecord, 0)
	prefix := append(append([]byte{}, prefixBbs...), []byte(channel+"/")...)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec store.BbsRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) SaveBbs(rec store.BbsRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bbsKey(rec.Channel, rec.MsgID), data)
	})
}

func (s *Store) DeleteBbsBefore(cutoffUnix int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		toDelete := make([][]byte, 0)
		for it.Seek(prefixBbs); it.ValidForPrefix(prefixBbs); it.Next() {
			item := it.Item()
			var rec store.BbsRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if rec.Expiry < cutoffUnix {
				toDelete = append(toDelete, item.KeyCopy(nil))
			}
		}
		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetPeers() ([]store.PeerRecord, error) {
	var recs []store.PeerRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyPeers)
		if err == badger.ErrKeyNotFound {
			return nil
		} else if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &recs)
		})
	})
	return recs, err
}

func (s *Store) SavePeers(recs []store.PeerRecord) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyPeers, data)
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
