// Package core provides the small set of generic identity primitives
// (32-byte hashes) shared by every node component. It intentionally does
// not contain block/transaction/consensus types — those belong to the
// external Processor, which this module treats as opaque.
package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
)

// HashT is a container for 32-byte identity values: block ids, tx
// fingerprints, dependent-tx context hashes, bbs message ids.
type HashT struct {
	data [32]byte
}

// NewHashTRand generates a new random hash.
func NewHashTRand() HashT {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	out := HashT{}
	copy(out.data[:], bytes)
	return out
}

// NewHashTFromString parses a hash from a hex-encoding in a string.
func NewHashTFromString(data string) (HashT, error) {
	if len(data) != 64 {
		return HashT{}, fmt.Errorf("cannot parse hash from length %d", len(data))
	}
	decoded, err := hex.DecodeString(data)
	if err != nil {
		return HashT{}, err
	}
	out := HashT{}
	copy(out.data[:], decoded)
	return out, nil
}

// NewHashTFromStringAssert parses a hash from a hex string, panics on failure.
// Should only be used for hardcoded hash values.
func NewHashTFromStringAssert(data string) HashT {
	hash, err := NewHashTFromString(data)
	if err != nil {
		panic(err)
	}
	return hash
}

// NewHashTFromBytes creates a hash from a byte slice, panics if the length is wrong.
func NewHashTFromBytes(data []byte) HashT {
	if len(data) != 32 {
		panic(fmt.Sprintf("cannot create hash from %d bytes", len(data)))
	}
	return HashT{data: [32]byte(data)}
}

// Data retrieves the underlying byte array from the HashT.
func (h HashT) Data() [32]byte {
	return h.data
}

// String converts to a hex-encoded string.
func (h HashT) String() string {
	return fmt.Sprintf("%x", h.data)
}

// Eq checks whether this hash is equal in value to another.
func (h HashT) Eq(other HashT) bool {
	return h.data == other.data
}

// Lt checks whether this hash is less than another (big-endian, unsigned).
func (h HashT) Lt(other HashT) bool {
	for i := 0; i < 32; i++ {
		if h.data[i] > other.data[i] {
			return false
		} else if h.data[i] < other.data[i] {
			return true
		}
	}
	return false
}

// EqZero checks whether this is the zero hash.
func (h HashT) EqZero() bool {
	return h.Eq(HashT{})
}

// BigInt converts the hash to a big.Int.
func (h HashT) BigInt() *big.Int {
	out := &big.Int{}
	out.SetBytes(h.data[:])
	return out
}

func (h HashT) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *HashT) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := NewHashTFromString(v)
	if err != nil {
		return err
	}
	h.data = parsed.data
	return nil
}

// Hasher is any object that defines how it is meant to be hashed.
type Hasher interface {
	Hash() HashT
}

// DHashBytes generates a new double-sha256 hash from the given bytes.
func DHashBytes(content []byte) HashT {
	// Can't one-line bc [:] needs addressable memory
	first := sha256.Sum256(content)
	return HashT{data: sha256.Sum256(first[:])}
}

// DHashUint64 generates a new double-sha256 hash from the given uint64.
func DHashUint64(content uint64) HashT {
	bs := make([]byte, 8)
	binary.BigEndian.PutUint64(bs, content)
	return DHashBytes(bs)
}

// DHashBool generates a new double-sha256 hash from the given bool.
func DHashBool(content bool) HashT {
	if content {
		return DHashBytes([]byte{1})
	}
	return DHashBytes([]byte{0})
}

// DHashAny generates a new double-sha256 hash from whatever the given value is.
// If content is a hash, it's returned unchanged. If content is a Hasher, the
// output of its Hash() method is returned. If content is a uint64, the hash
// of its big-endian bytes is returned. If content is a byte slice, its hash
// is returned. If content is a string, the hash of its bytes is returned. If
// content is a bool, it's converted to a single byte then hashed. Any other
// type panics.
func DHashAny(content any) HashT {
	switch typed := content.(type) {
	case Hasher:
		return typed.Hash()
	case HashT:
		return typed
	case uint64:
		return DHashUint64(typed)
	case []byte:
		return DHashBytes(typed)
	case string:
		return DHashBytes([]byte(typed))
	case bool:
		return DHashBool(typed)
	default:
		panic(fmt.Sprintf("unhashable type: %T", typed))
	}
}

// DHashHashes generates a new double-sha256 hash of the given hashes, concatenated.
func DHashHashes(items []HashT) HashT {
	concat := make([]byte, 0, len(items)*32)
	for _, item := range items {
		concat = append(concat, item.data[:]...)
	}
	return DHashBytes(concat)
}

// DHashVarious generates a new double-sha256 hash of the given various items
// concatenated. See DHashAny for how each type is handled.
func DHashVarious(items ...any) HashT {
	hashes := make([]HashT, len(items))
	for i := range items {
		hashes[i] = DHashAny(items[i])
	}
	return DHashHashes(hashes)
}
