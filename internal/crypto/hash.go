// Package crypto implements the domain-separated hashing and signature
// verification spec.md §9 requires for entry admission and Merkle leaves.
//
// No poseidon/pedersen field-element hash library is wired in, so the
// domain tag is folded into a standard-library SHA-256 over a
// length-prefixed encoding instead. Signature verification uses
// decred/dcrd's secp256k1.
package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Tag domain-separates hash contexts so a digest computed for one purpose
// can never be replayed as valid input for another.
type Tag string

const (
	TagEntry      Tag = "oracleflow.entry.v1"
	TagMerkleLeaf Tag = "oracleflow.merkle.leaf.v1"
	TagMerkleNode Tag = "oracleflow.merkle.node.v1"
)

// DomainHash hashes tag and the ordered fields into a single 32-byte
// digest. Each field is length-prefixed so no ambiguity can arise between
// e.g. ("AB", "C") and ("A", "BC").
func DomainHash(tag Tag, fields ...[]byte) []byte {
	h := sha256.New()
	h.Write([]byte(tag))
	for _, f := range fields {
		var lenBuf [8]byte
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(f)))
		h.Write(lenBuf[:])
		h.Write(f)
	}
	return h.Sum(nil)
}

// EntryHash recomputes the domain-separated hash of an entry's signed
// fields, per spec.md §4.1 step 3.
func EntryHash(pairID string, timestampMs int64, source, publisher, price string, expiration *int64) []byte {
	fields := [][]byte{
		[]byte(pairID),
		int64Bytes(timestampMs),
		[]byte(source),
		[]byte(publisher),
		[]byte(price),
	}
	if expiration != nil {
		fields = append(fields, int64Bytes(*expiration))
	} else {
		fields = append(fields, []byte("perp"))
	}
	return DomainHash(TagEntry, fields...)
}

func int64Bytes(v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

// HashString returns a hex-ish debug representation; not used on any hot path.
func HashString(h []byte) string {
	return fmt.Sprintf("%x", h)
}
