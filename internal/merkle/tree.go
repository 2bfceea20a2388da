// Package merkle builds and caches Merkle trees over option-price sets,
// per spec.md §4.4. Tree construction follows the domain-separated hash
// convention internal/crypto establishes; the cache layer reuses the same
// LRU-plus-singleflight shape as internal/registry.
package merkle

import (
	"sort"

	"oracleflow/internal/crypto"
	"oracleflow/internal/domain"
)

// Tree is a built binary Merkle tree, level 0 being the leaves.
type Tree struct {
	levels [][][]byte
	leaves []domain.MerkleLeaf
}

// Root returns the tree's root hash.
func (t *Tree) Root() []byte {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// Proof is an inclusion proof: the sibling hash at each level from leaf to
// root, plus the leaf's index for left/right disambiguation during
// verification.
type Proof struct {
	Leaf     domain.MerkleLeaf
	Siblings [][]byte
	Root     []byte
}

// Build orders prices by (base-currency, expiration-date, strike,
// call/put), hashes each into a leaf, and builds the tree bottom-up, per
// spec.md §4.4.
func Build(prices []domain.OptionPrice) *Tree {
	sorted := append([]domain.OptionPrice(nil), prices...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.BaseCurrency != b.BaseCurrency {
			return a.BaseCurrency < b.BaseCurrency
		}
		if a.ExpirationDate != b.ExpirationDate {
			return a.ExpirationDate < b.ExpirationDate
		}
		if !a.Strike.Equal(b.Strike) {
			return a.Strike.LessThan(b.Strike)
		}
		return kindRank(a.Kind) < kindRank(b.Kind)
	})

	leaves := make([]domain.MerkleLeaf, len(sorted))
	level := make([][]byte, len(sorted))
	for i, p := range sorted {
		h := crypto.DomainHash(crypto.TagMerkleLeaf, []byte(p.Instrument()), []byte(p.Price.String()))
		leaves[i] = domain.MerkleLeaf{Instrument: p.Instrument(), Hash: h, Price: p.Price, Index: i}
		level[i] = h
	}

	t := &Tree{leaves: leaves}
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, crypto.DomainHash(crypto.TagMerkleNode, level[i], level[i+1]))
			} else {
				next = append(next, crypto.DomainHash(crypto.TagMerkleNode, level[i], level[i]))
			}
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t
}

// kindRank orders put before call at equal strike, per spec.md §3's
// leaf-ordering invariant.
func kindRank(k domain.OptionKind) int {
	if k == domain.OptionPut {
		return 0
	}
	return 1
}

// Leaves returns the ordered leaf set.
func (t *Tree) Leaves() []domain.MerkleLeaf { return t.leaves }

// ProofFor builds an inclusion proof for instrument, or false if absent.
func (t *Tree) ProofFor(instrument string) (Proof, bool) {
	idx := -1
	for _, l := range t.leaves {
		if l.Instrument == instrument {
			idx = l.Index
			break
		}
	}
	if idx < 0 {
		return Proof{}, false
	}

	siblings := make([][]byte, 0, len(t.levels)-1)
	pos := idx
	for lvl := 0; lvl < len(t.levels)-1; lvl++ {
		level := t.levels[lvl]
		var sibling []byte
		if pos%2 == 0 {
			if pos+1 < len(level) {
				sibling = level[pos+1]
			} else {
				sibling = level[pos]
			}
		} else {
			sibling = level[pos-1]
		}
		siblings = append(siblings, sibling)
		pos /= 2
	}

	return Proof{Leaf: t.leaves[idx], Siblings: siblings, Root: t.Root()}, true
}

// ProofForLeafHash builds an inclusion proof for the leaf whose hash
// matches hash, or false if absent. Serves spec.md §6's
// `/node/merkle_feeds/proof/{option_hash}` lookup-by-leaf-hash route.
func (t *Tree) ProofForLeafHash(hash []byte) (Proof, bool) {
	for _, l := range t.leaves {
		if string(l.Hash) == string(hash) {
			return t.ProofFor(l.Instrument)
		}
	}
	return Proof{}, false
}

// Verify recomputes the root from proof and reports whether it matches
// root.
func Verify(proof Proof, root []byte) bool {
	cur := proof.Leaf.Hash
	pos := proof.Leaf.Index
	for _, sibling := range proof.Siblings {
		if pos%2 == 0 {
			cur = crypto.DomainHash(crypto.TagMerkleNode, cur, sibling)
		} else {
			cur = crypto.DomainHash(crypto.TagMerkleNode, sibling, cur)
		}
		pos /= 2
	}
	return string(cur) == string(root)
}
