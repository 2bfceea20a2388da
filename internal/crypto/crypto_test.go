package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func derivePubKey(t *testing.T, priv []byte) []byte {
	t.Helper()
	return secp256k1.PrivKeyFromBytes(priv).PubKey().SerializeCompressed()
}

func TestDomainHashLengthPrefixAvoidsAmbiguity(t *testing.T) {
	a := DomainHash(TagEntry, []byte("AB"), []byte("C"))
	b := DomainHash(TagEntry, []byte("A"), []byte("BC"))
	if bytes.Equal(a, b) {
		t.Fatalf("expected distinct digests for differently-split fields")
	}
}

func TestDomainHashDifferentTagsDiffer(t *testing.T) {
	a := DomainHash(TagEntry, []byte("x"))
	b := DomainHash(TagMerkleLeaf, []byte("x"))
	if bytes.Equal(a, b) {
		t.Fatalf("expected distinct digests across tags")
	}
}

func TestEntryHashPerpVsFutureDiffer(t *testing.T) {
	perp := EntryHash("BTC/USD", 1000, "binance", "pub1", "50000", nil)
	exp := int64(2000)
	future := EntryHash("BTC/USD", 1000, "binance", "pub1", "50000", &exp)
	if bytes.Equal(perp, future) {
		t.Fatalf("perp and future entry hashes must differ")
	}
}

func TestSignAndVerifyEntrySignature(t *testing.T) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	digest := EntryHash("ETH/USD", 1700000000000, "okx", "pub2", "2500.5", nil)
	sig := Sign(priv[:], digest)

	pubKey := derivePubKey(t, priv[:])
	ok, err := VerifyEntrySignature(pubKey, digest, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected valid signature to verify")
	}
}

func TestVerifyEntrySignatureRejectsTamperedDigest(t *testing.T) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	digest := EntryHash("ETH/USD", 1700000000000, "okx", "pub2", "2500.5", nil)
	sig := Sign(priv[:], digest)

	pubKey := derivePubKey(t, priv[:])
	tampered := EntryHash("ETH/USD", 1700000000000, "okx", "pub2", "2500.6", nil)
	ok, err := VerifyEntrySignature(pubKey, tampered, sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected tampered digest to fail verification")
	}
}
