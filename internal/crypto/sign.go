package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// VerifyEntrySignature checks that sig is a valid ECDSA signature over
// digest under pubKey, per spec.md §4.1 step 3. Publisher keys and
// signatures travel the wire as raw bytes (spec.md §3 FieldElement); this
// is the boundary where they're parsed into curve types.
func VerifyEntrySignature(pubKeyBytes []byte, digest []byte, sig []byte) (bool, error) {
	pubKey, err := secp256k1.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, fmt.Errorf("parse publisher key: %w", err)
	}
	parsed, err := parseSignature(sig)
	if err != nil {
		return false, fmt.Errorf("parse signature: %w", err)
	}
	return parsed.Verify(digest, pubKey), nil
}

// parseSignature accepts either DER-encoded or fixed 64-byte (r||s)
// signatures, since publisher SDKs in the wild emit both.
func parseSignature(sig []byte) (*ecdsa.Signature, error) {
	if len(sig) == 64 {
		r := new(secp256k1.ModNScalar)
		s := new(secp256k1.ModNScalar)
		r.SetByteSlice(sig[:32])
		s.SetByteSlice(sig[32:])
		return ecdsa.NewSignature(r, s), nil
	}
	return ecdsa.ParseDERSignature(sig)
}

// Sign produces a deterministic ECDSA signature, used only by tests to
// construct fixtures.
func Sign(privKeyBytes []byte, digest []byte) []byte {
	priv := secp256k1.PrivKeyFromBytes(privKeyBytes)
	sig := ecdsa.Sign(priv, digest)
	return sig.Serialize()
}
