package domain

import "github.com/shopspring/decimal"

// Network tags a Merkle feed / option row to an on-chain deployment;
// get_proof requires it as a key component.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// PendingBlock is the synthetic block marker used for pre-confirmation
// option data, per spec.md §4.4.
const PendingBlock int64 = -1

// OptionKind distinguishes calls from puts for leaf ordering.
type OptionKind string

const (
	OptionPut  OptionKind = "put"
	OptionCall OptionKind = "call"
)

// OptionPrice is one priced option instrument at a given block, the raw
// material the Merkle feed is built from.
type OptionPrice struct {
	Network        Network         `json:"network"`
	BlockNumber    int64           `json:"block_number"`
	BaseCurrency   string          `json:"base_currency"`
	ExpirationDate string          `json:"expiration_date"` // YYYY-MM-DD
	Strike         decimal.Decimal `json:"strike"`
	Kind           OptionKind      `json:"kind"`
	Price          decimal.Decimal `json:"price"`
}

// Instrument returns the canonical instrument identifier for this option,
// e.g. "BTC-2024-08-16-52000-P".
func (o OptionPrice) Instrument() string {
	kind := "C"
	if o.Kind == OptionPut {
		kind = "P"
	}
	return o.BaseCurrency + "-" + o.ExpirationDate + "-" + o.Strike.String() + "-" + kind
}

// MerkleLeaf is one leaf in a built Merkle feed tree.
type MerkleLeaf struct {
	Instrument string
	Hash       []byte
	Price      decimal.Decimal
	Index      int
}

// MerkleFeed is the fully built tree over the option-price set at one
// (network, block).
type MerkleFeed struct {
	Network     Network
	BlockNumber int64 // domain.PendingBlock for the pending marker
	Root        []byte
	Leaves      []MerkleLeaf
}
