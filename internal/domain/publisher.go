package domain

import "time"

// PublisherKind distinguishes an external price publisher account from the
// node's own signing identity.
type PublisherKind string

const (
	PublisherKindPublisher PublisherKind = "publisher"
	PublisherKindNode      PublisherKind = "node"
)

// Publisher is a registered price-reporting account.
//
// Signatures are checked against ActiveKey; rotation is expressed by
// updating ActiveKey. MasterKey authorizes rotation out-of-band and is
// never used to verify entries.
type Publisher struct {
	Name           string        `json:"name"`
	Kind           PublisherKind `json:"kind"`
	MasterKey      []byte        `json:"-"`
	ActiveKey      []byte        `json:"-"`
	AccountAddress string        `json:"account_address"`
	Active         bool          `json:"active"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
