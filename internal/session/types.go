// Package session implements the handshake/prove/submit scaffolding: two
// time-bounded registries (sessions and proof bundles) and the fabrication
// of placeholder artifacts around them. Nothing here proves or verifies
// anything; the values handed out are random byte strings shaped like the
// real thing.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidConfig   = errors.New("session: invalid config")
	ErrSessionNotFound = errors.New("session: session not found or expired")
	ErrProofNotFound   = errors.New("session: proof not found or expired")
)

const (
	DefaultSessionTTL = 15 * time.Minute
	DefaultProofTTL   = 30 * time.Minute

	// ProvingKey is the fixed label returned on every handshake.
	ProvingKey = "solbridge-transfer-v1"
)

type Session struct {
	ID         string    `json:"sessionId"`
	MerkleRoot string    `json:"merkleRoot"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Intent is the transfer the client claims to be proving.
type Intent struct {
	Amount     float64 `json:"amount"`
	Receiver   string  `json:"receiver"`
	Commitment string  `json:"commitment"`
	FromChain  string  `json:"fromChain,omitempty"`
	ToChain    string  `json:"toChain,omitempty"`
}

type ProofBundle struct {
	ID        string    `json:"proofId"`
	SessionID string    `json:"sessionId"`
	PublicKey string    `json:"publicKey"`
	Intent    Intent    `json:"intent"`
	Proof     string    `json:"proof"`
	Nullifier string    `json:"nullifier"`
	CreatedAt time.Time `json:"createdAt"`
}

// Receipt acknowledges an accepted proof submission. The transaction values
// are fabricated; no chain submission happens.
type Receipt struct {
	ProofID     string      `json:"proofId"`
	TxHash      string      `json:"txHash"`
	ExplorerURL string      `json:"explorerUrl,omitempty"`
	Network     string      `json:"network,omitempty"`
	Mode        string      `json:"mode,omitempty"`
	Bundle      ProofBundle `json:"bundle"`
}

// Store holds sessions and proof bundles until their TTL lapses. A Get on an
// expired entry behaves as not-found even before the sweep removes it.
type Store interface {
	PutSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)

	PutProof(ctx context.Context, p ProofBundle) error
	GetProof(ctx context.Context, id string) (ProofBundle, error)

	// Sweep evicts expired entries and reports how many were removed.
	// Backends with native expiry may make this a no-op.
	Sweep(ctx context.Context) (int, error)
}
