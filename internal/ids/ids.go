// Package ids generates the opaque identifiers and placeholder artifacts
// handed out by the relay: job/session ids, fabricated merkle roots, and the
// random byte strings returned in place of proofs and nullifiers. None of
// the fabricated values are cryptographically meaningful.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const proofIDPrefixV1 = "solbridge.proof.v1"

// RandomHex returns n random bytes as a lowercase hex string.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ids: read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func NewJobID() (string, error) {
	s, err := RandomHex(16)
	if err != nil {
		return "", err
	}
	return "job_" + s, nil
}

func NewSessionID() (string, error) {
	s, err := RandomHex(16)
	if err != nil {
		return "", err
	}
	return "sess_" + s, nil
}

// ProofID derives the proof bundle identifier from the submitted commitment
// and a per-bundle salt:
//
//	proofId = "proof_" || hex(keccak256("solbridge.proof.v1" || commitment || salt))[:32]
//
// The commitment binding keeps the id stable for a given (commitment, salt)
// pair; the salt keeps repeated prove calls from colliding.
func ProofID(commitment string, salt [8]byte) string {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(proofIDPrefixV1))
	_, _ = h.Write([]byte(commitment))
	_, _ = h.Write(salt[:])
	sum := h.Sum(nil)
	return "proof_" + hex.EncodeToString(sum[:16])
}

// NewSalt returns a random 8-byte salt for ProofID.
func NewSalt() ([8]byte, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return [8]byte{}, fmt.Errorf("ids: read random: %w", err)
	}
	return b, nil
}

// FakeHash32 fabricates a 0x-prefixed 32-byte hex value, shaped like a tx
// hash or merkle root.
func FakeHash32() (string, error) {
	s, err := RandomHex(32)
	if err != nil {
		return "", err
	}
	return "0x" + s, nil
}

// FakeProof fabricates a proof-shaped byte string of n bytes, hex encoded.
func FakeProof(n int) (string, error) {
	return RandomHex(n)
}
