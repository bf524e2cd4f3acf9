package ids

import (
	"strings"
	"testing"
)

func TestNewJobID(t *testing.T) {
	t.Parallel()

	id, err := NewJobID()
	if err != nil {
		t.Fatalf("NewJobID: %v", err)
	}
	if !strings.HasPrefix(id, "job_") {
		t.Fatalf("prefix: got %q", id)
	}
	if len(id) != len("job_")+32 {
		t.Fatalf("length: got %d", len(id))
	}

	other, err := NewJobID()
	if err != nil {
		t.Fatalf("NewJobID: %v", err)
	}
	if id == other {
		t.Fatalf("ids not unique: %q", id)
	}
}

func TestNewSessionID(t *testing.T) {
	t.Parallel()

	id, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	if !strings.HasPrefix(id, "sess_") {
		t.Fatalf("prefix: got %q", id)
	}
	if len(id) != len("sess_")+32 {
		t.Fatalf("length: got %d", len(id))
	}
}

func TestProofID(t *testing.T) {
	t.Parallel()

	salt := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	id := ProofID("0xcommitment", salt)
	if !strings.HasPrefix(id, "proof_") {
		t.Fatalf("prefix: got %q", id)
	}
	if len(id) != len("proof_")+32 {
		t.Fatalf("length: got %d", len(id))
	}

	if again := ProofID("0xcommitment", salt); again != id {
		t.Fatalf("not deterministic: %q vs %q", id, again)
	}
	if other := ProofID("0xother", salt); other == id {
		t.Fatalf("commitment not bound into id")
	}
	otherSalt := [8]byte{9, 9, 9, 9, 9, 9, 9, 9}
	if other := ProofID("0xcommitment", otherSalt); other == id {
		t.Fatalf("salt not bound into id")
	}
}

func TestFakeHash32(t *testing.T) {
	t.Parallel()

	h, err := FakeHash32()
	if err != nil {
		t.Fatalf("FakeHash32: %v", err)
	}
	if !strings.HasPrefix(h, "0x") || len(h) != 66 {
		t.Fatalf("shape: got %q", h)
	}
	if strings.ToLower(h) != h {
		t.Fatalf("not lowercase: %q", h)
	}
}
