package jobevent

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/solbridge-labs/relay/internal/job"
	"github.com/solbridge-labs/relay/internal/queue"
)

func TestBuildPayload(t *testing.T) {
	t.Parallel()

	updated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	j := job.Job{
		ID:     "job_ab",
		Status: job.StatusFailed,
		Request: job.Request{
			Amount:    1.5,
			Receiver:  "0xabc",
			FromChain: "solana",
			ToChain:   "ethereum",
		},
		ErrorMessage: "rpc unreachable",
		UpdatedAt:    updated,
	}

	p := BuildPayload(j)
	if p.Version != Version || p.JobID != "job_ab" || p.Status != job.StatusFailed {
		t.Fatalf("payload: %+v", p)
	}
	if p.Amount != 1.5 || p.FromChain != "solana" || p.ErrorMessage != "rpc unreachable" {
		t.Fatalf("payload fields: %+v", p)
	}
	if !p.UpdatedAt.Equal(updated) {
		t.Fatalf("updatedAt: %v", p.UpdatedAt)
	}
}

func TestPublisher_PublishesJSONKeyedByJobID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	producer, err := queue.NewProducer(queue.ProducerConfig{Driver: queue.DriverStdio, Writer: &buf})
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	pub, err := NewPublisher(producer, Version, nil)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	pub.JobSubmitted(context.Background(), job.Job{ID: "job_ab", Status: job.StatusPending})

	line := strings.TrimSpace(buf.String())
	var got Payload
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if got.JobID != "job_ab" || got.Status != job.StatusPending || got.Version != Version {
		t.Fatalf("event: %+v", got)
	}
}

func TestNewPublisher_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewPublisher(nil, Version, nil); err == nil {
		t.Fatalf("nil producer accepted")
	}
	producer, _ := queue.NewProducer(queue.ProducerConfig{Driver: queue.DriverStdio, Writer: &bytes.Buffer{}})
	if _, err := NewPublisher(producer, "", nil); err == nil {
		t.Fatalf("empty topic accepted")
	}
}
