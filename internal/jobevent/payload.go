// Package jobevent publishes versioned job lifecycle events so downstream
// consumers (reconciliation, analytics) can follow submissions and terminal
// outcomes without polling the API.
package jobevent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/solbridge-labs/relay/internal/job"
	"github.com/solbridge-labs/relay/internal/queue"
)

const Version = "bridge.jobs.v1"

type Payload struct {
	Version   string     `json:"version"`
	JobID     string     `json:"jobId"`
	Status    job.Status `json:"status"`
	Amount    float64    `json:"amount"`
	Receiver  string     `json:"receiver"`
	FromChain string     `json:"fromChain,omitempty"`
	ToChain   string     `json:"toChain,omitempty"`

	Simulated    bool   `json:"simulated"`
	TxHash       string `json:"txHash,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	UpdatedAt time.Time `json:"updatedAt"`
}

func BuildPayload(j job.Job) Payload {
	return Payload{
		Version:      Version,
		JobID:        j.ID,
		Status:       j.Status,
		Amount:       j.Request.Amount,
		Receiver:     j.Request.Receiver,
		FromChain:    j.Request.FromChain,
		ToChain:      j.Request.ToChain,
		Simulated:    j.Simulated,
		TxHash:       j.TxHash,
		ErrorMessage: j.ErrorMessage,
		UpdatedAt:    j.UpdatedAt,
	}
}

// Publisher emits job events keyed by job id. Publish failures are logged
// and swallowed: event delivery must never fail a request.
type Publisher struct {
	producer queue.Producer
	topic    string
	log      *slog.Logger
}

func NewPublisher(producer queue.Producer, topic string, log *slog.Logger) (*Publisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("jobevent: nil producer")
	}
	if topic == "" {
		return nil, fmt.Errorf("jobevent: empty topic")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{producer: producer, topic: topic, log: log}, nil
}

func (p *Publisher) JobSubmitted(ctx context.Context, j job.Job) { p.publish(ctx, j) }

func (p *Publisher) JobFinalized(ctx context.Context, j job.Job) { p.publish(ctx, j) }

func (p *Publisher) publish(ctx context.Context, j job.Job) {
	if p == nil {
		return
	}
	raw, err := json.Marshal(BuildPayload(j))
	if err != nil {
		p.log.Warn("encode job event", "jobId", j.ID, "err", err)
		return
	}
	if err := p.producer.Publish(ctx, p.topic, []byte(j.ID), raw); err != nil {
		p.log.Warn("publish job event", "jobId", j.ID, "status", j.Status, "err", err)
	}
}
