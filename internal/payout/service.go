// Package payout drives a job through its execution: the atomic
// pending -> executing claim, the simulated or real native-asset transfer,
// and the terminal completed/failed transition. A failed payout is terminal
// for its job; clients recover by submitting a new job.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/solbridge-labs/relay/internal/eth"
	"github.com/solbridge-labs/relay/internal/job"
)

var (
	ErrInvalidConfig = errors.New("payout: invalid config")

	// ErrMissingFields marks a stored request that cannot be executed.
	ErrMissingFields = errors.New("payout: stored request missing amount or receiver")

	// ErrNotConfigured marks a real-mode execution without RPC/key config.
	ErrNotConfigured = errors.New("payout: relayer not configured")

	// ErrSendFailed wraps broadcast/confirmation failures.
	ErrSendFailed = errors.New("payout: send failed")
)

// Sender broadcasts one native-asset transfer and waits for its first
// confirmation. *eth.Payer satisfies it; a nil Sender means real-mode
// payouts are unconfigured.
type Sender interface {
	SendNative(ctx context.Context, to common.Address, value *big.Int) (eth.SendResult, error)
}

// Events receives terminal job notifications. Implementations must not fail
// the execution path.
type Events interface {
	JobFinalized(ctx context.Context, j job.Job)
}

type Config struct {
	// RealSendEnabled selects real payouts; when false every execution
	// completes as simulated.
	RealSendEnabled bool

	// NativeDecimals is the decimal precision the submitted amount is
	// interpreted at. Defaults to 18.
	NativeDecimals int

	// ExplorerTxPrefix, when set, is concatenated with the tx hash to form
	// the explorerUrl on real completions.
	ExplorerTxPrefix string

	// SendTimeout bounds the broadcast plus confirmation wait. Defaults to
	// 3 minutes. Expiry is a terminal failure for the job.
	SendTimeout time.Duration

	Logger *slog.Logger
}

type Service struct {
	store  job.Store
	sender Sender
	events Events
	cfg    Config
}

func NewService(store job.Store, sender Sender, events Events, cfg Config) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if cfg.NativeDecimals == 0 {
		cfg.NativeDecimals = 18
	}
	if cfg.NativeDecimals < 0 || cfg.NativeDecimals > 32 {
		return nil, fmt.Errorf("%w: decimals out of range", ErrInvalidConfig)
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 3 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{store: store, sender: sender, events: events, cfg: cfg}, nil
}

// Execute runs the state machine for one job id.
//
// Error mapping for callers: job.ErrNotFound (unknown id),
// job.ErrNotPending (already claimed or terminal; no mutation),
// ErrMissingFields (job failed without reaching executing),
// ErrNotConfigured and ErrSendFailed (job failed). On every terminal error
// the returned Job carries the recorded failure.
func (s *Service) Execute(ctx context.Context, id string) (job.Job, error) {
	j, err := s.store.Get(ctx, id)
	if err != nil {
		return job.Job{}, err
	}
	if j.Status != job.StatusPending {
		return j, &job.NotPendingError{Status: j.Status}
	}

	if j.Request.Amount <= 0 || j.Request.Receiver == "" {
		msg := "stored request is missing a positive amount or a receiver"
		failed, ferr := s.fail(ctx, id, msg)
		if ferr != nil {
			return job.Job{}, ferr
		}
		return failed, fmt.Errorf("%w: %s", ErrMissingFields, msg)
	}

	j, err = s.store.ClaimExecuting(ctx, id)
	if err != nil {
		return job.Job{}, err
	}

	if !s.cfg.RealSendEnabled {
		return s.completeSimulated(ctx, id)
	}
	return s.sendReal(ctx, j)
}

func (s *Service) completeSimulated(ctx context.Context, id string) (job.Job, error) {
	status := job.StatusCompleted
	simulated := true
	j, err := s.store.Update(ctx, id, job.Update{Status: &status, Simulated: &simulated})
	if err != nil {
		return job.Job{}, err
	}
	s.cfg.Logger.Info("job completed (simulated)", "jobId", id)
	s.notify(ctx, j)
	return j, nil
}

func (s *Service) sendReal(ctx context.Context, j job.Job) (job.Job, error) {
	if s.sender == nil {
		msg := "real transfers enabled but RPC endpoint or signing key is not configured"
		failed, err := s.fail(ctx, j.ID, msg)
		if err != nil {
			return job.Job{}, err
		}
		return failed, fmt.Errorf("%w: %s", ErrNotConfigured, msg)
	}

	if !common.IsHexAddress(j.Request.Receiver) {
		msg := fmt.Sprintf("receiver %q is not a valid address", j.Request.Receiver)
		failed, err := s.fail(ctx, j.ID, msg)
		if err != nil {
			return job.Job{}, err
		}
		return failed, fmt.Errorf("%w: %s", ErrSendFailed, msg)
	}

	wei, err := ToWei(j.Request.Amount, s.cfg.NativeDecimals)
	if err != nil {
		failed, ferr := s.fail(ctx, j.ID, err.Error())
		if ferr != nil {
			return job.Job{}, ferr
		}
		return failed, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	// Once the transaction may have been broadcast, a dropped client
	// connection must not abort the confirmation wait: the job would be
	// recorded failed while the transfer confirms, and a resubmission
	// would pay twice. Only SendTimeout bounds the send.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SendTimeout)
	defer cancel()

	res, err := s.sender.SendNative(sendCtx, common.HexToAddress(j.Request.Receiver), wei)
	if err != nil {
		// The underlying message is preserved verbatim on the job.
		failed, ferr := s.fail(ctx, j.ID, err.Error())
		if ferr != nil {
			return job.Job{}, ferr
		}
		return failed, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	status := job.StatusCompleted
	simulated := false
	txHash := res.TxHash.Hex()
	upd := job.Update{Status: &status, Simulated: &simulated, TxHash: &txHash}
	if s.cfg.ExplorerTxPrefix != "" {
		explorer := s.cfg.ExplorerTxPrefix + txHash
		upd.ExplorerURL = &explorer
	}
	completed, err := s.store.Update(ctx, j.ID, upd)
	if err != nil {
		return job.Job{}, err
	}
	s.cfg.Logger.Info("job completed", "jobId", j.ID, "txHash", txHash, "nonce", res.Nonce)
	s.notify(ctx, completed)
	return completed, nil
}

func (s *Service) fail(ctx context.Context, id, msg string) (job.Job, error) {
	status := job.StatusFailed
	j, err := s.store.Update(ctx, id, job.Update{Status: &status, ErrorMessage: &msg})
	if err != nil {
		return job.Job{}, err
	}
	s.cfg.Logger.Warn("job failed", "jobId", id, "error", msg)
	s.notify(ctx, j)
	return j, nil
}

func (s *Service) notify(ctx context.Context, j job.Job) {
	if s.events == nil {
		return
	}
	s.events.JobFinalized(ctx, j)
}
