package payout

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/solbridge-labs/relay/internal/eth"
	"github.com/solbridge-labs/relay/internal/job"
)

type stubSender struct {
	calls int
	to    common.Address
	value *big.Int
	res   eth.SendResult
	err   error
}

func (s *stubSender) SendNative(_ context.Context, to common.Address, value *big.Int) (eth.SendResult, error) {
	s.calls++
	s.to = to
	s.value = value
	return s.res, s.err
}

type recordingEvents struct {
	finalized []job.Job
}

func (r *recordingEvents) JobFinalized(_ context.Context, j job.Job) {
	r.finalized = append(r.finalized, j)
}

func newJob(t *testing.T, store job.Store, req job.Request) job.Job {
	t.Helper()
	j, err := store.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return j
}

func TestExecute_Simulated(t *testing.T) {
	t.Parallel()

	store := job.NewMemoryStore(nil)
	events := &recordingEvents{}
	svc, err := NewService(store, nil, events, Config{RealSendEnabled: false})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	created := newJob(t, store, job.Request{Amount: 1.5, Receiver: "0xabc", DepositSignature: "sig"})

	got, err := svc.Execute(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != job.StatusCompleted || !got.Simulated {
		t.Fatalf("job: %+v", got)
	}
	if got.TxHash != "" {
		t.Fatalf("simulated completion must not carry a tx hash: %q", got.TxHash)
	}
	if len(events.finalized) != 1 || events.finalized[0].Status != job.StatusCompleted {
		t.Fatalf("events: %+v", events.finalized)
	}
}

func TestExecute_UnknownJob(t *testing.T) {
	t.Parallel()

	store := job.NewMemoryStore(nil)
	svc, _ := NewService(store, nil, nil, Config{})

	_, err := svc.Execute(context.Background(), "job_missing")
	if !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("err: got %v want ErrNotFound", err)
	}
}

func TestExecute_SecondCallRejectedWithoutSideEffects(t *testing.T) {
	t.Parallel()

	store := job.NewMemoryStore(nil)
	sender := &stubSender{}
	svc, _ := NewService(store, sender, nil, Config{RealSendEnabled: false})
	created := newJob(t, store, job.Request{Amount: 1, Receiver: "0xabc", DepositSignature: "sig"})

	first, err := svc.Execute(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}

	second, err := svc.Execute(context.Background(), created.ID)
	if !errors.Is(err, job.ErrNotPending) {
		t.Fatalf("second execute err: got %v", err)
	}
	if second.Status != job.StatusCompleted {
		t.Fatalf("observed status: %s", second.Status)
	}
	if sender.calls != 0 {
		t.Fatalf("no payout may happen in simulated mode or on re-execute")
	}

	// Re-execution left the record untouched.
	final, _ := store.Get(context.Background(), created.ID)
	if final.UpdatedAt != first.UpdatedAt && !final.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("record mutated by rejected call")
	}
}

func TestExecute_MissingStoredFieldsFailsDirectly(t *testing.T) {
	t.Parallel()

	store := job.NewMemoryStore(nil)
	svc, _ := NewService(store, nil, nil, Config{})

	// Bypass submission validation: the registry stores payloads verbatim.
	created := newJob(t, store, job.Request{Amount: 0, Receiver: "", DepositSignature: "sig"})

	got, err := svc.Execute(context.Background(), created.ID)
	if !errors.Is(err, ErrMissingFields) {
		t.Fatalf("err: got %v want ErrMissingFields", err)
	}
	if got.Status != job.StatusFailed || got.ErrorMessage == "" {
		t.Fatalf("job: %+v", got)
	}
}

func TestExecute_RealModeUnconfigured(t *testing.T) {
	t.Parallel()

	store := job.NewMemoryStore(nil)
	svc, _ := NewService(store, nil, nil, Config{RealSendEnabled: true})
	created := newJob(t, store, job.Request{Amount: 1, Receiver: "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1", DepositSignature: "sig"})

	got, err := svc.Execute(context.Background(), created.ID)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err: got %v want ErrNotConfigured", err)
	}
	if got.Status != job.StatusFailed || !strings.Contains(got.ErrorMessage, "not configured") {
		t.Fatalf("job: %+v", got)
	}
}

func TestExecute_RealModeSuccess(t *testing.T) {
	t.Parallel()

	store := job.NewMemoryStore(nil)
	txHash := common.HexToHash("0xdead")
	sender := &stubSender{res: eth.SendResult{TxHash: txHash, Nonce: 3}}
	events := &recordingEvents{}
	svc, _ := NewService(store, sender, events, Config{
		RealSendEnabled:  true,
		ExplorerTxPrefix: "https://sepolia.etherscan.io/tx/",
	})
	created := newJob(t, store, job.Request{
		Amount:           1.5,
		Receiver:         "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1",
		DepositSignature: "sig",
	})

	got, err := svc.Execute(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != job.StatusCompleted || got.Simulated {
		t.Fatalf("job: %+v", got)
	}
	if got.TxHash != txHash.Hex() {
		t.Fatalf("txHash: got %q", got.TxHash)
	}
	if got.ExplorerURL != "https://sepolia.etherscan.io/tx/"+txHash.Hex() {
		t.Fatalf("explorerUrl: got %q", got.ExplorerURL)
	}
	if sender.calls != 1 {
		t.Fatalf("sends: got %d want 1", sender.calls)
	}
	// 1.5 at 18 decimals.
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	if sender.value.Cmp(want) != 0 {
		t.Fatalf("wei: got %s want %s", sender.value, want)
	}
	if len(events.finalized) != 1 {
		t.Fatalf("events: %d", len(events.finalized))
	}
}

type ctxObservingSender struct {
	res         eth.SendResult
	ctxErr      error
	hadDeadline bool
}

func (s *ctxObservingSender) SendNative(ctx context.Context, _ common.Address, _ *big.Int) (eth.SendResult, error) {
	s.ctxErr = ctx.Err()
	_, s.hadDeadline = ctx.Deadline()
	return s.res, nil
}

// A client that disconnects mid-execution cancels the request context; the
// send must keep running under its own timeout or an already-broadcast
// transfer gets recorded failed and paid again on resubmission.
func TestExecute_RealModeSurvivesRequestCancel(t *testing.T) {
	t.Parallel()

	store := job.NewMemoryStore(nil)
	sender := &ctxObservingSender{res: eth.SendResult{TxHash: common.HexToHash("0xbeef"), Nonce: 1}}
	svc, _ := NewService(store, sender, nil, Config{RealSendEnabled: true})
	created := newJob(t, store, job.Request{
		Amount:           1,
		Receiver:         "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1",
		DepositSignature: "sig",
	})

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := svc.Execute(reqCtx, created.ID)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Status != job.StatusCompleted {
		t.Fatalf("status: got %s want %s", got.Status, job.StatusCompleted)
	}
	if sender.ctxErr != nil {
		t.Fatalf("send context canceled with the request: %v", sender.ctxErr)
	}
	if !sender.hadDeadline {
		t.Fatalf("send context must still be bounded by the send timeout")
	}
}

func TestExecute_RealModeSendFailurePreservesMessage(t *testing.T) {
	t.Parallel()

	store := job.NewMemoryStore(nil)
	sender := &stubSender{err: errors.New("insufficient funds for gas * price + value")}
	svc, _ := NewService(store, sender, nil, Config{RealSendEnabled: true})
	created := newJob(t, store, job.Request{
		Amount:           2,
		Receiver:         "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1",
		DepositSignature: "sig",
	})

	got, err := svc.Execute(context.Background(), created.ID)
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("err: got %v", err)
	}
	if got.Status != job.StatusFailed {
		t.Fatalf("status: %s", got.Status)
	}
	if got.ErrorMessage != "insufficient funds for gas * price + value" {
		t.Fatalf("errorMessage not preserved verbatim: %q", got.ErrorMessage)
	}

	// No retry: a second execute is rejected outright.
	if _, err := svc.Execute(context.Background(), created.ID); !errors.Is(err, job.ErrNotPending) {
		t.Fatalf("re-execute err: got %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("sends: got %d want 1", sender.calls)
	}
}

func TestExecute_InvalidReceiverFailsTerminal(t *testing.T) {
	t.Parallel()

	store := job.NewMemoryStore(nil)
	sender := &stubSender{}
	svc, _ := NewService(store, sender, nil, Config{RealSendEnabled: true})
	created := newJob(t, store, job.Request{Amount: 1, Receiver: "not-an-address", DepositSignature: "sig"})

	got, err := svc.Execute(context.Background(), created.ID)
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("err: got %v", err)
	}
	if got.Status != job.StatusFailed || sender.calls != 0 {
		t.Fatalf("job: %+v sends=%d", got, sender.calls)
	}
}

func TestToWei(t *testing.T) {
	t.Parallel()

	cases := []struct {
		amount   float64
		decimals int
		want     string
	}{
		{1, 18, "1000000000000000000"},
		{1.5, 18, "1500000000000000000"},
		{0.000001, 18, "1000000000000"},
		{2.5, 9, "2500000000"},
		{1, 0, "1"},
	}
	for _, tc := range cases {
		got, err := ToWei(tc.amount, tc.decimals)
		if err != nil {
			t.Fatalf("ToWei(%v, %d): %v", tc.amount, tc.decimals, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ToWei(%v, %d): got %s want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}

	if _, err := ToWei(0, 18); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, err := ToWei(-1, 18); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("negative amount: got %v", err)
	}
	if _, err := ToWei(0.4, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("rounds to zero: got %v", err)
	}
}
