package eth

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/solbridge-labs/relay/internal/config"
)

type fakeBackend struct {
	mu sync.Mutex

	pendingNonce uint64
	suggestTip   *big.Int
	baseFee      *big.Int
	gasEst       uint64

	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt

	sendErr      error
	receiptPolls int
	// mineAfter mines the last sent tx once this many receipt polls happened.
	mineAfter     int
	mineReverted  bool
	receiptErr    error
	receiptErrCnt int
}

func (b *fakeBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingNonce, nil
}

func (b *fakeBackend) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.suggestTip), nil
}

func (b *fakeBackend) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Header{BaseFee: new(big.Int).Set(b.baseFee)}, nil
}

func (b *fakeBackend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gasEst, nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.receiptErrCnt > 0 {
		b.receiptErrCnt--
		return nil, b.receiptErr
	}
	b.receiptPolls++
	if b.receipts == nil {
		b.receipts = make(map[common.Hash]*types.Receipt)
	}
	if b.receiptPolls > b.mineAfter && len(b.sent) > 0 {
		last := b.sent[len(b.sent)-1]
		status := types.ReceiptStatusSuccessful
		if b.mineReverted {
			status = types.ReceiptStatusFailed
		}
		b.receipts[last.Hash()] = &types.Receipt{
			TxHash:      last.Hash(),
			Status:      status,
			BlockNumber: big.NewInt(1),
		}
	}
	if r, ok := b.receipts[h]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func testSigner(t *testing.T) *LocalSigner {
	t.Helper()
	key, err := crypto.HexToECDSA("4f3edf983ac636a65a842ce7c78d9aa706d3b113b37c2b1b4c1c5f5d8f5e2d3a")
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	return NewLocalSigner(key)
}

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func newTestPayer(t *testing.T, backend *fakeBackend) *Payer {
	t.Helper()
	p, err := NewPayer(backend, testSigner(t), PayerConfig{
		ChainID:             big.NewInt(8453),
		GasLimitMultiplier:  1.2,
		MinTipCap:           big.NewInt(1),
		ReceiptPollInterval: time.Millisecond,
		Sleep:               noSleep,
	})
	if err != nil {
		t.Fatalf("NewPayer: %v", err)
	}
	return p
}

func TestPayer_SendNative_WaitsForReceipt(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		pendingNonce: 7,
		suggestTip:   big.NewInt(2),
		baseFee:      big.NewInt(100),
		gasEst:       21_000,
		mineAfter:    2,
	}
	p := newTestPayer(t, backend)

	to := common.HexToAddress("0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1")
	res, err := p.SendNative(context.Background(), to, big.NewInt(1_500_000))
	if err != nil {
		t.Fatalf("SendNative: %v", err)
	}
	if res.Nonce != 7 {
		t.Fatalf("nonce: got %d want 7", res.Nonce)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("sent txs: got %d want 1", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.Value().Cmp(big.NewInt(1_500_000)) != 0 {
		t.Fatalf("value: got %s", tx.Value())
	}
	if tx.To() == nil || *tx.To() != to {
		t.Fatalf("to: got %v", tx.To())
	}
	// 21000 * 1.2 = 25200
	if tx.Gas() != 25_200 {
		t.Fatalf("gas: got %d want 25200", tx.Gas())
	}
	if res.TxHash != tx.Hash() {
		t.Fatalf("tx hash mismatch")
	}
}

func TestPayer_SendNative_BroadcastError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("connection refused")
	backend := &fakeBackend{
		suggestTip: big.NewInt(2),
		baseFee:    big.NewInt(100),
		gasEst:     21_000,
		sendErr:    wantErr,
	}
	p := newTestPayer(t, backend)

	_, err := p.SendNative(context.Background(), common.HexToAddress("0x1"), big.NewInt(1))
	if !errors.Is(err, wantErr) {
		t.Fatalf("err: got %v want %v", err, wantErr)
	}
}

func TestPayer_SendNative_Reverted(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		suggestTip:   big.NewInt(2),
		baseFee:      big.NewInt(100),
		gasEst:       21_000,
		mineReverted: true,
	}
	p := newTestPayer(t, backend)

	_, err := p.SendNative(context.Background(), common.HexToAddress("0x1"), big.NewInt(1))
	if !errors.Is(err, ErrTxReverted) {
		t.Fatalf("err: got %v want ErrTxReverted", err)
	}
}

func TestPayer_SendNative_ReceiptLookupError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("rpc timeout")
	backend := &fakeBackend{
		suggestTip:    big.NewInt(2),
		baseFee:       big.NewInt(100),
		gasEst:        21_000,
		receiptErr:    wantErr,
		receiptErrCnt: 1,
	}
	p := newTestPayer(t, backend)

	_, err := p.SendNative(context.Background(), common.HexToAddress("0x1"), big.NewInt(1))
	if !errors.Is(err, wantErr) {
		t.Fatalf("err: got %v want %v", err, wantErr)
	}
}

func TestPayer_SendNative_ContextBound(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{
		suggestTip: big.NewInt(2),
		baseFee:    big.NewInt(100),
		gasEst:     21_000,
		mineAfter:  1 << 30, // never mines
	}
	signer := testSigner(t)
	p, err := NewPayer(backend, signer, PayerConfig{
		ChainID:             big.NewInt(8453),
		GasLimitMultiplier:  1,
		MinTipCap:           big.NewInt(1),
		ReceiptPollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewPayer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.SendNative(ctx, common.HexToAddress("0x1"), big.NewInt(1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err: got %v want deadline exceeded", err)
	}
}

func TestNewPayer_Validation(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	signer := testSigner(t)

	cases := []struct {
		name string
		cfg  PayerConfig
	}{
		{"missing chain id", PayerConfig{GasLimitMultiplier: 1, MinTipCap: big.NewInt(0), ReceiptPollInterval: time.Second}},
		{"zero gas multiplier", PayerConfig{ChainID: big.NewInt(1), MinTipCap: big.NewInt(0), ReceiptPollInterval: time.Second}},
		{"nil min tip", PayerConfig{ChainID: big.NewInt(1), GasLimitMultiplier: 1, ReceiptPollInterval: time.Second}},
		{"zero poll interval", PayerConfig{ChainID: big.NewInt(1), GasLimitMultiplier: 1, MinTipCap: big.NewInt(0)}},
	}
	for _, tc := range cases {
		if _, err := NewPayer(backend, signer, tc.cfg); !errors.Is(err, ErrInvalidPayerConfig) {
			t.Fatalf("%s: got %v want ErrInvalidPayerConfig", tc.name, err)
		}
	}

	if _, err := NewPayer(nil, signer, PayerConfig{}); !errors.Is(err, ErrInvalidPayerConfig) {
		t.Fatalf("nil backend: got %v", err)
	}
	if _, err := NewPayer(backend, nil, PayerConfig{}); !errors.Is(err, ErrInvalidPayerConfig) {
		t.Fatalf("nil signer: got %v", err)
	}
}

// The default server configuration must yield a constructible payer; this
// mirrors the field mapping in cmd/relay-server.
func TestNewPayer_ServerConfigDefaults(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	p, err := NewPayer(&fakeBackend{}, testSigner(t), PayerConfig{
		ChainID:             new(big.Int).SetUint64(cfg.ChainID),
		GasLimitMultiplier:  cfg.GasLimitMultiplier,
		MinTipCap:           new(big.Int).Mul(big.NewInt(cfg.MinTipGwei), big.NewInt(1_000_000_000)),
		ReceiptPollInterval: cfg.ReceiptPollInterval,
	})
	if err != nil {
		t.Fatalf("NewPayer with server config defaults: %v", err)
	}
	if p == nil {
		t.Fatalf("nil payer")
	}
}
