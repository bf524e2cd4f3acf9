package eth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrInvalidPayerConfig = errors.New("eth: invalid payer config")
	ErrTxReverted         = errors.New("eth: transaction reverted")
)

// Backend is the subset of ethclient.Client the payer needs.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type PayerConfig struct {
	ChainID            *big.Int
	GasLimitMultiplier float64
	MinTipCap          *big.Int

	ReceiptPollInterval time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Payer broadcasts single-shot native-asset transfers and waits for the
// first confirmation. A payout that fails is terminal for its job: the payer
// never retries or replaces a transaction on its own.
type Payer struct {
	backend Backend
	cfg     PayerConfig
	signer  Signer
	nonces  *NonceManager
}

type SendResult struct {
	From    common.Address
	Nonce   uint64
	TxHash  common.Hash
	Receipt *types.Receipt
}

func NewPayer(backend Backend, signer Signer, cfg PayerConfig) (*Payer, error) {
	if backend == nil || signer == nil {
		return nil, ErrInvalidPayerConfig
	}
	if (signer.Address() == common.Address{}) {
		return nil, ErrInvalidPayerConfig
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, ErrInvalidPayerConfig
	}
	if cfg.GasLimitMultiplier <= 0 {
		return nil, ErrInvalidPayerConfig
	}
	if cfg.MinTipCap == nil || cfg.MinTipCap.Sign() < 0 {
		return nil, ErrInvalidPayerConfig
	}
	if cfg.ReceiptPollInterval <= 0 {
		return nil, ErrInvalidPayerConfig
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}

	return &Payer{
		backend: backend,
		cfg:     cfg,
		signer:  signer,
		nonces:  NewNonceManager(backend, signer.Address()),
	}, nil
}

// SendNative transfers value wei of the chain's native asset to the
// recipient and waits until a receipt appears, polling at the configured
// interval. The caller bounds the wait through ctx.
func (p *Payer) SendNative(ctx context.Context, to common.Address, value *big.Int) (SendResult, error) {
	if value == nil || value.Sign() <= 0 {
		return SendResult{}, fmt.Errorf("%w: value must be > 0", ErrInvalidPayerConfig)
	}
	from := p.signer.Address()

	gasLimit, err := p.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
	})
	if err != nil {
		return SendResult{}, err
	}
	gasLimit = applyGasMultiplier(gasLimit, p.cfg.GasLimitMultiplier)

	suggestedTip, err := p.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return SendResult{}, err
	}
	header, err := p.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return SendResult{}, err
	}
	if header.BaseFee == nil || header.BaseFee.Sign() < 0 {
		return SendResult{}, fmt.Errorf("eth: missing baseFee in latest header")
	}

	tipCap, feeCap, err := Calc1559Fees(header.BaseFee, suggestedTip, p.cfg.MinTipCap)
	if err != nil {
		return SendResult{}, err
	}

	nonce, err := p.nonces.Next(ctx)
	if err != nil {
		return SendResult{}, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   p.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
	})
	signed, err := p.signer.SignTx(tx, p.cfg.ChainID)
	if err != nil {
		return SendResult{}, err
	}
	if err := p.backend.SendTransaction(ctx, signed); err != nil {
		return SendResult{}, err
	}

	txHash := signed.Hash()
	for {
		receipt, err := p.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return SendResult{}, fmt.Errorf("%w: tx %s", ErrTxReverted, txHash.Hex())
			}
			return SendResult{
				From:    from,
				Nonce:   nonce,
				TxHash:  txHash,
				Receipt: receipt,
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return SendResult{}, err
		}

		if err := p.cfg.Sleep(ctx, p.cfg.ReceiptPollInterval); err != nil {
			return SendResult{}, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func applyGasMultiplier(est uint64, mult float64) uint64 {
	if mult <= 1 {
		return est
	}
	out := uint64(math.Ceil(float64(est) * mult))
	if out < est {
		// overflow or float error; fall back to the estimate.
		return est
	}
	return out
}
