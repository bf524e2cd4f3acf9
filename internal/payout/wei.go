package payout

import (
	"errors"
	"fmt"
	"math/big"
)

var ErrInvalidAmount = errors.New("payout: invalid amount")

// ToWei converts a client-submitted decimal amount into the chain's base
// unit at the given decimal precision (18 for the native asset of most EVM
// chains). Fractional dust below the precision is truncated.
func ToWei(amount float64, decimals int) (*big.Int, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: must be > 0", ErrInvalidAmount)
	}
	if decimals < 0 || decimals > 32 {
		return nil, fmt.Errorf("%w: unsupported decimals %d", ErrInvalidAmount, decimals)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	f := new(big.Float).SetPrec(236).SetFloat64(amount)
	f.Mul(f, new(big.Float).SetPrec(236).SetInt(scale))

	wei, _ := f.Int(nil)
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: rounds to zero at %d decimals", ErrInvalidAmount, decimals)
	}
	return wei, nil
}
