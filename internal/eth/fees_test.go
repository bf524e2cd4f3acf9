package eth

import (
	"errors"
	"math/big"
	"testing"
)

func TestCalc1559Fees(t *testing.T) {
	t.Parallel()

	tip, fee, err := Calc1559Fees(big.NewInt(100), big.NewInt(2), big.NewInt(1))
	if err != nil {
		t.Fatalf("Calc1559Fees: %v", err)
	}
	if tip.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("tip: got %s want 2", tip)
	}
	// 2*100 + 2
	if fee.Cmp(big.NewInt(202)) != 0 {
		t.Fatalf("fee: got %s want 202", fee)
	}
}

func TestCalc1559Fees_MinTipFloor(t *testing.T) {
	t.Parallel()

	tip, fee, err := Calc1559Fees(big.NewInt(100), big.NewInt(1), big.NewInt(5))
	if err != nil {
		t.Fatalf("Calc1559Fees: %v", err)
	}
	if tip.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("tip: got %s want 5", tip)
	}
	if fee.Cmp(big.NewInt(205)) != 0 {
		t.Fatalf("fee: got %s want 205", fee)
	}
}

func TestCalc1559Fees_InvalidArgs(t *testing.T) {
	t.Parallel()

	if _, _, err := Calc1559Fees(nil, big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrInvalidFeeArgs) {
		t.Fatalf("nil baseFee: got %v", err)
	}
	if _, _, err := Calc1559Fees(big.NewInt(-1), big.NewInt(1), big.NewInt(1)); !errors.Is(err, ErrInvalidFeeArgs) {
		t.Fatalf("negative baseFee: got %v", err)
	}
}

func TestParsePrivateKeyHex(t *testing.T) {
	t.Parallel()

	const keyHex = "4f3edf983ac636a65a842ce7c78d9aa706d3b113b37c2b1b4c1c5f5d8f5e2d3a"

	key, err := ParsePrivateKeyHex(keyHex)
	if err != nil {
		t.Fatalf("ParsePrivateKeyHex: %v", err)
	}
	withPrefix, err := ParsePrivateKeyHex("0x" + keyHex)
	if err != nil {
		t.Fatalf("ParsePrivateKeyHex 0x: %v", err)
	}
	if key.D.Cmp(withPrefix.D) != 0 {
		t.Fatalf("prefix parse mismatch")
	}

	for _, bad := range []string{"", "0x", "zz", "0x1234"} {
		if _, err := ParsePrivateKeyHex(bad); !errors.Is(err, ErrInvalidPrivateKey) {
			t.Fatalf("%q: got %v want ErrInvalidPrivateKey", bad, err)
		}
	}
}
