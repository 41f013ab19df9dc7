package bundler

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Fees are EIP-1559 fee caps in wei.
type Fees struct {
	MaxFeePerGas         *uint256.Int
	MaxPriorityFeePerGas *uint256.Int
}

// Validate checks that both caps are set and consistent.
func (f Fees) Validate() error {
	if f.MaxFeePerGas == nil || f.MaxPriorityFeePerGas == nil {
		return errors.New("fees: both caps must be set")
	}
	if f.MaxPriorityFeePerGas.Gt(f.MaxFeePerGas) {
		return fmt.Errorf("fees: priority fee %s exceeds max fee %s", f.MaxPriorityFeePerGas.Dec(), f.MaxFeePerGas.Dec())
	}
	return nil
}

// FeeOracle prices a user operation.
type FeeOracle interface {
	SuggestFees(ctx context.Context) (Fees, error)
}

// StaticFees always suggests the same caps.
type StaticFees Fees

// SuggestFees returns the configured caps once they validate.
func (s StaticFees) SuggestFees(context.Context) (Fees, error) {
	f := Fees(s)
	if err := f.Validate(); err != nil {
		return Fees{}, err
	}
	return Fees{
		MaxFeePerGas:         new(uint256.Int).Set(f.MaxFeePerGas),
		MaxPriorityFeePerGas: new(uint256.Int).Set(f.MaxPriorityFeePerGas),
	}, nil
}

// NodeFees reports the latest base fee and a priority fee suggestion.
type NodeFees interface {
	SuggestFees(ctx context.Context) (baseFee, tip *big.Int, err error)
}

// DefaultBaseFeeMultiplier leaves headroom for base fee growth while the
// operation waits in the mempool.
const DefaultBaseFeeMultiplier = 2

// NodeFeeOracle prices from the node: max fee = base fee * multiplier + tip.
type NodeFeeOracle struct {
	Node       NodeFees
	Multiplier uint64
}

// SuggestFees prices from the latest base fee and tip reported by the node.
func (o NodeFeeOracle) SuggestFees(ctx context.Context) (Fees, error) {
	base, tip, err := o.Node.SuggestFees(ctx)
	if err != nil {
		return Fees{}, err
	}
	if base == nil || tip == nil {
		return Fees{}, errors.New("fees: node reported no base fee or tip")
	}
	mult := o.Multiplier
	if mult == 0 {
		mult = DefaultBaseFeeMultiplier
	}
	baseFee, overflow := uint256.FromBig(base)
	if overflow {
		return Fees{}, fmt.Errorf("base fee %s out of range", base)
	}
	tipFee, overflow := uint256.FromBig(tip)
	if overflow {
		return Fees{}, fmt.Errorf("priority fee %s out of range", tip)
	}
	maxFee := new(uint256.Int).Mul(baseFee, uint256.NewInt(mult))
	maxFee.Add(maxFee, tipFee)
	return Fees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tipFee}, nil
}

type overrideOracle struct {
	base     FeeOracle
	override Fees
}

// Override returns an oracle that uses the non-nil caps of override and
// asks base for the rest. base may be nil when both caps are set.
func Override(base FeeOracle, override Fees) FeeOracle {
	return overrideOracle{base: base, override: override}
}

func (o overrideOracle) SuggestFees(ctx context.Context) (Fees, error) {
	var f Fees
	if o.override.MaxFeePerGas == nil || o.override.MaxPriorityFeePerGas == nil {
		if o.base == nil {
			return Fees{}, errors.New("fees: partial override without a base oracle")
		}
		var err error
		if f, err = o.base.SuggestFees(ctx); err != nil {
			return Fees{}, err
		}
	}
	if o.override.MaxFeePerGas != nil {
		f.MaxFeePerGas = new(uint256.Int).Set(o.override.MaxFeePerGas)
	}
	if o.override.MaxPriorityFeePerGas != nil {
		f.MaxPriorityFeePerGas = new(uint256.Int).Set(o.override.MaxPriorityFeePerGas)
	}
	if err := f.Validate(); err != nil {
		return Fees{}, err
	}
	return f, nil
}
