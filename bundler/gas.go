package bundler

import (
	"fmt"
	"math/big"
)

// GasCalculationResult breaks down the preVerificationGas floor of a user
// operation.
type GasCalculationResult struct {
	TotalGas          uint64
	CalldataGas       uint64
	OverheadGas       uint64
	DetailedBreakdown []GasComponent
}

// GasComponent is one line of a gas breakdown.
type GasComponent struct {
	Name        string
	Gas         uint64
	Count       uint64
	UnitCost    uint64
	Description string
}

// GasConstants are the bundler overheads charged through preVerificationGas.
type GasConstants struct {
	TxGas            uint64
	PerUserOpGas     uint64
	PerUserOpWordGas uint64
	TxDataZeroGas    uint64
	TxDataNonZeroGas uint64
	BundleSize       uint64
	SignatureSize    int
}

// DefaultGasConstants mirrors the reference bundler's overheads.
func DefaultGasConstants() GasConstants {
	return GasConstants{
		TxGas:            21000,
		PerUserOpGas:     18300,
		PerUserOpWordGas: 4,
		TxDataZeroGas:    4,
		TxDataNonZeroGas: 16,
		BundleSize:       1,
		SignatureSize:    65,
	}
}

// CalldataGas returns the intrinsic calldata cost of data.
func CalldataGas(data []byte, c GasConstants) (zero, nonZero, gas uint64) {
	for _, b := range data {
		if b == 0 {
			zero++
		} else {
			nonZero++
		}
	}
	return zero, nonZero, zero*c.TxDataZeroGas + nonZero*c.TxDataNonZeroGas
}

// CalculatePreVerificationGas computes the minimum preVerificationGas the
// bundler needs for u. The signature is replaced by a same-size
// placeholder so the result does not depend on signing.
func CalculatePreVerificationGas(u *UserOperation, c GasConstants) (*GasCalculationResult, error) {
	op := *u
	op.Signature = make([]byte, c.SignatureSize)
	for i := range op.Signature {
		op.Signature[i] = 0x01
	}
	if op.PreVerificationGas == nil {
		op.PreVerificationGas = big.NewInt(int64(c.TxGas))
	}
	packed, err := op.Packed()
	if err != nil {
		return nil, fmt.Errorf("failed to pack user operation: %w", err)
	}

	result := &GasCalculationResult{}
	zero, nonZero, dataGas := CalldataGas(packed, c)
	result.CalldataGas = dataGas
	if zero > 0 {
		result.DetailedBreakdown = append(result.DetailedBreakdown, GasComponent{
			Name:        "data_zero_bytes",
			Gas:         zero * c.TxDataZeroGas,
			Count:       zero,
			UnitCost:    c.TxDataZeroGas,
			Description: "Zero bytes in packed user operation",
		})
	}
	if nonZero > 0 {
		result.DetailedBreakdown = append(result.DetailedBreakdown, GasComponent{
			Name:        "data_non_zero_bytes",
			Gas:         nonZero * c.TxDataNonZeroGas,
			Count:       nonZero,
			UnitCost:    c.TxDataNonZeroGas,
			Description: "Non-zero bytes in packed user operation",
		})
	}

	bundle := c.BundleSize
	if bundle == 0 {
		bundle = 1
	}
	words := uint64(len(packed)+31) / 32
	fixed := c.TxGas / bundle
	result.DetailedBreakdown = append(result.DetailedBreakdown,
		GasComponent{Name: "bundle_tx_share", Gas: fixed, Count: 1, UnitCost: fixed, Description: fmt.Sprintf("Base transaction gas shared by %d operations", bundle)},
		GasComponent{Name: "per_user_op", Gas: c.PerUserOpGas, Count: 1, UnitCost: c.PerUserOpGas, Description: "EntryPoint per-operation overhead"},
		GasComponent{Name: "per_user_op_word", Gas: words * c.PerUserOpWordGas, Count: words, UnitCost: c.PerUserOpWordGas, Description: "Per-word copy overhead"},
	)
	result.OverheadGas = fixed + c.PerUserOpGas + words*c.PerUserOpWordGas
	result.TotalGas = result.CalldataGas + result.OverheadGas
	return result, nil
}

// FormatGasResult renders a breakdown for display.
func FormatGasResult(r *GasCalculationResult) string {
	out := fmt.Sprintf("preVerificationGas floor: %d\n", r.TotalGas)
	for _, c := range r.DetailedBreakdown {
		out += fmt.Sprintf("  %-20s %8d (%d x %d) %s\n", c.Name, c.Gas, c.Count, c.UnitCost, c.Description)
	}
	return out
}
