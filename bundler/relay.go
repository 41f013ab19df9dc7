// Package bundler submits ERC-4337 user operations through a bundler and
// tracks them until a receipt is available.
package bundler

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/stable-net/delegator-go/delegation"
)

//go:generate mockgen -destination=mocks/mock_relay.go -package=mocks github.com/stable-net/delegator-go/bundler Relay

// Relay is the bundler boundary.
type Relay interface {
	// SupportedEntryPoints doubles as the liveness probe.
	SupportedEntryPoints(ctx context.Context) ([]common.Address, error)
	// SendOperation submits op and returns its user operation hash. A nil
	// fee oracle selects the relay's default.
	SendOperation(ctx context.Context, op Operation, fees FeeOracle) (common.Hash, error)
	// OperationReceipt returns nil without error while the operation is pending.
	OperationReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// Call is one call executed by the submitting smart account.
type Call struct {
	To    common.Address
	Value uint256.Int
	Data  []byte
}

// Execution converts c for ERC-7579 encoding.
func (c Call) Execution() delegation.Execution {
	return delegation.Execution{Target: c.To, Value: c.Value, CallData: common.CopyBytes(c.Data)}
}

// Operation is the set of calls a smart account submits as one user
// operation.
type Operation struct {
	Account common.Address
	Calls   []Call
}

// Receipt is the settlement result of a user operation. Success is false
// when the operation was included but its execution reverted.
type Receipt struct {
	OperationHash   common.Hash
	TransactionHash common.Hash
	Sender          common.Address
	Success         bool
	Reason          string
	ActualGasUsed   *big.Int
	ActualGasCost   *big.Int
	BlockNumber     uint64
}
