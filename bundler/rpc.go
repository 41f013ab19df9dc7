package bundler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/stable-net/delegator-go/account"
	"github.com/stable-net/delegator-go/delegation"
)

// Sender is a smart account able to fill and sign its user operations.
type Sender interface {
	Address() common.Address
	FactoryCall() (common.Address, []byte, error)
	EncodeCalls(executions []delegation.Execution) ([]byte, error)
	SignUserOperationHash(hash common.Hash) ([]byte, error)
}

// NonceSource reads EntryPoint nonces.
type NonceSource interface {
	EntryPointNonce(ctx context.Context, entryPoint, sender common.Address, key *big.Int) (*big.Int, error)
}

// RPCRelayConfig configures an RPCRelay.
type RPCRelayConfig struct {
	EntryPoint common.Address
	ChainID    *big.Int
	// Fees is used when SendOperation receives no oracle.
	Fees   FeeOracle
	Gas    GasConstants
	Logger *zap.Logger
}

// RPCRelay is a Relay speaking the ERC-4337 bundler JSON-RPC API against an
// EntryPoint v0.7.
type RPCRelay struct {
	rpc    *rpc.Client
	nonces NonceSource
	cfg    RPCRelayConfig
	logger *zap.Logger

	mu      sync.RWMutex
	senders map[common.Address]Sender
}

// DialRelay connects to the bundler at url.
func DialRelay(ctx context.Context, url string, nonces NonceSource, cfg RPCRelayConfig, senders ...Sender) (*RPCRelay, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bundler %s: %w", url, err)
	}
	return NewRPCRelay(rc, nonces, cfg, senders...), nil
}

// NewRPCRelay builds a relay over rc. Operations can only be sent for
// registered senders.
func NewRPCRelay(rc *rpc.Client, nonces NonceSource, cfg RPCRelayConfig, senders ...Sender) *RPCRelay {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Gas == (GasConstants{}) {
		cfg.Gas = DefaultGasConstants()
	}
	r := &RPCRelay{
		rpc:     rc,
		nonces:  nonces,
		cfg:     cfg,
		logger:  cfg.Logger,
		senders: make(map[common.Address]Sender),
	}
	for _, s := range senders {
		r.Register(s)
	}
	return r
}

// Register makes s available as an operation sender.
func (r *RPCRelay) Register(s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[s.Address()] = s
}

// Close releases the connection.
// Close closes the bundler connection.
func (r *RPCRelay) Close() {
	r.rpc.Close()
}

// SupportedEntryPoints calls eth_supportedEntryPoints.
func (r *RPCRelay) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var eps []common.Address
	if err := r.rpc.CallContext(ctx, &eps, "eth_supportedEntryPoints"); err != nil {
		return nil, fmt.Errorf("eth_supportedEntryPoints: %w", err)
	}
	return eps, nil
}

// GasEstimate is the result of eth_estimateUserOperationGas.
type GasEstimate struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
}

func (r *RPCRelay) sender(addr common.Address) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[addr]
	return s, ok
}

// BuildUserOperation fills, estimates and signs a user operation for op
// without sending it.
func (r *RPCRelay) BuildUserOperation(ctx context.Context, op Operation, fees FeeOracle) (*UserOperation, error) {
	sender, ok := r.sender(op.Account)
	if !ok {
		return nil, &SubmissionError{Kind: RejectionMalformed, Reason: "no sender registered for " + op.Account.Hex()}
	}
	uo := &UserOperation{Sender: sender.Address()}

	calls := op.Calls
	if len(calls) > 0 {
		if factory, data, err := sender.FactoryCall(); err == nil && calls[0].To == factory && bytes.Equal(calls[0].Data, data) {
			uo.Factory = &factory
			uo.FactoryData = data
			calls = calls[1:]
		}
	}
	if len(calls) == 0 {
		return nil, &SubmissionError{Kind: RejectionMalformed, Reason: "operation has no calls"}
	}
	execs := make([]delegation.Execution, len(calls))
	for i, c := range calls {
		execs[i] = c.Execution()
	}
	callData, err := sender.EncodeCalls(execs)
	if err != nil {
		return nil, &SubmissionError{Kind: RejectionMalformed, Reason: err.Error(), Err: err}
	}
	uo.CallData = callData

	if uo.Nonce, err = r.nonces.EntryPointNonce(ctx, r.cfg.EntryPoint, uo.Sender, nil); err != nil {
		return nil, err
	}

	if fees == nil {
		fees = r.cfg.Fees
	}
	if fees == nil {
		return nil, errors.New("no fee oracle configured")
	}
	f, err := fees.SuggestFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to price operation: %w", err)
	}
	uo.MaxFeePerGas = f.MaxFeePerGas.ToBig()
	uo.MaxPriorityFeePerGas = f.MaxPriorityFeePerGas.ToBig()

	uo.Signature = account.DummySignature
	var est GasEstimate
	if err := r.rpc.CallContext(ctx, &est, "eth_estimateUserOperationGas", uo, r.cfg.EntryPoint); err != nil {
		return nil, classifyRejection(err)
	}
	uo.CallGasLimit = (*big.Int)(est.CallGasLimit)
	uo.VerificationGasLimit = (*big.Int)(est.VerificationGasLimit)
	uo.PreVerificationGas = (*big.Int)(est.PreVerificationGas)

	floor, err := CalculatePreVerificationGas(uo, r.cfg.Gas)
	if err != nil {
		return nil, err
	}
	if pvg := new(big.Int).SetUint64(floor.TotalGas); uo.PreVerificationGas == nil || uo.PreVerificationGas.Cmp(pvg) < 0 {
		r.logger.Debug("raising preVerificationGas to floor",
			zap.Uint64("floor", floor.TotalGas))
		uo.PreVerificationGas = pvg
	}

	hash, err := uo.Hash(r.cfg.EntryPoint, r.cfg.ChainID)
	if err != nil {
		return nil, err
	}
	if uo.Signature, err = sender.SignUserOperationHash(hash); err != nil {
		return nil, fmt.Errorf("failed to sign user operation: %w", err)
	}
	return uo, nil
}

// SendOperation builds, signs and sends op with eth_sendUserOperation and
// returns the user operation hash.
func (r *RPCRelay) SendOperation(ctx context.Context, op Operation, fees FeeOracle) (common.Hash, error) {
	uo, err := r.BuildUserOperation(ctx, op, fees)
	if err != nil {
		return common.Hash{}, err
	}
	local, err := uo.Hash(r.cfg.EntryPoint, r.cfg.ChainID)
	if err != nil {
		return common.Hash{}, err
	}

	var hash common.Hash
	if err := r.rpc.CallContext(ctx, &hash, "eth_sendUserOperation", uo, r.cfg.EntryPoint); err != nil {
		return common.Hash{}, classifyRejection(err)
	}
	if hash != local {
		r.logger.Warn("bundler returned unexpected user operation hash",
			zap.String("local", local.Hex()),
			zap.String("bundler", hash.Hex()))
	}
	r.logger.Info("user operation sent",
		zap.String("sender", uo.Sender.Hex()),
		zap.String("hash", hash.Hex()),
		zap.Bool("deploys", uo.Factory != nil))
	return hash, nil
}

type receiptJSON struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason"`
	ActualGasCost *hexutil.Big   `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed"`
	Receipt       struct {
		TransactionHash common.Hash    `json:"transactionHash"`
		BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	} `json:"receipt"`
}

// OperationReceipt calls eth_getUserOperationReceipt. It returns nil
// without error while the operation is pending.
func (r *RPCRelay) OperationReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var raw *receiptJSON
	if err := r.rpc.CallContext(ctx, &raw, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, fmt.Errorf("eth_getUserOperationReceipt: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return &Receipt{
		OperationHash:   raw.UserOpHash,
		TransactionHash: raw.Receipt.TransactionHash,
		Sender:          raw.Sender,
		Success:         raw.Success,
		Reason:          raw.Reason,
		ActualGasUsed:   (*big.Int)(raw.ActualGasUsed),
		ActualGasCost:   (*big.Int)(raw.ActualGasCost),
		BlockNumber:     uint64(raw.Receipt.BlockNumber),
	}, nil
}

// ERC-7769 bundler error codes.
const (
	codeInvalidParams     = -32602
	codeInvalidSignature  = -32507
	codeUnsupportedOpcode = -32502
)

// classifyRejection maps a bundler error to a SubmissionError. Transport
// failures without a JSON-RPC error are returned unchanged.
func classifyRejection(err error) error {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return err
	}
	msg := rpcErr.Error()
	lower := strings.ToLower(msg)
	kind := RejectionUnknown
	switch {
	case strings.Contains(msg, "AA21"), strings.Contains(lower, "didn't pay prefund"), strings.Contains(lower, "insufficient funds"):
		kind = RejectionInsufficientFunds
	case strings.Contains(msg, "AA25"), strings.Contains(lower, "invalid account nonce"), strings.Contains(lower, "nonce too low"):
		kind = RejectionNonceConflict
	case rpcErr.ErrorCode() == codeInvalidParams,
		rpcErr.ErrorCode() == codeInvalidSignature,
		rpcErr.ErrorCode() == codeUnsupportedOpcode,
		strings.Contains(msg, "AA2"), strings.Contains(msg, "AA1"):
		kind = RejectionMalformed
	}
	return &SubmissionError{Kind: kind, Reason: msg, Code: rpcErr.ErrorCode(), Err: err}
}

var _ Relay = (*RPCRelay)(nil)
