// Package network talks to the chain node: liveness, chain id, code and
// deployment lookups, fee suggestions and EntryPoint nonces.
package network

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

var (
	// ErrEntryPointUnsupported is returned when the bundler does not serve the
	// configured EntryPoint.
	ErrEntryPointUnsupported = errors.New("entry point not supported by bundler")
	// ErrNodeUnreachable is returned by Probe when the node does not answer.
	ErrNodeUnreachable = errors.New("node unreachable")
)

var (
	getNonceSelector = crypto.Keccak256([]byte("getNonce(address,uint192)"))[:4]

	getNonceArgs = abi.Arguments{{Type: mustType("address")}, {Type: mustType("uint192")}}
	uint256Args  = abi.Arguments{{Type: mustType("uint256")}}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

// Client is a node client.
type Client struct {
	rpc    *rpc.Client
	eth    *ethclient.Client
	logger *zap.Logger
}

// Dial connects to the node at url.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node %s: %w", url, err)
	}
	return NewClient(rc, logger), nil
}

// NewClient wraps an existing RPC connection.
func NewClient(rc *rpc.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{rpc: rc, eth: ethclient.NewClient(rc), logger: logger}
}

// Close releases the connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// BlockNumber returns the current block height. It doubles as the
// liveness probe run before any delegation work.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return n, nil
}

// ChainID returns the chain id the node serves.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	return id, nil
}

// Code returns the code at addr in the latest block.
func (c *Client) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := c.eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code for %s: %w", addr.Hex(), err)
	}
	return code, nil
}

// IsDeployed reports whether addr has any code, an EIP-7702 designator
// included.
func (c *Client) IsDeployed(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.Code(ctx, addr)
	if err != nil {
		return false, err
	}
	if target, ok := ParseDesignator(code); ok {
		c.logger.Debug("account delegates its code",
			zap.String("account", addr.Hex()),
			zap.String("target", target.Hex()))
	}
	return len(code) > 0, nil
}

// Designator returns the EIP-7702 delegation target of addr, if any.
func (c *Client) Designator(ctx context.Context, addr common.Address) (common.Address, bool, error) {
	code, err := c.Code(ctx, addr)
	if err != nil {
		return common.Address{}, false, err
	}
	target, ok := ParseDesignator(code)
	return target, ok, nil
}

// SuggestFees returns the latest base fee and the node's priority fee
// suggestion.
func (c *Client) SuggestFees(ctx context.Context) (baseFee, tip *big.Int, err error) {
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	tip, err = c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get priority fee: %w", err)
	}
	baseFee = head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	return baseFee, tip, nil
}

// EntryPointNonce reads EntryPoint.getNonce(sender, key).
func (c *Client) EntryPointNonce(ctx context.Context, entryPoint, sender common.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = new(big.Int)
	}
	args, err := getNonceArgs.Pack(sender, key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode getNonce: %w", err)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &entryPoint,
		Data: append(append([]byte{}, getNonceSelector...), args...),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getNonce: %w", err)
	}
	vals, err := uint256Args.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode getNonce result: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// ProbeResult is the node liveness report.
type ProbeResult struct {
	BlockNumber uint64
	ChainID     *big.Int
}

// Probe checks that the node answers and reports the chain it serves.
func (c *Client) Probe(ctx context.Context) (*ProbeResult, error) {
	n, err := c.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNodeUnreachable, err)
	}
	id, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNodeUnreachable, err)
	}
	c.logger.Info("node reachable", zap.Uint64("block", n), zap.String("chain_id", id.String()))
	return &ProbeResult{BlockNumber: n, ChainID: id}, nil
}

// EntryPointLister is the liveness surface of a bundler.
type EntryPointLister interface {
	SupportedEntryPoints(ctx context.Context) ([]common.Address, error)
}

// ProbeBundler checks the bundler answers eth_supportedEntryPoints and
// serves entryPoint.
func ProbeBundler(ctx context.Context, bundler EntryPointLister, entryPoint common.Address) ([]common.Address, error) {
	eps, err := bundler.SupportedEntryPoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("bundler unreachable: %w", err)
	}
	for _, ep := range eps {
		if ep == entryPoint {
			return eps, nil
		}
	}
	return eps, fmt.Errorf("%w: %s", ErrEntryPointUnsupported, entryPoint.Hex())
}
