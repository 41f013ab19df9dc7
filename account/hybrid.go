// Package account models the HybridDeleGator smart account: its
// counterfactual address, deployment call, execute encoding and the
// owner signatures its validation logic accepts.
package account

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/stable-net/delegator-go/delegation"
)

var (
	// ErrNotDeployable is returned when the account's deployment call cannot
	// be derived, typically because no proxy creation code is configured.
	ErrNotDeployable = errors.New("account cannot be deployed")
	// ErrNoDeploymentChecker is returned by IsDeployed without a checker.
	ErrNoDeploymentChecker = errors.New("no deployment checker configured")
)

// DeploymentChecker reports whether code exists at an address.
type DeploymentChecker interface {
	IsDeployed(ctx context.Context, addr common.Address) (bool, error)
}

var (
	initializeSelector = crypto.Keccak256([]byte("initialize(address,string[],uint256[],uint256[])"))[:4]
	deploySelector     = crypto.Keccak256([]byte("deploy(bytes,bytes32)"))[:4]
	executeSelector    = crypto.Keccak256([]byte("execute(bytes32,bytes)"))[:4]

	addressType      = mustType("address")
	bytesType        = mustType("bytes")
	bytes32Type      = mustType("bytes32")
	stringArrayType  = mustType("string[]")
	uint256ArrayType = mustType("uint256[]")

	initializeArgs = abi.Arguments{{Type: addressType}, {Type: stringArrayType}, {Type: uint256ArrayType}, {Type: uint256ArrayType}}
	proxyArgs      = abi.Arguments{{Type: addressType}, {Type: bytesType}}
	deployArgs     = abi.Arguments{{Type: bytesType}, {Type: bytes32Type}}
	executeArgs    = abi.Arguments{{Type: bytes32Type}, {Type: bytesType}}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

// Options configures a HybridAccount.
type Options struct {
	// Salt is the CREATE2 salt used by the SimpleFactory.
	Salt common.Hash
	// ProxyCreationCode is the ERC-1967 proxy creation bytecode. Without it
	// the counterfactual address cannot be derived and Address must be set.
	ProxyCreationCode []byte
	// Address pins the account address, for accounts deployed elsewhere.
	Address common.Address
	// Checker answers IsDeployed.
	Checker DeploymentChecker
}

// HybridAccount is a HybridDeleGator proxy owned by a single EOA key and
// no passkeys, deployed through the environment's SimpleFactory.
type HybridAccount struct {
	env     *delegation.Environment
	owner   *ecdsa.PrivateKey
	ownerID common.Address
	salt    common.Hash
	proxy   []byte
	address common.Address
	checker DeploymentChecker
}

// NewHybridAccount derives the account owned by owner in env.
func NewHybridAccount(env *delegation.Environment, owner *ecdsa.PrivateKey, opts Options) (*HybridAccount, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: environment", delegation.ErrConfigurationMissing)
	}
	if owner == nil {
		return nil, fmt.Errorf("%w: no owner key", delegation.ErrSigningUnavailable)
	}
	a := &HybridAccount{
		env:     env,
		owner:   owner,
		ownerID: crypto.PubkeyToAddress(owner.PublicKey),
		salt:    opts.Salt,
		proxy:   common.CopyBytes(opts.ProxyCreationCode),
		checker: opts.Checker,
	}
	switch {
	case opts.Address != (common.Address{}):
		a.address = opts.Address
	case len(a.proxy) > 0:
		bytecode, err := a.creationBytecode()
		if err != nil {
			return nil, err
		}
		a.address = crypto.CreateAddress2(env.SimpleFactory, a.salt, crypto.Keccak256(bytecode))
	default:
		return nil, fmt.Errorf("%w: proxy creation code or account address required", delegation.ErrConfigurationMissing)
	}
	return a, nil
}

// Address returns the counterfactual CREATE2 address of the account.
func (a *HybridAccount) Address() common.Address { return a.address }

// Owner returns the EOA that controls the account.
func (a *HybridAccount) Owner() common.Address { return a.ownerID }

// Environment returns the deployment the account belongs to.
func (a *HybridAccount) Environment() *delegation.Environment { return a.env }

// IsDeployed reports whether the account has code on chain.
func (a *HybridAccount) IsDeployed(ctx context.Context) (bool, error) {
	if a.checker == nil {
		return false, ErrNoDeploymentChecker
	}
	return a.checker.IsDeployed(ctx, a.address)
}

// InitData returns the initialize calldata run by the proxy constructor.
func (a *HybridAccount) InitData() ([]byte, error) {
	packed, err := initializeArgs.Pack(a.ownerID, []string{}, []*big.Int{}, []*big.Int{})
	if err != nil {
		return nil, fmt.Errorf("failed to encode initialize: %w", err)
	}
	return append(append([]byte{}, initializeSelector...), packed...), nil
}

func (a *HybridAccount) creationBytecode() ([]byte, error) {
	if len(a.proxy) == 0 {
		return nil, fmt.Errorf("%w: no proxy creation code", ErrNotDeployable)
	}
	initData, err := a.InitData()
	if err != nil {
		return nil, err
	}
	args, err := proxyArgs.Pack(a.env.Implementations.Hybrid, initData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proxy constructor: %w", err)
	}
	return append(common.CopyBytes(a.proxy), args...), nil
}

// FactoryCall returns the SimpleFactory call that deploys the account.
func (a *HybridAccount) FactoryCall() (common.Address, []byte, error) {
	bytecode, err := a.creationBytecode()
	if err != nil {
		return common.Address{}, nil, err
	}
	packed, err := deployArgs.Pack(bytecode, [32]byte(a.salt))
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to encode deploy: %w", err)
	}
	return a.env.SimpleFactory, append(append([]byte{}, deploySelector...), packed...), nil
}

// EncodeCalls encodes executions as an ERC-7579 execute call on the
// account: one execution uses the single default mode, more use batch.
func (a *HybridAccount) EncodeCalls(executions []delegation.Execution) ([]byte, error) {
	mode := delegation.SingleDefaultMode
	if len(executions) != 1 {
		mode = delegation.BatchDefaultMode
	}
	calldata, err := delegation.EncodeExecutionCalldata(mode, executions)
	if err != nil {
		return nil, err
	}
	packed, err := executeArgs.Pack([32]byte(mode), calldata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execute: %w", err)
	}
	return append(append([]byte{}, executeSelector...), packed...), nil
}
