package delegation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Execution is a single call performed by the delegator's account once a
// delegation chain has been redeemed.
type Execution struct {
	Target   common.Address
	Value    uint256.Int
	CallData []byte
}

// NewExecution parses target and builds an execution moving value wei.
func NewExecution(target string, value *uint256.Int, callData []byte) (Execution, error) {
	addr, err := ParseAddress(target)
	if err != nil {
		return Execution{}, fmt.Errorf("target: %w", err)
	}
	e := Execution{Target: addr, CallData: common.CopyBytes(callData)}
	if value != nil {
		e.Value.Set(value)
	}
	return e, nil
}

// RedeemDelegationsSelector is the 4-byte selector of
// redeemDelegations(bytes[],bytes32[],bytes[]).
var RedeemDelegationsSelector = crypto.Keccak256([]byte("redeemDelegations(bytes[],bytes32[],bytes[])"))[:4]

var (
	bytesArrayType   = mustType("bytes[]", nil)
	bytes32ArrayType = mustType("bytes32[]", nil)

	delegationsType = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "delegate", Type: "address"},
		{Name: "delegator", Type: "address"},
		{Name: "authority", Type: "bytes32"},
		{Name: "caveats", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "enforcer", Type: "address"},
			{Name: "terms", Type: "bytes"},
			{Name: "args", Type: "bytes"},
		}},
		{Name: "salt", Type: "uint256"},
		{Name: "signature", Type: "bytes"},
	})

	executionsType = mustType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "callData", Type: "bytes"},
	})

	redeemArgs = abi.Arguments{
		{Name: "permissionContexts", Type: bytesArrayType},
		{Name: "modes", Type: bytes32ArrayType},
		{Name: "executionCallDatas", Type: bytesArrayType},
	}
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

type abiCaveat struct {
	Enforcer common.Address
	Terms    []byte
	Args     []byte
}

type abiDelegation struct {
	Delegate  common.Address
	Delegator common.Address
	Authority [32]byte
	Caveats   []abiCaveat
	Salt      *big.Int
	Signature []byte
}

type abiExecution struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

// EncodePermissionContext ABI-encodes chain as the DelegationManager
// expects it: leaf first, root last. Every entry must be a valid, signed
// delegation.
func EncodePermissionContext(chain Chain) ([]byte, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrBrokenChain)
	}
	list := make([]abiDelegation, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		sd := chain[i]
		if err := sd.d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: delegation %d: %v", ErrBrokenChain, i, err)
		}
		if len(sd.signature) == 0 {
			return nil, fmt.Errorf("%w: delegation %d is unsigned", ErrBrokenChain, i)
		}
		caveats := make([]abiCaveat, 0, sd.d.Caveats.Len())
		for _, c := range sd.d.Caveats.list {
			caveats = append(caveats, abiCaveat{Enforcer: c.Enforcer, Terms: nonNil(c.Terms), Args: nonNil(c.Args)})
		}
		list = append(list, abiDelegation{
			Delegate:  sd.d.Delegate,
			Delegator: sd.d.Delegator,
			Authority: sd.d.Authority,
			Caveats:   caveats,
			Salt:      new(big.Int).Set(sd.d.Salt),
			Signature: nonNil(sd.signature),
		})
	}
	return abi.Arguments{{Type: delegationsType}}.Pack(list)
}

// EncodeExecutionCalldata encodes executions for mode. Single-call modes
// take exactly one execution, packed as target || value || callData.
// Batch modes ABI-encode an (address,uint256,bytes)[] array.
func EncodeExecutionCalldata(mode ExecutionMode, executions []Execution) ([]byte, error) {
	switch mode.CallType() {
	case CallTypeSingle:
		if len(executions) != 1 {
			return nil, fmt.Errorf("%w: %s mode takes one execution, got %d", ErrArityMismatch, mode, len(executions))
		}
		e := executions[0]
		value := e.Value.Bytes32()
		out := make([]byte, 0, common.AddressLength+32+len(e.CallData))
		out = append(out, e.Target.Bytes()...)
		out = append(out, value[:]...)
		return append(out, e.CallData...), nil
	case CallTypeBatch:
		if len(executions) == 0 {
			return nil, fmt.Errorf("%w: %s mode with no executions", ErrArityMismatch, mode)
		}
		list := make([]abiExecution, len(executions))
		for i, e := range executions {
			list[i] = abiExecution{Target: e.Target, Value: e.Value.ToBig(), CallData: nonNil(e.CallData)}
		}
		return abi.Arguments{{Type: executionsType}}.Pack(list)
	default:
		return nil, fmt.Errorf("unsupported call type 0x%02x", mode.CallType())
	}
}

// EncodeRedemption builds redeemDelegations calldata. The i'th chain is
// redeemed with the i'th mode to perform the i'th execution set, so all
// three slices must have equal, non-zero length. The output is a pure
// function of the inputs.
func EncodeRedemption(chains []Chain, modes []ExecutionMode, executions [][]Execution) ([]byte, error) {
	if len(chains) != len(modes) || len(chains) != len(executions) {
		return nil, fmt.Errorf("%w: %d chains, %d modes, %d execution sets",
			ErrArityMismatch, len(chains), len(modes), len(executions))
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("%w: nothing to redeem", ErrArityMismatch)
	}

	contexts := make([][]byte, len(chains))
	modeWords := make([][32]byte, len(modes))
	callDatas := make([][]byte, len(executions))
	for i := range chains {
		ctx, err := EncodePermissionContext(chains[i])
		if err != nil {
			return nil, fmt.Errorf("chain %d: %w", i, err)
		}
		data, err := EncodeExecutionCalldata(modes[i], executions[i])
		if err != nil {
			return nil, fmt.Errorf("execution set %d: %w", i, err)
		}
		contexts[i] = ctx
		modeWords[i] = modes[i]
		callDatas[i] = data
	}

	packed, err := redeemArgs.Pack(contexts, modeWords, callDatas)
	if err != nil {
		return nil, fmt.Errorf("failed to encode redemption: %w", err)
	}
	return append(append([]byte{}, RedeemDelegationsSelector...), packed...), nil
}
