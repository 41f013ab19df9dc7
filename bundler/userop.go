package bundler

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is an EntryPoint v0.7 user operation in its unpacked RPC
// form.
type UserOperation struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address
	FactoryData                   []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

type userOperationJSON struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   *hexutil.Bytes  `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 *hexutil.Bytes  `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

func bigOrZero(b *big.Int) *hexutil.Big {
	if b == nil {
		return (*hexutil.Big)(new(big.Int))
	}
	return (*hexutil.Big)(b)
}

func (u *UserOperation) MarshalJSON() ([]byte, error) {
	enc := userOperationJSON{
		Sender:               u.Sender,
		Nonce:                bigOrZero(u.Nonce),
		CallData:             nonNilBytes(u.CallData),
		CallGasLimit:         bigOrZero(u.CallGasLimit),
		VerificationGasLimit: bigOrZero(u.VerificationGasLimit),
		PreVerificationGas:   bigOrZero(u.PreVerificationGas),
		MaxFeePerGas:         bigOrZero(u.MaxFeePerGas),
		MaxPriorityFeePerGas: bigOrZero(u.MaxPriorityFeePerGas),
		Signature:            nonNilBytes(u.Signature),
	}
	if u.Factory != nil {
		enc.Factory = u.Factory
		data := nonNilBytes(u.FactoryData)
		enc.FactoryData = &data
	}
	if u.Paymaster != nil {
		enc.Paymaster = u.Paymaster
		enc.PaymasterVerificationGasLimit = bigOrZero(u.PaymasterVerificationGasLimit)
		enc.PaymasterPostOpGasLimit = bigOrZero(u.PaymasterPostOpGasLimit)
		data := nonNilBytes(u.PaymasterData)
		enc.PaymasterData = &data
	}
	return json.Marshal(enc)
}

func (u *UserOperation) UnmarshalJSON(data []byte) error {
	var dec userOperationJSON
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}
	*u = UserOperation{
		Sender:                        dec.Sender,
		Nonce:                         (*big.Int)(dec.Nonce),
		Factory:                       dec.Factory,
		FactoryData:                   derefBytes(dec.FactoryData),
		CallData:                      dec.CallData,
		CallGasLimit:                  (*big.Int)(dec.CallGasLimit),
		VerificationGasLimit:          (*big.Int)(dec.VerificationGasLimit),
		PreVerificationGas:            (*big.Int)(dec.PreVerificationGas),
		MaxFeePerGas:                  (*big.Int)(dec.MaxFeePerGas),
		MaxPriorityFeePerGas:          (*big.Int)(dec.MaxPriorityFeePerGas),
		Paymaster:                     dec.Paymaster,
		PaymasterVerificationGasLimit: (*big.Int)(dec.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       (*big.Int)(dec.PaymasterPostOpGasLimit),
		PaymasterData:                 derefBytes(dec.PaymasterData),
		Signature:                     dec.Signature,
	}
	return nil
}

func derefBytes(b *hexutil.Bytes) []byte {
	if b == nil {
		return nil
	}
	return *b
}

func nonNilBytes(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}
	return b
}

// InitCode is factory || factoryData, empty for deployed accounts.
func (u *UserOperation) InitCode() []byte {
	if u.Factory == nil {
		return nil
	}
	return append(u.Factory.Bytes(), u.FactoryData...)
}

// PaymasterAndData is the packed paymaster field, empty without a paymaster.
func (u *UserOperation) PaymasterAndData() []byte {
	if u.Paymaster == nil {
		return nil
	}
	out := append([]byte{}, u.Paymaster.Bytes()...)
	out = append(out, uint128Bytes(u.PaymasterVerificationGasLimit)...)
	out = append(out, uint128Bytes(u.PaymasterPostOpGasLimit)...)
	return append(out, u.PaymasterData...)
}

// AccountGasLimits packs verificationGasLimit and callGasLimit into one word.
func (u *UserOperation) AccountGasLimits() [32]byte {
	return packUint128Pair(u.VerificationGasLimit, u.CallGasLimit)
}

// GasFees packs maxPriorityFeePerGas and maxFeePerGas into one word.
func (u *UserOperation) GasFees() [32]byte {
	return packUint128Pair(u.MaxPriorityFeePerGas, u.MaxFeePerGas)
}

func uint128Bytes(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 16)
	}
	return common.LeftPadBytes(v.Bytes(), 16)
}

func packUint128Pair(hi, lo *big.Int) [32]byte {
	var out [32]byte
	copy(out[:16], uint128Bytes(hi))
	copy(out[16:], uint128Bytes(lo))
	return out
}

var (
	hashedUserOpArgs = abi.Arguments{
		{Type: mustType("address")}, // sender
		{Type: mustType("uint256")}, // nonce
		{Type: mustType("bytes32")}, // keccak(initCode)
		{Type: mustType("bytes32")}, // keccak(callData)
		{Type: mustType("bytes32")}, // accountGasLimits
		{Type: mustType("uint256")}, // preVerificationGas
		{Type: mustType("bytes32")}, // gasFees
		{Type: mustType("bytes32")}, // keccak(paymasterAndData)
	}
	packedUserOpArgs = abi.Arguments{
		{Type: mustType("address")},
		{Type: mustType("uint256")},
		{Type: mustType("bytes")},
		{Type: mustType("bytes")},
		{Type: mustType("bytes32")},
		{Type: mustType("uint256")},
		{Type: mustType("bytes32")},
		{Type: mustType("bytes")},
		{Type: mustType("bytes")},
	}
	userOpHashArgs = abi.Arguments{
		{Type: mustType("bytes32")},
		{Type: mustType("address")},
		{Type: mustType("uint256")},
	}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %s: %v", t, err))
	}
	return typ
}

func orZero(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b
}

// Hash returns the user operation hash the EntryPoint at entryPoint
// computes on chainID. The signature is not covered.
func (u *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	inner, err := hashedUserOpArgs.Pack(
		u.Sender,
		orZero(u.Nonce),
		crypto.Keccak256Hash(u.InitCode()),
		crypto.Keccak256Hash(u.CallData),
		u.AccountGasLimits(),
		orZero(u.PreVerificationGas),
		u.GasFees(),
		crypto.Keccak256Hash(u.PaymasterAndData()),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation: %w", err)
	}
	outer, err := userOpHashArgs.Pack(crypto.Keccak256Hash(inner), entryPoint, orZero(chainID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack user operation hash: %w", err)
	}
	return crypto.Keccak256Hash(outer), nil
}

// Packed returns the ABI encoding of the PackedUserOperation the bundler
// places in handleOps calldata.
func (u *UserOperation) Packed() ([]byte, error) {
	return packedUserOpArgs.Pack(
		u.Sender,
		orZero(u.Nonce),
		[]byte(nonNilBytes(u.InitCode())),
		[]byte(nonNilBytes(u.CallData)),
		u.AccountGasLimits(),
		orZero(u.PreVerificationGas),
		u.GasFees(),
		[]byte(nonNilBytes(u.PaymasterAndData())),
		[]byte(nonNilBytes(u.Signature)),
	)
}
