package delegation

import (
	"github.com/holiman/uint256"
)

// ExecutionMode is an ERC-7579 execution mode word. Byte 0 is the call
// type, byte 1 the exec type; the rest is reserved.
type ExecutionMode [32]byte

// ERC-7579 call types
const (
	CallTypeSingle byte = 0x00
	CallTypeBatch  byte = 0x01
)

// ERC-7579 exec types
const (
	ExecTypeDefault byte = 0x00
	ExecTypeTry     byte = 0x01
)

// Supported execution modes
var (
	SingleDefaultMode = newMode(CallTypeSingle, ExecTypeDefault)
	BatchDefaultMode  = newMode(CallTypeBatch, ExecTypeDefault)
	SingleTryMode     = newMode(CallTypeSingle, ExecTypeTry)
	BatchTryMode      = newMode(CallTypeBatch, ExecTypeTry)
)

func newMode(callType, execType byte) ExecutionMode {
	var m ExecutionMode
	m[0] = callType
	m[1] = execType
	return m
}

// CallType returns the mode's call type byte.
func (m ExecutionMode) CallType() byte { return m[0] }

// ExecType returns the mode's exec type byte.
func (m ExecutionMode) ExecType() byte { return m[1] }

func (m ExecutionMode) String() string {
	switch m {
	case SingleDefaultMode:
		return "SingleDefault"
	case BatchDefaultMode:
		return "BatchDefault"
	case SingleTryMode:
		return "SingleTry"
	case BatchTryMode:
		return "BatchTry"
	default:
		return "Unknown"
	}
}

// SignatureLength is the length of a raw ECDSA [R || S || V] signature.
const SignatureLength = 65

// Secp256k1HalfN is half the secp256k1 curve order. EIP-2 requires
// s <= secp256k1n/2 for a signature to be accepted.
var Secp256k1HalfN = uint256.MustFromHex("0x7fffffffffffffffffffffffffffffff5d576e7357a4501ddfe92f46681b20a0")
