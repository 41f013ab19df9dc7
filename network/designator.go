package network

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

// EIP-7702 delegation designator layout.
const (
	DesignatorPrefixLength = 3
	DesignatorLength       = 23
)

// DesignatorPrefix is the 3-byte prefix of an EIP-7702 designator (0xef0100).
var DesignatorPrefix = []byte{0xef, 0x01, 0x00}

// ParseDesignator returns the address an EOA delegates its code to.
func ParseDesignator(code []byte) (common.Address, bool) {
	if len(code) != DesignatorLength || !bytes.HasPrefix(code, DesignatorPrefix) {
		return common.Address{}, false
	}
	return common.BytesToAddress(code[DesignatorPrefixLength:]), true
}
