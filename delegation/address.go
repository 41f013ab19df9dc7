package delegation

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress parses a 0x-prefixed, 40 hex digit account identifier.
// Case is ignored; checksums are not enforced. Anything else, including
// unprefixed or padded input, is rejected rather than truncated.
func ParseAddress(text string) (common.Address, error) {
	if !strings.HasPrefix(text, "0x") && !strings.HasPrefix(text, "0X") {
		return common.Address{}, fmt.Errorf("%w: %q: missing 0x prefix", ErrInvalidAddress, text)
	}
	if len(text) != 2+2*common.AddressLength {
		return common.Address{}, fmt.Errorf("%w: %q: expected %d hex digits, got %d",
			ErrInvalidAddress, text, 2*common.AddressLength, len(text)-2)
	}
	if !common.IsHexAddress(text) {
		return common.Address{}, fmt.Errorf("%w: %q: non-hex content", ErrInvalidAddress, text)
	}
	return common.HexToAddress(text), nil
}

// CanonicalAddress returns the lower-case textual form of addr.
func CanonicalAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// AddressEqual reports whether a and b identify the same account.
func AddressEqual(a, b common.Address) bool {
	return a == b
}

func parseParty(role, text string) (common.Address, error) {
	addr, err := ParseAddress(text)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", role, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: %w: zero address", role, ErrInvalidAddress)
	}
	return addr, nil
}
