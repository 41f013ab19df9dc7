package delegation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RootAuthority marks a delegation issued directly by the delegator rather
// than derived from a parent delegation.
var RootAuthority = common.HexToHash("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")

// Delegation is an unsigned grant of authority from Delegator to Delegate.
type Delegation struct {
	Delegate  common.Address
	Delegator common.Address
	Authority common.Hash
	Caveats   Caveats
	Salt      *big.Int
}

// IsRoot reports whether the delegation is issued under ROOT authority.
func (d Delegation) IsRoot() bool {
	return d.Authority == RootAuthority
}

// Copy returns a deep copy of d.
func (d Delegation) Copy() Delegation {
	cp := d
	cp.Caveats = NewCaveats(d.Caveats.list...)
	if d.Salt != nil {
		cp.Salt = new(big.Int).Set(d.Salt)
	}
	return cp
}

// Validate checks the structural invariants every delegation must satisfy.
func (d Delegation) Validate() error {
	if d.Delegate == (common.Address{}) {
		return fmt.Errorf("delegate: %w: zero address", ErrInvalidAddress)
	}
	if d.Delegator == (common.Address{}) {
		return fmt.Errorf("delegator: %w: zero address", ErrInvalidAddress)
	}
	if d.Salt == nil || d.Salt.Sign() == 0 {
		return ErrEmptySaltEntropy
	}
	if d.Salt.Sign() < 0 || d.Salt.BitLen() > 256 {
		return fmt.Errorf("salt %s out of uint256 range", d.Salt)
	}
	if d.Authority == (common.Hash{}) {
		return fmt.Errorf("%w: empty authority", ErrInvalidAuthority)
	}
	return nil
}

// BuildRoot assembles a delegation under ROOT authority.
func BuildRoot(delegate, delegator string, caveats Caveats, salt *big.Int) (Delegation, error) {
	return build(delegate, delegator, caveats, salt, RootAuthority)
}

// BuildChained assembles a delegation whose authority is the hash of a
// parent delegation.
func BuildChained(delegate, delegator string, caveats Caveats, salt *big.Int, parent common.Hash) (Delegation, error) {
	if parent == (common.Hash{}) || parent == RootAuthority {
		return Delegation{}, fmt.Errorf("%w: parent hash %s", ErrInvalidAuthority, parent.Hex())
	}
	return build(delegate, delegator, caveats, salt, parent)
}

// ChainFrom re-delegates the authority granted by parent: the new
// delegation's delegator is parent's delegate and its authority is
// parent's hash.
func ChainFrom(parent SignedDelegation, delegate string, caveats Caveats, salt *big.Int) (Delegation, error) {
	return BuildChained(delegate, CanonicalAddress(parent.Delegate()), caveats, salt, parent.Hash())
}

func build(delegate, delegator string, caveats Caveats, salt *big.Int, authority common.Hash) (Delegation, error) {
	delegateAddr, err := parseParty("delegate", delegate)
	if err != nil {
		return Delegation{}, err
	}
	delegatorAddr, err := parseParty("delegator", delegator)
	if err != nil {
		return Delegation{}, err
	}
	if salt == nil || salt.Sign() == 0 {
		return Delegation{}, ErrEmptySaltEntropy
	}
	d := Delegation{
		Delegate:  delegateAddr,
		Delegator: delegatorAddr,
		Authority: authority,
		Caveats:   NewCaveats(caveats.list...),
		Salt:      new(big.Int).Set(salt),
	}
	if err := d.Validate(); err != nil {
		return Delegation{}, err
	}
	return d, nil
}

// SignedDelegation is a Delegation sealed with the delegator's signature.
// Its fields are only reachable through accessors that return copies.
type SignedDelegation struct {
	d         Delegation
	signature []byte
}

// Seal attaches signature to d. The delegation is copied.
func Seal(d Delegation, signature []byte) SignedDelegation {
	return SignedDelegation{d: d.Copy(), signature: common.CopyBytes(signature)}
}

// Accessors return copies; a SignedDelegation is immutable.

func (s SignedDelegation) Delegate() common.Address  { return s.d.Delegate }
func (s SignedDelegation) Delegator() common.Address { return s.d.Delegator }
func (s SignedDelegation) Authority() common.Hash    { return s.d.Authority }
func (s SignedDelegation) Caveats() Caveats          { return NewCaveats(s.d.Caveats.list...) }
func (s SignedDelegation) Signature() []byte         { return common.CopyBytes(s.signature) }

// Salt is zero for an empty SignedDelegation.
func (s SignedDelegation) Salt() *big.Int {
	if s.d.Salt == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(s.d.Salt)
}

// Delegation returns a copy of the unsigned delegation.
func (s SignedDelegation) Delegation() Delegation { return s.d.Copy() }

// Hash returns the EIP-712 struct hash of the signed delegation. Child
// delegations reference it as their authority.
func (s SignedDelegation) Hash() common.Hash { return s.d.Hash() }

// Equal reports structural equality, signature included.
func (s SignedDelegation) Equal(o SignedDelegation) bool {
	return s.d.Delegate == o.d.Delegate &&
		s.d.Delegator == o.d.Delegator &&
		s.d.Authority == o.d.Authority &&
		s.d.Caveats.Equal(o.d.Caveats) &&
		s.d.Salt.Cmp(o.d.Salt) == 0 &&
		bytesEqual(s.signature, o.signature)
}

// Chain is a linear delegation chain ordered root first; the last entry's
// delegate is the redeemer.
type Chain []SignedDelegation

// Leaf returns the last delegation of the chain.
func (c Chain) Leaf() (SignedDelegation, bool) {
	if len(c) == 0 {
		return SignedDelegation{}, false
	}
	return c[len(c)-1], true
}
