package delegation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// Caveat restricts what a delegate may execute. Terms are signed as part
// of the delegation; Args are supplied at redemption time and are not.
type Caveat struct {
	Enforcer common.Address
	Terms    []byte
	Args     []byte
}

func (c Caveat) clone() Caveat {
	return Caveat{
		Enforcer: c.Enforcer,
		Terms:    common.CopyBytes(c.Terms),
		Args:     common.CopyBytes(c.Args),
	}
}

// Caveats is an ordered, append-only caveat policy. Enforcers run in
// order. The zero value is the empty, unrestricted policy.
type Caveats struct {
	list []Caveat
}

// EmptyCaveats returns the unrestricted policy.
func EmptyCaveats() Caveats {
	return Caveats{}
}

// NewCaveats builds a policy from an existing list, copying it.
func NewCaveats(list ...Caveat) Caveats {
	var p Caveats
	for _, c := range list {
		p = p.Append(c.Enforcer, c.Terms, c.Args)
	}
	return p
}

// Append returns a new policy with the caveat added last. p is unchanged.
func (p Caveats) Append(enforcer common.Address, terms, args []byte) Caveats {
	list := make([]Caveat, len(p.list), len(p.list)+1)
	copy(list, p.list)
	list = append(list, Caveat{Enforcer: enforcer, Terms: common.CopyBytes(terms), Args: common.CopyBytes(args)})
	return Caveats{list: list}
}

// Len returns the number of caveats.
func (p Caveats) Len() int { return len(p.list) }

// Unrestricted reports whether the policy carries no caveats.
func (p Caveats) Unrestricted() bool { return len(p.list) == 0 }

// At returns a copy of the i'th caveat.
func (p Caveats) At(i int) Caveat { return p.list[i].clone() }

// List returns a copy of the caveats in order.
func (p Caveats) List() []Caveat {
	out := make([]Caveat, len(p.list))
	for i, c := range p.list {
		out[i] = c.clone()
	}
	return out
}

// Equal reports whether both policies hold the same caveats in the same order.
func (p Caveats) Equal(o Caveats) bool {
	if len(p.list) != len(o.list) {
		return false
	}
	for i := range p.list {
		a, b := p.list[i], o.list[i]
		if a.Enforcer != b.Enforcer || !bytesEqual(a.Terms, b.Terms) || !bytesEqual(a.Args, b.Args) {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
	return len(a) == len(b) && string(a) == string(b)
}

// CaveatBuilder resolves enforcers by name against an Environment.
// The first failure is kept and reported by Build.
type CaveatBuilder struct {
	env    *Environment
	policy Caveats
	err    error
}

// NewCaveatBuilder starts an empty policy for env.
func NewCaveatBuilder(env *Environment) *CaveatBuilder {
	return &CaveatBuilder{env: env}
}

// Add appends a caveat for any enforcer the environment knows by name.
func (b *CaveatBuilder) Add(enforcerName string, terms, args []byte) *CaveatBuilder {
	if b.err != nil {
		return b
	}
	addr, err := b.env.Enforcer(enforcerName)
	if err != nil {
		b.err = err
		return b
	}
	b.policy = b.policy.Append(addr, terms, args)
	return b
}

// AllowedTargets restricts executions to the given targets.
func (b *CaveatBuilder) AllowedTargets(targets ...common.Address) *CaveatBuilder {
	if len(targets) == 0 {
		if b.err == nil {
			b.err = fmt.Errorf("%s: %w: no targets", AllowedTargetsEnforcer, ErrInvalidAddress)
		}
		return b
	}
	terms := make([]byte, 0, len(targets)*common.AddressLength)
	for _, t := range targets {
		terms = append(terms, t.Bytes()...)
	}
	return b.Add(AllowedTargetsEnforcer, terms, nil)
}

// ValueLte caps the native value of each execution at max wei.
func (b *CaveatBuilder) ValueLte(max *big.Int) *CaveatBuilder {
	if max == nil || max.Sign() < 0 || max.BitLen() > 256 {
		if b.err == nil {
			b.err = fmt.Errorf("%s: value out of range", ValueLteEnforcer)
		}
		return b
	}
	return b.Add(ValueLteEnforcer, math.U256Bytes(new(big.Int).Set(max)), nil)
}

// Build returns the accumulated policy.
func (b *CaveatBuilder) Build() (Caveats, error) {
	if b.err != nil {
		return Caveats{}, b.err
	}
	return b.policy, nil
}
