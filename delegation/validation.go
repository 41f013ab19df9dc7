package delegation

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ValidationResult is the outcome of one preflight check on a chain.
type ValidationResult struct {
	Passed    bool
	CheckName string
	Index     int // delegation index, -1 for chain-wide checks
	Err       error
}

// ChainValidation collects every check run against a chain.
type ChainValidation struct {
	Redeemer common.Address
	Findings []ValidationResult
}

// Valid reports whether every check passed.
func (v *ChainValidation) Valid() bool {
	return v.Err() == nil
}

// Err returns the first failed check's error.
func (v *ChainValidation) Err() error {
	for _, f := range v.Findings {
		if !f.Passed {
			return f.Err
		}
	}
	return nil
}

func (v *ChainValidation) add(name string, index int, err error) {
	v.Findings = append(v.Findings, ValidationResult{
		Passed:    err == nil,
		CheckName: name,
		Index:     index,
		Err:       err,
	})
}

// InspectChain runs all preflight checks on a root-first chain redeemed by
// redeemer. A nil env skips the enforcer check.
func InspectChain(chain Chain, redeemer common.Address, env *Environment) *ChainValidation {
	v := &ChainValidation{Redeemer: redeemer}
	leaf, ok := chain.Leaf()
	if !ok {
		v.add("non_empty", -1, fmt.Errorf("%w: empty chain", ErrBrokenChain))
		return v
	}

	var identityErr error
	if !AddressEqual(leaf.Delegate(), redeemer) {
		identityErr = fmt.Errorf("%w: redeemer %s, delegate %s",
			ErrIdentityMismatch, CanonicalAddress(redeemer), CanonicalAddress(leaf.Delegate()))
	}
	v.add("redeemer_is_delegate", len(chain)-1, identityErr)

	var rootErr error
	if !chain[0].Delegation().IsRoot() {
		rootErr = fmt.Errorf("%w: chain[0] authority %s is not ROOT", ErrInvalidAuthority, chain[0].Authority().Hex())
	}
	v.add("root_authority", 0, rootErr)

	for i := 1; i < len(chain); i++ {
		var linkErr error
		switch {
		case chain[i].Authority() != chain[i-1].Hash():
			linkErr = fmt.Errorf("%w: chain[%d] authority does not reference chain[%d]", ErrBrokenChain, i, i-1)
		case chain[i].Delegator() != chain[i-1].Delegate():
			linkErr = fmt.Errorf("%w: chain[%d] delegator %s is not chain[%d] delegate %s", ErrBrokenChain,
				i, CanonicalAddress(chain[i].Delegator()), i-1, CanonicalAddress(chain[i-1].Delegate()))
		}
		v.add("linked", i, linkErr)
	}

	for i, sd := range chain {
		var sigErr error
		if len(sd.signature) == 0 {
			sigErr = fmt.Errorf("%w: chain[%d] is unsigned", ErrInvalidSignature, i)
		}
		v.add("signed", i, sigErr)

		if env == nil {
			continue
		}
		var enforcerErr error
		for _, c := range sd.d.Caveats.list {
			if _, known := env.EnforcerName(c.Enforcer); !known {
				enforcerErr = fmt.Errorf("%w: chain[%d] enforcer %s", ErrUnknownEnforcer, i, CanonicalAddress(c.Enforcer))
				break
			}
		}
		v.add("known_enforcers", i, enforcerErr)
	}
	return v
}

// ValidateChain returns the first preflight failure for chain, or nil.
// The redeemer identity check always runs first.
func ValidateChain(chain Chain, redeemer common.Address, env *Environment) error {
	return InspectChain(chain, redeemer, env).Err()
}

// FormatChainValidation renders v as a human-readable report.
func FormatChainValidation(v *ChainValidation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Chain validation for redeemer %s\n", CanonicalAddress(v.Redeemer))
	for _, f := range v.Findings {
		status := "PASS"
		if !f.Passed {
			status = "FAIL"
		}
		where := "chain"
		if f.Index >= 0 {
			where = fmt.Sprintf("#%d", f.Index)
		}
		fmt.Fprintf(&sb, "  [%s] %-22s %s", status, f.CheckName, where)
		if f.Err != nil {
			fmt.Fprintf(&sb, ": %v", f.Err)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
