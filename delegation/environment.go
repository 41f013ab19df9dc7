package delegation

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// Well-known caveat enforcer names.
const (
	AllowedTargetsEnforcer = "AllowedTargets"
	ValueLteEnforcer       = "ValueLte"
)

// EnvironmentConfig is the textual contract deployment as it arrives from
// configuration. All fields are required.
type EnvironmentConfig struct {
	DelegationManager string
	EntryPoint        string
	SimpleFactory     string
	HybridDeleGator   string
	CaveatEnforcers   map[string]string
}

// Implementations holds the smart-account implementation contracts.
type Implementations struct {
	Hybrid common.Address
}

// Environment is one deployment of the delegation framework. It is built
// once at startup and shared read-only by every component.
type Environment struct {
	DelegationManager common.Address
	EntryPoint        common.Address
	SimpleFactory     common.Address
	Implementations   Implementations

	enforcers map[string]common.Address
	known     map[common.Address]string
}

// NewEnvironment validates cfg. Missing or malformed addresses yield
// ErrConfigurationMissing naming the offending entry.
func NewEnvironment(cfg EnvironmentConfig) (*Environment, error) {
	env := &Environment{
		enforcers: make(map[string]common.Address),
		known:     make(map[common.Address]string),
	}

	required := []struct {
		name    string
		text    string
		dst     *common.Address
		nonZero bool
	}{
		{"DelegationManager", cfg.DelegationManager, &env.DelegationManager, true},
		{"EntryPoint", cfg.EntryPoint, &env.EntryPoint, true},
		{"SimpleFactory", cfg.SimpleFactory, &env.SimpleFactory, true},
		{"implementations.Hybrid", cfg.HybridDeleGator, &env.Implementations.Hybrid, true},
	}
	for _, r := range required {
		addr, err := configAddress(r.name, r.text)
		if err != nil {
			return nil, err
		}
		if r.nonZero && addr == (common.Address{}) {
			return nil, fmt.Errorf("%w: %s is the zero address", ErrConfigurationMissing, r.name)
		}
		*r.dst = addr
	}

	for _, name := range []string{AllowedTargetsEnforcer, ValueLteEnforcer} {
		if _, ok := cfg.CaveatEnforcers[name]; !ok {
			return nil, fmt.Errorf("%w: caveatEnforcers.%s not set", ErrConfigurationMissing, name)
		}
	}
	for name, text := range cfg.CaveatEnforcers {
		addr, err := configAddress("caveatEnforcers."+name, text)
		if err != nil {
			return nil, err
		}
		env.enforcers[name] = addr
		if addr != (common.Address{}) {
			env.known[addr] = name
		}
	}
	return env, nil
}

func configAddress(name, text string) (common.Address, error) {
	if text == "" {
		return common.Address{}, fmt.Errorf("%w: %s not set", ErrConfigurationMissing, name)
	}
	addr, err := ParseAddress(text)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s: %v", ErrConfigurationMissing, name, err)
	}
	return addr, nil
}

// Enforcer returns the address of the named caveat enforcer.
func (e *Environment) Enforcer(name string) (common.Address, error) {
	addr, ok := e.enforcers[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: caveat enforcer %q", ErrConfigurationMissing, name)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: caveat enforcer %q is not deployed", ErrConfigurationMissing, name)
	}
	return addr, nil
}

// EnforcerName returns the configured name of an enforcer address.
func (e *Environment) EnforcerName(addr common.Address) (string, bool) {
	name, ok := e.known[addr]
	return name, ok
}

// EnforcerNames lists the configured enforcer names in sorted order.
func (e *Environment) EnforcerNames() []string {
	names := make([]string, 0, len(e.enforcers))
	for name := range e.enforcers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Domain returns the EIP-712 signing domain of this deployment's
// DelegationManager on chainID.
func (e *Environment) Domain(chainID *big.Int) Domain {
	return Domain{
		ChainID:           new(big.Int).Set(chainID),
		VerifyingContract: e.DelegationManager,
	}
}
