package delegation

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvironment(t *testing.T) {
	env := testEnvironment(t)

	assert.Equal(t, testAddresses.Manager, env.DelegationManager)
	assert.Equal(t, testAddresses.Hybrid, env.Implementations.Hybrid)
	assert.Equal(t, []string{AllowedTargetsEnforcer, ValueLteEnforcer}, env.EnforcerNames())

	name, ok := env.EnforcerName(testAddresses.ValueLte)
	assert.True(t, ok)
	assert.Equal(t, ValueLteEnforcer, name)

	domain := env.Domain(big.NewInt(1))
	assert.Equal(t, testAddresses.Manager, domain.VerifyingContract)
	assert.Equal(t, int64(1), domain.ChainID.Int64())
}

func TestNewEnvironmentMissing(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*EnvironmentConfig)
	}{
		{"no_manager", func(c *EnvironmentConfig) { c.DelegationManager = "" }},
		{"bad_entry_point", func(c *EnvironmentConfig) { c.EntryPoint = "0x1234" }},
		{"zero_hybrid", func(c *EnvironmentConfig) { c.HybridDeleGator = common.Address{}.Hex() }},
		{"no_factory", func(c *EnvironmentConfig) { c.SimpleFactory = "" }},
		{"no_value_lte", func(c *EnvironmentConfig) { delete(c.CaveatEnforcers, ValueLteEnforcer) }},
		{"bad_enforcer", func(c *EnvironmentConfig) { c.CaveatEnforcers[AllowedTargetsEnforcer] = "nope" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testEnvironmentConfig()
			tc.mutate(&cfg)
			_, err := NewEnvironment(cfg)
			if !errors.Is(err, ErrConfigurationMissing) {
				t.Errorf("NewEnvironment() error = %v, want ErrConfigurationMissing", err)
			}
		})
	}
}

func TestEnvironmentUndeployedEnforcer(t *testing.T) {
	cfg := testEnvironmentConfig()
	cfg.CaveatEnforcers[ValueLteEnforcer] = common.Address{}.Hex()
	env, err := NewEnvironment(cfg)
	require.NoError(t, err)

	_, err = env.Enforcer(ValueLteEnforcer)
	assert.ErrorIs(t, err, ErrConfigurationMissing)

	_, err = env.Enforcer("TimestampEnforcer")
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestCaveatPolicy(t *testing.T) {
	empty := EmptyCaveats()
	assert.True(t, empty.Unrestricted())

	one := empty.Append(testAddresses.Targets, []byte{1}, nil)
	two := one.Append(testAddresses.ValueLte, []byte{2}, []byte{3})

	assert.Equal(t, 0, empty.Len(), "append must not modify the receiver")
	assert.Equal(t, 1, one.Len())
	assert.Equal(t, 2, two.Len())
	assert.Equal(t, testAddresses.Targets, two.At(0).Enforcer)
	assert.Equal(t, testAddresses.ValueLte, two.At(1).Enforcer)

	c := two.At(0)
	c.Terms[0] = 0xff
	assert.Equal(t, byte(1), two.At(0).Terms[0], "At must return a copy")

	assert.True(t, two.Equal(NewCaveats(two.List()...)))
	assert.False(t, two.Equal(one))
}

func TestCaveatBuilder(t *testing.T) {
	env := testEnvironment(t)
	target := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	policy, err := NewCaveatBuilder(env).
		AllowedTargets(target).
		ValueLte(big.NewInt(1_000_000_000_000_000)).
		Build()
	require.NoError(t, err)
	require.Equal(t, 2, policy.Len())

	assert.Equal(t, testAddresses.Targets, policy.At(0).Enforcer)
	assert.Equal(t, target.Bytes(), policy.At(0).Terms)
	assert.Equal(t, testAddresses.ValueLte, policy.At(1).Enforcer)
	assert.Len(t, policy.At(1).Terms, 32)
	assert.Equal(t, int64(1_000_000_000_000_000), new(big.Int).SetBytes(policy.At(1).Terms).Int64())

	_, err = NewCaveatBuilder(env).Add("Unknown", nil, nil).Build()
	assert.ErrorIs(t, err, ErrConfigurationMissing)

	_, err = NewCaveatBuilder(env).AllowedTargets().Build()
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NewCaveatBuilder(env).ValueLte(big.NewInt(-1)).Build()
	assert.Error(t, err)
}
