package delegation

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateChain(t *testing.T) {
	env := testEnvironment(t)
	_, middle := testKey(t, 1)
	middleKey, _ := testKey(t, 1)

	root := signedRoot(t, 0, middle, 1)
	childD, err := ChainFrom(root, testAddresses.Recipient.Hex(), EmptyCaveats(), big.NewInt(2))
	require.NoError(t, err)
	child, err := NewEOASigner(middleKey, testDomain()).Sign(context.Background(), childD)
	require.NoError(t, err)

	// a child pointing at a different parent
	orphanD, err := BuildChained(testAddresses.Recipient.Hex(), middle.Hex(), EmptyCaveats(), big.NewInt(3), common.HexToHash("0x01"))
	require.NoError(t, err)
	orphan := Seal(orphanD, []byte{1})

	unknown := EmptyCaveats().Append(common.HexToAddress("0x00000000000000000000000000000000000000ee"), nil, nil)
	badD, err := BuildRoot(testAddresses.Recipient.Hex(), middle.Hex(), unknown, big.NewInt(4))
	require.NoError(t, err)

	unsignedD, err := BuildRoot(testAddresses.Recipient.Hex(), middle.Hex(), EmptyCaveats(), big.NewInt(5))
	require.NoError(t, err)

	testCases := []struct {
		name     string
		chain    Chain
		redeemer common.Address
		want     error
	}{
		{"single_root", Chain{signedRoot(t, 0, testAddresses.Recipient, 9)}, testAddresses.Recipient, nil},
		{"two_hops", Chain{root, child}, testAddresses.Recipient, nil},
		{"identity_mismatch", Chain{root, child}, middle, ErrIdentityMismatch},
		{"empty", Chain{}, testAddresses.Recipient, ErrBrokenChain},
		{"not_rooted", Chain{child}, testAddresses.Recipient, ErrInvalidAuthority},
		{"broken_link", Chain{root, orphan}, testAddresses.Recipient, ErrBrokenChain},
		{"unknown_enforcer", Chain{Seal(badD, []byte{1})}, testAddresses.Recipient, ErrUnknownEnforcer},
		{"unsigned", Chain{Seal(unsignedD, nil)}, testAddresses.Recipient, ErrInvalidSignature},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateChain(tc.chain, tc.redeemer, env)
			if tc.want == nil {
				if err != nil {
					t.Errorf("ValidateChain() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("ValidateChain() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestInspectChainReport(t *testing.T) {
	root := signedRoot(t, 0, testAddresses.Recipient, 1)
	v := InspectChain(Chain{root}, testAddresses.Hybrid, nil)

	assert.False(t, v.Valid())
	assert.ErrorIs(t, v.Err(), ErrIdentityMismatch)

	report := FormatChainValidation(v)
	assert.True(t, strings.Contains(report, "[FAIL] redeemer_is_delegate"), report)
	assert.True(t, strings.Contains(report, "[PASS] root_authority"), report)
}
