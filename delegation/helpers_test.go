package delegation

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Well-known development keys. Never fund them.
var testPrivateKeys = []string{
	"b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291",
	"8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a",
}

var testAddresses = struct {
	Manager    common.Address
	EntryPoint common.Address
	Factory    common.Address
	Hybrid     common.Address
	Targets    common.Address
	ValueLte   common.Address
	Recipient  common.Address
}{
	Manager:    common.HexToAddress("0x00000000000000000000000000000000000000d1"),
	EntryPoint: common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032"),
	Factory:    common.HexToAddress("0x00000000000000000000000000000000000000f1"),
	Hybrid:     common.HexToAddress("0x00000000000000000000000000000000000000a1"),
	Targets:    common.HexToAddress("0x00000000000000000000000000000000000000e1"),
	ValueLte:   common.HexToAddress("0x00000000000000000000000000000000000000e2"),
	Recipient:  common.HexToAddress("0x000000000000000000000000000000000000bbbb"),
}

func testEnvironmentConfig() EnvironmentConfig {
	return EnvironmentConfig{
		DelegationManager: testAddresses.Manager.Hex(),
		EntryPoint:        testAddresses.EntryPoint.Hex(),
		SimpleFactory:     testAddresses.Factory.Hex(),
		HybridDeleGator:   testAddresses.Hybrid.Hex(),
		CaveatEnforcers: map[string]string{
			AllowedTargetsEnforcer: testAddresses.Targets.Hex(),
			ValueLteEnforcer:       testAddresses.ValueLte.Hex(),
		},
	}
}

func testEnvironment(t *testing.T) *Environment {
	t.Helper()
	env, err := NewEnvironment(testEnvironmentConfig())
	if err != nil {
		t.Fatalf("NewEnvironment() error = %v", err)
	}
	return env
}

func testKey(t *testing.T, i int) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.HexToECDSA(testPrivateKeys[i])
	if err != nil {
		t.Fatalf("Failed to parse private key: %v", err)
	}
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func testDomain() Domain {
	return Domain{ChainID: big.NewInt(11155111), VerifyingContract: testAddresses.Manager}
}

// signedRoot builds and signs an unrestricted root delegation from key i
// to delegate.
func signedRoot(t *testing.T, i int, delegate common.Address, salt int64) SignedDelegation {
	t.Helper()
	key, addr := testKey(t, i)
	d, err := BuildRoot(delegate.Hex(), addr.Hex(), EmptyCaveats(), big.NewInt(salt))
	if err != nil {
		t.Fatalf("BuildRoot() error = %v", err)
	}
	sd, err := NewEOASigner(key, testDomain()).Sign(context.Background(), d)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return sd
}
