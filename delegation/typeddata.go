package delegation

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP-712 domain of the DelegationManager.
const (
	DomainName    = "DelegationManager"
	DomainVersion = "1"
)

// Type strings hashed by the DelegationManager. Caveat args are supplied
// at redemption and are deliberately outside the signed structure.
const (
	delegationTypeString = "Delegation(address delegate,address delegator,bytes32 authority,Caveat[] caveats,uint256 salt)Caveat(address enforcer,bytes terms)"
	caveatTypeString     = "Caveat(address enforcer,bytes terms)"
)

var (
	DelegationTypeHash = crypto.Keccak256Hash([]byte(delegationTypeString))
	CaveatTypeHash     = crypto.Keccak256Hash([]byte(caveatTypeString))
)

// Domain identifies the verifying DelegationManager.
type Domain struct {
	ChainID           *big.Int
	VerifyingContract common.Address
}

var delegationTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Delegation": {
		{Name: "delegate", Type: "address"},
		{Name: "delegator", Type: "address"},
		{Name: "authority", Type: "bytes32"},
		{Name: "caveats", Type: "Caveat[]"},
		{Name: "salt", Type: "uint256"},
	},
	"Caveat": {
		{Name: "enforcer", Type: "address"},
		{Name: "terms", Type: "bytes"},
	},
}

// TypedData returns d as EIP-712 typed data, suitable for
// eth_signTypedData_v4 or any wallet that signs structured data.
func (d Delegation) TypedData(domain Domain) apitypes.TypedData {
	caveats := make([]interface{}, 0, d.Caveats.Len())
	for _, c := range d.Caveats.list {
		caveats = append(caveats, map[string]interface{}{
			"enforcer": c.Enforcer.Hex(),
			"terms":    hexutil.Encode(c.Terms),
		})
	}
	salt := new(big.Int)
	if d.Salt != nil {
		salt.Set(d.Salt)
	}
	chainID := new(big.Int)
	if domain.ChainID != nil {
		chainID.Set(domain.ChainID)
	}
	return apitypes.TypedData{
		Types:       delegationTypes,
		PrimaryType: "Delegation",
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"delegate":  d.Delegate.Hex(),
			"delegator": d.Delegator.Hex(),
			"authority": hexutil.Encode(d.Authority.Bytes()),
			"caveats":   caveats,
			"salt":      (*math.HexOrDecimal256)(salt),
		},
	}
}

// SigningHash returns the EIP-712 digest the delegator signs.
func (d Delegation) SigningHash(domain Domain) (common.Hash, error) {
	if domain.VerifyingContract == (common.Address{}) {
		return common.Hash{}, fmt.Errorf("%w: verifying contract not set", ErrConfigurationMissing)
	}
	digest, _, err := apitypes.TypedDataAndHash(d.TypedData(domain))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash delegation: %w", err)
	}
	return common.BytesToHash(digest), nil
}

// Hash returns the EIP-712 struct hash of d, as computed on chain.
func (d Delegation) Hash() common.Hash {
	caveatHashes := make([]byte, 0, 32*d.Caveats.Len())
	for _, c := range d.Caveats.list {
		h := crypto.Keccak256(
			CaveatTypeHash.Bytes(),
			common.LeftPadBytes(c.Enforcer.Bytes(), 32),
			crypto.Keccak256(c.Terms),
		)
		caveatHashes = append(caveatHashes, h...)
	}
	salt := new(big.Int)
	if d.Salt != nil {
		salt.Set(d.Salt)
	}
	return crypto.Keccak256Hash(
		DelegationTypeHash.Bytes(),
		common.LeftPadBytes(d.Delegate.Bytes(), 32),
		common.LeftPadBytes(d.Delegator.Bytes(), 32),
		d.Authority.Bytes(),
		crypto.Keccak256(caveatHashes),
		math.U256Bytes(salt),
	)
}
