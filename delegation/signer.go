package delegation

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// SignerKind selects a signing strategy.
type SignerKind string

const (
	EOASignerKind          SignerKind = "eoa"
	SmartAccountSignerKind SignerKind = "smart-account"
)

// Signer binds a delegation to the delegator's authority.
type Signer interface {
	// Sign returns d sealed with a signature over its EIP-712 digest.
	Sign(ctx context.Context, d Delegation) (SignedDelegation, error)
	// Address is the delegator identity this signer can sign for.
	Address() common.Address
}

// AccountAuthority is a smart account that produces signatures its own
// on-chain validation logic accepts.
type AccountAuthority interface {
	Address() common.Address
	IsDeployed(ctx context.Context) (bool, error)
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)
	// WrapCounterfactual wraps sig so it verifies before deployment (ERC-6492).
	WrapCounterfactual(sig []byte) ([]byte, error)
}

// SignerOptions configures NewSigner.
type SignerOptions struct {
	Domain Domain

	// EOA
	Key *ecdsa.PrivateKey

	// Smart account
	Account        AccountAuthority
	Counterfactual bool
}

// NewSigner builds the signer selected by kind.
func NewSigner(kind SignerKind, opts SignerOptions) (Signer, error) {
	switch kind {
	case EOASignerKind:
		if opts.Key == nil {
			return nil, fmt.Errorf("%w: no private key", ErrSigningUnavailable)
		}
		return NewEOASigner(opts.Key, opts.Domain), nil
	case SmartAccountSignerKind:
		if opts.Account == nil {
			return nil, fmt.Errorf("%w: no smart account", ErrSigningUnavailable)
		}
		return NewSmartAccountSigner(opts.Account, opts.Domain, opts.Counterfactual), nil
	default:
		return nil, fmt.Errorf("unknown signer kind %q", kind)
	}
}

// EOASigner signs with a private key held in process.
type EOASigner struct {
	key    *ecdsa.PrivateKey
	addr   common.Address
	domain Domain
}

// NewEOASigner returns a signer for the address of key.
func NewEOASigner(key *ecdsa.PrivateKey, domain Domain) *EOASigner {
	return &EOASigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey), domain: domain}
}

// Address returns the signing address.
func (s *EOASigner) Address() common.Address { return s.addr }

// Sign seals d with a recoverable secp256k1 signature over its EIP-712
// digest, v in {27, 28}. d must name the key's address as delegator.
func (s *EOASigner) Sign(ctx context.Context, d Delegation) (SignedDelegation, error) {
	if err := ctx.Err(); err != nil {
		return SignedDelegation{}, err
	}
	if d.Delegator != s.addr {
		return SignedDelegation{}, fmt.Errorf("%w: key %s cannot sign for delegator %s",
			ErrSigningUnavailable, CanonicalAddress(s.addr), CanonicalAddress(d.Delegator))
	}
	if err := d.Validate(); err != nil {
		return SignedDelegation{}, err
	}
	hash, err := d.SigningHash(s.domain)
	if err != nil {
		return SignedDelegation{}, err
	}
	sig, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return SignedDelegation{}, fmt.Errorf("failed to sign delegation: %w", err)
	}
	sig[64] += 27
	return Seal(d, sig), nil
}

// SmartAccountSigner delegates signing to a smart account. An undeployed
// account can only sign when counterfactual signing is enabled.
type SmartAccountSigner struct {
	account        AccountAuthority
	domain         Domain
	counterfactual bool
}

// NewSmartAccountSigner returns a signer for account. counterfactual allows
// signing before the account is deployed.
func NewSmartAccountSigner(account AccountAuthority, domain Domain, counterfactual bool) *SmartAccountSigner {
	return &SmartAccountSigner{account: account, domain: domain, counterfactual: counterfactual}
}

// Address returns the smart account address.
func (s *SmartAccountSigner) Address() common.Address { return s.account.Address() }

// Sign seals d with the account's ERC-1271 signature, wrapped per ERC-6492
// while the account is undeployed.
func (s *SmartAccountSigner) Sign(ctx context.Context, d Delegation) (SignedDelegation, error) {
	if d.Delegator != s.account.Address() {
		return SignedDelegation{}, fmt.Errorf("%w: account %s cannot sign for delegator %s",
			ErrSigningUnavailable, CanonicalAddress(s.account.Address()), CanonicalAddress(d.Delegator))
	}
	if err := d.Validate(); err != nil {
		return SignedDelegation{}, err
	}
	deployed, err := s.account.IsDeployed(ctx)
	if err != nil {
		return SignedDelegation{}, fmt.Errorf("%w: deployment check: %v", ErrSigningUnavailable, err)
	}
	if !deployed && !s.counterfactual {
		return SignedDelegation{}, fmt.Errorf("%w: account %s is not deployed",
			ErrSigningUnavailable, CanonicalAddress(s.account.Address()))
	}
	hash, err := d.SigningHash(s.domain)
	if err != nil {
		return SignedDelegation{}, err
	}
	sig, err := s.account.SignHash(ctx, hash)
	if err != nil {
		return SignedDelegation{}, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	if !deployed {
		if sig, err = s.account.WrapCounterfactual(sig); err != nil {
			return SignedDelegation{}, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
		}
	}
	return Seal(d, sig), nil
}

// RecoverSigner returns the address whose key produced the raw 65-byte
// signature of s. Signatures with a high s value are rejected.
func RecoverSigner(s SignedDelegation, domain Domain) (common.Address, error) {
	sig := s.Signature()
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: v = %d", ErrInvalidSignature, sig[64])
	}
	sValue := new(uint256.Int).SetBytes(sig[32:64])
	if sValue.Gt(Secp256k1HalfN) {
		return common.Address{}, fmt.Errorf("%w: s value too high", ErrInvalidSignature)
	}
	hash, err := s.d.SigningHash(domain)
	if err != nil {
		return common.Address{}, err
	}
	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
