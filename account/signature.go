package account

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/stable-net/delegator-go/delegation"
)

// ERC6492MagicSuffix terminates a signature produced by a not yet deployed
// account.
var ERC6492MagicSuffix = common.FromHex("0x6492649264926492649264926492649264926492649264926492649264926492")

// DummySignature is a well-formed placeholder used during gas estimation.
var DummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

var erc6492Args = abi.Arguments{{Type: addressType}, {Type: bytesType}, {Type: bytesType}}

// SignHash signs hash with the owner key. The HybridDeleGator checks raw
// ECDSA signatures from its owner against the hash as given.
func (a *HybridAccount) SignHash(ctx context.Context, hash common.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.sign(hash.Bytes())
}

// SignUserOperationHash signs an EntryPoint user operation hash. The
// account validates it as an EIP-191 personal message.
func (a *HybridAccount) SignUserOperationHash(hash common.Hash) ([]byte, error) {
	return a.sign(accounts.TextHash(hash.Bytes()))
}

func (a *HybridAccount) sign(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, a.owner)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// WrapCounterfactual wraps sig per ERC-6492 so a verifier can deploy the
// account before checking it.
func (a *HybridAccount) WrapCounterfactual(sig []byte) ([]byte, error) {
	factory, factoryData, err := a.FactoryCall()
	if err != nil {
		return nil, err
	}
	return WrapERC6492(factory, factoryData, sig)
}

// WrapERC6492 returns abi.encode(factory, factoryData, sig) || magic.
func WrapERC6492(factory common.Address, factoryData, sig []byte) ([]byte, error) {
	packed, err := erc6492Args.Pack(factory, factoryData, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ERC-6492 wrapper: %w", err)
	}
	return append(packed, ERC6492MagicSuffix...), nil
}

// UnwrapERC6492 splits a wrapped signature. ok is false if sig is not
// ERC-6492 wrapped.
func UnwrapERC6492(sig []byte) (factory common.Address, factoryData, inner []byte, ok bool, err error) {
	if len(sig) < len(ERC6492MagicSuffix) || !bytes.HasSuffix(sig, ERC6492MagicSuffix) {
		return common.Address{}, nil, sig, false, nil
	}
	out, err := erc6492Args.Unpack(sig[:len(sig)-len(ERC6492MagicSuffix)])
	if err != nil {
		return common.Address{}, nil, nil, true, fmt.Errorf("%w: %v", delegation.ErrInvalidSignature, err)
	}
	return out[0].(common.Address), out[1].([]byte), out[2].([]byte), true, nil
}

var _ delegation.AccountAuthority = (*HybridAccount)(nil)
