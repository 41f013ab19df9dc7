// Package keys loads secp256k1 signing keys from hex or from a BIP-39
// mnemonic along the Ethereum BIP-44 path.
package keys

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
)

var (
	ErrInvalidKey      = errors.New("invalid private key")
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
)

// HardenedOffset marks a hardened BIP-32 index.
const HardenedOffset uint32 = 0x80000000

// EthereumPath returns m/44'/60'/0'/0/index.
func EthereumPath(index uint32) accounts.DerivationPath {
	path := make(accounts.DerivationPath, len(accounts.DefaultBaseDerivationPath))
	copy(path, accounts.DefaultBaseDerivationPath)
	path[len(path)-1] = index
	return path
}

// NormalizeHex trims whitespace, surrounding quotes and an optional 0x
// prefix.
func NormalizeHex(key string) string {
	key = strings.TrimSpace(key)
	if len(key) >= 2 && (key[0] == '"' || key[0] == '\'') && key[len(key)-1] == key[0] {
		key = key[1 : len(key)-1]
	}
	key = strings.TrimPrefix(key, "0x")
	return strings.TrimPrefix(key, "0X")
}

// ParsePrivateKey parses a 32-byte hex private key.
func ParsePrivateKey(key string) (*ecdsa.PrivateKey, error) {
	norm := NormalizeHex(key)
	if len(norm) != 64 {
		return nil, fmt.Errorf("%w: want 64 hex characters, got %d", ErrInvalidKey, len(norm))
	}
	k, err := crypto.HexToECDSA(norm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return k, nil
}

// Seed returns the BIP-39 seed of mnemonic and passphrase. Words are
// lower-cased and separated by single spaces first, and the checksum word
// must match.
func Seed(mnemonic, passphrase string) ([]byte, error) {
	words := strings.Fields(strings.ToLower(mnemonic))
	switch len(words) {
	case 12, 15, 18, 21, 24:
	default:
		return nil, fmt.Errorf("%w: %d words", ErrInvalidMnemonic, len(words))
	}
	normalized := strings.Join(words, " ")
	if _, err := bip39.EntropyFromMnemonic(normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return pbkdf2.Key([]byte(normalized), []byte("mnemonic"+passphrase), 2048, 64, sha512.New), nil
}

// FromMnemonic derives the key at m/44'/60'/0'/0/index.
func FromMnemonic(mnemonic, passphrase string, index uint32) (*ecdsa.PrivateKey, error) {
	seed, err := Seed(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return Derive(seed, EthereumPath(index))
}

// FromMnemonicPath derives the key at a textual path such as
// "m/44'/60'/0'/0/3".
func FromMnemonicPath(mnemonic, passphrase, path string) (*ecdsa.PrivateKey, error) {
	p, err := accounts.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid hd path %q: %w", path, err)
	}
	seed, err := Seed(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return Derive(seed, p)
}

// Derive walks path from the BIP-32 master key of seed.
func Derive(seed []byte, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	key, code := masterKey(seed)
	var err error
	for _, index := range path {
		if key, code, err = deriveChild(key, code, index); err != nil {
			return nil, fmt.Errorf("failed to derive child %d: %w", index, err)
		}
	}
	return crypto.ToECDSA(key)
}

func masterKey(seed []byte) ([]byte, []byte) {
	mac := hmac.New(sha512.New, []byte("Bitcoin seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return sum[:32], sum[32:]
}

func deriveChild(parent, chainCode []byte, index uint32) ([]byte, []byte, error) {
	data := make([]byte, 37)
	if index >= HardenedOffset {
		copy(data[1:33], parent)
	} else {
		priv, _ := btcec.PrivKeyFromBytes(parent)
		copy(data[:33], priv.PubKey().SerializeCompressed())
	}
	binary.BigEndian.PutUint32(data[33:], index)

	mac := hmac.New(sha512.New, chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)

	n := crypto.S256().Params().N
	il := new(big.Int).SetBytes(sum[:32])
	if il.Cmp(n) >= 0 {
		return nil, nil, fmt.Errorf("%w: derived tweak out of range", ErrInvalidKey)
	}
	child := il.Add(il, new(big.Int).SetBytes(parent))
	child.Mod(child, n)
	if child.Sign() == 0 {
		return nil, nil, fmt.Errorf("%w: derived zero key", ErrInvalidKey)
	}
	out := make([]byte, 32)
	child.FillBytes(out)
	return out, sum[32:], nil
}
