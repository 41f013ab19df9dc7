package delegation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type caveatJSON struct {
	Enforcer string        `json:"enforcer"`
	Terms    hexutil.Bytes `json:"terms"`
	Args     hexutil.Bytes `json:"args"`
}

type signedDelegationJSON struct {
	Delegate  string          `json:"delegate"`
	Delegator string          `json:"delegator"`
	Authority common.Hash     `json:"authority"`
	Caveats   []caveatJSON    `json:"caveats"`
	Salt      json.RawMessage `json:"salt"`
	Signature hexutil.Bytes   `json:"signature"`
}

// MarshalJSON encodes s with the salt as a decimal string.
func (s SignedDelegation) MarshalJSON() ([]byte, error) {
	caveats := make([]caveatJSON, 0, s.d.Caveats.Len())
	for _, c := range s.d.Caveats.list {
		caveats = append(caveats, caveatJSON{
			Enforcer: CanonicalAddress(c.Enforcer),
			Terms:    nonNil(c.Terms),
			Args:     nonNil(c.Args),
		})
	}
	salt := "0"
	if s.d.Salt != nil {
		salt = s.d.Salt.String()
	}
	saltJSON, err := json.Marshal(salt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(signedDelegationJSON{
		Delegate:  CanonicalAddress(s.d.Delegate),
		Delegator: CanonicalAddress(s.d.Delegator),
		Authority: s.d.Authority,
		Caveats:   caveats,
		Salt:      saltJSON,
		Signature: nonNil(s.signature),
	})
}

// UnmarshalJSON decodes a signed delegation. The salt must be a JSON
// string holding a decimal or 0x-prefixed hex integer.
func (s *SignedDelegation) UnmarshalJSON(data []byte) error {
	var raw signedDelegationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delegate, err := parseParty("delegate", raw.Delegate)
	if err != nil {
		return err
	}
	delegator, err := parseParty("delegator", raw.Delegator)
	if err != nil {
		return err
	}
	salt, err := parseSalt(raw.Salt)
	if err != nil {
		return err
	}
	var caveats Caveats
	for i, c := range raw.Caveats {
		enforcer, err := ParseAddress(c.Enforcer)
		if err != nil {
			return fmt.Errorf("caveats[%d].enforcer: %w", i, err)
		}
		caveats = caveats.Append(enforcer, c.Terms, c.Args)
	}
	d := Delegation{
		Delegate:  delegate,
		Delegator: delegator,
		Authority: raw.Authority,
		Caveats:   caveats,
		Salt:      salt,
	}
	if err := d.Validate(); err != nil {
		return err
	}
	*s = Seal(d, raw.Signature)
	return nil
}

func parseSalt(raw json.RawMessage) (*big.Int, error) {
	if len(raw) == 0 {
		return nil, errors.New("salt: missing")
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("salt: must be a decimal or hex string, got %s", string(raw))
	}
	salt, ok := new(big.Int), false
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		salt, ok = salt.SetString(text[2:], 16)
	} else {
		salt, ok = salt.SetString(text, 10)
	}
	if !ok || salt.Sign() < 0 {
		return nil, fmt.Errorf("salt: invalid integer %q", text)
	}
	if salt.BitLen() > 256 {
		return nil, fmt.Errorf("salt: %q exceeds 256 bits", text)
	}
	return salt, nil
}

func nonNil(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}
	return hexutil.Bytes(b)
}

// File is the persisted delegation envelope.
type File struct {
	Delegations []SignedDelegation `json:"delegations"`
}

// Chain returns the file's delegations as a root-first chain.
func (f File) Chain() Chain {
	return append(Chain(nil), f.Delegations...)
}

// MarshalJSON keeps an empty envelope as [] rather than null.
func (f File) MarshalJSON() ([]byte, error) {
	type plain File
	if f.Delegations == nil {
		f.Delegations = []SignedDelegation{}
	}
	return json.Marshal(plain(f))
}

// ReadFile loads a delegation file from path.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read delegation file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse delegation file %s: %w", path, err)
	}
	if len(f.Delegations) == 0 {
		return File{}, fmt.Errorf("delegation file %s holds no delegations", path)
	}
	return f, nil
}

// WriteFile stores f at path as indented JSON.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode delegation file: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write delegation file: %w", err)
	}
	return nil
}
