package delegation

import (
	"context"
	"encoding/json"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedDelegationJSONRoundTrip(t *testing.T) {
	key, addr := testKey(t, 0)
	bigSalt, ok := new(big.Int).SetString("18446744073709551557", 10) // > 2^53
	require.True(t, ok)

	caveats := EmptyCaveats().
		Append(testAddresses.Targets, testAddresses.Recipient.Bytes(), nil).
		Append(testAddresses.ValueLte, make([]byte, 32), []byte{0x01})
	d, err := BuildRoot(testAddresses.Recipient.Hex(), addr.Hex(), caveats, bigSalt)
	require.NoError(t, err)
	sd, err := NewEOASigner(key, testDomain()).Sign(context.Background(), d)
	require.NoError(t, err)

	data, err := json.Marshal(sd)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"salt":"18446744073709551557"`)

	var back SignedDelegation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, sd.Equal(back))
	assert.Equal(t, 0, bigSalt.Cmp(back.Salt()))

	again, err := json.Marshal(back)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestSignedDelegationJSONSalt(t *testing.T) {
	const template = `{
		"delegate": "0x000000000000000000000000000000000000aaaa",
		"delegator": "0x000000000000000000000000000000000000bbbb",
		"authority": "0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
		"caveats": [],
		"salt": SALT,
		"signature": "0x01"
	}`

	testCases := []struct {
		name    string
		salt    string
		want    int64
		wantErr bool
	}{
		{"decimal_string", `"2882343476"`, 0xABCD1234, false},
		{"hex_string", `"0xABCD1234"`, 0xABCD1234, false},
		{"json_number", `2882343476`, 0, true},
		{"float", `2.882343476e9`, 0, true},
		{"zero", `"0"`, 0, true},
		{"negative", `"-5"`, 0, true},
		{"garbage", `"12ab"`, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var sd SignedDelegation
			err := json.Unmarshal([]byte(strings.Replace(template, "SALT", tc.salt, 1)), &sd)
			if tc.wantErr {
				if err == nil {
					t.Errorf("Unmarshal() salt %s error = nil, want error", tc.salt)
				}
				return
			}
			require.NoError(t, err)
			if got := sd.Salt().Int64(); got != tc.want {
				t.Errorf("Salt() = %d, want %d", got, tc.want)
			}
			assert.True(t, sd.Caveats().Unrestricted())
		})
	}
}

func TestSignedDelegationJSONRejectsBadAddress(t *testing.T) {
	data := `{"delegate":"0x123","delegator":"0x000000000000000000000000000000000000bbbb",
		"authority":"0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
		"caveats":[],"salt":"1","signature":"0x"}`
	var sd SignedDelegation
	assert.ErrorIs(t, json.Unmarshal([]byte(data), &sd), ErrInvalidAddress)
}

func TestDelegationFile(t *testing.T) {
	root := signedRoot(t, 0, testAddresses.Recipient, 0xABCD1234)
	path := filepath.Join(t.TempDir(), "delegation.json")

	require.NoError(t, WriteFile(path, File{Delegations: []SignedDelegation{root}}))

	f, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, f.Delegations, 1)
	assert.True(t, root.Equal(f.Delegations[0]))

	chain := f.Chain()
	leaf, ok := chain.Leaf()
	require.True(t, ok)
	assert.Equal(t, testAddresses.Recipient, leaf.Delegate())

	empty, err := json.Marshal(File{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"delegations":[]}`, string(empty))

	emptyPath := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, WriteFile(emptyPath, File{}))
	_, err = ReadFile(emptyPath)
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
