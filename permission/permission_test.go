package permission

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stable-net/delegator-go/delegation"
)

const (
	delegator = "0x00000000000000000000000000000000000000C1"
	delegate  = "0x00000000000000000000000000000000000000c2"
)

func TestNewRequest(t *testing.T) {
	expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	r, err := NewRequest(big.NewInt(11155111), delegator, delegate, expiry)
	require.NoError(t, err)
	require.Len(t, r, 1)

	e := r[0]
	assert.Equal(t, "0xaa36a7", e.ChainID.String())
	assert.Equal(t, strings.ToLower(delegator), e.Address)
	assert.Equal(t, expiry.Unix(), e.Expiry)
	assert.Equal(t, SignerTypeEOA, e.Signer.Type)
	assert.Equal(t, delegate, e.SignerAddress())
	assert.Equal(t, []string{TypeTransactionExecution, TypeNativeTokenTransfer}, e.PermissionTypes())
}

func TestNewRequestDefaultExpiry(t *testing.T) {
	before := time.Now().Add(DefaultExpiry).Unix()
	r, err := NewRequest(big.NewInt(1), delegator, delegate, time.Time{})
	require.NoError(t, err)
	after := time.Now().Add(DefaultExpiry).Unix()

	if r[0].Expiry < before || r[0].Expiry > after {
		t.Errorf("Expiry = %d, want within [%d, %d]", r[0].Expiry, before, after)
	}
}

func TestNewRequestErrors(t *testing.T) {
	tests := []struct {
		name      string
		chainID   *big.Int
		delegator string
		delegate  string
		want      error
	}{
		{"nil chain", nil, delegator, delegate, delegation.ErrConfigurationMissing},
		{"zero chain", big.NewInt(0), delegator, delegate, delegation.ErrConfigurationMissing},
		{"bad delegator", big.NewInt(1), "0x1234", delegate, delegation.ErrInvalidAddress},
		{"bad delegate", big.NewInt(1), delegator, "not-an-address", delegation.ErrInvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequest(tt.chainID, tt.delegator, tt.delegate, time.Time{})
			if !errors.Is(err, tt.want) {
				t.Errorf("NewRequest() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRequestJSON(t *testing.T) {
	r, err := NewRequest(big.NewInt(11155111), delegator, delegate, time.Unix(1900000000, 0))
	require.NoError(t, err)

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "0xaa36a7", decoded[0]["chainId"])
	assert.Equal(t, float64(1900000000), decoded[0]["expiry"])

	var back Request
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, r[0].Address, back[0].Address)
	assert.Equal(t, r[0].SignerAddress(), back[0].SignerAddress())
}

func TestFormat(t *testing.T) {
	r, err := NewRequest(big.NewInt(11155111), delegator, delegate, time.Unix(1900000000, 0))
	require.NoError(t, err)

	out := Format(r, Explorer{BaseURL: "https://sepolia.etherscan.io/"})
	assert.Contains(t, out, "https://sepolia.etherscan.io/address/"+strings.ToLower(delegator))
	assert.Contains(t, out, "transaction-execution, native-token-transfer")
	assert.Contains(t, out, "2030-03-17T17:46:40Z")

	noLinks := Format(r, Explorer{})
	assert.Contains(t, noLinks, "N/A")
}

func TestTrackingInfo(t *testing.T) {
	assert.Equal(t, "No permission request available to track.", TrackingInfo(nil, Explorer{}))

	r, err := NewRequest(big.NewInt(1), delegator, delegate, time.Unix(1900000000, 0))
	require.NoError(t, err)
	out := TrackingInfo(r, Explorer{BaseURL: "https://etherscan.io"})
	assert.Contains(t, out, "https://etherscan.io/address/"+strings.ToLower(delegator))
	assert.Contains(t, out, delegate)
}

func TestExplorerLinks(t *testing.T) {
	x := Explorer{BaseURL: "https://etherscan.io"}
	assert.Equal(t, "https://etherscan.io/tx/0xab", x.TxLink("0xab"))
	assert.Equal(t, "N/A", x.TxLink(""))
	assert.Equal(t, "N/A", Explorer{}.AddressLink("0xab"))
}
