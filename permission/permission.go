// Package permission builds ERC-7715 permission requests describing a
// delegation in the form wallets exchange with dApps.
package permission

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/stable-net/delegator-go/delegation"
)

// DefaultExpiry is how long a request stays valid when no expiry is given.
const DefaultExpiry = 30 * 24 * time.Hour

const (
	SignerTypeEOA = "eoa"

	TypeTransactionExecution = "transaction-execution"
	TypeNativeTokenTransfer  = "native-token-transfer"
)

// Signer identifies who may use the permission.
type Signer struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Permission is one typed grant.
type Permission struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Entry is one permission request for a single account.
type Entry struct {
	ChainID     *hexutil.Big `json:"chainId"`
	Address     string       `json:"address,omitempty"`
	Expiry      int64        `json:"expiry"`
	Signer      Signer       `json:"signer"`
	Permissions []Permission `json:"permissions"`
}

// ExpiresAt returns the expiry as a time.
func (e Entry) ExpiresAt() time.Time {
	return time.Unix(e.Expiry, 0).UTC()
}

// SignerAddress returns the delegate address carried in the signer data.
func (e Entry) SignerAddress() string {
	if a, ok := e.Signer.Data["address"].(string); ok {
		return a
	}
	return ""
}

// PermissionTypes lists the granted permission types in order.
func (e Entry) PermissionTypes() []string {
	out := make([]string, len(e.Permissions))
	for i, p := range e.Permissions {
		out[i] = p.Type
	}
	return out
}

// Request is the wallet_grantPermissions parameter list.
type Request []Entry

// NewRequest grants delegate unlimited transaction execution and native
// token transfers on delegator's account until expiry. A zero expiry means
// DefaultExpiry from now.
func NewRequest(chainID *big.Int, delegator, delegate string, expiry time.Time) (Request, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("%w: chain id", delegation.ErrConfigurationMissing)
	}
	from, err := delegation.ParseAddress(delegator)
	if err != nil {
		return nil, fmt.Errorf("delegator: %w", err)
	}
	to, err := delegation.ParseAddress(delegate)
	if err != nil {
		return nil, fmt.Errorf("delegate: %w", err)
	}
	if expiry.IsZero() {
		expiry = time.Now().Add(DefaultExpiry)
	}
	return Request{{
		ChainID: (*hexutil.Big)(new(big.Int).Set(chainID)),
		Address: delegation.CanonicalAddress(from),
		Expiry:  expiry.Unix(),
		Signer: Signer{
			Type: SignerTypeEOA,
			Data: map[string]interface{}{"address": delegation.CanonicalAddress(to)},
		},
		Permissions: []Permission{
			{Type: TypeTransactionExecution, Data: map[string]interface{}{"allowance": "unlimited"}},
			{Type: TypeNativeTokenTransfer, Data: map[string]interface{}{"allowance": "unlimited"}},
		},
	}}, nil
}

// Explorer renders block explorer links. The zero value renders none.
type Explorer struct {
	BaseURL string
}

// AddressLink returns the explorer page of addr, or "N/A".
func (x Explorer) AddressLink(addr string) string {
	if addr == "" || x.BaseURL == "" {
		return "N/A"
	}
	return strings.TrimSuffix(x.BaseURL, "/") + "/address/" + addr
}

// TxLink returns the explorer page of a transaction, or "N/A".
func (x Explorer) TxLink(hash string) string {
	if hash == "" || x.BaseURL == "" {
		return "N/A"
	}
	return strings.TrimSuffix(x.BaseURL, "/") + "/tx/" + hash
}

// Format renders r for display.
func Format(r Request, x Explorer) string {
	var sb strings.Builder
	for i, e := range r {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Chain ID:           %s\n", e.ChainID)
		fmt.Fprintf(&sb, "Delegator:          %s\n", e.Address)
		fmt.Fprintf(&sb, "Delegator Explorer: %s\n", x.AddressLink(e.Address))
		fmt.Fprintf(&sb, "Expiry:             %s\n", e.ExpiresAt().Format(time.RFC3339))
		fmt.Fprintf(&sb, "Signer Type:        %s\n", e.Signer.Type)
		fmt.Fprintf(&sb, "Signer Address:     %s\n", e.SignerAddress())
		fmt.Fprintf(&sb, "Signer Explorer:    %s\n", x.AddressLink(e.SignerAddress()))
		fmt.Fprintf(&sb, "Permissions:        %s\n", strings.Join(e.PermissionTypes(), ", "))
	}
	return sb.String()
}

// TrackingInfo explains where usage of the first entry of r shows up on
// chain. Permission requests themselves are off-chain.
func TrackingInfo(r Request, x Explorer) string {
	if len(r) == 0 || r[0].Address == "" {
		return "No permission request available to track."
	}
	e := r[0]
	var sb strings.Builder
	sb.WriteString("ERC-7715 Permission Tracking Information:\n\n")
	sb.WriteString("The permission request is not stored on-chain. It is an off-chain\n")
	sb.WriteString("format exchanged between wallets and dApps.\n\n")
	sb.WriteString("To track transactions executed using this permission:\n")
	fmt.Fprintf(&sb, "1. Monitor the delegator's account: %s\n", x.AddressLink(e.Address))
	fmt.Fprintf(&sb, "2. Look for operations initiated by the delegate: %s\n\n", e.SignerAddress())
	fmt.Fprintf(&sb, "The permission is valid until: %s\n", e.ExpiresAt().Format(time.RFC3339))
	return sb.String()
}
