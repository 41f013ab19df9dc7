// Package config loads the delegator tooling configuration from environment
// variables, an optional .env file and chain presets.
package config

import (
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"

	"github.com/stable-net/delegator-go/delegation"
	"github.com/stable-net/delegator-go/logger"
)

// DefaultEntryPoint is the canonical EntryPoint v0.7 deployment.
const DefaultEntryPoint = "0x0000000071727De22E5E9d8BAf0edAc6f37da032"

// Environment variable names.
const (
	EnvRPCURL            = "RPC_URL"
	EnvBundlerURL        = "BUNDLER_URL"
	EnvExplorerURL       = "EXPLORER_URL"
	EnvPrivateKey        = "PRIVATE_KEY"
	EnvMnemonic          = "MNEMONIC"
	EnvChainPreset       = "CHAIN_PRESET"
	EnvChainID           = "CHAIN_ID"
	EnvDelegationManager = "DELEGATION_MANAGER_ADDRESS"
	EnvEntryPoint        = "ENTRYPOINT_ADDRESS"
	EnvHybridDeleGator   = "HYBRID_DELEGATOR_ADDRESS"
	EnvSimpleFactory     = "SIMPLE_FACTORY_ADDRESS"
	EnvAllowedTargets    = "ALLOWED_TARGETS_ENFORCER_ADDRESS"
	EnvValueLte          = "VALUE_LTE_ENFORCER_ADDRESS"
	EnvProxyCreationCode = "PROXY_CREATION_CODE"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogJSON           = "LOG_JSON"
)

// Config holds the connection settings of one run.
type Config struct {
	ChainID     *big.Int
	RPCURL      string
	BundlerURL  string
	ExplorerURL string
	PrivateKey  string
}

// ChainPreset represents a predefined chain configuration
type ChainPreset struct {
	Name        string
	ChainID     *big.Int
	RPCURL      string
	BundlerURL  string
	ExplorerURL string
}

// ChainPresets contains predefined configurations for common networks
var ChainPresets = map[string]ChainPreset{
	"local": {
		Name:       "local",
		ChainID:    big.NewInt(31337),
		RPCURL:     "http://localhost:8545",
		BundlerURL: "http://localhost:4337",
	},
	"mainnet": {
		Name:        "mainnet",
		ChainID:     big.NewInt(1),
		RPCURL:      "https://eth.llamarpc.com",
		ExplorerURL: "https://etherscan.io",
	},
	"sepolia": {
		Name:        "sepolia",
		ChainID:     big.NewInt(11155111),
		RPCURL:      "https://rpc.sepolia.org",
		ExplorerURL: "https://sepolia.etherscan.io",
	},
	"holesky": {
		Name:        "holesky",
		ChainID:     big.NewInt(17000),
		RPCURL:      "https://rpc.holesky.ethpandaops.io",
		ExplorerURL: "https://holesky.etherscan.io",
	},
	"base-sepolia": {
		Name:        "base-sepolia",
		ChainID:     big.NewInt(84532),
		RPCURL:      "https://sepolia.base.org",
		ExplorerURL: "https://sepolia.basescan.org",
	},
}

// LoadConfig loads configuration from .env file
// It silently ignores if the file doesn't exist
func LoadConfig(envPath string) error {
	if envPath != "" {
		return godotenv.Load(envPath)
	}
	_ = godotenv.Load()
	return nil
}

func preset() (ChainPreset, bool) {
	if name := os.Getenv(EnvChainPreset); name != "" {
		return GetChainPreset(name)
	}
	return ChainPreset{}, false
}

// GetChainID returns chain ID from environment variable or preset.
// Default: local.
func GetChainID() *big.Int {
	if val := os.Getenv(EnvChainID); val != "" {
		if id, ok := new(big.Int).SetString(val, 0); ok {
			return id
		}
	}
	if p, ok := preset(); ok {
		return new(big.Int).Set(p.ChainID)
	}
	return big.NewInt(31337)
}

// GetRPCURL returns RPC URL from environment variable or default
func GetRPCURL() string {
	if val := os.Getenv(EnvRPCURL); val != "" {
		return val
	}
	if p, ok := preset(); ok {
		return p.RPCURL
	}
	return "http://localhost:8545"
}

// GetBundlerURL returns the bundler URL. Without one submission is
// impossible, so there is no remote default.
func GetBundlerURL() string {
	if val := os.Getenv(EnvBundlerURL); val != "" {
		return val
	}
	if p, ok := preset(); ok {
		return p.BundlerURL
	}
	return ""
}

// GetExplorerURL returns the block explorer base URL, empty if unknown.
func GetExplorerURL() string {
	if val := os.Getenv(EnvExplorerURL); val != "" {
		return val
	}
	if p, ok := preset(); ok {
		return p.ExplorerURL
	}
	return ""
}

// GetPrivateKey returns private key from environment variable
// Returns empty string if not set
func GetPrivateKey() string {
	key := strings.TrimSpace(os.Getenv(EnvPrivateKey))
	return strings.TrimPrefix(key, "0x")
}

// GetMnemonic returns the BIP-39 mnemonic, empty if not set.
func GetMnemonic() string {
	return strings.TrimSpace(os.Getenv(EnvMnemonic))
}

// Load collects the connection settings.
func Load() *Config {
	return &Config{
		ChainID:     GetChainID(),
		RPCURL:      GetRPCURL(),
		BundlerURL:  GetBundlerURL(),
		ExplorerURL: GetExplorerURL(),
		PrivateKey:  GetPrivateKey(),
	}
}

// EnvironmentConfig reads the contract deployment addresses. The EntryPoint
// defaults to the canonical v0.7 deployment.
func EnvironmentConfig() delegation.EnvironmentConfig {
	entryPoint := os.Getenv(EnvEntryPoint)
	if entryPoint == "" {
		entryPoint = DefaultEntryPoint
	}
	return delegation.EnvironmentConfig{
		DelegationManager: os.Getenv(EnvDelegationManager),
		EntryPoint:        entryPoint,
		SimpleFactory:     os.Getenv(EnvSimpleFactory),
		HybridDeleGator:   os.Getenv(EnvHybridDeleGator),
		CaveatEnforcers: map[string]string{
			delegation.AllowedTargetsEnforcer: os.Getenv(EnvAllowedTargets),
			delegation.ValueLteEnforcer:       os.Getenv(EnvValueLte),
		},
	}
}

// LoadEnvironment builds the delegation environment from the environment
// variables. Missing or malformed addresses fail with
// delegation.ErrConfigurationMissing naming the variable.
func LoadEnvironment() (*delegation.Environment, error) {
	cfg := EnvironmentConfig()
	vars := map[string]string{
		EnvDelegationManager: cfg.DelegationManager,
		EnvSimpleFactory:     cfg.SimpleFactory,
		EnvHybridDeleGator:   cfg.HybridDeleGator,
		EnvAllowedTargets:    cfg.CaveatEnforcers[delegation.AllowedTargetsEnforcer],
		EnvValueLte:          cfg.CaveatEnforcers[delegation.ValueLteEnforcer],
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if vars[name] == "" {
			return nil, fmt.Errorf("%w: %s not set", delegation.ErrConfigurationMissing, name)
		}
	}
	return delegation.NewEnvironment(cfg)
}

// GetProxyCreationCode returns the ERC-1967 proxy creation bytecode used to
// derive counterfactual account addresses, nil if not set.
func GetProxyCreationCode() ([]byte, error) {
	val := strings.TrimSpace(os.Getenv(EnvProxyCreationCode))
	if val == "" {
		return nil, nil
	}
	if !strings.HasPrefix(val, "0x") {
		val = "0x" + val
	}
	code, err := hexutil.Decode(val)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", delegation.ErrConfigurationMissing, EnvProxyCreationCode, err)
	}
	return code, nil
}

// GetLogConfig returns the logger settings.
func GetLogConfig() logger.Config {
	jsonLogs, _ := strconv.ParseBool(os.Getenv(EnvLogJSON))
	return logger.Config{
		Level:       os.Getenv(EnvLogLevel),
		EnableJSON:  jsonLogs,
		EnableColor: !jsonLogs,
	}
}

// GetChainPreset returns a preset by name (case-insensitive)
func GetChainPreset(name string) (ChainPreset, bool) {
	preset, ok := ChainPresets[strings.ToLower(name)]
	return preset, ok
}

// ApplyPreset returns configuration from a named preset
func ApplyPreset(name string) (*Config, error) {
	preset, ok := GetChainPreset(name)
	if !ok {
		return nil, fmt.Errorf("unknown chain preset: %s (available: %s)", name, strings.Join(ListPresets(), ", "))
	}
	return &Config{
		ChainID:     new(big.Int).Set(preset.ChainID),
		RPCURL:      preset.RPCURL,
		BundlerURL:  preset.BundlerURL,
		ExplorerURL: preset.ExplorerURL,
	}, nil
}

// ListPresets returns all available preset names sorted alphabetically
func ListPresets() []string {
	names := make([]string, 0, len(ChainPresets))
	for name := range ChainPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FormatPresets renders the available presets as a table.
func FormatPresets() string {
	var sb strings.Builder
	sb.WriteString("Available chain presets:\n")
	for _, name := range ListPresets() {
		p := ChainPresets[name]
		bundler := p.BundlerURL
		if bundler == "" {
			bundler = "-"
		}
		fmt.Fprintf(&sb, "  %-13s chainId: %-10s rpc: %-36s bundler: %s\n", name, p.ChainID.String(), p.RPCURL, bundler)
	}
	return sb.String()
}
