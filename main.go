// delegator creates, inspects and redeems ERC-7710 delegations between
// HybridDeleGator smart accounts through an ERC-4337 bundler.
//
// Usage:
//
//	delegator [global options] command [command options]
//
// Commands:
//
//	probe       Check node and bundler liveness
//	account     Show the smart account of the configured key
//	create      Create and sign a root delegation into a delegation file
//	redeem      Redeem a delegation file through the bundler
//	permission  Print an ERC-7715 permission request for a delegation
//	presets     List available chain presets
//
// Environment Variables:
//
//	RPC_URL, BUNDLER_URL, EXPLORER_URL, CHAIN_ID, CHAIN_PRESET
//	PRIVATE_KEY, MNEMONIC
//	DELEGATION_MANAGER_ADDRESS, ENTRYPOINT_ADDRESS, SIMPLE_FACTORY_ADDRESS,
//	HYBRID_DELEGATOR_ADDRESS, ALLOWED_TARGETS_ENFORCER_ADDRESS,
//	VALUE_LTE_ENFORCER_ADDRESS, PROXY_CREATION_CODE
//	LOG_LEVEL, LOG_JSON
package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/stable-net/delegator-go/config"
	"github.com/stable-net/delegator-go/keys"
	"github.com/stable-net/delegator-go/logger"
	"github.com/stable-net/delegator-go/network"
)

var app *cli.App

func init() {
	app = newApp()
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "delegator",
		Usage: "create and redeem ERC-7710 delegations through an ERC-4337 bundler",
		Flags: []cli.Flag{
			envFlag,
			presetFlag,
			rpcFlag,
			bundlerFlag,
			chainIDFlag,
			keyFlag,
			mnemonicFlag,
			indexFlag,
			hdPathFlag,
			logLevelFlag,
			jsonLogsFlag,
		},
		Commands: []*cli.Command{
			commandProbe,
			commandAccount,
			commandCreate,
			commandRedeem,
			commandPermission,
			commandPresets,
		},
	}
}

// Commonly used command line flags.
var (
	envFlag = &cli.StringFlag{
		Name:  "env",
		Usage: "path to .env file (default: .env in current directory)",
	}
	presetFlag = &cli.StringFlag{
		Name:    "preset",
		Usage:   "chain preset (" + strings.Join(config.ListPresets(), ", ") + ")",
		EnvVars: []string{config.EnvChainPreset},
	}
	rpcFlag = &cli.StringFlag{
		Name:    "rpc",
		Usage:   "node RPC URL",
		EnvVars: []string{config.EnvRPCURL},
	}
	bundlerFlag = &cli.StringFlag{
		Name:    "bundler",
		Usage:   "ERC-4337 bundler URL",
		EnvVars: []string{config.EnvBundlerURL},
	}
	chainIDFlag = &cli.StringFlag{
		Name:    "chain-id",
		Usage:   "chain id (decimal or 0x-hex)",
		EnvVars: []string{config.EnvChainID},
	}
	keyFlag = &cli.StringFlag{
		Name:  "key",
		Usage: "owner private key hex (default: $" + config.EnvPrivateKey + ")",
	}
	mnemonicFlag = &cli.StringFlag{
		Name:  "mnemonic",
		Usage: "BIP-39 mnemonic to derive the owner key from (default: $" + config.EnvMnemonic + ")",
	}
	indexFlag = &cli.UintFlag{
		Name:  "index",
		Usage: "BIP-44 address index used with --mnemonic",
	}
	hdPathFlag = &cli.StringFlag{
		Name:  "hd-path",
		Usage: "full derivation path used with --mnemonic, overrides --index",
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "debug, info, warn or error",
		EnvVars: []string{config.EnvLogLevel},
	}
	jsonLogsFlag = &cli.BoolFlag{
		Name:  "json-logs",
		Usage: "emit JSON logs on stderr",
	}
)

// session is the resolved configuration shared by commands.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
}

// newSession resolves configuration with precedence flag > environment >
// preset > default.
func newSession(c *cli.Context) (*session, error) {
	cfg := config.Load()
	if name := c.String(presetFlag.Name); name != "" {
		p, err := config.ApplyPreset(name)
		if err != nil {
			return nil, err
		}
		if !c.IsSet(chainIDFlag.Name) {
			cfg.ChainID = p.ChainID
		}
		if !c.IsSet(rpcFlag.Name) {
			cfg.RPCURL = p.RPCURL
		}
		if !c.IsSet(bundlerFlag.Name) && p.BundlerURL != "" {
			cfg.BundlerURL = p.BundlerURL
		}
		if cfg.ExplorerURL == "" {
			cfg.ExplorerURL = p.ExplorerURL
		}
	}
	if v := c.String(chainIDFlag.Name); v != "" {
		id, ok := new(big.Int).SetString(v, 0)
		if !ok || id.Sign() <= 0 {
			return nil, fmt.Errorf("invalid chain id %q", v)
		}
		cfg.ChainID = id
	}
	if v := c.String(rpcFlag.Name); v != "" {
		cfg.RPCURL = v
	}
	if v := c.String(bundlerFlag.Name); v != "" {
		cfg.BundlerURL = v
	}

	logCfg := config.GetLogConfig()
	if c.IsSet(logLevelFlag.Name) {
		logCfg.Level = c.String(logLevelFlag.Name)
	}
	if c.Bool(jsonLogsFlag.Name) {
		logCfg.EnableJSON, logCfg.EnableColor = true, false
	}
	l, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, logger: l}, nil
}

func (s *session) Close() {
	_ = s.logger.Sync()
}

// ownerKey returns the key from the mnemonic if one is set, else from the
// private key. Flags take precedence over MNEMONIC and PRIVATE_KEY.
func (s *session) ownerKey(c *cli.Context) (*ecdsa.PrivateKey, error) {
	m := c.String(mnemonicFlag.Name)
	if m == "" {
		m = config.GetMnemonic()
	}
	if m != "" {
		if path := c.String(hdPathFlag.Name); path != "" {
			s.logger.Debug("deriving owner key from mnemonic", zap.String("path", path))
			return keys.FromMnemonicPath(m, "", path)
		}
		s.logger.Debug("deriving owner key from mnemonic", zap.Uint("index", c.Uint(indexFlag.Name)))
		return keys.FromMnemonic(m, "", uint32(c.Uint(indexFlag.Name)))
	}
	k := c.String(keyFlag.Name)
	if k == "" {
		k = s.cfg.PrivateKey
	}
	if k != "" {
		return keys.ParsePrivateKey(k)
	}
	return nil, errors.New("no owner key: set --key, --mnemonic, PRIVATE_KEY or MNEMONIC")
}

func (s *session) dialNode(c *cli.Context) (*network.Client, error) {
	return network.Dial(c.Context, s.cfg.RPCURL, s.logger)
}

// nodeChainID probes the node and returns the chain it serves. A node that
// does not answer aborts the command.
func (s *session) nodeChainID(c *cli.Context, node *network.Client) (*big.Int, error) {
	res, err := node.Probe(c.Context)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", s.cfg.RPCURL, err)
	}
	if res.ChainID.Cmp(s.cfg.ChainID) != 0 {
		s.logger.Warn("node chain id differs from configuration, using the node's",
			zap.Stringer("node", res.ChainID),
			zap.Stringer("configured", s.cfg.ChainID))
	}
	return res.ChainID, nil
}

// parseHash reads a 0x-hex value of at most 32 bytes, left-padded.
func parseHash(v string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(v))
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("%d bytes exceed %d", len(b), common.HashLength)
	}
	return common.BytesToHash(b), nil
}

// parseWei reads a decimal or 0x-hex amount in wei. Empty yields nil.
func parseWei(v string) (*uint256.Int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		return uint256.FromHex(v)
	}
	return uint256.FromDecimal(v)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// loadEnvFile loads the .env file named by -env/--env before flags read
// their environment defaults. A missing default .env is not an error.
func loadEnvFile(args []string) error {
	path := ""
	for i, arg := range args {
		name := strings.TrimLeft(arg, "-")
		if len(name) == len(arg) {
			continue
		}
		if name == envFlag.Name && i+1 < len(args) {
			path = args[i+1]
			break
		}
		if strings.HasPrefix(name, envFlag.Name+"=") {
			path = strings.TrimPrefix(name, envFlag.Name+"=")
			break
		}
	}
	if err := config.LoadConfig(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := loadEnvFile(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var commandPresets = &cli.Command{
	Name:  "presets",
	Usage: "list available chain presets",
	Action: func(c *cli.Context) error {
		fmt.Print(config.FormatPresets())
		return nil
	},
}
