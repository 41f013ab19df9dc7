package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/stable-net/delegator-go/account"
	"github.com/stable-net/delegator-go/bundler"
	"github.com/stable-net/delegator-go/config"
	"github.com/stable-net/delegator-go/delegation"
	"github.com/stable-net/delegator-go/network"
)

var (
	inFlag = &cli.StringFlag{
		Name:  "in",
		Usage: "delegation file to redeem",
		Value: "delegation.json",
	}
	targetFlag = &cli.StringFlag{
		Name:     "target",
		Usage:    "execution target address",
		Required: true,
	}
	valueFlag = &cli.StringFlag{
		Name:  "value",
		Usage: "execution value in wei",
		Value: "0",
	}
	dataFlag = &cli.StringFlag{
		Name:  "data",
		Usage: "execution calldata hex",
		Value: "0x",
	}
	maxFeeFlag = &cli.StringFlag{
		Name:  "max-fee",
		Usage: "maxFeePerGas in wei (default: from the node)",
	}
	maxPriorityFeeFlag = &cli.StringFlag{
		Name:  "max-priority-fee",
		Usage: "maxPriorityFeePerGas in wei (default: from the node)",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "how long to wait for the receipt",
		Value: bundler.DefaultPollPolicy().Timeout,
	}
	resultFlag = &cli.StringFlag{
		Name:  "result",
		Usage: "redemption result file",
		Value: "redemption-result.json",
	}
	dryRunFlag = &cli.BoolFlag{
		Name:  "dry-run",
		Usage: "build and estimate the user operation without sending it",
	}
)

// redemptionResult is written to the --result file.
type redemptionResult struct {
	Success           bool        `json:"success"`
	OperationID       string      `json:"operationId"`
	UserOperationHash common.Hash `json:"userOperationHash"`
	TransactionHash   common.Hash `json:"transactionHash"`
	Reason            string      `json:"reason,omitempty"`
}

var commandRedeem = &cli.Command{
	Name:  "redeem",
	Usage: "redeem a delegation file through the bundler",
	Description: `
Redeems the delegation chain in --in from the smart account of the
configured key, executing one call on the delegator's behalf. The account
is deployed by the same user operation when it has no code yet.`,
	Flags: []cli.Flag{
		inFlag,
		targetFlag,
		valueFlag,
		dataFlag,
		maxFeeFlag,
		maxPriorityFeeFlag,
		timeoutFlag,
		resultFlag,
		dryRunFlag,
		accountFlag,
		accountSaltFlag,
	},
	Action: func(c *cli.Context) error {
		s, err := newSession(c)
		if err != nil {
			return err
		}
		defer s.Close()

		if s.cfg.BundlerURL == "" {
			return fmt.Errorf("%w: %s not set", delegation.ErrConfigurationMissing, config.EnvBundlerURL)
		}
		env, err := config.LoadEnvironment()
		if err != nil {
			return err
		}
		file, err := delegation.ReadFile(c.String(inFlag.Name))
		if err != nil {
			return err
		}
		chain := file.Chain()

		key, err := s.ownerKey(c)
		if err != nil {
			return err
		}
		node, err := s.dialNode(c)
		if err != nil {
			return err
		}
		defer node.Close()
		chainID, err := s.nodeChainID(c, node)
		if err != nil {
			return err
		}

		checker, err := network.NewDeploymentCache(node, 0)
		if err != nil {
			return err
		}
		acct, err := openAccount(c, env, key, checker)
		if err != nil {
			return err
		}

		report := delegation.InspectChain(chain, acct.Address(), env)
		fmt.Print(delegation.FormatChainValidation(report))
		if err := report.Err(); err != nil {
			return err
		}

		execution, err := executionFromFlags(c)
		if err != nil {
			return err
		}
		fees, err := feesFromFlags(c, node)
		if err != nil {
			return err
		}

		relay, err := bundler.DialRelay(c.Context, s.cfg.BundlerURL, node, bundler.RPCRelayConfig{
			EntryPoint: env.EntryPoint,
			ChainID:    chainID,
			Fees:       fees,
			Gas:        bundler.DefaultGasConstants(),
			Logger:     s.logger,
		}, acct)
		if err != nil {
			return err
		}
		defer relay.Close()
		if _, err := network.ProbeBundler(c.Context, relay, env.EntryPoint); err != nil {
			return err
		}

		chains := []delegation.Chain{chain}
		modes := []delegation.ExecutionMode{delegation.SingleDefaultMode}
		executions := [][]delegation.Execution{{execution}}

		if c.Bool(dryRunFlag.Name) {
			return dryRun(c, relay, acct, chains, modes, executions)
		}

		sub := bundler.NewSubmitter(relay, checker, env, bundler.WithLogger(s.logger))
		h, err := sub.Redeem(c.Context, acct, chains, modes, executions, nil)
		if err != nil {
			return err
		}
		fmt.Printf("Operation:   %s\n", h.ID)
		fmt.Printf("UserOp hash: %s\n", h.Hash().Hex())

		receipt, err := sub.AwaitReceipt(c.Context, h, c.Duration(timeoutFlag.Name))
		if err != nil {
			if errors.Is(err, bundler.ErrTimeout) {
				s.logger.Warn("no receipt yet, the operation may still be included",
					zap.String("hash", h.Hash().Hex()))
			}
			return err
		}

		result := redemptionResult{
			Success:           receipt.Success,
			OperationID:       h.ID,
			UserOperationHash: h.Hash(),
			TransactionHash:   receipt.TransactionHash,
			Reason:            receipt.Reason,
		}
		if err := writeJSON(c.String(resultFlag.Name), result); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}

		fmt.Printf("Tx hash:     %s\n", receipt.TransactionHash.Hex())
		fmt.Printf("Block:       %d\n", receipt.BlockNumber)
		fmt.Printf("State:       %s\n", h.State())
		if !receipt.Success {
			return fmt.Errorf("redemption reverted: %s", receipt.Reason)
		}
		return nil
	},
}

func executionFromFlags(c *cli.Context) (delegation.Execution, error) {
	value, err := parseWei(c.String(valueFlag.Name))
	if err != nil {
		return delegation.Execution{}, fmt.Errorf("--%s: %w", valueFlag.Name, err)
	}
	data, err := hexutil.Decode(c.String(dataFlag.Name))
	if err != nil {
		return delegation.Execution{}, fmt.Errorf("--%s: %w", dataFlag.Name, err)
	}
	return delegation.NewExecution(c.String(targetFlag.Name), value, data)
}

// feesFromFlags prices from the node, replacing whichever cap is given.
func feesFromFlags(c *cli.Context, node bundler.NodeFees) (bundler.FeeOracle, error) {
	var oracle bundler.FeeOracle = bundler.NodeFeeOracle{Node: node}
	maxFee, err := parseWei(c.String(maxFeeFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", maxFeeFlag.Name, err)
	}
	tip, err := parseWei(c.String(maxPriorityFeeFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", maxPriorityFeeFlag.Name, err)
	}
	if maxFee != nil || tip != nil {
		oracle = bundler.Override(oracle, bundler.Fees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip})
	}
	return oracle, nil
}

// dryRun fills and signs the redemption operation without sending it and
// prints it with its preVerificationGas breakdown.
func dryRun(c *cli.Context, relay *bundler.RPCRelay, acct *account.HybridAccount, chains []delegation.Chain, modes []delegation.ExecutionMode, executions [][]delegation.Execution) error {
	data, err := delegation.EncodeRedemption(chains, modes, executions)
	if err != nil {
		return err
	}
	calls := []bundler.Call{{To: acct.Address(), Data: data}}
	deployed, err := acct.IsDeployed(c.Context)
	if err != nil {
		return err
	}
	if !deployed {
		factory, factoryData, err := acct.FactoryCall()
		if err != nil {
			return err
		}
		calls = append([]bundler.Call{{To: factory, Data: factoryData}}, calls...)
	}

	op, err := relay.BuildUserOperation(c.Context, bundler.Operation{Account: acct.Address(), Calls: calls}, nil)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(op, "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("%s\n", out)

	gas, err := bundler.CalculatePreVerificationGas(op, bundler.DefaultGasConstants())
	if err != nil {
		return err
	}
	fmt.Print(bundler.FormatGasResult(gas))
	return nil
}
