package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/stable-net/delegator-go/bundler"
	"github.com/stable-net/delegator-go/config"
	"github.com/stable-net/delegator-go/network"
)

var commandProbe = &cli.Command{
	Name:  "probe",
	Usage: "check node and bundler liveness",
	Description: `
Reads the block height and chain id from the node, then asks the bundler
for its supported EntryPoints and checks the configured one is among them.`,
	Action: func(c *cli.Context) error {
		s, err := newSession(c)
		if err != nil {
			return err
		}
		defer s.Close()

		node, err := s.dialNode(c)
		if err != nil {
			return err
		}
		defer node.Close()

		res, err := node.Probe(c.Context)
		if err != nil {
			return fmt.Errorf("node %s unreachable: %w", s.cfg.RPCURL, err)
		}
		fmt.Printf("Node:        %s\n", s.cfg.RPCURL)
		fmt.Printf("Block:       %d\n", res.BlockNumber)
		fmt.Printf("Chain ID:    %s\n", res.ChainID)
		if res.ChainID.Cmp(s.cfg.ChainID) != 0 {
			s.logger.Warn("node chain id differs from configuration",
				zap.Stringer("node", res.ChainID),
				zap.Stringer("configured", s.cfg.ChainID))
		}

		if s.cfg.BundlerURL == "" {
			fmt.Println("Bundler:     not configured")
			return nil
		}
		entryPoint := common.HexToAddress(config.EnvironmentConfig().EntryPoint)
		relay, err := bundler.DialRelay(c.Context, s.cfg.BundlerURL, node, bundler.RPCRelayConfig{
			EntryPoint: entryPoint,
			ChainID:    res.ChainID,
			Logger:     s.logger,
		})
		if err != nil {
			return err
		}
		defer relay.Close()

		eps, err := network.ProbeBundler(c.Context, relay, entryPoint)
		fmt.Printf("Bundler:     %s\n", s.cfg.BundlerURL)
		for _, ep := range eps {
			fmt.Printf("EntryPoint:  %s\n", ep.Hex())
		}
		return err
	},
}
