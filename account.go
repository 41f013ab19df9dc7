package main

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/stable-net/delegator-go/account"
	"github.com/stable-net/delegator-go/config"
	"github.com/stable-net/delegator-go/delegation"
)

var (
	accountFlag = &cli.StringFlag{
		Name:  "account",
		Usage: "smart account address, when it cannot be derived from PROXY_CREATION_CODE",
	}
	accountSaltFlag = &cli.StringFlag{
		Name:  "account-salt",
		Usage: "CREATE2 deploy salt of the smart account (bytes32 hex)",
	}
)

// openAccount builds the HybridDeleGator owned by key.
func openAccount(c *cli.Context, env *delegation.Environment, key *ecdsa.PrivateKey, checker account.DeploymentChecker) (*account.HybridAccount, error) {
	proxy, err := config.GetProxyCreationCode()
	if err != nil {
		return nil, err
	}
	opts := account.Options{ProxyCreationCode: proxy, Checker: checker}
	if v := c.String(accountFlag.Name); v != "" {
		if opts.Address, err = delegation.ParseAddress(v); err != nil {
			return nil, fmt.Errorf("--%s: %w", accountFlag.Name, err)
		}
	}
	if v := c.String(accountSaltFlag.Name); v != "" {
		salt, err := parseHash(v)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", accountSaltFlag.Name, err)
		}
		opts.Salt = salt
	}
	return account.NewHybridAccount(env, key, opts)
}

var commandAccount = &cli.Command{
	Name:  "account",
	Usage: "show the smart account of the configured key",
	Flags: []cli.Flag{accountFlag, accountSaltFlag},
	Action: func(c *cli.Context) error {
		s, err := newSession(c)
		if err != nil {
			return err
		}
		defer s.Close()

		env, err := config.LoadEnvironment()
		if err != nil {
			return err
		}
		key, err := s.ownerKey(c)
		if err != nil {
			return err
		}
		node, err := s.dialNode(c)
		if err != nil {
			return err
		}
		defer node.Close()

		acct, err := openAccount(c, env, key, node)
		if err != nil {
			return err
		}
		deployed, err := acct.IsDeployed(c.Context)
		if err != nil {
			return err
		}
		fmt.Printf("Owner:       %s\n", acct.Owner().Hex())
		if target, ok, err := node.Designator(c.Context, acct.Owner()); err == nil && ok {
			fmt.Printf("Owner code:  EIP-7702 delegated to %s\n", target.Hex())
		}
		fmt.Printf("Account:     %s\n", acct.Address().Hex())
		fmt.Printf("Deployed:    %v\n", deployed)
		fmt.Printf("Manager:     %s\n", env.DelegationManager.Hex())
		for _, name := range env.EnforcerNames() {
			if addr, err := env.Enforcer(name); err == nil {
				fmt.Printf("Enforcer:    %s %s\n", name, addr.Hex())
			} else {
				fmt.Printf("Enforcer:    %s not deployed\n", name)
			}
		}
		if !deployed {
			factory, _, err := acct.FactoryCall()
			if err != nil {
				return err
			}
			fmt.Printf("Factory:     %s (deployed with the first operation)\n", factory.Hex())
		}
		return nil
	},
}
