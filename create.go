package main

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/stable-net/delegator-go/account"
	"github.com/stable-net/delegator-go/config"
	"github.com/stable-net/delegator-go/delegation"
	"github.com/stable-net/delegator-go/keys"
)

var (
	delegatorKeyFlag = &cli.StringFlag{
		Name:  "delegator-key",
		Usage: "delegator owner private key hex (default: a fresh key)",
	}
	delegateFlag = &cli.StringFlag{
		Name:  "delegate",
		Usage: "delegate address (default: the smart account of --key)",
	}
	signerFlag = &cli.StringFlag{
		Name:  "signer",
		Usage: "delegator kind: smart-account or eoa",
		Value: string(delegation.SmartAccountSignerKind),
	}
	allowedTargetFlag = &cli.StringSliceFlag{
		Name:  "allowed-target",
		Usage: "restrict redemption to this target (repeatable)",
	}
	maxValueFlag = &cli.StringFlag{
		Name:  "max-value",
		Usage: "maximum native value per redemption in wei",
	}
	saltFlag = &cli.StringFlag{
		Name:  "salt",
		Usage: "delegation salt (decimal or 0x-hex, default: random)",
	}
	outFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "delegation file to write",
		Value: "delegation.json",
	}
)

var commandCreate = &cli.Command{
	Name:  "create",
	Usage: "create and sign a root delegation into a delegation file",
	Description: `
Builds a root delegation from the delegator to the delegate, restricted by
the AllowedTargets and ValueLte caveats when given, signs it and writes it
to the delegation file. A smart-account delegator that is not deployed yet
signs counterfactually (ERC-6492).`,
	Flags: []cli.Flag{
		delegatorKeyFlag,
		delegateFlag,
		signerFlag,
		allowedTargetFlag,
		maxValueFlag,
		saltFlag,
		outFlag,
		accountFlag,
		accountSaltFlag,
	},
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
		node, err := s.dialNode(c)
		if err != nil {
			return err
		}
		defer node.Close()

		chainID, err := s.nodeChainID(c, node)
		if err != nil {
			return err
		}

		delegatorKey, err := delegatorOwner(c, s)
		if err != nil {
			return err
		}

		kind := delegation.SignerKind(c.String(signerFlag.Name))
		opts := delegation.SignerOptions{
			Domain:         env.Domain(chainID),
			Key:            delegatorKey,
			Counterfactual: true,
		}
		if kind == delegation.SmartAccountSignerKind {
			proxy, err := config.GetProxyCreationCode()
			if err != nil {
				return err
			}
			acct, err := account.NewHybridAccount(env, delegatorKey, account.Options{ProxyCreationCode: proxy, Checker: node})
			if err != nil {
				return fmt.Errorf("delegator account: %w", err)
			}
			opts.Account = acct
		}
		signer, err := delegation.NewSigner(kind, opts)
		if err != nil {
			return err
		}

		delegate := c.String(delegateFlag.Name)
		if delegate == "" {
			key, err := s.ownerKey(c)
			if err != nil {
				return fmt.Errorf("no --delegate given: %w", err)
			}
			acct, err := openAccount(c, env, key, node)
			if err != nil {
				return fmt.Errorf("delegate account: %w", err)
			}
			delegate = acct.Address().Hex()
		}

		caveats, err := caveatsFromFlags(c, env)
		if err != nil {
			return err
		}

		salt, err := saltFromFlag(c)
		if err != nil {
			return err
		}

		d, err := delegation.BuildRoot(delegate, signer.Address().Hex(), caveats, salt)
		if err != nil {
			return err
		}
		signed, err := signer.Sign(c.Context, d)
		if err != nil {
			return err
		}
		if kind == delegation.EOASignerKind {
			recovered, err := delegation.RecoverSigner(signed, opts.Domain)
			if err != nil {
				return err
			}
			if recovered != signed.Delegator() {
				return fmt.Errorf("%w: recovered %s, delegator %s", delegation.ErrInvalidSignature, recovered.Hex(), signed.Delegator().Hex())
			}
		}

		out := c.String(outFlag.Name)
		if err := delegation.WriteFile(out, delegation.File{Delegations: []delegation.SignedDelegation{signed}}); err != nil {
			return err
		}

		fmt.Printf("Delegator:   %s (%s)\n", signed.Delegator().Hex(), kind)
		fmt.Printf("Delegate:    %s\n", signed.Delegate().Hex())
		fmt.Printf("Caveats:     %d\n", caveats.Len())
		for _, cv := range caveats.List() {
			name, _ := env.EnforcerName(cv.Enforcer)
			fmt.Printf("  - %s %s\n", name, cv.Enforcer.Hex())
		}
		fmt.Printf("Salt:        %s\n", signed.Salt())
		fmt.Printf("Hash:        %s\n", signed.Hash().Hex())
		fmt.Printf("Signature:   %d bytes\n", len(signed.Signature()))
		switch kind {
		case delegation.EOASignerKind:
			fmt.Println("Verified:    signature recovers to the delegator")
		case delegation.SmartAccountSignerKind:
			factory, _, inner, wrapped, err := account.UnwrapERC6492(signed.Signature())
			if err != nil {
				return err
			}
			if wrapped {
				fmt.Printf("ERC-6492:    wrapped for undeployed account, factory %s, inner %d bytes\n", factory.Hex(), len(inner))
			}
		}
		fmt.Printf("Written to:  %s\n", out)
		return nil
	},
}

// delegatorOwner returns --delegator-key, or a fresh key when unset.
func delegatorOwner(c *cli.Context, s *session) (*ecdsa.PrivateKey, error) {
	if v := c.String(delegatorKeyFlag.Name); v != "" {
		return keys.ParsePrivateKey(v)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate delegator key: %w", err)
	}
	s.logger.Warn("using an ephemeral delegator key",
		zap.String("owner", crypto.PubkeyToAddress(key.PublicKey).Hex()))
	return key, nil
}

func caveatsFromFlags(c *cli.Context, env *delegation.Environment) (delegation.Caveats, error) {
	b := delegation.NewCaveatBuilder(env)
	if targets := c.StringSlice(allowedTargetFlag.Name); len(targets) > 0 {
		addrs := make([]common.Address, 0, len(targets))
		for _, t := range targets {
			addr, err := delegation.ParseAddress(t)
			if err != nil {
				return delegation.Caveats{}, fmt.Errorf("--%s: %w", allowedTargetFlag.Name, err)
			}
			addrs = append(addrs, addr)
		}
		b.AllowedTargets(addrs...)
	}
	if v := c.String(maxValueFlag.Name); v != "" {
		limit, err := parseWei(v)
		if err != nil {
			return delegation.Caveats{}, fmt.Errorf("--%s: %w", maxValueFlag.Name, err)
		}
		b.ValueLte(limit.ToBig())
	}
	return b.Build()
}

func saltFromFlag(c *cli.Context) (*big.Int, error) {
	v := c.String(saltFlag.Name)
	if v == "" {
		return delegation.NewSalt()
	}
	salt, ok := new(big.Int).SetString(v, 0)
	if !ok || salt.Sign() <= 0 {
		return nil, fmt.Errorf("--%s: invalid salt %q", saltFlag.Name, v)
	}
	return salt, nil
}
