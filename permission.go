package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/stable-net/delegator-go/delegation"
	"github.com/stable-net/delegator-go/permission"
)

var (
	permissionDelegatorFlag = &cli.StringFlag{
		Name:  "delegator",
		Usage: "delegator account address (default: root delegator of --in)",
	}
	permissionDelegateFlag = &cli.StringFlag{
		Name:  "delegate",
		Usage: "delegate address (default: leaf delegate of --in)",
	}
	permissionInFlag = &cli.StringFlag{
		Name:  "in",
		Usage: "delegation file to describe when addresses are not given",
	}
	expiryFlag = &cli.DurationFlag{
		Name:  "expiry",
		Usage: "validity from now",
		Value: permission.DefaultExpiry,
	}
	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "print the wallet_grantPermissions request as JSON",
	}
)

var commandPermission = &cli.Command{
	Name:  "permission",
	Usage: "print an ERC-7715 permission request for a delegation",
	Flags: []cli.Flag{
		permissionDelegatorFlag,
		permissionDelegateFlag,
		permissionInFlag,
		expiryFlag,
		jsonFlag,
	},
	Action: func(c *cli.Context) error {
		s, err := newSession(c)
		if err != nil {
			return err
		}
		defer s.Close()

		delegator, delegate := c.String(permissionDelegatorFlag.Name), c.String(permissionDelegateFlag.Name)
		if path := c.String(permissionInFlag.Name); path != "" {
			file, err := delegation.ReadFile(path)
			if err != nil {
				return err
			}
			chain := file.Chain()
			leaf, _ := chain.Leaf()
			if delegator == "" {
				delegator = chain[0].Delegator().Hex()
			}
			if delegate == "" {
				delegate = leaf.Delegate().Hex()
			}
		}
		if delegator == "" || delegate == "" {
			return fmt.Errorf("need --%s and --%s, or --%s", permissionDelegatorFlag.Name, permissionDelegateFlag.Name, permissionInFlag.Name)
		}

		req, err := permission.NewRequest(s.cfg.ChainID, delegator, delegate, time.Now().Add(c.Duration(expiryFlag.Name)))
		if err != nil {
			return err
		}
		if c.Bool(jsonFlag.Name) {
			out, err := json.MarshalIndent(req, "", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", out)
			return nil
		}

		x := permission.Explorer{BaseURL: s.cfg.ExplorerURL}
		fmt.Print(permission.Format(req, x))
		fmt.Println()
		fmt.Print(permission.TrackingInfo(req, x))
		return nil
	},
}
