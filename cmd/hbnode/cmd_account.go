package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synnergy-labs/hb-core/core"
)

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "account", Short: "account queries"}
	cmd.AddCommand(accountBalanceCmd())
	return cmd
}

func accountBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "print an address's balance and nonce, replaying stored chain state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := core.ParseAddress(args[0])
			if err != nil {
				return err
			}
			n, err := openNode(envFlag)
			if err != nil {
				return err
			}
			defer n.Close()

			fmt.Printf("address: %s\nbalance: %d\nnonce:   %d\n", addr.Hex(), n.chain.Balance(addr), n.chain.Nonce(addr))
			return nil
		},
	}
}
