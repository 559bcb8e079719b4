package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "create the genesis block if the configured data directory is empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(envFlag)
			if err != nil {
				return err
			}
			defer n.Close()

			tip := n.chain.Tip()
			fmt.Printf("chain ready at height %d, tip %s\n", tip.Index, tip.Hash.Hex())
			return nil
		},
	}
}
