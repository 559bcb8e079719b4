package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synnergy-labs/hb-core/core"
)

func blockCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "block", Short: "block queries"}
	cmd.AddCommand(blockGetCmd())
	cmd.AddCommand(blockTipCmd())
	return cmd
}

func blockGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [hash]",
		Short: "print a stored block by its hex hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := core.ParseHash(args[0])
			if err != nil {
				return err
			}
			n, err := openNode(envFlag)
			if err != nil {
				return err
			}
			defer n.Close()

			printBlock(n, hash)
			return nil
		},
	}
}

func blockTipCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tip",
		Short: "print the current chain tip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(envFlag)
			if err != nil {
				return err
			}
			defer n.Close()

			tip := n.chain.Tip()
			printBlock(n, tip.Hash)
			return nil
		},
	}
}

func printBlock(n *nodeHandles, hash core.Hash) {
	b, ok, err := n.storage.GetBlockByHash(hash)
	if err != nil {
		fatalf("read block: %v", err)
	}
	if !ok {
		fmt.Printf("block %s not found (pruned or unknown)\n", hash.Hex())
		return
	}
	fmt.Printf("index:      %d\n", b.Index)
	fmt.Printf("hash:       %s\n", b.Hash.Hex())
	fmt.Printf("prev_hash:  %s\n", b.PrevHash.Hex())
	fmt.Printf("timestamp:  %d\n", b.TimestampMs)
	fmt.Printf("difficulty: %d\n", b.Difficulty)
	fmt.Printf("nonce:      %d\n", b.Nonce)
	fmt.Printf("state_root: %s\n", b.StateRoot.Hex())
	fmt.Printf("validator:  %s\n", b.ValidatorID)
	fmt.Printf("tx_count:   %d\n", len(b.Transactions))
}
