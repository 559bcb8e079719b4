// Command hbnode runs and administers a single hb-core validator: chain
// management, the mempool, the hardware deferral queue, and the P2P
// listener that disseminates transactions and blocks to peers.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var envFlag string

func main() {
	root := &cobra.Command{
		Use:   "hbnode",
		Short: "hb-core validator node and CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadEnvFile(".env")
		},
	}
	root.PersistentFlags().StringVar(&envFlag, "env", "", "configuration environment to merge over default.yaml")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(txCmd())
	root.AddCommand(accountCmd())
	root.AddCommand(blockCmd())
	root.AddCommand(mempoolCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
