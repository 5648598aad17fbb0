package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"os"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "securerx-node",
		Short: "SecureRx ledger node",
		Long: `securerx-node runs one node of the SecureRx prescription ledger.
It serves the HTTP API, and adopts the chain of any peer that holds a longer one.
Configuration comes from the environment (NODE_ID, API_ADDR, PEERS, ...) and an optional securerx.yaml file.`,
		SilenceUsage: true,
		RunE:         runStart,
	}
	addStartFlags(rootCmd)

	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
