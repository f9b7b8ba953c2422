package main

import (
	"os"

	cmd "github.com/mosaicnetworks/ledgerdriver/cmd/ledgerd/commands"
)

func main() {
	rootCmd := cmd.NewRootCmd()

	rootCmd.AddCommand(
		cmd.VersionCmd,
		cmd.NewKeygenCmd(),
		cmd.NewWebserverCmd())

	//Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
