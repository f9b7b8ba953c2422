package commands

import (
	"fmt"

	"github.com/mosaicnetworks/ledgerdriver/src/version"
	"github.com/spf13/cobra"
)

//RootCmd is the root command of the driver
var RootCmd = &cobra.Command{
	Use:              "driver",
	Short:            "Boot local networks of ledger nodes",
	TraverseChildren: true,
}

// VersionCmd displays the version of the driver being used
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}
