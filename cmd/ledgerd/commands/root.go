package commands

import (
	_ "net/http/pprof"

	"github.com/mosaicnetworks/ledgerdriver/src/node"
	"github.com/spf13/cobra"
)

// NewRootCmd returns the root command, which runs the node living in
// --base-directory.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:              "ledgerd",
		Short:            "ledger node",
		TraverseChildren: true,
		PreRunE:          loadConfig,
		RunE:             runNode,
	}

	cmd.PersistentFlags().String(flagBaseDirectory, _config.BaseDirectory, "Directory holding node.conf, keys and logs")
	cmd.Flags().String(flagLoggingLevel, _config.LoggingLevel, "DEBUG, INFO, WARN, ERROR")
	cmd.Flags().Bool(flagNoLocalShell, _config.NoLocalShell, "Do not start the interactive shell")

	return cmd
}

func loadConfig(cmd *cobra.Command, args []string) error {
	return bindFlagsLoadViper(cmd)
}

func runNode(cmd *cobra.Command, args []string) error {
	conf, err := loadNodeConfig()
	if err != nil {
		return err
	}

	logger := conf.Logger()
	serveDebug(logger)

	n := node.New(conf)
	if err := n.Start(); err != nil {
		logger.WithError(err).Error("Cannot start node")
		return err
	}

	onSignal(logger, func() { n.Stop() })

	n.Run()

	return n.Stop()
}
