package commands

import (
	"context"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/webserver"
	"github.com/spf13/cobra"
)

// webserverStopTimeout bounds the graceful stop of the HTTP server.
const webserverStopTimeout = 5 * time.Second

// NewWebserverCmd returns the command running the web server of the node in
// --base-directory.
func NewWebserverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "webserver",
		Short:   "Run the web server of a node",
		PreRunE: loadConfig,
		RunE:    runWebserver,
	}
	cmd.Flags().String(flagLoggingLevel, _config.LoggingLevel, "DEBUG, INFO, WARN, ERROR")
	return cmd
}

func runWebserver(cmd *cobra.Command, args []string) error {
	conf, err := loadNodeConfig()
	if err != nil {
		return err
	}

	logger := conf.Logger().WithField("component", "web")
	serveDebug(logger)

	ws := webserver.New(conf, logger)
	if err := ws.Start(); err != nil {
		logger.WithError(err).Error("Cannot start web server")
		return err
	}

	done := make(chan struct{})
	onSignal(logger, func() { close(done) })
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), webserverStopTimeout)
	defer cancel()

	return ws.Stop(ctx)
}
