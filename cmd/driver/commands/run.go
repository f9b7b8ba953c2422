package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/mosaicnetworks/ledgerdriver/src/common"
	"github.com/mosaicnetworks/ledgerdriver/src/driver"
	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"github.com/mosaicnetworks/ledgerdriver/src/ports"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var config = NewDefaultCLIConfig()

//NewRunCmd returns the command that boots a network
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run a network map, a notary cluster and some nodes",
		PreRunE: loadConfig,
		RunE:    runNetwork,
	}

	AddRunFlags(cmd)

	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func driverConfig() *driver.Config {
	cfg := driver.DefaultConfig()

	if config.Directory != "" {
		cfg.DriverDirectory = config.Directory
	}
	cfg.PortAllocation = ports.NewIncremental(config.StartPort)
	cfg.StartNodesInProcess = config.InProcess
	cfg.IsDebug = config.Debug
	cfg.NodeBinary = config.NodeBinary

	logger := logrus.New()
	logger.Level = common.LogLevel(config.LogLevel)
	logger.Formatter = new(prefixed.TextFormatter)
	cfg.Logger = logger

	return cfg
}

func runNetwork(cmd *cobra.Command, args []string) error {
	return driver.Run(driverConfig(), func(d *driver.Driver) error {
		var handles []driver.NodeHandle

		if nm := d.NetworkMap(); nm != nil {
			h, err := nm.Wait()
			if err != nil {
				return err
			}
			handles = append(handles, h)
		}

		if config.NbNotaries > 0 {
			cluster, err := d.StartNotaryCluster(driver.ClusterParams{ClusterSize: config.NbNotaries}).Wait()
			if err != nil {
				return err
			}
			handles = append(handles, cluster.Members...)
		}

		starting := make([]*future.Future[driver.NodeHandle], 0, config.NbNodes)
		for i := 0; i < config.NbNodes; i++ {
			starting = append(starting, d.StartNode(driver.NodeParams{}))
		}
		nodes, err := future.All(starting).Wait()
		if err != nil {
			return err
		}
		handles = append(handles, nodes...)

		webservers := map[driver.NodeHandle]string{}
		if config.Webservers {
			for _, h := range handles {
				ws, err := d.StartWebserver(h).Wait()
				if err != nil {
					return err
				}
				webservers[h] = ws.ListenAddress
			}
		}

		printNetwork(handles, webservers)

		if err := d.WaitForAllNodesToFinish(); err != nil && !d.ShutdownManager().IsShutdown() {
			return err
		}
		return nil
	})
}

func printNetwork(handles []driver.NodeHandle, webservers map[driver.NodeHandle]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tP2P\tRPC\tWEB\tSERVICES")
	for _, h := range handles {
		conf := h.Configuration()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			conf.LegalName().CommonName(),
			conf.P2PAddress,
			conf.RPCAddress,
			webservers[h],
			services(h))
	}
	w.Flush()
}

func services(h driver.NodeHandle) string {
	s := ""
	for i, info := range h.NodeInfo().AdvertisedServices {
		if i > 0 {
			s += ","
		}
		s += info.Type
	}
	return s
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("nodes", config.NbNodes, "Amount of nodes to spawn, besides the network map and the notaries")
	cmd.Flags().Int("notaries", config.NbNotaries, "Size of the notary cluster, 0 for none")
	cmd.Flags().Bool("in-process", config.InProcess, "Run the nodes inside this process")
	cmd.Flags().Bool("webservers", config.Webservers, "Start a web server for every node")
	cmd.Flags().Bool("debug", config.Debug, "Give every process a debug port and DEBUG logging")
	cmd.Flags().String("dir", config.Directory, "Directory of the nodes, defaults to build/<timestamp>")
	cmd.Flags().String("node-binary", config.NodeBinary, "ledgerd executable")
	cmd.Flags().Int("start-port", config.StartPort, "First port handed out to nodes")
	cmd.Flags().String("log", config.LogLevel, "debug, info, warn, error, fatal, panic")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	// cmd.Flags() includes flags from this command and all persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	return viper.Unmarshal(config)
}
