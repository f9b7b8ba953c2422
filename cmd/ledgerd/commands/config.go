package commands

import (
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mosaicnetworks/ledgerdriver/src/config"
	"github.com/mosaicnetworks/ledgerdriver/src/process"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables read by ledgerd.
const EnvPrefix = "LEDGER"

// Flag names shared by the commands.
const (
	flagBaseDirectory = "base-directory"
	flagLoggingLevel  = "logging-level"
	flagNoLocalShell  = "no-local-shell"
)

//CLIConfig contains the settings of a ledgerd invocation
type CLIConfig struct {
	BaseDirectory string `mapstructure:"base-directory"`
	LoggingLevel  string `mapstructure:"logging-level"`
	NoLocalShell  bool   `mapstructure:"no-local-shell"`

	// runtime parameters handed over by the driver
	Name      string `mapstructure:"name"`
	DebugPort int    `mapstructure:"debug_port"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		BaseDirectory: ".",
		LoggingLevel:  "INFO",
	}
}

var _config = NewDefaultCLIConfig()

// Bind all flags and the LEDGER_ environment variables into viper, then
// unmarshal them.
func bindFlagsLoadViper(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	for _, key := range []string{"name", "debug_port"} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	return v.Unmarshal(_config)
}

// loadNodeConfig reads node.conf from the base directory and builds the
// logger of the process: console output on stdout, errors appended to
// logs/error.log.
func loadNodeConfig() (*config.NodeConfig, error) {
	v, err := config.Load(_config.BaseDirectory, false, nil)
	if err != nil {
		return nil, err
	}

	conf, err := config.Parse(v)
	if err != nil {
		return nil, err
	}

	logger := config.Logger(_config.LoggingLevel, conf.ErrorLogPath())
	logger.Out = os.Stdout
	conf.SetLogger(logger)

	conf.Logger().WithFields(logrus.Fields{
		"base_directory": conf.BaseDirectory,
		"logging_level":  _config.LoggingLevel,
		"no_local_shell": _config.NoLocalShell,
		"name":           _config.Name,
		"debug_port":     _config.DebugPort,
		"properties":     systemProperties(),
	}).Debug("RUN")

	return conf, nil
}

// systemProperties collects the LEDGER_PROP_ variables set by the driver.
func systemProperties() map[string]string {
	props := map[string]string{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, process.EnvPropPrefix) {
			props[strings.TrimPrefix(k, process.EnvPropPrefix)] = v
		}
	}
	return props
}

// serveDebug exposes pprof on the debug port, if one was given.
func serveDebug(logger *logrus.Entry) {
	if _config.DebugPort == 0 {
		return
	}

	addr := "localhost:" + strconv.Itoa(_config.DebugPort)
	go func() {
		logger.WithField("address", addr).Info("Serving pprof")
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.WithError(err).Error("pprof server stopped")
		}
	}()
}

// onSignal calls stop once the process is asked to terminate.
func onSignal(logger *logrus.Entry, stop func()) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-c
		logger.WithField("signal", sig.String()).Info("Stopping")
		stop()
	}()
}
