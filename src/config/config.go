package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/common"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// ConfigFile is the name of the node configuration file in the base
	// directory.
	ConfigFile = "node.conf"

	// DefaultKeyfile is the name of the file containing the node's private key.
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the name of the folder containing the Badger
	// database of a network map node.
	DefaultBadgerFile = "badger_db"

	// LogsDir is the folder, inside the base directory, holding log files.
	LogsDir = "logs"

	// ErrorLogFile receives error level log entries.
	ErrorLogFile = "error.log"

	// OutputLogFile receives the standard output of a node process.
	OutputLogFile = "output.log"

	// PluginsDir is the folder, inside the base directory, searched for
	// node plugins.
	PluginsDir = "plugins"
)

// Keys of node.conf.
const (
	KeyMyLegalName               = "myLegalName"
	KeyBaseDirectory             = "baseDirectory"
	KeyP2PAddress                = "p2pAddress"
	KeyRPCAddress                = "rpcAddress"
	KeyWebAddress                = "webAddress"
	KeyExtraAdvertisedServiceIds = "extraAdvertisedServiceIds"
	KeyNetworkMapService         = "networkMapService"
	KeyUseTestClock              = "useTestClock"
	KeyRPCUsers                  = "rpcUsers"
	KeyVerifierType              = "verifierType"
	KeyNotaryNodeAddress         = "notaryNodeAddress"
	KeyNotaryClusterAddresses    = "notaryClusterAddresses"
	KeyUseHTTPS                  = "useHTTPS"
	KeyDevMode                   = "devMode"
	KeyStore                     = "store"
	KeyLogLevel                  = "log"
	KeyTCPTimeout                = "timeout"
	KeyRegistrationInterval      = "registrationInterval"
)

// Default configuration values.
const (
	DefaultLogLevel             = "info"
	DefaultTCPTimeout           = 1000 * time.Millisecond
	DefaultRegistrationInterval = 500 * time.Millisecond
	DefaultVerifierType         = InMemory
	DefaultDevMode              = true
)

// VerifierType selects where transactions are verified.
type VerifierType string

// Verifier types.
const (
	InMemory     VerifierType = "InMemory"
	OutOfProcess VerifierType = "OutOfProcess"
)

// User is an account allowed to open a control session on the node.
type User struct {
	Username    string   `mapstructure:"username" toml:"username" json:"username"`
	Password    string   `mapstructure:"password" toml:"password" json:"password"`
	Permissions []string `mapstructure:"permissions" toml:"permissions" json:"permissions"`
}

// ToMap renders u the way it is stored in node.conf.
func (u User) ToMap() map[string]interface{} {
	permissions := u.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	return map[string]interface{}{
		"username":    u.Username,
		"password":    u.Password,
		"permissions": permissions,
	}
}

// NetworkMap locates the network map service a node registers with.
type NetworkMap struct {
	Address   string `mapstructure:"address"`
	LegalName string `mapstructure:"legalName"`
}

// ToMap renders m the way it is stored in node.conf.
func (m NetworkMap) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"address":   m.Address,
		"legalName": m.LegalName,
	}
}

// NodeConfig contains all the configuration properties of a ledger node.
type NodeConfig struct {
	// MyLegalName is the X.500 name of the node.
	MyLegalName string `mapstructure:"myLegalName"`

	// BaseDirectory holds node.conf, keys, logs and the database.
	BaseDirectory string `mapstructure:"baseDirectory"`

	// P2PAddress is the host:port peers and the network map talk to.
	P2PAddress string `mapstructure:"p2pAddress"`

	// RPCAddress is the host:port of the control session.
	RPCAddress string `mapstructure:"rpcAddress"`

	// WebAddress is the host:port of the companion web server.
	WebAddress string `mapstructure:"webAddress"`

	// ExtraAdvertisedServiceIds are advertised services in "type|name" form.
	ExtraAdvertisedServiceIds []string `mapstructure:"extraAdvertisedServiceIds"`

	// NetworkMapService is nil on the node that is itself the network map.
	NetworkMapService *NetworkMap `mapstructure:"networkMapService"`

	// UseTestClock makes the node run on a test clock.
	UseTestClock bool `mapstructure:"useTestClock"`

	// RPCUsers may log into the control session.
	RPCUsers []User `mapstructure:"rpcUsers"`

	// VerifierType selects in-memory or out-of-process verification.
	VerifierType VerifierType `mapstructure:"verifierType"`

	// NotaryNodeAddress is the cluster address of a notary cluster member.
	NotaryNodeAddress string `mapstructure:"notaryNodeAddress"`

	// NotaryClusterAddresses is empty on the cluster seed, and holds the
	// seed's cluster address on the other members.
	NotaryClusterAddresses []string `mapstructure:"notaryClusterAddresses"`

	// UseHTTPS makes the web server answer on https.
	UseHTTPS bool `mapstructure:"useHTTPS"`

	// DevMode relaxes checks that only make sense in production.
	DevMode bool `mapstructure:"devMode"`

	// Store activates persistent storage of the network map registry.
	Store bool `mapstructure:"store"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// TCPTimeout is the timeout of peer-to-peer connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// RegistrationInterval spaces network map registration attempts.
	RegistrationInterval time.Duration `mapstructure:"registrationInterval"`

	logger *logrus.Logger
}

// Defaults returns the default value of every optional node.conf key.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		KeyVerifierType:         string(DefaultVerifierType),
		KeyDevMode:              DefaultDevMode,
		KeyLogLevel:             DefaultLogLevel,
		KeyTCPTimeout:           DefaultTCPTimeout,
		KeyRegistrationInterval: DefaultRegistrationInterval,
	}
}

// NewTestConfig returns a config with default values and a logger writing to
// the test output.
func NewTestConfig(t testing.TB, level logrus.Level) *NodeConfig {
	return &NodeConfig{
		VerifierType:         DefaultVerifierType,
		DevMode:              DefaultDevMode,
		LogLevel:             DefaultLogLevel,
		TCPTimeout:           DefaultTCPTimeout,
		RegistrationInterval: DefaultRegistrationInterval,
		logger:               common.NewTestLogger(t, level),
	}
}

// LegalName returns MyLegalName as an identity.Name.
func (c *NodeConfig) LegalName() identity.Name {
	return identity.Name(c.MyLegalName)
}

// IsNetworkMap reports whether this node hosts the network map.
func (c *NodeConfig) IsNetworkMap() bool {
	return c.NetworkMapService == nil
}

// IsNotary reports whether the node is a member of a notary cluster.
func (c *NodeConfig) IsNotary() bool {
	return c.NotaryNodeAddress != ""
}

// AdvertisedServices parses ExtraAdvertisedServiceIds.
func (c *NodeConfig) AdvertisedServices() ([]identity.ServiceInfo, error) {
	services := make([]identity.ServiceInfo, 0, len(c.ExtraAdvertisedServiceIds))
	for _, s := range c.ExtraAdvertisedServiceIds {
		info, err := identity.ParseServiceInfo(s)
		if err != nil {
			return nil, fmt.Errorf("advertised service %q: %w", s, err)
		}
		services = append(services, info)
	}
	return services, nil
}

// Keyfile returns the full path of the file containing the private key.
func (c *NodeConfig) Keyfile() string {
	return filepath.Join(c.BaseDirectory, DefaultKeyfile)
}

// DatabaseDir returns the directory of the Badger database.
func (c *NodeConfig) DatabaseDir() string {
	return filepath.Join(c.BaseDirectory, DefaultBadgerFile)
}

// ErrorLogPath returns the file receiving error level log entries.
func (c *NodeConfig) ErrorLogPath() string {
	return filepath.Join(c.BaseDirectory, LogsDir, ErrorLogFile)
}

// OutputLogPath returns the file receiving the output of a node process.
func (c *NodeConfig) OutputLogPath() string {
	return filepath.Join(c.BaseDirectory, LogsDir, OutputLogFile)
}

// PluginsDirectory returns the node's own plugin folder.
func (c *NodeConfig) PluginsDirectory() string {
	return filepath.Join(c.BaseDirectory, PluginsDir)
}

// SetLogger makes c hand out entries of logger.
func (c *NodeConfig) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// Logger returns a formatted logrus Entry, with prefix set to the node's
// common name.
func (c *NodeConfig) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = Logger(c.LogLevel, c.ErrorLogPath())
	}
	return c.logger.WithField("prefix", c.LegalName().CommonName())
}

// Logger builds a logger writing to stderr through the prefixed formatter.
// When errorLogPath is set, error entries are also appended to that file.
func Logger(level string, errorLogPath string) *logrus.Logger {
	logger := logrus.New()
	logger.Level = common.LogLevel(level)
	logger.Formatter = new(prefixed.TextFormatter)

	if errorLogPath == "" {
		return logger
	}

	if err := os.MkdirAll(filepath.Dir(errorLogPath), 0755); err != nil {
		logger.WithError(err).Info("Failed to create logs directory, using default stderr")
		return logger
	}

	logger.Hooks.Add(lfshook.NewHook(
		lfshook.PathMap{
			logrus.ErrorLevel: errorLogPath,
			logrus.FatalLevel: errorLogPath,
			logrus.PanicLevel: errorLogPath,
		},
		&logrus.TextFormatter{},
	))

	return logger
}

// DirectoryName derives a directory name from a legal name: its common name
// with all whitespace removed.
func DirectoryName(legalName identity.Name) string {
	return strings.Join(strings.Fields(legalName.CommonName()), "")
}
