package driver

import (
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/mosaicnetworks/ledgerdriver/src/poll"
	"github.com/mosaicnetworks/ledgerdriver/src/ports"
	"github.com/sirupsen/logrus"
)

// Defaults of Config.
const (
	DefaultStartPort      = 10000
	DefaultDebugStartPort = 5005
	DefaultWorkers        = 2
	DefaultNodeBinary     = "ledgerd"
	DefaultBuildDirectory = "build"
)

// Config holds the settings of a driver session.
type Config struct {
	// PortAllocation hands out the p2p, rpc, web and cluster addresses.
	PortAllocation ports.Allocation

	// DebugPortAllocation hands out debug ports when IsDebug is set.
	DebugPortAllocation ports.Allocation

	// SystemProperties are passed to every child process.
	SystemProperties map[string]string

	// DriverDirectory contains the base directory of every node.
	DriverDirectory string

	// UseTestClock is written into every node.conf.
	UseTestClock bool

	// IsDebug gives child processes a debug port and DEBUG logging.
	IsDebug bool

	// NetworkMapStrategy decides where the network map runs.
	NetworkMapStrategy NetworkMapStrategy

	// StartNodesInProcess is the default of NodeParams.StartInSameProcess.
	StartNodesInProcess bool

	// NodeBinary is the ledgerd executable launched for out-of-process
	// nodes and web servers.
	NodeBinary string

	// PluginDirectory, when set, is searched for plugins by every child
	// process after the node's own plugins directory.
	PluginDirectory string

	// Workers bounds the number of concurrent driver tasks.
	Workers int

	// PollInterval spaces the attempts of the driver's polls.
	PollInterval time.Duration

	Clock  clock.Clock
	Logger *logrus.Logger
}

// DefaultConfig returns a Config with default values, placing node
// directories under build/<UTC timestamp>.
func DefaultConfig() *Config {
	return &Config{
		PortAllocation:      ports.NewIncremental(DefaultStartPort),
		DebugPortAllocation: ports.NewIncremental(DefaultDebugStartPort),
		SystemProperties:    map[string]string{},
		DriverDirectory:     filepath.Join(DefaultBuildDirectory, TimestampDirectoryName(time.Now())),
		NetworkMapStrategy:  DedicatedNetworkMap{StartAutomatically: true},
		NodeBinary:          DefaultNodeBinary,
		Workers:             DefaultWorkers,
		PollInterval:        poll.DefaultInterval,
		Clock:               clock.New(),
		Logger:              logrus.New(),
	}
}

// TimestampDirectoryName formats t, in UTC, as yyyyMMddHHmmss.
func TimestampDirectoryName(t time.Time) string {
	return t.UTC().Format("20060102150405")
}

// NetworkMapStrategy decides whether the driver starts a dedicated network
// map, or whether one of the started nodes acts as the network map.
type NetworkMapStrategy interface {
	// StartDedicated reports whether Start launches the network map.
	StartDedicated() bool

	// LegalName is the name of the network map node.
	LegalName() identity.Name

	address(alloc ports.Allocation) string
}

// DedicatedNetworkMap runs the network map on its own node, named after the
// DummyMap fixture.
type DedicatedNetworkMap struct {
	StartAutomatically bool
}

// StartDedicated implements NetworkMapStrategy.
func (s DedicatedNetworkMap) StartDedicated() bool { return s.StartAutomatically }

// LegalName implements NetworkMapStrategy.
func (DedicatedNetworkMap) LegalName() identity.Name { return identity.DummyMap.Name }

func (DedicatedNetworkMap) address(alloc ports.Allocation) string {
	return ports.NextHostAndPort(alloc)
}

// NominatedNetworkMap makes the node called Name, listening on Address, the
// network map. That node is started like any other.
type NominatedNetworkMap struct {
	Name    identity.Name
	Address string
}

// StartDedicated implements NetworkMapStrategy.
func (NominatedNetworkMap) StartDedicated() bool { return false }

// LegalName implements NetworkMapStrategy.
func (s NominatedNetworkMap) LegalName() identity.Name { return s.Name }

func (s NominatedNetworkMap) address(ports.Allocation) string { return s.Address }
