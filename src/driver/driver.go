package driver

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mosaicnetworks/ledgerdriver/src/common"
	"github.com/mosaicnetworks/ledgerdriver/src/config"
	"github.com/mosaicnetworks/ledgerdriver/src/executor"
	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/mosaicnetworks/ledgerdriver/src/node"
	"github.com/mosaicnetworks/ledgerdriver/src/poll"
	"github.com/mosaicnetworks/ledgerdriver/src/ports"
	"github.com/mosaicnetworks/ledgerdriver/src/process"
	"github.com/mosaicnetworks/ledgerdriver/src/shutdown"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type state struct {
	processes []process.Process
	nodes     []*node.Node
}

// Driver runs one session of nodes. Create it with New, call Start before
// anything else, and Shutdown when done.
type Driver struct {
	cfg    *Config
	logger *logrus.Entry

	exec            *executor.Executor
	poller          *poll.Poller
	shutdownManager *shutdown.Manager

	networkMapAddress string
	networkMap        *future.Future[NodeHandle]

	rand  *common.Box[*rand.Rand]
	state *common.Box[state]
}

// New returns a Driver for cfg. Zero fields of cfg take their default value.
func New(cfg *Config) *Driver {
	def := DefaultConfig()
	if cfg.PortAllocation == nil {
		cfg.PortAllocation = def.PortAllocation
	}
	if cfg.DebugPortAllocation == nil {
		cfg.DebugPortAllocation = def.DebugPortAllocation
	}
	if cfg.DriverDirectory == "" {
		cfg.DriverDirectory = def.DriverDirectory
	}
	if cfg.NetworkMapStrategy == nil {
		cfg.NetworkMapStrategy = def.NetworkMapStrategy
	}
	if cfg.NodeBinary == "" {
		cfg.NodeBinary = def.NodeBinary
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = def.Clock
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}

	return &Driver{
		cfg:               cfg,
		logger:            cfg.Logger.WithField("prefix", "driver"),
		networkMapAddress: cfg.NetworkMapStrategy.address(cfg.PortAllocation),
		rand:              common.NewBox(rand.New(rand.NewSource(cfg.Clock.Now().UnixNano()))),
		state:             common.NewBox(state{}),
	}
}

// Start creates the executor and the shutdown manager, and starts the
// dedicated network map if the strategy asks for it.
func (d *Driver) Start() error {
	dir, err := filepath.Abs(d.cfg.DriverDirectory)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating driver directory: %w", err)
	}
	d.cfg.DriverDirectory = dir

	d.exec = executor.New(d.cfg.Workers, d.cfg.Clock, d.cfg.Logger.WithField("prefix", "driver-pool-thread"))
	d.poller = poll.NewPoller(d.exec, d.logger)
	d.shutdownManager = shutdown.NewManager(d.exec, d.logger)

	d.logger.WithFields(logrus.Fields{
		"directory":   dir,
		"in_process":  d.cfg.StartNodesInProcess,
		"debug":       d.cfg.IsDebug,
		"network_map": d.networkMapAddress,
	}).Info("Starting driver")

	if d.cfg.NetworkMapStrategy.StartDedicated() {
		d.networkMap = d.StartDedicatedNetworkMapService(nil)
	}

	return nil
}

// Shutdown releases everything the session acquired, newest first, then
// stops the executor. It may be called more than once.
func (d *Driver) Shutdown() {
	if d.shutdownManager != nil {
		d.shutdownManager.Shutdown()
	}
	if d.exec != nil {
		d.exec.Shutdown()
	}
}

// ShutdownManager returns the manager releasing the session's resources.
func (d *Driver) ShutdownManager() *shutdown.Manager {
	return d.shutdownManager
}

// Executor returns the executor running the driver's tasks.
func (d *Driver) Executor() *executor.Executor {
	return d.exec
}

// NetworkMapAddress is the p2p address of the network map.
func (d *Driver) NetworkMapAddress() string {
	return d.networkMapAddress
}

// NetworkMap is the handle of the dedicated network map, or nil if Start did
// not launch one.
func (d *Driver) NetworkMap() *future.Future[NodeHandle] {
	return d.networkMap
}

// BaseDirectory is the directory of the node called name.
func (d *Driver) BaseDirectory(name identity.Name) (string, error) {
	return config.BaseDirectory(d.cfg.DriverDirectory, name)
}

// PollUntilNonNull polls check until it returns a value. The poll is
// cancelled on Shutdown.
func PollUntilNonNull[A any](d *Driver, name string, check poll.Check[A]) *future.Future[A] {
	f := poll.Poll(d.poller, name, d.cfg.PollInterval, poll.DefaultWarnCount, check)
	err := d.shutdownManager.TryRegisterShutdown(func() error {
		f.Cancel()
		return nil
	})
	if err != nil {
		f.Cancel()
		return future.Failed[A](err)
	}
	return f
}

// PollUntilTrue polls check until it returns true. The poll is cancelled on
// Shutdown.
func (d *Driver) PollUntilTrue(name string, check func() (bool, error)) *future.Future[struct{}] {
	return PollUntilNonNull(d, name, func() (struct{}, bool, error) {
		ok, err := check()
		return struct{}{}, ok, err
	})
}

// WaitForAllNodesToFinish blocks until every node started so far has exited.
func (d *Driver) WaitForAllNodesToFinish() error {
	var g errgroup.Group

	d.state.Locked(func(s *state) {
		for _, p := range s.processes {
			g.Go(p.Wait)
		}
		for _, n := range s.nodes {
			n := n
			g.Go(func() error {
				<-n.Done()
				return nil
			})
		}
	})

	return g.Wait()
}

func (d *Driver) synthesiseName(p2pAddress string) (identity.Name, error) {
	_, port, err := ports.SplitHostPort(p2pAddress)
	if err != nil {
		return "", err
	}
	f := common.LockedGet(d.rand, func(r **rand.Rand) identity.Fixture {
		return identity.RandomFixture(*r)
	})
	return identity.DevName(fmt.Sprintf("%s-%d", f.Name.CommonName(), port)), nil
}

// Run starts a driver for cfg, runs dsl against it and shuts the driver down,
// whatever happens. An interrupt signal also shuts the driver down.
func Run(cfg *Config, dsl func(*Driver) error) (err error) {
	d := New(cfg)
	defer d.Shutdown()

	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("panic", r).Error("Driver shutting down because of exception")
			d.Shutdown()
			panic(r)
		}
		if err != nil {
			d.logger.WithError(err).Error("Driver shutting down because of exception")
		}
	}()

	if err := d.Start(); err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case sig := <-sigs:
			// a second signal gets the default behaviour
			signal.Stop(sigs)
			d.logger.WithField("signal", sig.String()).Warn("Interrupted, shutting down")
			d.Shutdown()
		case <-done:
		}
	}()

	return dsl(d)
}
