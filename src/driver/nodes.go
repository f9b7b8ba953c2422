package driver

import (
	"fmt"
	"strings"

	"github.com/mosaicnetworks/ledgerdriver/src/config"
	"github.com/mosaicnetworks/ledgerdriver/src/executor"
	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/mosaicnetworks/ledgerdriver/src/node"
	"github.com/mosaicnetworks/ledgerdriver/src/poll"
	"github.com/mosaicnetworks/ledgerdriver/src/ports"
	"github.com/mosaicnetworks/ledgerdriver/src/process"
	"github.com/mosaicnetworks/ledgerdriver/src/rpc"
	"github.com/mosaicnetworks/ledgerdriver/src/shutdown"
	"github.com/sirupsen/logrus"
)

// Command line flags understood by ledgerd.
const (
	FlagBaseDirectory = "--base-directory"
	FlagLoggingLevel  = "--logging-level"
	FlagNoLocalShell  = "--no-local-shell"
)

// NodeParams describes a node to start with StartNode.
type NodeParams struct {
	// Name is the legal name. Empty picks a random test name suffixed with
	// the p2p port.
	Name identity.Name

	AdvertisedServices []identity.ServiceInfo
	RPCUsers           []config.User

	// VerifierType defaults to config.InMemory.
	VerifierType config.VerifierType

	// CustomOverrides are node.conf settings that win over the computed
	// ones.
	CustomOverrides map[string]interface{}

	// StartInSameProcess overrides Config.StartNodesInProcess when set.
	StartInSameProcess *bool
}

// NodeSpec describes a pre-configured node for StartNodes. Empty addresses
// are allocated.
type NodeSpec struct {
	Name       identity.Name
	P2PAddress string
	RPCAddress string
	WebAddress string

	AdvertisedServices []identity.ServiceInfo
	RPCUsers           []config.User

	// NotaryNodeAddress and NotaryClusterAddresses configure notary cluster
	// members.
	NotaryNodeAddress      string
	NotaryClusterAddresses []string

	Config map[string]interface{}
}

// StartNode allocates the addresses of a node, writes its node.conf and
// starts it. The handle is ready once the node opened its control session and
// registered with the network map.
func (d *Driver) StartNode(params NodeParams) *future.Future[NodeHandle] {
	p2pAddress := ports.NextHostAndPort(d.cfg.PortAllocation)
	rpcAddress := ports.NextHostAndPort(d.cfg.PortAllocation)
	webAddress := ports.NextHostAndPort(d.cfg.PortAllocation)

	name := params.Name
	if name == "" {
		var err error
		if name, err = d.synthesiseName(p2pAddress); err != nil {
			return future.Failed[NodeHandle](err)
		}
	}

	verifierType := params.VerifierType
	if verifierType == "" {
		verifierType = config.DefaultVerifierType
	}

	overrides := d.nodeSettings(name, p2pAddress, rpcAddress, webAddress, params.AdvertisedServices, params.RPCUsers)
	overrides[config.KeyVerifierType] = string(verifierType)
	for k, v := range params.CustomOverrides {
		overrides[k] = v
	}

	return d.startNodeInternal(overrides, webAddress, params.StartInSameProcess)
}

// StartNodes starts pre-configured nodes, in order. With a NominatedNetworkMap
// one of them is expected to be the network map.
func (d *Driver) StartNodes(specs []NodeSpec) []*future.Future[NodeHandle] {
	handles := make([]*future.Future[NodeHandle], 0, len(specs))
	for _, spec := range specs {
		p2pAddress := spec.P2PAddress
		if p2pAddress == "" {
			if spec.Name == d.cfg.NetworkMapStrategy.LegalName() {
				p2pAddress = d.networkMapAddress
			} else {
				p2pAddress = ports.NextHostAndPort(d.cfg.PortAllocation)
			}
		}
		rpcAddress := spec.RPCAddress
		if rpcAddress == "" {
			rpcAddress = ports.NextHostAndPort(d.cfg.PortAllocation)
		}
		webAddress := spec.WebAddress
		if webAddress == "" {
			webAddress = ports.NextHostAndPort(d.cfg.PortAllocation)
		}

		overrides := d.nodeSettings(spec.Name, p2pAddress, rpcAddress, webAddress, spec.AdvertisedServices, spec.RPCUsers)
		if spec.NotaryNodeAddress != "" {
			overrides[config.KeyNotaryNodeAddress] = spec.NotaryNodeAddress
		}
		if len(spec.NotaryClusterAddresses) > 0 {
			overrides[config.KeyNotaryClusterAddresses] = spec.NotaryClusterAddresses
		}
		for k, v := range spec.Config {
			overrides[k] = v
		}

		handles = append(handles, d.startNodeInternal(overrides, webAddress, nil))
	}
	return handles
}

// StartDedicatedNetworkMapService starts the network map node at the address
// chosen when the driver was created. It must be called at most once per
// session.
func (d *Driver) StartDedicatedNetworkMapService(startInProcess *bool) *future.Future[NodeHandle] {
	rpcAddress := ports.NextHostAndPort(d.cfg.PortAllocation)
	webAddress := ports.NextHostAndPort(d.cfg.PortAllocation)

	name := d.cfg.NetworkMapStrategy.LegalName()

	overrides := map[string]interface{}{
		config.KeyMyLegalName:               string(name),
		config.KeyP2PAddress:                d.networkMapAddress,
		config.KeyRPCAddress:                rpcAddress,
		config.KeyWebAddress:                webAddress,
		config.KeyUseTestClock:              d.cfg.UseTestClock,
		config.KeyExtraAdvertisedServiceIds: []string{identity.ServiceInfo{Type: identity.NetworkMapService}.String()},
	}

	return d.startNodeInternal(overrides, webAddress, startInProcess)
}

func (d *Driver) nodeSettings(name identity.Name, p2pAddress, rpcAddress, webAddress string, services []identity.ServiceInfo, users []config.User) map[string]interface{} {
	serviceIds := make([]string, 0, len(services))
	for _, s := range services {
		serviceIds = append(serviceIds, s.String())
	}

	rpcUsers := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		rpcUsers = append(rpcUsers, u.ToMap())
	}

	settings := map[string]interface{}{
		config.KeyMyLegalName:               string(name),
		config.KeyP2PAddress:                p2pAddress,
		config.KeyRPCAddress:                rpcAddress,
		config.KeyWebAddress:                webAddress,
		config.KeyExtraAdvertisedServiceIds: serviceIds,
		config.KeyUseTestClock:              d.cfg.UseTestClock,
		config.KeyRPCUsers:                  rpcUsers,
		config.KeyVerifierType:              string(config.DefaultVerifierType),
	}

	if nm := d.networkMapLookup(name); nm != nil {
		settings[config.KeyNetworkMapService] = nm.ToMap()
	}

	return settings
}

// networkMapLookup returns the network map entry of the node called name, nil
// for the network map itself.
func (d *Driver) networkMapLookup(name identity.Name) *config.NetworkMap {
	mapName := d.cfg.NetworkMapStrategy.LegalName()
	if name == mapName {
		return nil
	}
	return &config.NetworkMap{
		Address:   d.networkMapAddress,
		LegalName: string(mapName),
	}
}

func (d *Driver) startNodeInternal(overrides map[string]interface{}, webAddress string, startInProcess *bool) *future.Future[NodeHandle] {
	name, _ := overrides[config.KeyMyLegalName].(string)

	baseDirectory, err := d.BaseDirectory(identity.Name(name))
	if err != nil {
		return future.Failed[NodeHandle](err)
	}

	if err := config.Write(baseDirectory, overrides); err != nil {
		return future.Failed[NodeHandle](fmt.Errorf("writing configuration of %s: %w", name, err))
	}

	v, err := config.Load(baseDirectory, false, nil)
	if err != nil {
		return future.Failed[NodeHandle](err)
	}
	conf, err := config.Parse(v)
	if err != nil {
		return future.Failed[NodeHandle](err)
	}

	inProcess := d.cfg.StartNodesInProcess
	if startInProcess != nil {
		inProcess = *startInProcess
	}

	if inProcess {
		return d.startInProcess(conf, webAddress)
	}
	return d.startOutOfProcess(conf, webAddress)
}

func (d *Driver) startInProcess(conf *config.NodeConfig, webAddress string) *future.Future[NodeHandle] {
	conf.SetLogger(d.cfg.Logger)

	nodeFuture := onShutdown(d, executor.SubmitFuture(d.exec, func() (*node.Node, error) {
		n := node.New(conf)
		if err := n.Start(); err != nil {
			return nil, err
		}
		n.RunAsync()

		d.state.Locked(func(s *state) { s.nodes = append(s.nodes, n) })

		return n, nil
	}), (*node.Node).Stop)

	return future.FlatMap(nodeFuture, func(n *node.Node) *future.Future[NodeHandle] {
		connected := d.establishRPC(conf, nil)
		return future.FlatMap(connected, func(conn *rpc.Connection) *future.Future[NodeHandle] {
			return future.Map(d.awaitRegistration(conf, conn, nil), func(info identity.NodeInfo) (NodeHandle, error) {
				return &InProcessHandle{
					nodeHandle: nodeHandle{info: info, conn: conn, conf: conf, webAddress: webAddress},
					node:       n,
				}, nil
			})
		})
	})
}

func (d *Driver) startOutOfProcess(conf *config.NodeConfig, webAddress string) *future.Future[NodeHandle] {
	debugPort := 0
	if d.cfg.IsDebug {
		debugPort = d.cfg.DebugPortAllocation.NextPort()
	}

	logLevel := "INFO"
	if d.cfg.IsDebug {
		logLevel = "DEBUG"
	}

	spec := process.Spec{
		Path: d.cfg.NodeBinary,
		Args: []string{
			FlagBaseDirectory + "=" + conf.BaseDirectory,
			FlagLoggingLevel + "=" + logLevel,
			FlagNoLocalShell,
		},
		Name:              conf.LegalName().CommonName(),
		DebugPort:         debugPort,
		Properties:        d.cfg.SystemProperties,
		PluginDirectories: d.pluginDirectories(conf),
		ErrorLogPath:      conf.ErrorLogPath(),
		OutputLogPath:     conf.OutputLogPath(),
		WorkingDirectory:  conf.BaseDirectory,
	}

	processFuture := d.registerProcess(d.launch(spec))

	return future.FlatMap(processFuture, func(p process.Process) *future.Future[NodeHandle] {
		connected := d.establishRPC(conf, p)
		return future.FlatMap(connected, func(conn *rpc.Connection) *future.Future[NodeHandle] {
			return future.Map(d.awaitRegistration(conf, conn, p), func(info identity.NodeInfo) (NodeHandle, error) {
				return &OutOfProcessHandle{
					nodeHandle: nodeHandle{info: info, conn: conn, conf: conf, webAddress: webAddress},
					debugPort:  debugPort,
					process:    p,
				}, nil
			})
		})
	})
}

func (d *Driver) launch(spec process.Spec) *future.Future[process.Process] {
	return executor.SubmitFuture(d.exec, func() (process.Process, error) {
		p, err := process.Start(spec, d.logger.WithField("process", spec.Name))
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// pluginDirectories lists the plugin folders of the node behind conf.
func (d *Driver) pluginDirectories(conf *config.NodeConfig) []string {
	dirs := []string{conf.PluginsDirectory()}
	if d.cfg.PluginDirectory != "" {
		dirs = append(dirs, d.cfg.PluginDirectory)
	}
	return dirs
}

// registerProcess makes Shutdown stop the process and WaitForAllNodesToFinish
// wait for it.
func (d *Driver) registerProcess(f *future.Future[process.Process]) *future.Future[process.Process] {
	return future.Map(onShutdown(d, f, d.shutdownManager.StopProcess), func(p process.Process) (process.Process, error) {
		d.state.Locked(func(s *state) { s.processes = append(s.processes, p) })
		return p, nil
	})
}

// onShutdown registers release as the teardown of the resource f acquires.
// Once the session is shutting down nothing can be registered: the resource
// is released as soon as it exists and the result fails with
// shutdown.ErrShutdown.
func onShutdown[T any](d *Driver, f *future.Future[T], release func(T) error) *future.Future[T] {
	err := d.shutdownManager.TryRegisterShutdownFuture(future.Map(f, func(v T) (shutdown.Action, error) {
		return func() error { return release(v) }, nil
	}))
	if err == nil {
		return f
	}

	return future.Map(f, func(v T) (T, error) {
		if rerr := release(v); rerr != nil {
			d.logger.WithError(rerr).Debug("Releasing resource acquired during shutdown")
		}
		var zero T
		return zero, err
	})
}

// establishRPC waits for the p2p address to be bound, then logs in with the
// node user until it succeeds. The session is closed on Shutdown. listener,
// when not nil, is the process expected to listen: its death fails the
// result.
func (d *Driver) establishRPC(conf *config.NodeConfig, listener process.Process) *future.Future[*rpc.Connection] {
	address := conf.RPCAddress
	client := rpc.NewClient(address, poll.DialTimeout, d.logger)

	bound := poll.AddressMustBeBound(d.poller, conf.P2PAddress, listener)

	connected := future.FlatMap(bound, func(struct{}) *future.Future[*rpc.Connection] {
		return poll.Poll(d.poller, "control session of "+conf.LegalName().CommonName(), d.cfg.PollInterval, poll.DefaultWarnCount, func() (*rpc.Connection, bool, error) {
			if listener != nil && !listener.Alive() {
				return nil, false, &poll.ProcessDeathError{Address: address, ExitCode: listener.ExitCode()}
			}
			conn, err := client.Start(rpc.NodeUser.Username, rpc.NodeUser.Password)
			if err != nil {
				d.logger.WithError(err).WithField("address", address).Warn("Retrying control session")
				return nil, false, nil
			}
			return conn, true, nil
		})
	})

	return onShutdown(d, connected, (*rpc.Connection).Close)
}

// awaitRegistration completes with the identity of the node once it is
// registered with the network map.
func (d *Driver) awaitRegistration(conf *config.NodeConfig, conn *rpc.Connection, listener process.Process) *future.Future[identity.NodeInfo] {
	registered := rpc.WaitUntilRegisteredWithNetworkMap(d.poller, conf.LegalName().CommonName(), d.cfg.PollInterval, conn.Proxy())
	if listener != nil {
		registered = failOnExit(registered, conf.P2PAddress, listener)
	}

	return future.Map(registered, func(struct{}) (identity.NodeInfo, error) {
		info, err := conn.Proxy().NodeIdentity()
		if err != nil {
			return identity.NodeInfo{}, fmt.Errorf("fetching identity of %s: %w", conf.MyLegalName, err)
		}

		d.logger.WithFields(logrus.Fields{
			"name":     info.LegalIdentity.Name.CommonName(),
			"p2p":      conf.P2PAddress,
			"rpc":      conf.RPCAddress,
			"services": serviceList(info.AdvertisedServices),
		}).Info("Node started")

		return info, nil
	})
}

// failOnExit mirrors f, unless p exits first, in which case the result fails
// with a ProcessDeathError for address and f is cancelled.
func failOnExit[T any](f *future.Future[T], address string, p process.Process) *future.Future[T] {
	out := future.New[T]()
	out.OnCancel(func() { f.Cancel() })

	go func() {
		select {
		case <-f.Done():
		case <-p.Exited():
			if !f.IsDone() {
				f.Cancel()
				out.SetError(&poll.ProcessDeathError{Address: address, ExitCode: p.ExitCode()})
				return
			}
		}
		v, err := f.Result()
		if err != nil {
			out.SetError(err)
			return
		}
		out.Set(v)
	}()

	return out
}

func serviceList(services []identity.ServiceInfo) string {
	s := make([]string, 0, len(services))
	for _, info := range services {
		s = append(s, info.String())
	}
	return strings.Join(s, ",")
}
