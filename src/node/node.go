package node

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mosaicnetworks/ledgerdriver/src/common"
	"github.com/mosaicnetworks/ledgerdriver/src/config"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/mosaicnetworks/ledgerdriver/src/net"
	"github.com/mosaicnetworks/ledgerdriver/src/networkmap"
	"github.com/mosaicnetworks/ledgerdriver/src/rpc"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// DefaultMaxPool is the number of pooled connections per peer.
const DefaultMaxPool = 2

type cluster struct {
	serviceID string
	members   []string
}

// Node is a ledger node.
type Node struct {
	state

	conf   *config.NodeConfig
	logger *logrus.Entry
	clock  clock.Clock

	key  *ecdsa.PrivateKey
	info identity.NodeInfo

	trans        *net.NetworkTransport
	clusterTrans *net.NetworkTransport
	rpcServer    *rpc.Server
	registry     networkmap.Registry

	cluster *common.Box[cluster]

	registered atomic.Bool

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	doneCh       chan struct{}
	stopErr      error
}

// New returns a Node for conf. Nothing is bound until Start.
func New(conf *config.NodeConfig) *Node {
	return &Node{
		conf:       conf,
		logger:     conf.Logger(),
		clock:      clock.New(),
		cluster:    common.NewBox(cluster{}),
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Config returns the configuration of the node.
func (n *Node) Config() *config.NodeConfig {
	return n.conf
}

// State returns the current state of the node.
func (n *Node) State() State {
	return n.getState()
}

func (n *Node) loadOrCreateKey() (*ecdsa.PrivateKey, error) {
	keyfile := identity.NewKeyfile(n.conf.Keyfile())

	key, err := keyfile.ReadKey()
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", n.conf.Keyfile(), err)
	}

	n.logger.Debug("No key found, generating one")
	if key, err = identity.GenerateKey(); err != nil {
		return nil, err
	}
	if err := keyfile.WriteKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

func (n *Node) buildInfo() error {
	services, err := n.conf.AdvertisedServices()
	if err != nil {
		return err
	}

	n.info = identity.NodeInfo{
		Address: n.conf.P2PAddress,
		LegalIdentity: identity.Party{
			Name:      n.conf.LegalName(),
			OwningKey: identity.FromPublicKey(&n.key.PublicKey),
		},
		AdvertisedServices: services,
	}

	if !n.conf.IsNotary() {
		return nil
	}

	si, _, err := identity.LoadServiceIdentity(n.conf.BaseDirectory)
	if err != nil {
		return fmt.Errorf("loading notary service identity: %w", err)
	}

	notary := si.Party
	n.info.NotaryIdentity = &notary

	advertised := false
	for i, s := range n.info.AdvertisedServices {
		if s.Type == si.ServiceID {
			n.info.AdvertisedServices[i].Name = notary.Name
			advertised = true
		}
	}
	if !advertised {
		n.info.AdvertisedServices = append(n.info.AdvertisedServices, identity.ServiceInfo{Type: si.ServiceID, Name: notary.Name})
	}

	n.cluster.Locked(func(c *cluster) {
		c.serviceID = si.ServiceID
		if n.isSeed() {
			c.members = []string{n.conf.NotaryNodeAddress}
		}
	})

	return nil
}

func (n *Node) isSeed() bool {
	return n.conf.IsNotary() && len(n.conf.NotaryClusterAddresses) == 0
}

// Start binds every endpoint of the node. The node only makes progress once
// Run is called.
func (n *Node) Start() (err error) {
	defer func() {
		if err != nil {
			n.closeAll()
			n.rpcServer, n.trans, n.clusterTrans, n.registry = nil, nil, nil, nil
		}
	}()

	if n.key, err = n.loadOrCreateKey(); err != nil {
		return err
	}
	if err = n.buildInfo(); err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"p2p":            n.conf.P2PAddress,
		"rpc":            n.conf.RPCAddress,
		"network_map":    n.conf.IsNetworkMap(),
		"notary":         n.conf.IsNotary(),
		"verifier_type":  n.conf.VerifierType,
		"use_test_clock": n.conf.UseTestClock,
	}).Info("Starting node")

	if n.trans, err = net.NewTCPTransport(n.conf.P2PAddress, "", DefaultMaxPool, n.conf.TCPTimeout, n.logger.WithField("transport", "p2p")); err != nil {
		return fmt.Errorf("binding p2p address: %w", err)
	}

	if n.conf.IsNotary() {
		if n.clusterTrans, err = net.NewTCPTransport(n.conf.NotaryNodeAddress, "", DefaultMaxPool, n.conf.TCPTimeout, n.logger.WithField("transport", "cluster")); err != nil {
			return fmt.Errorf("binding notary cluster address: %w", err)
		}
	}

	if n.conf.IsNetworkMap() {
		if n.conf.Store {
			n.registry, err = networkmap.NewBadgerRegistry(n.conf.DatabaseDir(), n.logger.WithField("store", "badger"))
			if err != nil {
				return fmt.Errorf("opening network map store: %w", err)
			}
		} else {
			n.registry = networkmap.NewInmemRegistry()
		}
	}

	if n.rpcServer, err = rpc.NewServer(n.conf.RPCAddress, n.conf.RPCUsers, n, n.logger.WithField("rpc", n.conf.RPCAddress)); err != nil {
		return fmt.Errorf("binding rpc address: %w", err)
	}

	if n.conf.IsNotary() && !n.isSeed() {
		n.setState(JoiningCluster)
	} else {
		n.setState(Registering)
	}

	n.goFunc(n.trans.Listen)
	if n.clusterTrans != nil {
		n.goFunc(n.clusterTrans.Listen)
	}
	n.goFunc(n.rpcServer.Serve)

	return nil
}

// Run drives the node through its states until it shuts down.
func (n *Node) Run() {
	n.goFunc(func() { n.doBackgroundWork(n.trans) })
	if n.clusterTrans != nil {
		n.goFunc(func() { n.doBackgroundWork(n.clusterTrans) })
	}

	for {
		state := n.getState()

		n.logger.WithField("state", state.String()).Debug("Run loop")

		switch state {
		case JoiningCluster:
			n.joinCluster()
		case Registering:
			n.register()
		case Running:
			<-n.shutdownCh
			return
		case Shutdown:
			return
		}
	}
}

// RunAsync calls Run in a goroutine.
func (n *Node) RunAsync() {
	go n.Run()
}

func (n *Node) doBackgroundWork(trans net.Transport) {
	for {
		select {
		case rpc := <-trans.Consumer():
			n.processRPC(rpc)
		case <-n.shutdownCh:
			return
		}
	}
}

// retryWait waits before the next attempt and reports false if the node shut
// down in the meantime.
func (n *Node) retryWait() bool {
	select {
	case <-n.clock.After(n.conf.RegistrationInterval):
		return true
	case <-n.shutdownCh:
		return false
	}
}

func (n *Node) joinCluster() {
	seed := n.conf.NotaryClusterAddresses[0]

	resp, err := n.requestJoin(seed)
	if err != nil {
		n.logger.WithError(err).WithField("seed", seed).Debug("Cannot join notary cluster yet")
		n.retryWait()
		return
	}

	if !resp.Accepted {
		n.logger.WithField("seed", seed).Error("Notary cluster refused to let us join")
		n.Stop()
		return
	}

	n.cluster.Locked(func(c *cluster) { c.members = resp.Members })

	n.logger.WithFields(logrus.Fields{
		"seed":    seed,
		"members": resp.Members,
	}).Info("Joined notary cluster")

	n.setState(Registering)
}

func (n *Node) register() {
	var (
		size int
		err  error
	)

	if n.conf.IsNetworkMap() {
		size, err = n.registry.Register(n.info)
	} else {
		var resp net.RegisterResponse
		resp, err = n.requestRegister(n.conf.NetworkMapService.Address)
		if err == nil && !resp.Accepted {
			err = fmt.Errorf("registration refused")
		}
		size = resp.Size
	}

	if err != nil {
		n.logger.WithError(err).Debug("Cannot register with the network map yet")
		n.retryWait()
		return
	}

	n.registered.Store(true)
	n.logger.WithField("network_size", size).Info("Registered with the network map")

	n.setState(Running)
}

// ClusterMembers returns the notary cluster addresses known to this member.
func (n *Node) ClusterMembers() []string {
	return common.LockedGet(n.cluster, func(c *cluster) []string {
		return append([]string(nil), c.members...)
	})
}

// NodeInfo implements rpc.Backend.
func (n *Node) NodeInfo() identity.NodeInfo {
	return n.info
}

// NetworkMapRegistered implements rpc.Backend.
func (n *Node) NetworkMapRegistered() bool {
	return n.registered.Load()
}

// RequestShutdown implements rpc.Backend. The node stops in the background.
func (n *Node) RequestShutdown() {
	go n.Stop()
}

// Done is closed once the node has stopped.
func (n *Node) Done() <-chan struct{} {
	return n.doneCh
}

func (n *Node) closeAll() error {
	var errs error
	if n.rpcServer != nil {
		errs = multierr.Append(errs, n.rpcServer.Close())
	}
	if n.trans != nil {
		errs = multierr.Append(errs, n.trans.Close())
	}
	if n.clusterTrans != nil {
		errs = multierr.Append(errs, n.clusterTrans.Close())
	}
	if n.registry != nil {
		errs = multierr.Append(errs, n.registry.Close())
	}
	return errs
}

// Stop shuts the node down and waits for its routines. Only the first call
// does the work, later calls wait for it and return the same error.
func (n *Node) Stop() error {
	n.shutdownOnce.Do(func() {
		n.logger.Info("Stopping node")

		n.setState(Shutdown)
		close(n.shutdownCh)

		n.stopErr = n.closeAll()
		n.waitRoutines()

		close(n.doneCh)
	})
	<-n.doneCh
	return n.stopErr
}

// WaitForShutdown blocks until the node stops or timeout expires.
func (n *Node) WaitForShutdown(timeout time.Duration) bool {
	select {
	case <-n.doneCh:
		return true
	case <-n.clock.After(timeout):
		return false
	}
}
