package driver

import (
	"context"

	"github.com/mosaicnetworks/ledgerdriver/src/config"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/mosaicnetworks/ledgerdriver/src/node"
	"github.com/mosaicnetworks/ledgerdriver/src/process"
	"github.com/mosaicnetworks/ledgerdriver/src/rpc"
	"github.com/mosaicnetworks/ledgerdriver/src/webserver"
)

// NodeHandle is a started node, registered with the network map.
type NodeHandle interface {
	// NodeInfo is what the node reported about itself once started.
	NodeInfo() identity.NodeInfo

	// RPC is the open control session of the node.
	RPC() rpc.Ops

	// Configuration is the parsed node.conf of the node.
	Configuration() *config.NodeConfig

	// WebAddress is where StartWebserver will serve the node's web API.
	WebAddress() string
}

type nodeHandle struct {
	info       identity.NodeInfo
	conn       *rpc.Connection
	conf       *config.NodeConfig
	webAddress string
}

func (h *nodeHandle) NodeInfo() identity.NodeInfo       { return h.info }
func (h *nodeHandle) RPC() rpc.Ops                      { return h.conn.Proxy() }
func (h *nodeHandle) Configuration() *config.NodeConfig { return h.conf }
func (h *nodeHandle) WebAddress() string                { return h.webAddress }

// InProcessHandle is a node running inside the driver's process.
type InProcessHandle struct {
	nodeHandle
	node *node.Node
}

// Node returns the running node.
func (h *InProcessHandle) Node() *node.Node {
	return h.node
}

// OutOfProcessHandle is a node running as a child process.
type OutOfProcessHandle struct {
	nodeHandle
	debugPort int
	process   process.Process
}

// DebugPort is the debug port of the process, or 0.
func (h *OutOfProcessHandle) DebugPort() int {
	return h.debugPort
}

// Process returns the child process running the node.
func (h *OutOfProcessHandle) Process() process.Process {
	return h.process
}

// WebserverHandle is a started web server.
type WebserverHandle struct {
	// ListenAddress is the host:port the web server answers on.
	ListenAddress string

	// Process runs the web server, nil when it runs in-process.
	Process process.Process

	server *webserver.Server
}

func (h *WebserverHandle) stop() error {
	if h.server == nil {
		return nil
	}
	return h.server.Stop(context.Background())
}
