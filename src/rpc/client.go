package rpc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/sirupsen/logrus"
)

// Ops are the operations available through an open session.
type Ops interface {
	NodeIdentity() (identity.NodeInfo, error)
	NetworkMapRegistered() (bool, error)
	Shutdown() error
}

// Client opens control sessions with the node at addr.
type Client struct {
	addr    string
	timeout time.Duration
	logger  *logrus.Entry
}

// NewClient returns a Client for addr. timeout bounds the connection attempt
// and, separately, the login exchange.
func NewClient(addr string, timeout time.Duration, logger *logrus.Entry) *Client {
	return &Client{
		addr:    addr,
		timeout: timeout,
		logger:  logger,
	}
}

// Start connects and logs in.
func (c *Client) Start(username, password string) (*Connection, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return nil, err
	}

	client := jsonrpc.NewClient(conn)

	// bound the login exchange
	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		client.Close()
		return nil, err
	}

	var token string
	if err := client.Call("Node.Login", LoginArgs{Username: username, Password: password}, &token); err != nil {
		client.Close()
		return nil, translate(err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		client.Close()
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"address": c.addr,
		"user":    username,
	}).Debug("Control session open")

	return &Connection{
		addr:   c.addr,
		rpc:    client,
		token:  token,
		logger: c.logger,
	}, nil
}

// translate turns server error strings back into the package's sentinel
// errors.
func translate(err error) error {
	if se, ok := err.(rpc.ServerError); ok && string(se) == ErrUnauthorized.Error() {
		return ErrUnauthorized
	}
	return err
}

// Connection is an open control session.
type Connection struct {
	addr   string
	rpc    *rpc.Client
	token  string
	logger *logrus.Entry

	closeOnce sync.Once
}

// Proxy exposes the session's operations.
func (c *Connection) Proxy() Ops {
	return c
}

// Address is the rpc address of the node.
func (c *Connection) Address() string {
	return c.addr
}

func (c *Connection) call(method string, reply interface{}) error {
	return translate(c.rpc.Call("Node."+method, SessionArgs{Token: c.token}, reply))
}

// NodeIdentity implements Ops.
func (c *Connection) NodeIdentity() (identity.NodeInfo, error) {
	var info identity.NodeInfo
	err := c.call("NodeIdentity", &info)
	return info, err
}

// NetworkMapRegistered implements Ops.
func (c *Connection) NetworkMapRegistered() (bool, error) {
	var registered bool
	err := c.call("NetworkMapRegistered", &registered)
	return registered, err
}

// Shutdown implements Ops.
func (c *Connection) Shutdown() error {
	var ack bool
	return c.call("Shutdown", &ack)
}

// Close logs out and closes the connection. Only the first call does anything.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		var ack bool
		if lerr := c.call("Logout", &ack); lerr != nil {
			c.logger.WithError(lerr).Debug("Logout failed")
		}
		err = c.rpc.Close()
	})
	return err
}
