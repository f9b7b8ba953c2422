package net

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Command names carried in the envelope of a request.
const (
	commandRegister = "register"
	commandJoin     = "join"
)

// ErrTransportShutdown is returned when operations on a transport are invoked
// after it's been terminated.
var ErrTransportShutdown = errors.New("transport shutdown")

// request is the envelope of an outbound command.
type request struct {
	Command string
	Body    json.RawMessage
}

// reply is the envelope of an answer. Error is empty on success.
type reply struct {
	Error string
	Body  json.RawMessage
}

// peerConn is an outbound connection. Requests on it are strictly sequential.
type peerConn struct {
	target string
	conn   net.Conn
	dec    *json.Decoder
	enc    *json.Encoder
}

func newPeerConn(target string, conn net.Conn) *peerConn {
	return &peerConn{
		target: target,
		conn:   conn,
		dec:    json.NewDecoder(conn),
		enc:    json.NewEncoder(conn),
	}
}

// roundTrip sends one command and decodes its answer into out. broken reports
// that the connection must not be reused.
func (p *peerConn) roundTrip(command string, args, out interface{}) (broken bool, err error) {
	body, err := json.Marshal(args)
	if err != nil {
		return false, err
	}
	if err := p.enc.Encode(request{Command: command, Body: body}); err != nil {
		return true, err
	}

	var r reply
	if err := p.dec.Decode(&r); err != nil {
		return true, err
	}
	if len(r.Body) > 0 {
		if err := json.Unmarshal(r.Body, out); err != nil {
			return false, err
		}
	}
	if r.Error != "" {
		return false, errors.New(r.Error)
	}
	return false, nil
}

// NetworkTransport exchanges JSON envelopes over a StreamLayer. Each request
// names its command and is answered by exactly one reply on the same
// connection.
//
// Idle outbound connections are kept, up to maxPool per target.
type NetworkTransport struct {
	stream  StreamLayer
	timeout time.Duration
	maxPool int
	logger  *logrus.Entry

	consumeCh chan RPC

	poolLock sync.Mutex
	pool     map[string][]*peerConn

	closeOnce  sync.Once
	shutdownCh chan struct{}
}

// NewNetworkTransport creates a transport on stream. timeout bounds every
// outbound RPC.
func NewNetworkTransport(stream StreamLayer, maxPool int, timeout time.Duration, logger *logrus.Entry) *NetworkTransport {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	return &NetworkTransport{
		stream:     stream,
		timeout:    timeout,
		maxPool:    maxPool,
		logger:     logger,
		consumeCh:  make(chan RPC),
		pool:       make(map[string][]*peerConn),
		shutdownCh: make(chan struct{}),
	}
}

// Close stops the transport and releases idle connections.
func (n *NetworkTransport) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.shutdownCh)
		err = n.stream.Close()

		n.poolLock.Lock()
		defer n.poolLock.Unlock()
		for target, conns := range n.pool {
			for _, c := range conns {
				c.conn.Close()
			}
			delete(n.pool, target)
		}
	})
	return err
}

// IsShutdown reports whether Close was called.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	if addr := n.stream.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// Register implements the Transport interface.
func (n *NetworkTransport) Register(target string, args *RegisterRequest, resp *RegisterResponse) error {
	return n.call(target, commandRegister, args, resp)
}

// Join implements the Transport interface.
func (n *NetworkTransport) Join(target string, args *JoinRequest, resp *JoinResponse) error {
	return n.call(target, commandJoin, args, resp)
}

// idle returns a pooled connection to target, or nil.
func (n *NetworkTransport) idle(target string) *peerConn {
	n.poolLock.Lock()
	defer n.poolLock.Unlock()

	conns := n.pool[target]
	if len(conns) == 0 {
		return nil
	}
	c := conns[len(conns)-1]
	n.pool[target] = conns[:len(conns)-1]
	return c
}

// release pools c, or closes it once the pool of its target is full.
func (n *NetworkTransport) release(c *peerConn) {
	n.poolLock.Lock()
	defer n.poolLock.Unlock()

	if n.IsShutdown() || len(n.pool[c.target]) >= n.maxPool {
		c.conn.Close()
		return
	}
	n.pool[c.target] = append(n.pool[c.target], c)
}

func (n *NetworkTransport) call(target, command string, args, out interface{}) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	c := n.idle(target)
	if c == nil {
		conn, err := n.stream.Dial(target, n.timeout)
		if err != nil {
			return err
		}
		c = newPeerConn(target, conn)
	}

	if n.timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(n.timeout))
	}

	broken, err := c.roundTrip(command, args, out)
	if broken {
		c.conn.Close()
		return err
	}
	n.release(c)
	return err
}

// Listen accepts incoming connections until the transport is closed.
func (n *NetworkTransport) Listen() {
	for {
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithError(err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithField("from", conn.RemoteAddr()).Debug("Accepted connection")

		go n.serve(conn)
	}
}

// serve answers the requests of one inbound connection, in order.
func (n *NetworkTransport) serve(conn net.Conn) {
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !n.IsShutdown() {
				n.logger.WithError(err).Debug("Dropping connection")
			}
			return
		}

		r, err := n.dispatch(req)
		if err != nil {
			if !errors.Is(err, ErrTransportShutdown) {
				n.logger.WithError(err).Error("Failed to handle command")
			}
			return
		}
		if err := enc.Encode(r); err != nil {
			n.logger.WithError(err).Error("Failed to send reply")
			return
		}
	}
}

func decodeCommand(req request) (interface{}, error) {
	var cmd interface{}
	switch req.Command {
	case commandRegister:
		cmd = &RegisterRequest{}
	case commandJoin:
		cmd = &JoinRequest{}
	default:
		return nil, fmt.Errorf("unknown command %q", req.Command)
	}
	if err := json.Unmarshal(req.Body, cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// dispatch hands req to the consumer and waits for its answer.
func (n *NetworkTransport) dispatch(req request) (reply, error) {
	cmd, err := decodeCommand(req)
	if err != nil {
		return reply{}, err
	}

	respCh := make(chan RPCResponse, 1)
	select {
	case n.consumeCh <- RPC{Command: cmd, RespChan: respCh}:
	case <-n.shutdownCh:
		return reply{}, ErrTransportShutdown
	}

	var resp RPCResponse
	select {
	case resp = <-respCh:
	case <-n.shutdownCh:
		return reply{}, ErrTransportShutdown
	}

	var r reply
	if resp.Error != nil {
		r.Error = resp.Error.Error()
	}
	if resp.Response != nil {
		if r.Body, err = json.Marshal(resp.Response); err != nil {
			return reply{}, err
		}
	}
	return r, nil
}
