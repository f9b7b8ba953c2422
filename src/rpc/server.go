package rpc

import (
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/ledgerdriver/src/config"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/sirupsen/logrus"
)

// NodeUser holds the fixed development credentials every driven node accepts.
var NodeUser = config.User{
	Username:    "SystemUsers/Node",
	Password:    "SystemUsers/Node",
	Permissions: []string{"ALL"},
}

// ErrUnauthorized is returned for bad credentials or an unknown session token.
var ErrUnauthorized = errors.New("unauthorized")

// Backend is the node behind the control session.
type Backend interface {
	NodeInfo() identity.NodeInfo
	NetworkMapRegistered() bool
	RequestShutdown()
}

// LoginArgs are the arguments of Node.Login.
type LoginArgs struct {
	Username string
	Password string
}

// SessionArgs identify the session of a call.
type SessionArgs struct {
	Token string
}

// NodeService is the receiver registered as "Node". Its exported methods are
// the remote operations.
type NodeService struct {
	backend Backend
	users   map[string]config.User
	logger  *logrus.Entry

	mu       sync.Mutex
	sessions map[string]string
}

func (s *NodeService) check(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.sessions[token]
	if !ok {
		return "", ErrUnauthorized
	}
	return user, nil
}

// Login opens a session.
func (s *NodeService) Login(args LoginArgs, token *string) error {
	user, ok := s.users[args.Username]
	if !ok || user.Password != args.Password {
		s.logger.WithField("user", args.Username).Warn("Rejected login")
		return ErrUnauthorized
	}

	t := uuid.NewString()

	s.mu.Lock()
	s.sessions[t] = args.Username
	s.mu.Unlock()

	s.logger.WithField("user", args.Username).Debug("Login")

	*token = t
	return nil
}

// Logout closes a session.
func (s *NodeService) Logout(args SessionArgs, ack *bool) error {
	s.mu.Lock()
	delete(s.sessions, args.Token)
	s.mu.Unlock()

	*ack = true
	return nil
}

// NodeIdentity returns the NodeInfo of the node.
func (s *NodeService) NodeIdentity(args SessionArgs, info *identity.NodeInfo) error {
	if _, err := s.check(args.Token); err != nil {
		return err
	}
	*info = s.backend.NodeInfo()
	return nil
}

// NetworkMapRegistered reports whether the node registered with the network
// map.
func (s *NodeService) NetworkMapRegistered(args SessionArgs, registered *bool) error {
	if _, err := s.check(args.Token); err != nil {
		return err
	}
	*registered = s.backend.NetworkMapRegistered()
	return nil
}

// Shutdown asks the node to stop. The call returns before the node is down.
func (s *NodeService) Shutdown(args SessionArgs, ack *bool) error {
	user, err := s.check(args.Token)
	if err != nil {
		return err
	}
	s.logger.WithField("user", user).Info("Shutdown requested")
	s.backend.RequestShutdown()
	*ack = true
	return nil
}

// Server serves the control session on a TCP listener.
type Server struct {
	listener  net.Listener
	rpcServer *rpc.Server
	service   *NodeService
	logger    *logrus.Entry

	wg sync.WaitGroup

	closeOnce sync.Once
	closed    chan struct{}

	connsLock sync.Mutex
	conns     map[net.Conn]struct{}
}

// NewServer binds bindAddress. Only users, and NodeUser, may log in.
func NewServer(bindAddress string, users []config.User, backend Backend, logger *logrus.Entry) (*Server, error) {
	service := &NodeService{
		backend:  backend,
		users:    map[string]config.User{NodeUser.Username: NodeUser},
		logger:   logger,
		sessions: make(map[string]string),
	}
	for _, u := range users {
		service.users[u.Username] = u
	}

	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Node", service); err != nil {
		return nil, err
	}

	l, err := net.Listen("tcp", bindAddress)
	if err != nil {
		logger.WithError(err).Error("Failed to listen")
		return nil, err
	}

	return &Server{
		listener:  l,
		rpcServer: rpcServer,
		service:   service,
		logger:    logger,
		closed:    make(chan struct{}),
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Addr is the address the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve accepts sessions until Close is called.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.logger.WithError(err).Error("Failed to accept")
			continue
		}

		s.connsLock.Lock()
		s.conns[conn] = struct{}{}
		s.connsLock.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))

			s.connsLock.Lock()
			delete(s.conns, conn)
			s.connsLock.Unlock()
		}()
	}
}

// Close stops accepting sessions and drops the open ones.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.listener.Close()

		s.connsLock.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.connsLock.Unlock()

		s.wg.Wait()
	})
	return err
}
