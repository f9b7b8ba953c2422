// Package webserver implements the companion HTTP server of a ledger node.
//
// The web server connects to the node's control session and answers
// GET /api/status with "starting" until the session is open, and "started"
// afterwards. The driver polls that endpoint to know when the web server is
// usable.
package webserver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/config"
	"github.com/mosaicnetworks/ledgerdriver/src/executor"
	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"github.com/mosaicnetworks/ledgerdriver/src/poll"
	"github.com/mosaicnetworks/ledgerdriver/src/rpc"
	"github.com/sirupsen/logrus"
)

// Status values served by /api/status.
const (
	StatusStarting = "starting"
	StatusStarted  = "started"
)

// DialTimeout bounds one attempt to open the control session.
const DialTimeout = time.Second

// Server is the web server of one node.
type Server struct {
	sync.Mutex

	conf   *config.NodeConfig
	logger *logrus.Entry

	exec       *executor.Executor
	connection *rpc.Connection
	connecting *future.Future[*rpc.Connection]
	stopped    bool

	listener   net.Listener
	httpServer *http.Server
}

// New returns a Server for the node configured by conf.
func New(conf *config.NodeConfig, logger *logrus.Entry) *Server {
	return &Server{
		conf:   conf,
		logger: logger,
		exec:   executor.New(1, nil, logger),
	}
}

// Addr is the address the server listens on, once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.conf.WebAddress
	}
	return s.listener.Addr().String()
}

func (s *Server) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Start binds the web address and opens the control session in the
// background.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.makeHandler(s.GetStatus))
	mux.HandleFunc("/api/info", s.makeHandler(s.GetInfo))

	l, err := net.Listen("tcp", s.conf.WebAddress)
	if err != nil {
		return err
	}

	if s.conf.UseHTTPS {
		cert, err := selfSignedCertificate(s.conf.LegalName().CommonName())
		if err != nil {
			l.Close()
			return err
		}
		l = tls.NewListener(l, &tls.Config{Certificates: []tls.Certificate{cert}})
	}

	s.listener = l
	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		s.logger.WithFields(logrus.Fields{
			"bind_address": s.conf.WebAddress,
			"https":        s.conf.UseHTTPS,
		}).Debug("Serving web API")

		if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Web server stopped")
		}
	}()

	s.connect()

	return nil
}

func (s *Server) connect() {
	client := rpc.NewClient(s.conf.RPCAddress, DialTimeout, s.logger)
	p := poll.NewPoller(s.exec, s.logger)

	f := poll.Default(p, "control session of "+s.conf.RPCAddress, func() (*rpc.Connection, bool, error) {
		conn, err := client.Start(rpc.NodeUser.Username, rpc.NodeUser.Password)
		if err != nil {
			s.logger.WithError(err).WithField("address", s.conf.RPCAddress).Debug("Control session not available yet")
			return nil, false, nil
		}
		return conn, true, nil
	})

	s.Lock()
	s.connecting = f
	s.Unlock()

	go func() {
		conn, err := f.Wait()
		if err != nil {
			return
		}
		s.Lock()
		defer s.Unlock()
		if s.stopped {
			conn.Close()
			return
		}
		s.connection = conn
		s.logger.Info("Web server connected to node")
	}()
}

func (s *Server) getConnection() *rpc.Connection {
	s.Lock()
	defer s.Unlock()

	return s.connection
}

// GetStatus answers "started" once the control session is open.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := StatusStarting
	if s.getConnection() != nil {
		status = StatusStarted
	}

	body, _ := json.Marshal(status)

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// GetInfo returns the NodeInfo of the node.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	conn := s.getConnection()
	if conn == nil {
		http.Error(w, "not connected to the node", http.StatusServiceUnavailable)
		return
	}

	info, err := conn.Proxy().NodeIdentity()
	if err != nil {
		s.logger.WithError(err).Error("Retrieving node identity")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(info)
}

// Stop closes the HTTP server and the control session.
func (s *Server) Stop(ctx context.Context) error {
	s.Lock()
	s.stopped = true
	if s.connecting != nil {
		s.connecting.Cancel()
	}
	conn := s.connection
	s.Unlock()

	s.exec.Shutdown()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if conn != nil {
		conn.Close()
	}
	return err
}
