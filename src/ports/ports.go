// Package ports hands out network ports for the nodes and processes started by
// the driver.
package ports

import (
	"net"
	"strconv"
	"sync/atomic"
)

// Localhost is the host part of every address handed out.
const Localhost = "localhost"

// Allocation is a strategy producing ports that don't collide with each other.
type Allocation interface {
	NextPort() int
}

// NextHostAndPort returns the next port of a as a localhost address.
func NextHostAndPort(a Allocation) string {
	return HostAndPort(a.NextPort())
}

// HostAndPort formats port as a localhost address.
func HostAndPort(port int) string {
	return net.JoinHostPort(Localhost, strconv.Itoa(port))
}

// Incremental returns consecutive ports from a starting point. Two calls on the
// same Incremental never return the same port.
type Incremental struct {
	counter int64
}

// NewIncremental returns an Incremental whose first port is start.
func NewIncremental(start int) *Incremental {
	return &Incremental{counter: int64(start) - 1}
}

// NextPort implements Allocation.
func (i *Incremental) NextPort() int {
	return int(atomic.AddInt64(&i.counter, 1))
}

// RandomFree asks the OS for a free ephemeral port. The listener is closed
// before returning, so another process may grab the port in between; that
// window is accepted.
type RandomFree struct{}

// NextPort implements Allocation.
func (RandomFree) NextPort() int {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		panic("ports: cannot bind an ephemeral port: " + err.Error())
	}
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port
}

// SplitHostPort parses a host:port address into its parts.
func SplitHostPort(address string) (string, int, error) {
	host, p, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
