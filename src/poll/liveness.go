package poll

import (
	"fmt"
	"net"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"github.com/mosaicnetworks/ledgerdriver/src/process"
)

// DialTimeout bounds a single connection attempt of the liveness checks.
const DialTimeout = time.Second

// ProcessDeathError means the process expected to listen on Address exited, so
// the address will never be bound.
type ProcessDeathError struct {
	Address  string
	ExitCode int
}

func (e *ProcessDeathError) Error() string {
	return fmt.Sprintf("the process that was expected to listen on %s has died with status: %d", e.Address, e.ExitCode)
}

func dial(address string) bool {
	conn, err := net.DialTimeout("tcp", address, DialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// AddressMustBeBound completes once something accepts TCP connections on
// address. If listener is given and dies first, the Future fails with a
// ProcessDeathError instead of polling forever.
func AddressMustBeBound(p *Poller, address string, listener process.Process) *future.Future[struct{}] {
	return Default(p, fmt.Sprintf("address %s to bind", address), func() (struct{}, bool, error) {
		if listener != nil && !listener.Alive() {
			return struct{}{}, false, &ProcessDeathError{Address: address, ExitCode: listener.ExitCode()}
		}
		return struct{}{}, dial(address), nil
	})
}

// AddressMustNotBeBound completes once connecting to address fails.
func AddressMustNotBeBound(p *Poller, address string) *future.Future[struct{}] {
	return Default(p, fmt.Sprintf("address %s to unbind", address), func() (struct{}, bool, error) {
		return struct{}{}, !dial(address), nil
	})
}
