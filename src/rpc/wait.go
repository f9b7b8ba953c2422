package rpc

import (
	"fmt"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"github.com/mosaicnetworks/ledgerdriver/src/poll"
)

// WaitUntilRegisteredWithNetworkMap completes once the node behind ops reports
// that it registered with the network map. ops is asked every interval.
func WaitUntilRegisteredWithNetworkMap(p *poll.Poller, name string, interval time.Duration, ops Ops) *future.Future[struct{}] {
	return poll.UntilTrue(p, fmt.Sprintf("%s to register with the network map", name), interval, poll.DefaultWarnCount, ops.NetworkMapRegistered)
}
