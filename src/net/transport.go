package net

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to consume and respond to
	// RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Register publishes a NodeInfo to the network map at target.
	Register(target string, args *RegisterRequest, resp *RegisterResponse) error

	// Join asks the notary cluster seed at target to admit a member.
	Join(target string, args *JoinRequest, resp *JoinResponse) error

	// Close permanently closes a transport, stopping any associated goroutines
	// and freeing other resources.
	Close() error
}

// RPC is an inbound request waiting for its answer. Exactly one Respond call
// is expected per RPC.
type RPC struct {
	Command  interface{}
	RespChan chan<- RPCResponse
}

// RPCResponse is the answer to an RPC: a response, an error, or both.
type RPCResponse struct {
	Response interface{}
	Error    error
}

// Respond answers the RPC.
func (r *RPC) Respond(resp interface{}, err error) {
	r.RespChan <- RPCResponse{Response: resp, Error: err}
}
