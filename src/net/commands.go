package net

import "github.com/mosaicnetworks/ledgerdriver/src/identity"

// RegisterRequest publishes a node's NodeInfo to the network map.
type RegisterRequest struct {
	Node identity.NodeInfo
}

// RegisterResponse acknowledges a RegisterRequest. Size is the number of nodes
// the network map knows about after the registration.
type RegisterResponse struct {
	Accepted bool
	Size     int
}

// JoinRequest is sent by a notary cluster member to the cluster seed.
type JoinRequest struct {
	ServiceID string
	Member    identity.Party
	Address   string
}

// JoinResponse lists the cluster addresses of every member known to the seed,
// the joiner included.
type JoinResponse struct {
	Accepted bool
	Members  []string
}
