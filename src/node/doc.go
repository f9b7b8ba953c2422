// Package node implements the reference ledger node the driver launches,
// either in-process or as the ledgerd binary.
//
// A node owns three endpoints: a peer-to-peer transport (cf. net package), a
// control session (cf. rpc package) and, through the separate webserver, an
// HTTP API. Node implements a small state machine:
//
//  JoiningCluster // notary cluster members that are not the seed join it first
//  Registering    // every node registers with the network map
//  Running        // serving until shutdown
//  Shutdown
//
// Network map
//
// The node without a networkMapService entry in its configuration hosts the
// network map. It records its own NodeInfo and answers RegisterRequests from
// the other nodes, which retry until the network map accepts them. Whether a
// node has registered is what the control session reports as
// NetworkMapRegistered.
//
// Notary clusters
//
// All members of a notary cluster find the same service identity in their base
// directory, written there by the driver before any of them started. The
// member configured without notaryClusterAddresses is the seed: it bootstraps
// the cluster by recording itself. The others send a JoinRequest to the seed's
// cluster address and only move on to registration once the seed accepted
// them.
package node
