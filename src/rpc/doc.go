// Package rpc implements the control session of a ledger node.
//
// The node serves a JSON-RPC service named "Node" on its rpc address. A client
// first calls Node.Login with a username and password listed in the node's
// rpcUsers, and receives a session token. Every other call carries the token:
//
//  Node.NodeIdentity         // the NodeInfo of the node
//  Node.NetworkMapRegistered // whether the node registered with the network map
//  Node.Shutdown             // ask the node to stop
//  Node.Logout               // drop the session
//
// The harness logs in with the fixed development credentials NodeUser.
package rpc
