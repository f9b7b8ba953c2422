// Package net implements the peer-to-peer transport between ledger nodes.
//
// Every request travels in a JSON envelope naming its command and is answered
// by one JSON reply on the same connection. Nodes use it to register with the
// network map (RegisterRequest) and to join a notary cluster (JoinRequest).
package net
