// Package driver boots and tears down local networks of ledger nodes.
//
// A Driver allocates ports, writes each node's node.conf, starts nodes either
// inside the current process or as child processes, and waits, through
// futures, until they answer on their control session and are registered with
// the network map. Every resource it acquires is registered with a
// shutdown.Manager so that Shutdown releases them in reverse order.
//
// Notary clusters are bootstrapped from a fixed seed: member 0 starts without
// cluster addresses and forms the cluster, the other members are started
// concurrently and join the seed.
package driver
