// Package config defines the configuration of a ledger node and how it is
// written to, and read from, the node's base directory.
//
// The driver renders a node's settings into a TOML file called node.conf in
// the node's base directory before launching it. The node then loads that file
// through viper, layering it over the defaults below:
//
//  node.conf // TOML settings written by the driver (cf. Write).
//  priv_key // optional raw hex private key; generated on first start.
//  service_identity.json // shared notary service identity, cluster members only.
//  logs/error.log // error level log entries.
package config
