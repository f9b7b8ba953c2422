// Package identity models the names, parties and key material of ledger nodes.
//
// Node names are X.500-style distinguished names ("CN=Bank A,O=Bank A,L=London,C=GB").
// Keys are secp256k1 key pairs, the curve used by Bitcoin and Ethereum, handled
// through btcsuite's btcec. Notary cluster members share a single service key
// pair, written to every member's base directory before the members start.
package identity
