package identity

import (
	"fmt"
	"strings"
)

// Party is a named owner of a public key.
type Party struct {
	Name      Name      `json:"name"`
	OwningKey PublicKey `json:"owningKey"`
}

// ServiceInfo is an advertised service: a type and an optional name, rendered
// as "type|name".
type ServiceInfo struct {
	Type string `json:"type"`
	Name Name   `json:"name,omitempty"`
}

// ParseServiceInfo parses the "type|name" form.
func ParseServiceInfo(s string) (ServiceInfo, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ServiceInfo{}, fmt.Errorf("empty service info")
	}
	typ, name, _ := strings.Cut(s, "|")
	return ServiceInfo{Type: typ, Name: Name(name)}, nil
}

// String renders the "type|name" form.
func (s ServiceInfo) String() string {
	if s.Name == "" {
		return s.Type
	}
	return fmt.Sprintf("%s|%s", s.Type, s.Name)
}

// IsNotary reports whether the service is a notary.
func (s ServiceInfo) IsNotary() bool {
	return strings.HasPrefix(s.Type, NotaryServicePrefix)
}

// Service types a node can advertise.
const (
	NotaryServicePrefix = "ledger.notary"
	SimpleNotary        = "ledger.notary.simple"
	ValidatingNotary    = "ledger.notary.validating"
	RaftNotary          = "ledger.notary.validating.raft"
	NetworkMapService   = "ledger.network_map"
)

// NodeInfo is what a node publishes about itself to the network map.
type NodeInfo struct {
	Address            string        `json:"address"`
	LegalIdentity      Party         `json:"legalIdentity"`
	AdvertisedServices []ServiceInfo `json:"advertisedServices"`
	// NotaryIdentity is set on members of a notary cluster.
	NotaryIdentity *Party `json:"notaryIdentity,omitempty"`
}
