package driver

import (
	"fmt"

	"github.com/mosaicnetworks/ledgerdriver/src/config"
	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/mosaicnetworks/ledgerdriver/src/ports"
)

// DefaultClusterSize is the number of members of a notary cluster.
const DefaultClusterSize = 3

// ClusterParams describes a notary cluster to start with StartNotaryCluster.
type ClusterParams struct {
	// Name of the notary service. Members are called Name with their index
	// appended to the common name. Defaults to the DummyNotary fixture.
	Name identity.Name

	// ClusterSize must be at least 1. Zero means DefaultClusterSize.
	ClusterSize int

	// ServiceType defaults to identity.RaftNotary.
	ServiceType string

	VerifierType       config.VerifierType
	RPCUsers           []config.User
	StartInSameProcess *bool
}

// NotaryCluster is a started notary cluster.
type NotaryCluster struct {
	// Identity is the notary service identity shared by every member.
	Identity identity.Party

	// Members starts with the seed.
	Members []NodeHandle
}

// StartNotaryCluster starts the members of a notary cluster. Member 0 is the
// seed: it starts with no cluster address and forms the cluster. The others
// are started concurrently and join the seed's cluster address.
//
// The shared service identity is written into every member's directory before
// any of them starts. If the seed fails, the result fails without waiting for
// the other members.
func (d *Driver) StartNotaryCluster(params ClusterParams) *future.Future[NotaryCluster] {
	if params.Name == "" {
		params.Name = identity.DummyNotary.Name
	}
	if params.ClusterSize == 0 {
		params.ClusterSize = DefaultClusterSize
	}
	if params.ClusterSize < 1 {
		return future.Failed[NotaryCluster](fmt.Errorf("notary cluster size must be at least 1, got %d", params.ClusterSize))
	}
	if params.ServiceType == "" {
		params.ServiceType = identity.RaftNotary
	}

	names := make([]identity.Name, params.ClusterSize)
	dirs := make([]string, params.ClusterSize)
	for i := range names {
		names[i] = params.Name.AppendToCommonName(fmt.Sprintf(" %d", i))

		dir, err := d.BaseDirectory(names[i])
		if err != nil {
			return future.Failed[NotaryCluster](err)
		}
		dirs[i] = dir
	}

	if _, err := identity.GenerateServiceIdentity(dirs, params.ServiceType, params.Name); err != nil {
		return future.Failed[NotaryCluster](fmt.Errorf("generating notary service identity: %w", err))
	}

	services := []identity.ServiceInfo{{Type: params.ServiceType, Name: params.Name}}

	member := func(name identity.Name, overrides map[string]interface{}) *future.Future[NodeHandle] {
		return d.StartNode(NodeParams{
			Name:               name,
			AdvertisedServices: services,
			RPCUsers:           params.RPCUsers,
			VerifierType:       params.VerifierType,
			CustomOverrides:    overrides,
			StartInSameProcess: params.StartInSameProcess,
		})
	}

	seedClusterAddress := ports.NextHostAndPort(d.cfg.PortAllocation)
	seed := member(names[0], map[string]interface{}{
		config.KeyNotaryNodeAddress: seedClusterAddress,
	})

	followers := make([]*future.Future[NodeHandle], 0, params.ClusterSize-1)
	for _, name := range names[1:] {
		followers = append(followers, member(name, map[string]interface{}{
			config.KeyNotaryNodeAddress:      ports.NextHostAndPort(d.cfg.PortAllocation),
			config.KeyNotaryClusterAddresses: []string{seedClusterAddress},
		}))
	}

	return future.FlatMap(seed, func(seed NodeHandle) *future.Future[NotaryCluster] {
		notary := seed.NodeInfo().NotaryIdentity
		if notary == nil {
			return future.Failed[NotaryCluster](fmt.Errorf("%s did not report a notary identity", names[0]))
		}

		return future.Map(future.All(followers), func(members []NodeHandle) (NotaryCluster, error) {
			return NotaryCluster{
				Identity: *notary,
				Members:  append([]NodeHandle{seed}, members...),
			}, nil
		})
	})
}
