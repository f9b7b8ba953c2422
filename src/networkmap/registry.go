// Package networkmap keeps the directory of nodes that registered with the
// network map service.
package networkmap

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/mosaicnetworks/ledgerdriver/src/identity"
	"github.com/ugorji/go/codec"
)

// ErrNotFound is returned by Get for a name that never registered.
var ErrNotFound = errors.New("node not found in network map")

// Registry stores the NodeInfo of registered nodes by legal name.
// Registering a name twice replaces the previous entry.
type Registry interface {
	Register(info identity.NodeInfo) (int, error)
	Get(name identity.Name) (identity.NodeInfo, error)
	All() ([]identity.NodeInfo, error)
	Close() error
}

func marshalNodeInfo(info identity.NodeInfo) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(info); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func unmarshalNodeInfo(data []byte) (identity.NodeInfo, error) {
	var info identity.NodeInfo
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(bytes.NewBuffer(data), jh)

	err := dec.Decode(&info)
	return info, err
}

// InmemRegistry is a Registry that lives and dies with the process.
type InmemRegistry struct {
	sync.RWMutex
	nodes map[identity.Name]identity.NodeInfo
}

// NewInmemRegistry returns an empty InmemRegistry.
func NewInmemRegistry() *InmemRegistry {
	return &InmemRegistry{nodes: make(map[identity.Name]identity.NodeInfo)}
}

// Register implements Registry.
func (r *InmemRegistry) Register(info identity.NodeInfo) (int, error) {
	r.Lock()
	defer r.Unlock()

	r.nodes[info.LegalIdentity.Name] = info
	return len(r.nodes), nil
}

// Get implements Registry.
func (r *InmemRegistry) Get(name identity.Name) (identity.NodeInfo, error) {
	r.RLock()
	defer r.RUnlock()

	info, ok := r.nodes[name]
	if !ok {
		return identity.NodeInfo{}, ErrNotFound
	}
	return info, nil
}

// All implements Registry. Entries are sorted by legal name.
func (r *InmemRegistry) All() ([]identity.NodeInfo, error) {
	r.RLock()
	defer r.RUnlock()

	res := make([]identity.NodeInfo, 0, len(r.nodes))
	for _, info := range r.nodes {
		res = append(res, info)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].LegalIdentity.Name < res[j].LegalIdentity.Name
	})
	return res, nil
}

// Close implements Registry.
func (r *InmemRegistry) Close() error {
	return nil
}
