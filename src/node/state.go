package node

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a node.
type State uint32

const (
	// JoiningCluster is the state of a notary member joining its cluster seed.
	JoiningCluster State = iota
	// Registering is the state of a node registering with the network map.
	Registering
	// Running is the state of a node that completed its start up.
	Running
	// Shutdown is the final state.
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case JoiningCluster:
		return "JoiningCluster"
	case Registering:
		return "Registering"
	case Running:
		return "Running"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
	wg    sync.WaitGroup
}

func (b *state) getState() State {
	return State(atomic.LoadUint32((*uint32)(&b.state)))
}

func (b *state) setState(s State) {
	atomic.StoreUint32((*uint32)(&b.state), uint32(s))
}

// goFunc starts f in a goroutine that Stop waits for.
func (b *state) goFunc(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
