package shutdown

import (
	"context"

	"github.com/mosaicnetworks/ledgerdriver/src/common"
	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"go.uber.org/multierr"
)

type checkpoint struct {
	start, end int
}

// Follower brackets the actions registered on a Manager between its creation
// and the call to Unfollow, so they can be torn down early as a group.
type Follower struct {
	manager *Manager
	cp      *common.Box[checkpoint]
}

// Follower starts following m from its current position.
func (m *Manager) Follower() *Follower {
	start := common.LockedGet(m.state, func(s *state) int { return len(s.registered) })
	return &Follower{
		manager: m,
		cp:      common.NewBox(checkpoint{start: start, end: start - 1}),
	}
}

// Unfollow closes the bracket.
func (f *Follower) Unfollow() {
	end := common.LockedGet(f.manager.state, func(s *state) int { return len(s.registered) })
	f.cp.Locked(func(c *checkpoint) { c.end = end })
}

// Shutdown runs the bracketed actions newest first and replaces them with Noop
// in the Manager, so they won't run a second time on Manager shutdown. Failures
// are combined into the returned error.
//
// Calling Shutdown before Unfollow is a programming error and panics.
func (f *Follower) Shutdown() error {
	c := common.LockedGet(f.cp, func(c *checkpoint) checkpoint { return *c })
	if c.start > c.end {
		panic("You haven't called unfollow.")
	}

	var drained []*future.Future[Action]
	f.manager.state.Locked(func(s *state) {
		if c.end > len(s.registered) {
			c.end = len(s.registered)
		}
		drained = make([]*future.Future[Action], c.end-c.start)
		copy(drained, s.registered[c.start:c.end])
		for i := c.start; i < c.end; i++ {
			s.registered[i] = future.Completed[Action](Noop)
		}
	})

	var errs error
	for i := len(drained) - 1; i >= 0; i-- {
		ctx, cancel := context.WithTimeout(context.Background(), FutureTimeout)
		a, err := drained[i].Get(ctx)
		cancel()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		errs = multierr.Append(errs, a())
	}
	return errs
}
