package core

import (
	"sync"
	"time"

	"github.com/tapglue/nexus/service/invite"
)

const subscriberBuffer = 16

// Feed fans invite state changes out to per issuer subscribers.
type Feed struct {
	mu   sync.Mutex
	subs map[uint64]map[chan *invite.StateChange]struct{}
}

func NewFeed() *Feed {
	return &Feed{
		subs: map[uint64]map[chan *invite.StateChange]struct{}{},
	}
}

// Subscribe registers interest in changes concerning the given issuer and
// returns the delivery channel together with a cancel func. Cancel is safe to
// call more than once.
func (f *Feed) Subscribe(issuerID uint64) (<-chan *invite.StateChange, func()) {
	c := make(chan *invite.StateChange, subscriberBuffer)

	f.mu.Lock()

	if f.subs[issuerID] == nil {
		f.subs[issuerID] = map[chan *invite.StateChange]struct{}{}
	}

	f.subs[issuerID][c] = struct{}{}

	f.mu.Unlock()

	return c, func() {
		f.mu.Lock()
		defer f.mu.Unlock()

		cs, ok := f.subs[issuerID]
		if !ok {
			return
		}

		if _, ok := cs[c]; !ok {
			return
		}

		delete(cs, c)
		close(c)

		if len(cs) == 0 {
			delete(f.subs, issuerID)
		}
	}
}

// Run pumps state changes from the source into the subscriber channels,
// acking after dispatch. Delivery is at-least-once, subscribers are expected
// to deduplicate on change ID.
func (f *Feed) Run(changes invite.Source) error {
	for {
		change, err := changes.Consume()
		if err != nil {
			if invite.IsEmptySource(err) {
				time.Sleep(time.Second)

				continue
			}

			return err
		}

		f.dispatch(change)

		if err := changes.Ack(change.AckID); err != nil {
			return err
		}
	}
}

func (f *Feed) dispatch(change *invite.StateChange) {
	if change.New == nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for c := range f.subs[change.New.IssuerID] {
		select {
		case c <- change:
		default:
			// Slow subscribers miss updates and recover via the list
			// endpoint.
		}
	}
}
