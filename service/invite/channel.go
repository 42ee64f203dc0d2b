package invite

import (
	"strconv"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 1024

type channelSource struct {
	changec chan *StateChange
	seq     uint64
}

// ChannelSource returns an in-process Source implementation carrying state
// changes over a buffered channel, intended for single process deployments
// where the feed consumer lives next to the producer.
func ChannelSource(bufferSize int) Source {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}

	return &channelSource{
		changec: make(chan *StateChange, bufferSize),
	}
}

func (s *channelSource) Ack(id string) error {
	return nil
}

func (s *channelSource) Consume() (*StateChange, error) {
	change, ok := <-s.changec
	if !ok {
		return nil, wrapError(ErrEmptySource, "channel closed")
	}

	return change, nil
}

func (s *channelSource) Propagate(ns string, old, new *Invite) (string, error) {
	id := strconv.FormatUint(atomic.AddUint64(&s.seq, 1), 10)

	change := &StateChange{
		AckID:     id,
		ID:        id,
		Namespace: ns,
		New:       new,
		Old:       old,
		SentAt:    time.Now().UTC(),
	}

	select {
	case s.changec <- change:
	default:
		// A full buffer drops the oldest pending change first, the feed is
		// at-least-once only for observers able to keep up, readers recover
		// via the list endpoint.
		select {
		case <-s.changec:
		default:
		}

		select {
		case s.changec <- change:
		default:
		}
	}

	return id, nil
}
