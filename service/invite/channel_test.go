package invite

import (
	"testing"
)

func TestChannelSourcePropagateConsume(t *testing.T) {
	var (
		namespace = "channel_propagate"
		source    = ChannelSource(8)

		invite = &Invite{
			Code:     GenerateCode(),
			ID:       1,
			IssuerID: 123,
		}
	)

	id, err := source.Propagate(namespace, nil, invite)
	if err != nil {
		t.Fatal(err)
	}

	change, err := source.Consume()
	if err != nil {
		t.Fatal(err)
	}

	if have, want := change.ID, id; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := change.Namespace, namespace; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if have, want := change.New.Code, invite.Code; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
	if change.Old != nil {
		t.Errorf("want nil old state, have %v", change.Old)
	}
	if change.SentAt.IsZero() {
		t.Error("want sent at to be set")
	}

	if err := source.Ack(change.AckID); err != nil {
		t.Fatal(err)
	}
}

func TestChannelSourceOverflow(t *testing.T) {
	var (
		namespace = "channel_overflow"
		source    = ChannelSource(2)
	)

	for i := 0; i < 4; i++ {
		invite := &Invite{
			ID:       uint64(i + 1),
			IssuerID: 123,
		}

		if _, err := source.Propagate(namespace, nil, invite); err != nil {
			t.Fatal(err)
		}
	}

	// Oldest changes are dropped once the buffer is full.
	change, err := source.Consume()
	if err != nil {
		t.Fatal(err)
	}

	if have, want := change.New.ID, uint64(3); have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	change, err = source.Consume()
	if err != nil {
		t.Fatal(err)
	}

	if have, want := change.New.ID, uint64(4); have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}
