package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/context"

	"github.com/tapglue/nexus/core"
	"github.com/tapglue/nexus/service/invite"
)

const (
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// InviteFeed streams invite state changes concerning the requesting account
// over a websocket, opening with a snapshot of the current invites.
func InviteFeed(feed *core.Feed, listFn core.InviteListFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			ns     = namespaceFromContext(ctx)
			origin = originFromContext(ctx)
		)

		// Subscribing before the snapshot read closes the gap between the
		// two, a write landing in between shows up in both and dedup is on
		// the subscriber.
		changes, cancel := feed.Subscribe(origin.AccountID)
		defer cancel()

		is, err := listFn(ns, origin, invite.QueryOptions{})
		if err != nil {
			respondError(w, 0, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// The upgrader already responded to the client.
			return
		}
		defer conn.Close()

		err = conn.WriteJSON(&payloadFeedSnapshot{invites: is})
		if err != nil {
			return
		}

		closed := make(chan struct{})

		// Client frames carry no payload, reading serves the close handshake
		// only.
		go func() {
			defer close(closed)

			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		pings := time.NewTicker(pingPeriod)
		defer pings.Stop()

		for {
			select {
			case change, ok := <-changes:
				if !ok {
					return
				}

				err := conn.WriteJSON(&payloadFeedChange{change: change})
				if err != nil {
					return
				}
			case <-pings.C:
				err := conn.WriteControl(
					websocket.PingMessage,
					nil,
					time.Now().Add(writeWait),
				)
				if err != nil {
					return
				}
			case <-closed:
				return
			}
		}
	}
}

type payloadFeedChange struct {
	change *invite.StateChange
}

func (p *payloadFeedChange) MarshalJSON() ([]byte, error) {
	var old *payloadInvite

	if p.change.Old != nil {
		old = &payloadInvite{invite: p.change.Old}
	}

	return json.Marshal(struct {
		ID     string         `json:"id"`
		Invite *payloadInvite `json:"invite"`
		Old    *payloadInvite `json:"old,omitempty"`
		Type   string         `json:"type"`
	}{
		ID:     p.change.ID,
		Invite: &payloadInvite{invite: p.change.New},
		Old:    old,
		Type:   "change",
	})
}

type payloadFeedSnapshot struct {
	invites invite.List
}

func (p *payloadFeedSnapshot) MarshalJSON() ([]byte, error) {
	is := []*payloadInvite{}

	for _, i := range p.invites {
		is = append(is, &payloadInvite{invite: i})
	}

	return json.Marshal(struct {
		Invites []*payloadInvite `json:"invites"`
		Type    string           `json:"type"`
	}{
		Invites: is,
		Type:    "snapshot",
	})
}
