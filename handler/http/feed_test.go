package http

import (
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tapglue/nexus/core"
	"github.com/tapglue/nexus/service/invite"
	"github.com/tapglue/nexus/service/issuer"
)

func TestInviteFeedStream(t *testing.T) {
	var (
		accountID = uint64(rand.Int63())
		feed      = core.NewFeed()
		issuers   = issuer.MemService()
		namespace = "handler_feed"
		source    = invite.ChannelSource(8)
	)

	invites := invite.SourcingServiceMiddleware(source)(
		invite.MemService(issuers, invite.ConsumeAll),
	)

	var (
		issueFn = core.InviteIssue(invites)
		origin  = core.Origin{AccountID: accountID, Privileged: true}
	)

	if _, err := issuers.Put(namespace, &issuer.Issuer{
		ID:   accountID,
		Role: issuer.RolePrivileged,
	}); err != nil {
		t.Fatal(err)
	}

	go func() {
		_ = feed.Run(source)
	}()

	minted, err := issueFn(namespace, origin, 0)
	if err != nil {
		t.Fatal(err)
	}

	// A write landing while the snapshot is read must still reach the stream,
	// the subscription is established before the snapshot query runs.
	interleavedc := make(chan *invite.Invite, 1)

	listFn := func(
		ns string,
		origin core.Origin,
		opts invite.QueryOptions,
	) (invite.List, error) {
		is, err := core.InviteList(invites)(ns, origin, opts)
		if err != nil {
			return nil, err
		}

		i, err := issueFn(ns, origin, 0)
		if err != nil {
			return nil, err
		}

		interleavedc <- i

		return is, nil
	}

	srv := httptest.NewServer(Wrap(
		Chain(
			CtxPrepare("test"),
			CtxNamespace(namespace),
			CtxOrigin(issuers),
		),
		InviteFeed(feed, listFn),
	))
	defer srv.Close()

	header := http.Header{}
	header.Set(headerAccount, strconv.FormatUint(accountID, 10))

	conn, _, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http"),
		header,
	)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatal(err)
	}

	snapshot := struct {
		Invites []struct {
			Code string `json:"code"`
		} `json:"invites"`
		Type string `json:"type"`
	}{}

	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatal(err)
	}

	if have, want := snapshot.Type, "snapshot"; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	if have, want := len(snapshot.Invites), 1; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}

	if have, want := snapshot.Invites[0].Code, minted.Code; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	readChange := func(want string) {
		t.Helper()

		// Delivery is at-least-once, frames for earlier writes may precede
		// the awaited one.
		for {
			change := struct {
				Invite struct {
					Code string `json:"code"`
				} `json:"invite"`
				Type string `json:"type"`
			}{}

			if err := conn.ReadJSON(&change); err != nil {
				t.Fatal(err)
			}

			if have, wantType := change.Type, "change"; have != wantType {
				t.Fatalf("have %v, want %v", have, wantType)
			}

			if change.Invite.Code == want {
				return
			}
		}
	}

	interleaved := <-interleavedc

	readChange(interleaved.Code)

	live, err := issueFn(namespace, origin, 0)
	if err != nil {
		t.Fatal(err)
	}

	readChange(live.Code)
}
