package core

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/tapglue/nexus/service/invite"
	"github.com/tapglue/nexus/service/issuer"
)

func TestInviteIssue(t *testing.T) {
	var (
		namespace        = "invite_issue"
		issuers, invites = prepare()
		fn               = InviteIssue(invites)
	)

	account, err := issuers.Put(namespace, &issuer.Issuer{
		InvitesAvailable: 1,
		Role:             issuer.RoleOrdinary,
	})
	if err != nil {
		t.Fatal(err)
	}

	origin := Origin{AccountID: account.ID}

	i, err := fn(namespace, origin, 0)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := i.IssuerID, account.ID; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = fn(namespace, origin, 0)
	if have, want := invite.IsQuotaExhausted(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Unknown accounts surface as invalid input, not storage errors.
	_, err = fn(namespace, Origin{AccountID: uint64(rand.Int63())}, 0)
	if have, want := IsInvalidEntity(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	// Privileged origins mint without a quota record.
	_, err = fn(namespace, Origin{AccountID: uint64(rand.Int63()), Privileged: true}, 0)
	if err != nil {
		t.Fatal(err)
	}
}

func TestInviteList(t *testing.T) {
	var (
		namespace   = "invite_list"
		_, invites  = prepare()
		issueFn     = InviteIssue(invites)
		listFn      = InviteList(invites)
		origin      = Origin{AccountID: uint64(rand.Int63()), Privileged: true}
		otherOrigin = Origin{AccountID: uint64(rand.Int63()), Privileged: true}
	)

	for i := 0; i < 3; i++ {
		if _, err := issueFn(namespace, origin, 0); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := issueFn(namespace, otherOrigin, 0); err != nil {
		t.Fatal(err)
	}

	// Foreign scoping in the options is overridden with the origin.
	list, err := listFn(namespace, origin, invite.QueryOptions{
		IssuerIDs: []uint64{
			otherOrigin.AccountID,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 3; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	for _, i := range list {
		if have, want := i.IssuerID, origin.AccountID; have != want {
			t.Errorf("have %v, want %v", have, want)
		}
	}

	list, err = listFn(namespace, origin, invite.QueryOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 2; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestInviteRedeem(t *testing.T) {
	var (
		namespace  = "invite_redeem"
		_, invites = prepare()
		issueFn    = InviteIssue(invites)
		redeemFn   = InviteRedeem(invites)
		origin     = Origin{AccountID: uint64(rand.Int63()), Privileged: true}
		redeemer   = Origin{AccountID: uint64(rand.Int63())}
	)

	i, err := issueFn(namespace, origin, 0)
	if err != nil {
		t.Fatal(err)
	}

	// Codes are accepted independent of casing and surrounding whitespace.
	redeemed, err := redeemFn(namespace, redeemer, "  "+strings.ToLower(i.Code)+"\n")
	if err != nil {
		t.Fatal(err)
	}

	if have, want := redeemed.RedeemedBy, redeemer.AccountID; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = redeemFn(namespace, redeemer, "")
	if have, want := IsInvalidEntity(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = redeemFn(namespace, redeemer, i.Code)
	if have, want := invite.IsAlreadyUsed(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestIssuerFetch(t *testing.T) {
	var (
		namespace  = "issuer_fetch"
		issuers, _ = prepare()
		fn         = IssuerFetch(issuers)
	)

	account, err := issuers.Put(namespace, &issuer.Issuer{
		InvitesAvailable: 3,
		Role:             issuer.RoleOrdinary,
	})
	if err != nil {
		t.Fatal(err)
	}

	i, err := fn(namespace, Origin{AccountID: account.ID}, account.ID)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := i.InvitesAvailable, 3; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = fn(namespace, Origin{AccountID: uint64(rand.Int63())}, account.ID)
	if have, want := IsUnauthorized(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = fn(namespace, Origin{Privileged: true}, account.ID)
	if err != nil {
		t.Fatal(err)
	}

	_, err = fn(namespace, Origin{Privileged: true}, uint64(rand.Int63()))
	if have, want := IsNotFound(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func TestIssuerGrant(t *testing.T) {
	var (
		namespace  = "issuer_grant"
		issuers, _ = prepare()
		fn         = IssuerGrant(issuers)
		admin      = Origin{AccountID: uint64(rand.Int63()), Privileged: true}
	)

	account, err := issuers.Put(namespace, &issuer.Issuer{
		Role: issuer.RoleOrdinary,
	})
	if err != nil {
		t.Fatal(err)
	}

	granted, err := fn(namespace, admin, account.ID, 10)
	if err != nil {
		t.Fatal(err)
	}

	if have, want := granted.InvitesAvailable, 10; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = fn(namespace, Origin{AccountID: account.ID}, account.ID, 10)
	if have, want := IsUnauthorized(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = fn(namespace, admin, account.ID, -1)
	if have, want := IsInvalidEntity(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = fn(namespace, admin, uint64(rand.Int63()), 10)
	if have, want := IsNotFound(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func prepare() (issuer.Service, invite.Service) {
	issuers := issuer.MemService()

	return issuers, invite.MemService(issuers, invite.ConsumeAll)
}
