package core

import (
	"time"

	"github.com/tapglue/nexus/service/invite"
)

const defaultLimit = 25

// InviteIssueFunc mints a fresh invite on behalf of the origin, settling its
// quota unless the origin is privileged.
type InviteIssueFunc func(
	ns string,
	origin Origin,
	lifetime time.Duration,
) (*invite.Invite, error)

func InviteIssue(invites invite.Service) InviteIssueFunc {
	return func(
		ns string,
		origin Origin,
		lifetime time.Duration,
	) (*invite.Invite, error) {
		i, err := invites.Issue(ns, &invite.Issuance{
			IssuerID:   origin.AccountID,
			Lifetime:   lifetime,
			Privileged: origin.Privileged,
		})
		if err != nil {
			if invite.IsInvalidIssuance(err) {
				return nil, wrapError(ErrInvalidEntity, "%s", err)
			}

			return nil, err
		}

		return i, nil
	}
}

// InviteListFunc returns the invites minted by the origin newest first.
type InviteListFunc func(
	ns string,
	origin Origin,
	opts invite.QueryOptions,
) (invite.List, error)

func InviteList(invites invite.Service) InviteListFunc {
	return func(
		ns string,
		origin Origin,
		opts invite.QueryOptions,
	) (invite.List, error) {
		// Listing is always scoped to the origin, the stored options only
		// carry the cursor and filters.
		opts.IssuerIDs = []uint64{
			origin.AccountID,
		}

		if opts.Limit == 0 {
			opts.Limit = defaultLimit
		}

		return invites.Query(ns, opts)
	}
}

// InviteRedeemFunc consumes the invite behind the given code for the origin
// account.
type InviteRedeemFunc func(
	ns string,
	origin Origin,
	code string,
) (*invite.Invite, error)

func InviteRedeem(invites invite.Service) InviteRedeemFunc {
	return func(
		ns string,
		origin Origin,
		code string,
	) (*invite.Invite, error) {
		code = invite.NormalizeCode(code)

		if code == "" {
			return nil, wrapError(ErrInvalidEntity, "code must be set")
		}

		return invites.Redeem(ns, code, origin.AccountID)
	}
}

// InviteCountFunc returns the number of invites minted by the given issuer.
type InviteCountFunc func(ns string, issuerID uint64) (int, error)

func InviteCount(invites invite.Service) InviteCountFunc {
	return func(ns string, issuerID uint64) (int, error) {
		return invites.Count(ns, invite.QueryOptions{
			IssuerIDs: []uint64{
				issuerID,
			},
		})
	}
}
