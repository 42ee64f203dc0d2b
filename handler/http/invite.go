package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/context"

	"github.com/tapglue/nexus/core"
	"github.com/tapglue/nexus/service/invite"
)

// InviteIssue mints a fresh invite on behalf of the requesting account.
func InviteIssue(fn core.InviteIssueFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			ns     = namespaceFromContext(ctx)
			origin = originFromContext(ctx)
			p      = payloadIssuance{}
		)

		if r.ContentLength > 0 {
			err := json.NewDecoder(r.Body).Decode(&p)
			if err != nil {
				respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
				return
			}
		}

		i, err := fn(ns, origin, time.Duration(p.ExpiresIn)*time.Second)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusCreated, &payloadInvite{invite: i})
	}
}

// InviteList returns the invites minted by the requesting account newest
// first.
func InviteList(fn core.InviteListFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			ns     = namespaceFromContext(ctx)
			origin = originFromContext(ctx)
		)

		opts, err := extractInviteOpts(r)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		is, err := fn(ns, origin, opts)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		if len(is) == 0 {
			respondJSON(w, http.StatusNoContent, nil)
			return
		}

		respondJSON(w, http.StatusOK, &payloadInvites{
			invites: is,
			pagination: pagination(
				r,
				int(opts.Limit),
				toTimeCursor(is[len(is)-1].CreatedAt),
			),
		})
	}
}

// InviteRedeem consumes the invite behind the submitted code for the
// requesting account.
func InviteRedeem(fn core.InviteRedeemFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			ns     = namespaceFromContext(ctx)
			origin = originFromContext(ctx)
			p      = payloadRedemption{}
		)

		err := json.NewDecoder(r.Body).Decode(&p)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		i, err := fn(ns, origin, p.Code)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusOK, &payloadInvite{invite: i})
	}
}

type payloadIssuance struct {
	ExpiresIn int64 `json:"expires_in"`
}

type payloadRedemption struct {
	Code string `json:"code"`
}

type payloadInvite struct {
	invite *invite.Invite
}

func (p *payloadInvite) MarshalJSON() ([]byte, error) {
	var (
		i = p.invite

		redeemedAt *string
		redeemedBy string
	)

	if i.State() == invite.StateUsed {
		at := i.RedeemedAt.Format(time.RFC3339Nano)

		redeemedAt = &at
		redeemedBy = strconv.FormatUint(i.RedeemedBy, 10)
	}

	return json.Marshal(struct {
		Code       string  `json:"code"`
		CreatedAt  string  `json:"created_at"`
		ExpiresAt  string  `json:"expires_at"`
		ID         string  `json:"id"`
		IssuerID   string  `json:"issuer_id"`
		RedeemedAt *string `json:"redeemed_at,omitempty"`
		RedeemedBy string  `json:"redeemed_by,omitempty"`
		State      string  `json:"state"`
	}{
		Code:       i.Code,
		CreatedAt:  i.CreatedAt.Format(time.RFC3339Nano),
		ExpiresAt:  i.ExpiresAt.Format(time.RFC3339Nano),
		ID:         strconv.FormatUint(i.ID, 10),
		IssuerID:   strconv.FormatUint(i.IssuerID, 10),
		RedeemedAt: redeemedAt,
		RedeemedBy: redeemedBy,
		State:      string(i.State()),
	})
}

type payloadInvites struct {
	invites    invite.List
	pagination *payloadPagination
}

func (p *payloadInvites) MarshalJSON() ([]byte, error) {
	is := []*payloadInvite{}

	for _, i := range p.invites {
		is = append(is, &payloadInvite{invite: i})
	}

	return json.Marshal(struct {
		Invites []*payloadInvite   `json:"invites"`
		Count   int                `json:"invites_count"`
		Paging  *payloadPagination `json:"paging"`
	}{
		Invites: is,
		Count:   len(is),
		Paging:  p.pagination,
	})
}
