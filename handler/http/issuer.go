package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/context"

	"github.com/tapglue/nexus/core"
	"github.com/tapglue/nexus/service/issuer"
)

// IssuerRetrieve returns the issuer record behind the id together with its
// issuance tally.
func IssuerRetrieve(
	fetchFn core.IssuerFetchFunc,
	countFn core.InviteCountFunc,
) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			ns     = namespaceFromContext(ctx)
			origin = originFromContext(ctx)
		)

		id, err := extractIssuerID(r)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		i, err := fetchFn(ns, origin, id)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		count, err := countFn(ns, id)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusOK, &payloadIssuer{
			issuer:       i,
			invitesTotal: count,
		})
	}
}

// IssuerGrant replenishes the quota of the issuer behind the id.
func IssuerGrant(fn core.IssuerGrantFunc) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		var (
			ns     = namespaceFromContext(ctx)
			origin = originFromContext(ctx)
			p      = payloadGrant{}
		)

		id, err := extractIssuerID(r)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		err = json.NewDecoder(r.Body).Decode(&p)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		i, err := fn(ns, origin, id, p.Quota)
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusOK, &payloadIssuer{issuer: i})
	}
}

type payloadGrant struct {
	Quota int `json:"quota"`
}

type payloadIssuer struct {
	issuer       *issuer.Issuer
	invitesTotal int
}

func (p *payloadIssuer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CreatedAt        string `json:"created_at"`
		ID               string `json:"id"`
		InvitesAvailable int    `json:"invites_available"`
		InvitesTotal     int    `json:"invites_total"`
		Role             string `json:"role"`
		UpdatedAt        string `json:"updated_at"`
	}{
		CreatedAt:        p.issuer.CreatedAt.Format(time.RFC3339Nano),
		ID:               strconv.FormatUint(p.issuer.ID, 10),
		InvitesAvailable: p.issuer.InvitesAvailable,
		InvitesTotal:     p.invitesTotal,
		Role:             string(p.issuer.Role),
		UpdatedAt:        p.issuer.UpdatedAt.Format(time.RFC3339Nano),
	})
}
