package core

import (
	"github.com/tapglue/nexus/service/issuer"
)

// IssuerFetchFunc returns the issuer record behind id. Ordinary origins can
// only inspect themselves.
type IssuerFetchFunc func(
	ns string,
	origin Origin,
	id uint64,
) (*issuer.Issuer, error)

func IssuerFetch(issuers issuer.Service) IssuerFetchFunc {
	return func(
		ns string,
		origin Origin,
		id uint64,
	) (*issuer.Issuer, error) {
		if !origin.Privileged && origin.AccountID != id {
			return nil, wrapError(ErrUnauthorized, "issuer (%d)", id)
		}

		is, err := issuers.Query(ns, issuer.QueryOptions{
			IDs: []uint64{
				id,
			},
		})
		if err != nil {
			return nil, err
		}

		if len(is) != 1 {
			return nil, wrapError(ErrNotFound, "issuer (%d)", id)
		}

		return is[0], nil
	}
}

// IssuerGrantFunc replenishes the quota of the issuer behind id. Reserved for
// privileged origins.
type IssuerGrantFunc func(
	ns string,
	origin Origin,
	id uint64,
	quota int,
) (*issuer.Issuer, error)

func IssuerGrant(issuers issuer.Service) IssuerGrantFunc {
	return func(
		ns string,
		origin Origin,
		id uint64,
		quota int,
	) (*issuer.Issuer, error) {
		if !origin.Privileged {
			return nil, wrapError(ErrUnauthorized, "origin (%d)", origin.AccountID)
		}

		if quota < 0 {
			return nil, wrapError(ErrInvalidEntity, "quota must not be negative")
		}

		err := issuers.SetQuota(ns, id, quota)
		if err != nil {
			if issuer.IsNotFound(err) {
				return nil, wrapError(ErrNotFound, "issuer (%d)", id)
			}

			return nil, err
		}

		is, err := issuers.Query(ns, issuer.QueryOptions{
			IDs: []uint64{
				id,
			},
		})
		if err != nil {
			return nil, err
		}

		if len(is) != 1 {
			return nil, wrapError(ErrNotFound, "issuer (%d)", id)
		}

		return is[0], nil
	}
}
