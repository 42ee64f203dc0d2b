package invite

import (
	"fmt"

	"github.com/tapglue/nexus/platform/cache"
)

const cachePrefixCount = "invites.count"

type cacheService struct {
	countsCache cache.CountService
	next        Service
}

// CacheServiceMiddleware adds caching of issuer scoped counts to the Service,
// purging on the write paths so observers never see stale counts for longer
// than a single round-trip.
func CacheServiceMiddleware(countsCache cache.CountService) ServiceMiddleware {
	return func(next Service) Service {
		return &cacheService{
			countsCache: countsCache,
			next:        next,
		}
	}
}

func (s *cacheService) Count(ns string, opts QueryOptions) (int, error) {
	key, ok := cacheCountKey(opts)
	if !ok {
		return s.next.Count(ns, opts)
	}

	count, err := s.countsCache.Get(ns, key)
	if err == nil {
		return count, nil
	}

	if !cache.IsKeyNotFound(err) {
		return -1, err
	}

	count, err = s.next.Count(ns, opts)
	if err != nil {
		return -1, err
	}

	err = s.countsCache.Set(ns, key, count)

	return count, err
}

func (s *cacheService) Issue(ns string, issuance *Issuance) (*Invite, error) {
	i, err := s.next.Issue(ns, issuance)
	if err != nil {
		return nil, err
	}

	s.purge(ns, i.IssuerID)

	return i, nil
}

func (s *cacheService) Query(ns string, opts QueryOptions) (List, error) {
	return s.next.Query(ns, opts)
}

func (s *cacheService) Redeem(ns, code string, accountID uint64) (*Invite, error) {
	i, err := s.next.Redeem(ns, code, accountID)
	if err != nil {
		return nil, err
	}

	s.purge(ns, i.IssuerID)

	return i, nil
}

func (s *cacheService) Setup(ns string) error {
	return s.next.Setup(ns)
}

func (s *cacheService) Teardown(ns string) error {
	return s.next.Teardown(ns)
}

func (s *cacheService) purge(ns string, issuerID uint64) {
	key, ok := cacheCountKey(QueryOptions{
		IssuerIDs: []uint64{
			issuerID,
		},
	})
	if !ok {
		return
	}

	// The count is recomputed on the next read, a failed purge only extends
	// staleness until the TTL runs out.
	_ = s.countsCache.Purge(ns, key)
}

// cacheCountKey maps the query shape onto a stable key, only single issuer
// scoped counts are cacheable.
func cacheCountKey(opts QueryOptions) (string, bool) {
	if len(opts.IssuerIDs) != 1 {
		return "", false
	}

	if !opts.Before.IsZero() ||
		len(opts.Codes) > 0 ||
		len(opts.IDs) > 0 ||
		opts.Limit > 0 ||
		opts.Used != nil {
		return "", false
	}

	return fmt.Sprintf("%s.issuer.%d", cachePrefixCount, opts.IssuerIDs[0]), true
}
