package issuer

import (
	"sort"
	"sync"
	"time"

	"github.com/tapglue/nexus/platform/flake"
)

type memService struct {
	mu      sync.RWMutex
	issuers map[string]map[uint64]*Issuer
}

// MemService returns a memory based Service implementation.
func MemService() Service {
	return &memService{
		issuers: map[string]map[uint64]*Issuer{},
	}
}

func (s *memService) Put(ns string, input *Issuer) (*Issuer, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.setup(ns)

	var (
		bucket = s.issuers[ns]
		now    = time.Now().UTC()
	)

	if input.ID == 0 {
		id, err := flake.NextID(flake.Namespace(ns, entity))
		if err != nil {
			return nil, err
		}

		input.ID = id
	}

	if i, ok := bucket[input.ID]; ok {
		input.CreatedAt = i.CreatedAt
	} else if input.CreatedAt.IsZero() {
		input.CreatedAt = now
	}

	input.UpdatedAt = now
	bucket[input.ID] = copyIssuer(input)

	return copyIssuer(input), nil
}

func (s *memService) Query(ns string, opts QueryOptions) (List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	is := List{}

	for _, i := range s.issuers[ns] {
		if !opts.Before.IsZero() && !i.CreatedAt.Before(opts.Before) {
			continue
		}

		if !inIDs(i.ID, opts.IDs) {
			continue
		}

		if !inRoles(i.Role, opts.Roles) {
			continue
		}

		is = append(is, copyIssuer(i))
	}

	sort.Sort(is)

	if opts.Limit > 0 && uint(len(is)) > opts.Limit {
		is = is[:opts.Limit]
	}

	return is, nil
}

func (s *memService) Quota(ns string, id uint64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.issuers[ns][id]
	if !ok {
		return 0, wrapError(ErrNotFound, "issuer (%d)", id)
	}

	return i.InvitesAvailable, nil
}

func (s *memService) SetQuota(ns string, id uint64, quota int) error {
	if quota < 0 {
		return wrapError(ErrInvalidIssuer, "invites available must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.issuers[ns][id]
	if !ok {
		return wrapError(ErrNotFound, "issuer (%d)", id)
	}

	i.InvitesAvailable = quota
	i.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *memService) Setup(ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setup(ns)

	return nil
}

func (s *memService) Teardown(ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.issuers, ns)

	return nil
}

func (s *memService) setup(ns string) {
	if _, ok := s.issuers[ns]; !ok {
		s.issuers[ns] = map[uint64]*Issuer{}
	}
}

func copyIssuer(i *Issuer) *Issuer {
	old := *i
	return &old
}

func inIDs(id uint64, ids []uint64) bool {
	if len(ids) == 0 {
		return true
	}

	keep := false

	for _, i := range ids {
		if id == i {
			keep = true
			break
		}
	}

	return keep
}

func inRoles(role Role, rs []Role) bool {
	if len(rs) == 0 {
		return true
	}

	keep := false

	for _, r := range rs {
		if role == r {
			keep = true
			break
		}
	}

	return keep
}
