package invite

import (
	"sort"
	"sync"
	"time"

	"github.com/tapglue/nexus/platform/flake"
	"github.com/tapglue/nexus/service/issuer"
)

// codeAttempts bounds the candidate generation on collision before the
// issuance is given up as contended.
const codeAttempts = 3

type memService struct {
	mu      sync.Mutex
	invites map[string]map[string]*Invite
	ledger  Ledger
	mode    ConsumeMode
}

// MemService returns a memory based Service implementation backed by the
// given quota ledger.
func MemService(ledger Ledger, mode ConsumeMode) Service {
	return &memService{
		invites: map[string]map[string]*Invite{},
		ledger:  ledger,
		mode:    mode,
	}
}

func (s *memService) Count(ns string, opts QueryOptions) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setup(ns)

	return len(filterInvites(s.invites[ns], opts)), nil
}

func (s *memService) Issue(ns string, issuance *Issuance) (*Invite, error) {
	if err := issuance.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.setup(ns)

	var (
		bucket = s.invites[ns]
		now    = time.Now().UTC()
		quota  = 0
	)

	if !issuance.Privileged {
		q, err := s.ledger.Quota(ns, issuance.IssuerID)
		if issuer.IsNotFound(err) {
			return nil, wrapError(ErrInvalidIssuance, "unknown issuer (%d)", issuance.IssuerID)
		}
		if err != nil {
			return nil, err
		}

		if q <= 0 {
			return nil, wrapError(ErrQuotaExhausted, "issuer (%d)", issuance.IssuerID)
		}

		quota = q
	}

	code := ""

	for i := 0; i < codeAttempts; i++ {
		candidate := GenerateCode()

		if _, ok := bucket[candidate]; !ok {
			code = candidate
			break
		}
	}

	if code == "" {
		return nil, wrapError(ErrContention, "issue for issuer (%d)", issuance.IssuerID)
	}

	id, err := flake.NextID(flake.Namespace(ns, entity))
	if err != nil {
		return nil, err
	}

	lifetime := issuance.Lifetime
	if lifetime == 0 {
		lifetime = DefaultLifetime
	}

	invite := &Invite{
		Code:      code,
		ID:        id,
		IssuerID:  issuance.IssuerID,
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
		UpdatedAt: now,
	}

	if !issuance.Privileged {
		remaining := 0

		if s.mode == ConsumeSingle {
			remaining = quota - 1
		}

		if err := s.ledger.SetQuota(ns, issuance.IssuerID, remaining); err != nil {
			return nil, err
		}
	}

	bucket[invite.Code] = copyInvite(invite)

	return copyInvite(invite), nil
}

func (s *memService) Query(ns string, opts QueryOptions) (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setup(ns)

	is := filterInvites(s.invites[ns], opts)

	sort.Sort(is)

	if opts.Limit > 0 && uint(len(is)) > opts.Limit {
		is = is[:opts.Limit]
	}

	return is, nil
}

func (s *memService) Redeem(ns, code string, accountID uint64) (*Invite, error) {
	if accountID == 0 {
		return nil, wrapError(ErrInvalidRedemption, "account id must be set")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.setup(ns)

	invite, ok := s.invites[ns][code]
	if !ok {
		return nil, wrapError(ErrNotFound, "invite '%s'", code)
	}

	now := time.Now().UTC()

	if invite.State() == StateUsed {
		return nil, wrapError(ErrAlreadyUsed, "invite '%s'", code)
	}

	if invite.ExpiredAt(now) {
		return nil, wrapError(ErrExpired, "invite '%s'", code)
	}

	invite.RedeemedBy = accountID
	invite.RedeemedAt = now
	invite.UpdatedAt = now

	return copyInvite(invite), nil
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

	delete(s.invites, ns)

	return nil
}

func (s *memService) setup(ns string) {
	if _, ok := s.invites[ns]; !ok {
		s.invites[ns] = map[string]*Invite{}
	}
}

func copyInvite(i *Invite) *Invite {
	old := *i
	return &old
}

func filterInvites(bucket map[string]*Invite, opts QueryOptions) List {
	is := List{}

	for _, i := range bucket {
		if !opts.Before.IsZero() && !i.CreatedAt.Before(opts.Before) {
			continue
		}

		if !inCodes(i.Code, opts.Codes) {
			continue
		}

		if !inIDs(i.ID, opts.IDs) {
			continue
		}

		if !inIDs(i.IssuerID, opts.IssuerIDs) {
			continue
		}

		if opts.Used != nil && (i.State() == StateUsed) != *opts.Used {
			continue
		}

		is = append(is, copyInvite(i))
	}

	return is
}

func inCodes(code string, cs []string) bool {
	if len(cs) == 0 {
		return true
	}

	keep := false

	for _, c := range cs {
		if code == c {
			keep = true
			break
		}
	}

	return keep
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
