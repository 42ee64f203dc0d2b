package invite

import "time"

type sourcingService struct {
	producer Producer
	service  Service
}

// SourcingServiceMiddleware propagates state changes for the Service via the
// given Producer.
func SourcingServiceMiddleware(producer Producer) ServiceMiddleware {
	return func(service Service) Service {
		return &sourcingService{
			producer: producer,
			service:  service,
		}
	}
}

func (s *sourcingService) Count(ns string, opts QueryOptions) (int, error) {
	return s.service.Count(ns, opts)
}

func (s *sourcingService) Issue(
	ns string,
	issuance *Issuance,
) (new *Invite, err error) {
	defer func() {
		if err == nil {
			_, _ = s.producer.Propagate(ns, nil, new)
		}
	}()

	return s.service.Issue(ns, issuance)
}

func (s *sourcingService) Query(ns string, opts QueryOptions) (List, error) {
	return s.service.Query(ns, opts)
}

func (s *sourcingService) Redeem(
	ns, code string,
	accountID uint64,
) (new *Invite, err error) {
	defer func() {
		if err == nil {
			old := *new
			old.RedeemedBy = 0
			old.RedeemedAt = time.Time{}
			old.UpdatedAt = new.CreatedAt

			_, _ = s.producer.Propagate(ns, &old, new)
		}
	}()

	return s.service.Redeem(ns, code, accountID)
}

func (s *sourcingService) Setup(ns string) error {
	return s.service.Setup(ns)
}

func (s *sourcingService) Teardown(ns string) error {
	return s.service.Teardown(ns)
}
