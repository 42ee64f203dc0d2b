package cache

import (
	"time"

	kitmetrics "github.com/go-kit/kit/metrics"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tapglue/nexus/platform/metrics"
)

type instrumentCountService struct {
	component string
	errCount  kitmetrics.Counter
	hitCount  kitmetrics.Counter
	next      CountService
	opCount   kitmetrics.Counter
	opLatency *prometheus.HistogramVec
	service   string
	store     string
}

// InstrumentCountServiceMiddleware observes key aspects of CountService
// operations and exposes Prometheus metrics.
func InstrumentCountServiceMiddleware(
	component, service, store string,
	errCount kitmetrics.Counter,
	hitCount kitmetrics.Counter,
	opCount kitmetrics.Counter,
	opLatency *prometheus.HistogramVec,
) CountServiceMiddleware {
	return func(next CountService) CountService {
		return &instrumentCountService{
			component: component,
			errCount:  errCount,
			hitCount:  hitCount,
			next:      next,
			opCount:   opCount,
			opLatency: opLatency,
			service:   service,
			store:     store,
		}
	}
}

func (s *instrumentCountService) Get(ns, key string) (count int, err error) {
	defer func(begin time.Time) {
		s.track("Get", ns, begin, err)

		if err == nil {
			s.hitCount.With(
				metrics.FieldComponent, s.component,
				metrics.FieldMethod, "Get",
				metrics.FieldNamespace, ns,
				metrics.FieldService, s.service,
				metrics.FieldStore, s.store,
			).Add(1)
		}
	}(time.Now())

	return s.next.Get(ns, key)
}

func (s *instrumentCountService) Purge(ns, key string) (err error) {
	defer func(begin time.Time) {
		s.track("Purge", ns, begin, err)
	}(time.Now())

	return s.next.Purge(ns, key)
}

func (s *instrumentCountService) Set(ns, key string, count int) (err error) {
	defer func(begin time.Time) {
		s.track("Set", ns, begin, err)
	}(time.Now())

	return s.next.Set(ns, key, count)
}

func (s *instrumentCountService) track(
	method, namespace string,
	begin time.Time,
	err error,
) {
	if err != nil && !IsKeyNotFound(err) {
		s.errCount.With(
			metrics.FieldComponent, s.component,
			metrics.FieldMethod, method,
			metrics.FieldNamespace, namespace,
			metrics.FieldService, s.service,
			metrics.FieldStore, s.store,
		).Add(1)
	}

	s.opCount.With(
		metrics.FieldComponent, s.component,
		metrics.FieldMethod, method,
		metrics.FieldNamespace, namespace,
		metrics.FieldService, s.service,
		metrics.FieldStore, s.store,
	).Add(1)

	s.opLatency.With(prometheus.Labels{
		metrics.FieldComponent: s.component,
		metrics.FieldMethod:    method,
		metrics.FieldNamespace: namespace,
		metrics.FieldService:   s.service,
		metrics.FieldStore:     s.store,
	}).Observe(time.Since(begin).Seconds())
}
