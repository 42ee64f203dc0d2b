package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	awsSession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/go-kit/kit/log"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tapglue/nexus/core"
	handler "github.com/tapglue/nexus/handler/http"
	"github.com/tapglue/nexus/platform/cache"
	"github.com/tapglue/nexus/platform/limiter"
	"github.com/tapglue/nexus/platform/metrics"
	"github.com/tapglue/nexus/platform/redis"
	"github.com/tapglue/nexus/service/invite"
	"github.com/tapglue/nexus/service/issuer"
)

// Logging and telemetry identifiers.
const (
	component           = "gateway-http"
	namespaceCache      = "cache"
	namespaceService    = "service"
	namespaceSource     = "source"
	subsystemHit        = "hit"
	subsystemQueue      = "queue"
	serviceInviteCounts = "invite_counts"
	storeCache          = "redis"
	storeService        = "postgres"
)

// Versions.
const (
	versionCurrent = "0.1"
)

// Supported source types.
const (
	sourceChannel = "channel"
	sourceNop     = "nop"
	sourceSQS     = "sqs"
)

// Supported quota consumption modes.
const (
	consumeAll    = "all"
	consumeSingle = "single"
)

// Prefixes.
const (
	prefixRateLimiter = "ratelimiter:account:"
)

// Timeouts
const (
	defaultReadTimeout  = 2 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// Buildtime vars.
var (
	revision = "0000000-dev"
)

func main() {
	var (
		begin = time.Now()

		awsID         = flag.String("aws.id", "", "Identifier for AWS requests")
		awsRegion     = flag.String("aws.region", "us-east-1", "AWS Region to operate in")
		awsSecret     = flag.String("aws.secret", "", "Identification secret for AWS requests")
		consumeMode   = flag.String("invite.consume", consumeAll, "Quota consumption mode applied per issuance (all|single)")
		listenAddr    = flag.String("listen.addr", ":8083", "HTTP bind address for main API")
		namespace     = flag.String("namespace", "nexus", "Storage namespace all services operate in")
		postgresURL   = flag.String("postgres.url", "", "Postgres URL to connect to")
		rateLimit     = flag.Int64("ratelimit", 1000, "Request limit per account and minute")
		redisAddr     = flag.String("redis.addr", ":6379", "Redis address to connect to")
		source        = flag.String("source", sourceChannel, "Source type used for state change propagations")
		telemetryAddr = flag.String("telemetry.addr", ":9000", "HTTP bind address where prometheus telemetry is exposed")
	)
	flag.Parse()

	// Setup logging.
	logger := log.With(
		log.NewJSONLogger(os.Stdout),
		"caller", log.Caller(3),
		"component", component,
		"revision", revision,
	)

	hostname, err := os.Hostname()
	if err != nil {
		logger.Log("err", err, "lifecycle", "abort")
	}

	logger = log.With(logger, "host", hostname)

	// Setup instrumentation.
	go func(addr string) {
		logger.Log(
			"duration", time.Since(begin).Nanoseconds(),
			"lifecycle", "start",
			"listen", addr,
			"sub", "telemetry",
		)

		http.Handle("/metrics", promhttp.Handler())

		err := http.ListenAndServe(addr, nil)
		if err != nil {
			logger.Log("err", err, "lifecycle", "abort", "sub", "telemetry")
			os.Exit(1)
		}
	}(*telemetryAddr)

	cacheFieldKeys := []string{
		metrics.FieldComponent,
		metrics.FieldMethod,
		metrics.FieldNamespace,
		metrics.FieldService,
		metrics.FieldStore,
	}

	cacheErrCount, cacheOpCount, cacheOpLatency := metrics.KeyMetrics(
		namespaceCache,
		cacheFieldKeys...,
	)

	cacheHitCount := kitprometheus.NewCounterFrom(prometheus.CounterOpts{
		Namespace: namespaceCache,
		Subsystem: subsystemHit,
		Name:      "count",
		Help:      "Number of cache hits",
	}, cacheFieldKeys)

	serviceErrCount, serviceOpCount, serviceOpLatency := metrics.KeyMetrics(
		namespaceService,
		metrics.FieldComponent,
		metrics.FieldMethod,
		metrics.FieldNamespace,
		metrics.FieldService,
		metrics.FieldStore,
	)

	sourceFieldKeys := []string{
		metrics.FieldComponent,
		metrics.FieldMethod,
		metrics.FieldNamespace,
		metrics.FieldSource,
		metrics.FieldStore,
	}

	sourceErrCount, sourceOpCount, sourceOpLatency := metrics.KeyMetrics(
		namespaceSource,
		sourceFieldKeys...,
	)

	sourceQueueLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespaceSource,
			Subsystem: subsystemQueue,
			Name:      "latency_seconds",
			Help:      "Distribution of message queue latency in seconds",
			Buckets:   metrics.BucketsQueue,
		},
		sourceFieldKeys,
	)
	prometheus.MustRegister(sourceQueueLatency)

	// Setup clients.
	var (
		aSession = awsSession.New(&aws.Config{
			Credentials: credentials.NewStaticCredentials(*awsID, *awsSecret, ""),
			Region:      aws.String(*awsRegion),
		})
		redisPool   = redis.Pool(*redisAddr, "")
		rateLimiter = limiter.Redis(redisPool, prefixRateLimiter)
		sqsAPI      = sqs.New(aSession)
	)

	pgClient, err := sqlx.Connect(storeService, *postgresURL)
	if err != nil {
		logger.Log("err", err, "lifecycle", "abort")
		os.Exit(1)
	}

	var mode invite.ConsumeMode

	switch *consumeMode {
	case consumeAll:
		mode = invite.ConsumeAll
	case consumeSingle:
		mode = invite.ConsumeSingle
	default:
		logger.Log(
			"err", fmt.Sprintf("Consume mode '%s' not supported", *consumeMode),
			"lifecycle", "abort",
		)
		os.Exit(1)
	}

	// Setup caches.
	var inviteCountsCache cache.CountService
	inviteCountsCache = cache.RedisCountService(redisPool)
	inviteCountsCache = cache.InstrumentCountServiceMiddleware(
		component,
		serviceInviteCounts,
		storeCache,
		cacheErrCount,
		cacheHitCount,
		cacheOpCount,
		cacheOpLatency,
	)(inviteCountsCache)

	// Setup sources.
	var inviteSource invite.Source

	switch *source {
	case sourceChannel:
		inviteSource = invite.ChannelSource(0)
	case sourceNop:
		inviteSource = invite.NopSource()
	case sourceSQS:
		inviteSource, err = invite.SQSSource(sqsAPI)
		if err != nil {
			logger.Log("err", err, "lifecycle", "abort")
			os.Exit(1)
		}
	default:
		logger.Log(
			"err", fmt.Sprintf("Source type '%s' not supported", *source),
			"lifecycle", "abort",
		)
		os.Exit(1)
	}

	inviteSource = invite.InstrumentSourceMiddleware(
		component,
		*source,
		sourceErrCount,
		sourceOpCount,
		sourceOpLatency,
		sourceQueueLatency,
	)(inviteSource)
	inviteSource = invite.LogSourceMiddleware(*source, logger)(inviteSource)

	// Setup services.
	var issuers issuer.Service
	issuers = issuer.PostgresService(pgClient)
	issuers = issuer.InstrumentServiceMiddleware(
		component,
		storeService,
		serviceErrCount,
		serviceOpCount,
		serviceOpLatency,
	)(issuers)
	issuers = issuer.LogServiceMiddleware(logger, storeService)(issuers)

	var invites invite.Service
	invites = invite.PostgresService(pgClient, mode)
	invites = invite.InstrumentServiceMiddleware(
		component,
		storeService,
		serviceErrCount,
		serviceOpCount,
		serviceOpLatency,
	)(invites)
	invites = invite.LogServiceMiddleware(logger, storeService)(invites)
	// Combine invite service and source.
	invites = invite.SourcingServiceMiddleware(inviteSource)(invites)
	// Wrap service with caching.
	invites = invite.CacheServiceMiddleware(inviteCountsCache)(invites)

	// Setup feed fan-out.
	feed := core.NewFeed()

	if *source != sourceNop {
		go func() {
			err := feed.Run(inviteSource)
			if err != nil {
				logger.Log("err", err, "lifecycle", "abort", "sub", "feed")
				os.Exit(1)
			}
		}()
	}

	// Setup middlewares.
	var (
		withOrigin = handler.Chain(
			handler.CtxPrepare(versionCurrent),
			handler.Log(logger),
			handler.Instrument(component),
			handler.SecureHeaders(),
			handler.DebugHeaders(revision, hostname),
			handler.CORS(),
			handler.Gzip(),
			handler.HasUserAgent(),
			handler.CtxNamespace(*namespace),
			handler.CtxOrigin(issuers),
			handler.RateLimit(rateLimiter, *rateLimit),
		)
		// Gzip breaks the websocket upgrade.
		withOriginStream = handler.Chain(
			handler.CtxPrepare(versionCurrent),
			handler.Log(logger),
			handler.Instrument(component),
			handler.SecureHeaders(),
			handler.DebugHeaders(revision, hostname),
			handler.CtxNamespace(*namespace),
			handler.CtxOrigin(issuers),
		)
	)

	// Setup Router.
	router := mux.NewRouter().StrictSlash(true)

	router.Methods("GET").Path(`/health-45016490610398192`).Name("healthcheck").HandlerFunc(
		handler.Wrap(
			handler.CtxPrepare(versionCurrent),
			handler.Health(pgClient, redisPool),
		),
	)

	current := router.PathPrefix(fmt.Sprintf("/%s", versionCurrent)).Subrouter()

	// Invite routes.
	current.Methods("POST").Path(`/me/invites`).Name("inviteIssue").HandlerFunc(
		handler.Wrap(
			withOrigin,
			handler.InviteIssue(
				core.InviteIssue(invites),
			),
		),
	)

	current.Methods("GET").Path(`/me/invites`).Name("inviteList").HandlerFunc(
		handler.Wrap(
			withOrigin,
			handler.InviteList(
				core.InviteList(invites),
			),
		),
	)

	current.Methods("GET").Path(`/me/invites/feed`).Name("inviteFeed").HandlerFunc(
		handler.Wrap(
			withOriginStream,
			handler.InviteFeed(
				feed,
				core.InviteList(invites),
			),
		),
	)

	current.Methods("POST").Path(`/invites/redeem`).Name("inviteRedeem").HandlerFunc(
		handler.Wrap(
			withOrigin,
			handler.InviteRedeem(
				core.InviteRedeem(invites),
			),
		),
	)

	// Issuer routes.
	current.Methods("GET").Path(`/issuers/{issuerID:[0-9]+}`).Name("issuerRetrieve").HandlerFunc(
		handler.Wrap(
			withOrigin,
			handler.IssuerRetrieve(
				core.IssuerFetch(issuers),
				core.InviteCount(invites),
			),
		),
	)

	current.Methods("POST").Path(`/issuers/{issuerID:[0-9]+}/grants`).Name("issuerGrant").HandlerFunc(
		handler.Wrap(
			withOrigin,
			handler.IssuerGrant(
				core.IssuerGrant(issuers),
			),
		),
	)

	// Setup server.
	server := &http.Server{
		Addr:         *listenAddr,
		Handler:      router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	logger.Log(
		"duration", time.Since(begin).Nanoseconds(),
		"lifecycle", "start",
		"listen", *listenAddr,
		"sub", "api",
	)

	err = server.ListenAndServe()
	if err != nil {
		logger.Log("err", err, "lifecycle", "abort", "sub", "api")
		os.Exit(1)
	}
}
