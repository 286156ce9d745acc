package container

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jaevor/go-nanoid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/keythrottle/internal/audit"
	auditstore "github.com/serroba/keythrottle/internal/audit/store"
	"github.com/serroba/keythrottle/internal/handlers"
	"github.com/serroba/keythrottle/internal/health"
	"github.com/serroba/keythrottle/internal/messaging"
	"github.com/serroba/keythrottle/internal/metrics"
	"github.com/serroba/keythrottle/internal/middleware"
	"github.com/serroba/keythrottle/internal/ratelimit"
	"github.com/serroba/keythrottle/internal/store"
	"go.uber.org/zap"
)

// Backends accepted by Options.Backend.
const (
	BackendLocal = "local"
	BackendRedis = "redis"

	// AuditConsumerGroup is the Redis stream consumer group that persists denied events.
	AuditConsumerGroup = "ratelimit-audit"

	requestIDLength = 21
)

// Options is the server configuration, parsed from flags and SERVICE_*
// environment variables by humacli.
type Options struct {
	Port        int    `default:"8888"           help:"Port to listen on"                                  short:"p"`
	RedisAddr   string `default:"localhost:6379" help:"Redis server address"                               short:"r"`
	DatabaseURL string `default:""               help:"PostgreSQL URL for the audit store, empty logs only" short:"d"`
	LogFormat   string `default:"console"        help:"Log format: console or json"                        short:"l"`
	Backend     string `default:"local"          help:"Limiter backend: local or redis"                    short:"b"`
	WindowMS    int    `default:"10000"          help:"Sliding window length in milliseconds"              short:"w"`
	Capacity    int    `default:"500"            help:"Maximum distinct keys held in memory"               short:"c"`
	GlobalLimit int    `default:"100"            help:"Requests per window a client may make overall"`
	ReadLimit   int    `default:"80"             help:"Requests per window a client may make to read endpoints"`
	WriteLimit  int    `default:"20"             help:"Requests per window a client may make to write endpoints"`
	AuditEvents bool   `default:"false"          help:"Publish denied requests to the Redis stream"`
	AdminToken  string `default:""               help:"Shared secret for /admin routes, empty disables them"`
	TrustProxy  bool   `default:"false"          help:"Take client IPs from X-Forwarded-For and X-Real-IP"`
}

// LimiterConfig returns the window limiter settings described by the options.
func (o *Options) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		Window:   time.Duration(o.WindowMS) * time.Millisecond,
		Capacity: o.Capacity,
	}
}

// Policy returns the per-client scope limits described by the options.
func (o *Options) Policy() *ratelimit.Policy {
	return &ratelimit.Policy{
		Limits: map[ratelimit.Scope]int{
			ratelimit.ScopeGlobal: o.GlobalLimit,
			ratelimit.ScopeRead:   o.ReadLimit,
			ratelimit.ScopeWrite:  o.WriteLimit,
		},
	}
}

// RedisService owns the shared Redis client and closes it on shutdown.
type RedisService struct {
	Client redis.UniversalClient
}

// Shutdown closes the client and its connection pool.
func (r *RedisService) Shutdown() error {
	return r.Client.Close()
}

func LoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		if opts.LogFormat == "json" {
			return zap.NewProduction()
		}

		return zap.NewDevelopment()
	})
}

func RedisPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*RedisService, error) {
		opts := do.MustInvoke[*Options](i)

		return &RedisService{
			Client: redis.NewClient(&redis.Options{Addr: opts.RedisAddr}),
		}, nil
	})
}

// PostgresPackage provides the audit store. Without a database URL denied
// events are only logged.
func PostgresPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (audit.Store, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if opts.DatabaseURL == "" {
			logger.Info("no database configured, denied events are logged only")

			return auditstore.NewNoop(logger), nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}

		auditStore := store.NewPostgresAuditStore(pool)
		if err := auditStore.EnsureSchema(ctx); err != nil {
			pool.Close()

			return nil, err
		}

		return auditStore, nil
	})
}

func MetricsPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*metrics.LimiterMetrics, error) {
		return metrics.New(), nil
	})
}

// RateLimitPackage provides the limiter answering /v1/check and the policy
// limiter guarding the HTTP API. The policy limiter is always in-memory so
// it keeps working when Redis does not.
func RateLimitPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*ratelimit.Limiter, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		m := do.MustInvoke[*metrics.LimiterMetrics](i)

		cfg := opts.LimiterConfig()
		local := ratelimit.NewWindowLimiter(cfg, nil)
		m.TrackKeys(local.Len)

		limiterOpts := []ratelimit.Option{
			ratelimit.WithLogger(logger),
			ratelimit.WithOnDecision(m.ObserveDecision),
			ratelimit.WithOnFallback(m.ObserveFallback),
		}

		switch opts.Backend {
		case BackendLocal:
		case BackendRedis:
			conn := do.MustInvoke[*RedisService](i)
			limiterOpts = append(limiterOpts,
				ratelimit.WithRemote(store.NewRedisBackend(conn.Client, local.Config().Window)))
		default:
			return nil, fmt.Errorf("unknown backend %q: must be %s or %s", opts.Backend, BackendLocal, BackendRedis)
		}

		logger.Info("rate limiter configured",
			zap.String("backend", opts.Backend),
			zap.Duration("window", local.Config().Window),
			zap.Int("capacity", local.Config().Capacity),
		)

		return ratelimit.NewLimiter(local, limiterOpts...), nil
	})

	do.Provide(i, func(i *do.Injector) (*ratelimit.PolicyLimiter, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		local := ratelimit.NewWindowLimiter(opts.LimiterConfig(), nil)

		return ratelimit.NewPolicyLimiter(
			ratelimit.NewLimiter(local, ratelimit.WithLogger(logger)),
			opts.Policy(),
		), nil
	})
}

// PublisherGroupPackage provides the denied event publish function. When
// audit events are disabled events are discarded and Redis is never dialed.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		conn := do.MustInvoke[*RedisService](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client:     conn.Client,
			Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
		}, messaging.NewZapLoggerAdapter(logger))
		if err != nil {
			return nil, fmt.Errorf("create redis stream publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})

	do.Provide(i, func(i *do.Injector) (messaging.Publish[audit.DeniedEvent], error) {
		opts := do.MustInvoke[*Options](i)
		m := do.MustInvoke[*metrics.LimiterMetrics](i)

		if !opts.AuditEvents {
			return func(_ context.Context, _ *audit.DeniedEvent) error {
				return nil
			}, nil
		}

		group, err := do.Invoke[*messaging.PublisherGroup](i)
		if err != nil {
			return nil, err
		}

		publish := messaging.NewPublishFunc[audit.DeniedEvent](group.Publisher(), audit.TopicDenied,
			messaging.WithIdentity[audit.DeniedEvent](func(e *audit.DeniedEvent) string { return e.ID }))

		return func(ctx context.Context, event *audit.DeniedEvent) error {
			err := publish(ctx, event)
			m.ObservePublish(err)

			return err
		}, nil
	})
}

// ConsumerGroupPackage provides the consumers that persist denied events.
func ConsumerGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		conn := do.MustInvoke[*RedisService](i)
		logger := do.MustInvoke[*zap.Logger](i)
		auditStore := do.MustInvoke[audit.Store](i)

		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        conn.Client,
			Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
			ConsumerGroup: AuditConsumerGroup,
		}, messaging.NewZapLoggerAdapter(logger))
		if err != nil {
			return nil, fmt.Errorf("create redis stream subscriber: %w", err)
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(messaging.NewConsumer[audit.DeniedEvent](
			subscriber,
			audit.TopicDenied,
			audit.NewDeniedHandler(auditStore),
			logger,
		))

		return group, nil
	})
}

// HTTPPackage provides the router and the API with every route registered.
func HTTPPackage(i *do.Injector) {
	do.Provide(i, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(i, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)
		m := do.MustInvoke[*metrics.LimiterMetrics](i)
		limiter := do.MustInvoke[*ratelimit.Limiter](i)
		policyLimiter := do.MustInvoke[*ratelimit.PolicyLimiter](i)
		publish := do.MustInvoke[messaging.Publish[audit.DeniedEvent]](i)

		newID, err := nanoid.Standard(requestIDLength)
		if err != nil {
			return nil, fmt.Errorf("create request id generator: %w", err)
		}

		router.Handle("/metrics", m.Handler())

		api := humachi.New(router, huma.DefaultConfig("Key Throttle", "1.0.0"))
		api.UseMiddleware(
			middleware.SecurityHeaders(),
			middleware.RequestMeta(newID, opts.TrustProxy),
			middleware.RateLimiter(api, policyLimiter, ratelimit.NewOperationScopeResolver(), publish, logger),
		)

		var redisChecker health.Checker
		if opts.Backend == BackendRedis {
			redisChecker = health.NewRedisChecker(do.MustInvoke[*RedisService](i).Client)
		}

		handlers.RegisterRoutes(api, handlers.NewThrottleHandler(limiter, logger))

		if opts.AdminToken != "" {
			handlers.RegisterAdminRoutes(api, handlers.NewAdminHandler(limiter, opts.AdminToken, logger))
		} else {
			logger.Info("no admin token configured, admin routes disabled")
		}
		health.RegisterRoutes(api, health.NewHandler(string(limiter.Mode()), redisChecker))

		return api, nil
	})
}
