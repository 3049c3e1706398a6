package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"frontdesk/internal/artifacts"
	"frontdesk/internal/audit"
	"frontdesk/internal/blob"
	corrhandler "frontdesk/internal/correspondence/handler"
	corrmetrics "frontdesk/internal/correspondence/metrics"
	corrservice "frontdesk/internal/correspondence/service"
	corrstore "frontdesk/internal/correspondence/store"
	"frontdesk/internal/desk"
	deskhandler "frontdesk/internal/desk/handler"
	"frontdesk/internal/events"
	"frontdesk/internal/imaging"
	jwttoken "frontdesk/internal/jwt_token"
	noticehandler "frontdesk/internal/notice/handler"
	noticeservice "frontdesk/internal/notice/service"
	noticestore "frontdesk/internal/notice/store"
	"frontdesk/internal/notification"
	"frontdesk/internal/platform/config"
	"frontdesk/internal/platform/firebase"
	"frontdesk/internal/platform/kafka"
	"frontdesk/internal/platform/metrics"
	"frontdesk/internal/platform/middleware"
	"frontdesk/internal/platform/postgres"
	"frontdesk/internal/platform/redis"
	"frontdesk/internal/protocol"
	"frontdesk/internal/ratelimit"
	"frontdesk/internal/receipt"
	"frontdesk/internal/verification"
	"frontdesk/pkg/platform/circuit"
	"frontdesk/pkg/platform/httputil"
)

type app struct {
	router  http.Handler
	closers []func(context.Context) error
}

func (a *app) onShutdown(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// shutdown runs closers in reverse order of registration so producers stop
// before the sinks they write to.
func (a *app) shutdown(ctx context.Context, log *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			log.Error("shutdown step failed", "error", err)
		}
	}
}

type stores struct {
	correspondences corrservice.Store
	notices         noticeservice.Store
	audit           audit.Store
	templates       notification.TemplateStore
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.shutdown(context.Background(), log)
		return nil, err
	}

	var fbApp *firebase.App
	if cfg.Store.Backend == "firestore" || cfg.Blob.Backend == "firebase" {
		var err error
		if fbApp, err = firebase.New(ctx, cfg.Firebase); err != nil {
			return fail(err)
		}
	}

	st, err := buildStores(ctx, cfg, log, fbApp, a)
	if err != nil {
		return fail(err)
	}

	blobs, owned, blobRoutes, err := buildBlobs(ctx, cfg, fbApp, a)
	if err != nil {
		return fail(err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fail(err)
	}
	if redisClient != nil {
		a.onShutdown(func(context.Context) error { return redisClient.Close() })
	}

	bus := events.NewBus(64, events.WithLogger(log))
	a.onShutdown(func(context.Context) error { bus.Close(); return nil })

	auditPublisher := audit.NewPublisher(st.audit, audit.WithLogger(log), audit.WithAsyncBuffer(1024))
	a.onShutdown(func(context.Context) error { auditPublisher.Close(); return nil })

	coder, err := verification.NewCoder(cfg.Verification.CodeSecret)
	if err != nil {
		return fail(err)
	}
	corrOpts := []corrservice.Option{
		corrservice.WithLogger(log),
		corrservice.WithAuditPublisher(auditPublisher),
		corrservice.WithEventPublisher(bus),
		corrservice.WithMetrics(corrmetrics.New()),
		corrservice.WithPolicySource(corrservice.StaticPolicy{
			RequireResidentSignature: cfg.Pickup.RequireResidentSignature,
			RequireCollectorDocument: cfg.Pickup.RequireCollectorDocument,
			RequireHandoffPhoto:      cfg.Pickup.RequireHandoffPhoto,
		}),
	}
	noticeOpts := []noticeservice.Option{
		noticeservice.WithLogger(log),
		noticeservice.WithAuditPublisher(auditPublisher),
		noticeservice.WithEventPublisher(bus),
	}
	resolverOpts := []verification.ResolverOption{verification.WithResolverLogger(log), verification.WithCoder(coder)}
	if redisClient != nil {
		viewCache := verification.NewRedisViewCache(redisClient, cfg.Redis.ViewCacheTTL)
		corrOpts = append(corrOpts, corrservice.WithViewInvalidator(viewCache))
		noticeOpts = append(noticeOpts, noticeservice.WithViewInvalidator(viewCache))
		resolverOpts = append(resolverOpts, verification.WithViewCache(viewCache))
	}
	correspondences := corrservice.New(st.correspondences, protocol.New(), coder, corrOpts...)
	notices := noticeservice.New(st.notices, protocol.New(), noticeOpts...)

	runner, err := artifacts.New(blobs, desk.NewRecordPatcher(correspondences, notices),
		artifacts.WithLogger(log),
		artifacts.WithAuditPublisher(auditPublisher),
		artifacts.WithEventPublisher(bus),
		artifacts.WithMetrics(artifacts.NewMetrics()),
	)
	if err != nil {
		return fail(err)
	}
	a.onShutdown(runner.Drain)

	outbox, err := buildOutbox(ctx, cfg, log, a)
	if err != nil {
		return fail(err)
	}
	dispatcher := notification.NewDispatcher(outbox, log, 256)
	a.onShutdown(dispatcher.Close)

	images := imaging.New(imaging.Options{
		DocumentMaxWidth: cfg.Imaging.DocumentMaxWidth,
		InlineMaxWidth:   cfg.Imaging.InlineMaxWidth,
		Quality:          cfg.Imaging.Quality,
		Timeout:          cfg.Imaging.Timeout,
	},
		imaging.WithFetcher(imaging.NewRoutingFetcher(owned, imaging.NewHTTPFetcher(cfg.Imaging.Timeout))),
		imaging.WithBreaker(circuit.New("image-fetch")),
		imaging.WithLogger(log),
		imaging.WithMetrics(imaging.NewMetrics()),
	)

	brand, err := loadBrand(cfg.Brand)
	if err != nil {
		return fail(err)
	}
	templates := notification.NewTemplateService(st.templates,
		notification.WithLogger(log),
		notification.WithAuditPublisher(auditPublisher),
	)
	frontDesk := desk.New(desk.Deps{
		Correspondences: correspondences,
		Notices:         notices,
		Images:          images,
		Renderer:        receipt.NewRenderer(brand, receipt.WithLogger(log)),
		Runner:          runner,
		Templates:       templates,
		Composer:        notification.NewComposer(cfg.Server.PublicBaseURL, notification.WithComposerLogger(log)),
	}, desk.WithLogger(log), desk.WithDispatcher(dispatcher))

	resolver := verification.NewResolver(correspondences, notices, resolverOpts...)
	resolver.InvalidateOn(ctx, bus)

	limiter := buildLimiter(cfg.RateLimit, redisClient, log)
	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	httpMetrics := metrics.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata(cfg.Server.TrustedProxies))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(metrics.Latency(httpMetrics))

	r.Get("/healthz", healthz(redisClient))
	r.Handle("/metrics", metrics.Handler())
	if blobRoutes != nil {
		r.Mount("/blobs", blobRoutes)
	}
	verification.NewHandler(resolver, log, limiter.Handler).Register(r)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(60 * time.Second))
		r.Use(middleware.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log))
		corrhandler.New(correspondences, log).Register(r)
		noticehandler.New(notices, log).Register(r)
		deskhandler.New(frontDesk, log).Register(r)
		notification.NewHandler(templates, log).Register(r)
	})

	a.router = r
	return a, nil
}

func buildStores(ctx context.Context, cfg config.Config, log *slog.Logger, fbApp *firebase.App, a *app) (stores, error) {
	switch cfg.Store.Backend {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Store)
		if err != nil {
			return stores{}, err
		}
		a.onShutdown(func(context.Context) error { return db.Close() })
		return postgresStores(ctx, db)
	case "firestore":
		client, err := fbApp.Firestore(ctx)
		if err != nil {
			return stores{}, err
		}
		a.onShutdown(func(context.Context) error { return client.Close() })
		return stores{
			correspondences: corrstore.NewFirestore(client, corrstore.WithFirestoreLogger(log)),
			notices:         noticestore.NewFirestore(client),
			audit:           audit.NewInMemoryStore(),
			templates:       notification.NewInMemoryTemplateStore(),
		}, nil
	default:
		return stores{
			correspondences: corrstore.NewInMemory(),
			notices:         noticestore.NewInMemory(),
			audit:           audit.NewInMemoryStore(),
			templates:       notification.NewInMemoryTemplateStore(),
		}, nil
	}
}

func postgresStores(ctx context.Context, db *sql.DB) (stores, error) {
	corrs := corrstore.NewPostgres(db)
	notices := noticestore.NewPostgres(db)
	auditStore := audit.NewPostgresStore(db)
	templates := notification.NewPostgresTemplateStore(db)
	for name, ensure := range map[string]func(context.Context) error{
		"correspondences": corrs.EnsureSchema,
		"notices":         notices.EnsureSchema,
		"audit":           auditStore.EnsureSchema,
		"templates":       templates.EnsureSchema,
	} {
		if err := ensure(ctx); err != nil {
			return stores{}, fmt.Errorf("ensure %s schema: %w", name, err)
		}
	}
	return stores{correspondences: corrs, notices: notices, audit: auditStore, templates: templates}, nil
}

func buildBlobs(ctx context.Context, cfg config.Config, fbApp *firebase.App, a *app) (artifacts.BlobStore, imaging.OwnedFetcher, http.Handler, error) {
	if cfg.Blob.Backend == "firebase" {
		bucket, name, err := fbApp.Bucket(ctx)
		if err != nil {
			return nil, nil, nil, err
		}
		store := blob.NewFirebase(bucket, name)
		return store, store, nil, nil
	}
	store, err := blob.OpenBolt(cfg.Blob.BoltPath, cfg.Server.PublicBaseURL+"/blobs")
	if err != nil {
		return nil, nil, nil, err
	}
	a.onShutdown(func(context.Context) error { return store.Close() })
	return store, store, store.Handler(), nil
}

func buildOutbox(ctx context.Context, cfg config.Config, log *slog.Logger, a *app) (notification.Outbox, error) {
	client, err := kafka.NewClient(ctx, cfg.Kafka, log)
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.Info("no kafka brokers configured, notifications are logged only")
		return notification.NewLogOutbox(log), nil
	}
	a.onShutdown(func(context.Context) error { client.Close(); return nil })
	outbox := notification.NewKafkaOutbox(client, cfg.Kafka.OutboxTopic)
	if err := outbox.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
		return nil, err
	}
	return outbox, nil
}

func buildLimiter(cfg config.RateLimit, client *redis.Client, log *slog.Logger) *ratelimit.Middleware {
	limit := ratelimit.Limit{Requests: cfg.Requests, Window: cfg.Window}
	local := ratelimit.NewLocalLimiter(limit)
	if client == nil {
		return ratelimit.New(local, log, ratelimit.WithDisabled(cfg.Disabled))
	}
	return ratelimit.New(ratelimit.NewRedisLimiter(client, limit), log,
		ratelimit.WithFallback(local),
		ratelimit.WithBreaker(circuit.New("ratelimit-redis")),
		ratelimit.WithDisabled(cfg.Disabled),
	)
}

func loadBrand(cfg config.Brand) (receipt.Brand, error) {
	brand := receipt.Brand{Primary: receipt.DefaultPrimary}
	if cfg.PrimaryColor != "" {
		c, err := receipt.ParseHexColor(cfg.PrimaryColor)
		if err != nil {
			return brand, fmt.Errorf("brand color: %w", err)
		}
		brand.Primary = c
	}
	if cfg.LogoPath != "" {
		logo, err := os.ReadFile(cfg.LogoPath)
		if err != nil {
			return brand, fmt.Errorf("brand logo: %w", err)
		}
		brand.Logo = logo
	}
	return brand, nil
}

func healthz(client *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		if client != nil {
			if err := client.Health(r.Context()); err != nil {
				status["status"] = "degraded"
				status["redis"] = err.Error()
			}
		}
		httputil.WriteJSON(w, http.StatusOK, status)
	}
}
