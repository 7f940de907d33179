package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/booking/handler"
	"github.com/example/spacall/internal/booking/matching"
	"github.com/example/spacall/internal/booking/pricing"
	"github.com/example/spacall/internal/booking/repository"
	bookingservice "github.com/example/spacall/internal/booking/service"
	"github.com/example/spacall/internal/booking/sweeper"
	"github.com/example/spacall/internal/config"
	etasvc "github.com/example/spacall/internal/eta/service"
	httpmw "github.com/example/spacall/internal/http/middleware"
	"github.com/example/spacall/internal/notify"
	"github.com/example/spacall/internal/settings"
	"github.com/example/spacall/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("booking-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "booking-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg, err := config.Parse()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var repo domain.Repository
	var directory notify.MobileDirectory
	if cfg.DatabaseDSN != "" {
		pg, err := repository.NewPostgresRepository(ctx, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("postgres", zap.Error(err))
		}
		defer pg.Close()
		repo = pg
		directory = pg
	} else {
		logger.Warn("no database configured, using in-memory repository")
		mem := repository.NewMemoryRepository()
		repo = mem
		directory = mem
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("bookingservice")); err == nil {
			natsConn = conn
			defer conn.Drain() //nolint:errcheck
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	matcherCfg := matching.Config{
		SearchRadiusKM: cfg.SearchRadiusKM,
		CandidateLimit: cfg.CandidateLimit,
		ClaimTTL:       cfg.ClaimTTL,
	}
	var geoIndex matching.GeoIndex
	var geoUpserter bookingservice.GeoUpserter
	var store matching.AvailabilityStore
	if redisClient != nil {
		redisGeo := matching.NewRedisGeoIndex(redisClient, "")
		geoIndex = redisGeo
		geoUpserter = redisGeo
		store = matching.NewRedisAvailabilityStore(redisClient, "")
	} else {
		geoIndex = matching.NewHaversineIndex(repo)
		store = matching.NewMemoryAvailabilityStore()
	}
	matcher := matching.NewMatcher(geoIndex, store, matcherCfg)

	var surcharge pricing.SurchargePolicy
	if cfg.SurchargePerKM > 0 {
		surcharge = pricing.PerKMSurcharge{
			RatePerKM: domain.Centavos(cfg.SurchargePerKM),
			FreeKM:    cfg.SurchargeFreeKM,
		}
	}

	cache := settings.NewCache(repo, cfg.SettingsTTL, nil)
	notifier := notify.NewSMSNotifier(notify.LogSender{Log: logger.Named("sms")}, directory, cfg.StrictSMS, logger)

	svc := bookingservice.New(
		repo,
		notify.NewEventPublisher(natsConn, cfg.NATSSubject),
		matcher,
		pricing.New(surcharge),
		cache,
		bookingservice.Options{
			Notifier:   notifier,
			ETA:        etasvc.New(repo, cfg.AvgSpeedKMH),
			Geo:        geoUpserter,
			Logger:     logger,
			PendingTTL: cfg.PendingTTL,
		},
	)

	limiter := httpmw.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)
	bookingHTTP := handler.NewHTTP(svc, cfg.JWTSecret, limiter.Middleware)

	r := chi.NewRouter()
	r.Mount("/", bookingHTTP.Router())
	r.Mount("/observability", observability.MetricsRouter())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("booking service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := sweeper.New(svc, cfg.SweepInterval, logger.Named("sweeper")).Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
}
