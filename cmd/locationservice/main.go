package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/example/spacall/internal/booking/matching"
	"github.com/example/spacall/internal/booking/repository"
	"github.com/example/spacall/internal/config"
	"github.com/example/spacall/internal/eta/handler"
	etasvc "github.com/example/spacall/internal/eta/service"
	"github.com/example/spacall/internal/location"
	"github.com/example/spacall/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("location-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "location-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg, err := config.Parse()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var recorder location.Recorder
	if cfg.DatabaseDSN != "" {
		pg, err := repository.NewPostgresRepository(ctx, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("postgres", zap.Error(err))
		}
		defer pg.Close()
		recorder = pg
	}

	var geo location.GeoUpserter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
		geo = matching.NewRedisGeoIndex(redisClient, "")
	}

	observer := location.NewStreamObserver(recorder, geo, nil, logger.Named("observer"))
	etaSvc := etasvc.New(observer, cfg.AvgSpeedKMH)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runREST(gctx, logger, cfg.HTTPAddr, etaSvc) })
	g.Go(func() error { return runGRPC(gctx, logger, cfg.GRPCAddr, observer) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("service stopped", zap.Error(err))
	}
}

func runREST(ctx context.Context, logger *zap.Logger, addr string, etaSvc *etasvc.Service) error {
	r := chi.NewRouter()
	r.Mount("/", handler.New(etaSvc).Router())
	r.Mount("/observability", observability.MetricsRouter())

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("eta REST listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runGRPC(ctx context.Context, logger *zap.Logger, addr string, observer *location.StreamObserver) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := grpc.NewServer()
	location.RegisterLocationServer(srv, location.NewServer(observer))
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	logger.Info("location grpc listening", zap.String("addr", lis.Addr().String()))
	return srv.Serve(lis)
}
