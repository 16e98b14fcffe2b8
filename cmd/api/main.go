package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"coursehub.org/internal/academics"
	"coursehub.org/internal/auth"
	"coursehub.org/internal/config"
	"coursehub.org/internal/httpapi"
	"coursehub.org/internal/obs"
	"coursehub.org/internal/store/lite"
	"coursehub.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is what both store implementations provide.
type backend interface {
	academics.Store
	auth.UserStore
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "coursehub-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger, err := obs.NewLogger(cfg.Env)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	tokens, err := auth.NewTokenService(cfg.AuthSecret, cfg.AuthIssuer, cfg.AuthAudience, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}
	authSvc, err := auth.NewService(store, tokens, auth.WithBcryptCost(cfg.BcryptCost))
	if err != nil {
		return err
	}
	acad, err := academics.NewService(store)
	if err != nil {
		return err
	}
	api, err := httpapi.New(authSvc, acad, store, httpapi.Options{
		Version:        version,
		Development:    cfg.IsDevelopment(),
		CORSOrigins:    cfg.CORSOrigins,
		RateBurst:      cfg.RateBurst,
		RatePerSec:     cfg.RatePerSec,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	grpcSrv := httpapi.NewGRPCServer(store)

	var lis net.Listener
	if cfg.GRPCAddr != "" {
		lis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
	}
	logger.Info("starting coursehub-api", zap.String("version", version), zap.String("env", cfg.Env), zap.String("db_driver", cfg.DBDriver))
	return serve(ctx, logger, srv, grpcSrv, lis)
}

// serve runs the HTTP server and, when lis is set, the gRPC server until ctx
// ends or one of them fails. Both are shut down gracefully either way; a
// server failure is returned after the shutdown.
func serve(ctx context.Context, logger *zap.Logger, srv *http.Server, grpcSrv *grpc.Server, lis net.Listener) error {
	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	if lis != nil {
		go func() {
			logger.Info("grpc listening", zap.String("addr", lis.Addr().String()))
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var failed error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case failed = <-errCh:
		logger.Error("server failed", zap.Error(failed))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcSrv.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(failed, fmt.Errorf("http shutdown: %w", err))
	}
	if failed != nil {
		return failed
	}
	logger.Info("stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (backend, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		s, err := lite.Open(cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, nil
	default:
		s, err := pg.Open(cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.EnsureSchema(initCtx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return s, nil
	}
}
