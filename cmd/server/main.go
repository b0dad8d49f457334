// Command chartkeeper-server runs the note record store over gRPC and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/chartkeeper/internal/clock"
	"github.com/and161185/chartkeeper/internal/config"
	"github.com/and161185/chartkeeper/internal/httpapi"
	"github.com/and161185/chartkeeper/internal/limiter"
	"github.com/and161185/chartkeeper/internal/migrate"
	"github.com/and161185/chartkeeper/internal/purge"
	"github.com/and161185/chartkeeper/internal/repository"
	"github.com/and161185/chartkeeper/internal/repository/memory"
	"github.com/and161185/chartkeeper/internal/repository/postgres"
	grpcserver "github.com/and161185/chartkeeper/internal/server/grpc"
	"github.com/and161185/chartkeeper/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, opens the store and serves both transports until SIGINT/SIGTERM.
func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}

	// Flags override the environment
	flag.StringVar(&cfg.GRPCAddr, "addr", cfg.GRPCAddr, "gRPC listen address")
	flag.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address (empty disables)")
	flag.StringVar(&cfg.DSN, "dsn", cfg.DSN, "PostgreSQL DSN (empty uses the in-memory store)")
	flag.StringVar(&cfg.JWTKey, "jwt-key", cfg.JWTKey, "HS256 signing key (required)")
	flag.DurationVar(&cfg.GracePeriod, "grace-period", cfg.GracePeriod, "soft-delete grace period")
	flag.StringVar(&cfg.PurgeSchedule, "purge-schedule", cfg.PurgeSchedule, "cron spec of the purge sweeper")
	flag.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS certificate (PEM)")
	flag.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS private key (PEM)")
	flag.BoolVar(&cfg.Dev, "dev", cfg.Dev, "plaintext gRPC and server reflection (dev only)")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.GRPCAddr),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	if cfg.JWTKey == "" {
		logger.Fatal("missing jwt signing key (--jwt-key or CHARTKEEPER_JWT_KEY)")
	}
	if cfg.GracePeriod <= 0 {
		logger.Fatal("grace period must be positive", zap.Duration("grace_period", cfg.GracePeriod))
	}

	var creds credentials.TransportCredentials
	if !cfg.Dev {
		creds, err = credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.New()
	var (
		repo repository.NoteRepository
		lim  limiter.Limiter
		ping httpapi.Pinger
		pg   *limiter.PG
	)
	if cfg.DSN != "" {
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
		db, err := postgres.New(ctx, cfg.DSN, postgres.Options{MaxConns: 16, MaxConnIdleTime: 5 * time.Minute})
		if err != nil {
			logger.Fatal("open pool", zap.Error(err))
		}
		defer db.Close()
		repo = postgres.NewNoteRepo(db)
		pg = limiter.NewPG(db.Pool, time.Minute, cfg.RatePerMinute, clk)
		lim = pg
		ping = db.Ping
	} else {
		logger.Warn("CHARTKEEPER_DSN is empty, notes are kept in memory")
		repo = memory.NewNoteRepo()
		lim = limiter.NewMemory(cfg.RatePerMinute, cfg.RateBurst, clk)
	}

	notes := service.NewNoteService(repo, lim, clk, cfg.GracePeriod, logger.Named("notes"))
	tokens := service.NewTokenService([]byte(cfg.JWTKey), cfg.TokenTTL, clk)

	sweeper, err := purge.New(notes, cfg.PurgeSchedule, cfg.PurgeBatch, logger.Named("purge"))
	if err != nil {
		logger.Fatal("purge sweeper", zap.Error(err))
	}

	var opts []grpc.ServerOption
	if creds != nil {
		opts = append(opts, grpc.Creds(creds))
	}
	gs, hs := grpcserver.NewGRPCServer(notes, tokens, logger, opts...)
	if cfg.Dev {
		reflection.Register(gs)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr), zap.Bool("tls", creds != nil))
		return gs.Serve(lis)
	})

	var hsrv *http.Server
	if cfg.HTTPAddr != "" {
		hsrv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.NewRouter(notes, tokens, ping, logger.Named("http")),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
			var err error
			if creds != nil {
				err = hsrv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
			} else {
				err = hsrv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	sweeper.Start()
	if pg != nil {
		g.Go(func() error {
			t := time.NewTicker(time.Hour)
			defer t.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.C:
					if err := pg.Sweep(gctx); err != nil {
						logger.Warn("rate window sweep", zap.Error(err))
					}
				}
			}
		})
	}

	// Wait for stop
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		sweeper.Stop()
		if hsrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hsrv.Shutdown(sctx)
		}
		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			gs.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
