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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/chatrelay/internal/adapters/http"
	"github.com/dkeye/chatrelay/internal/adapters/tcp"
	"github.com/dkeye/chatrelay/internal/adapters/ws"
	"github.com/dkeye/chatrelay/internal/app"
	"github.com/dkeye/chatrelay/internal/app/orch"
	"github.com/dkeye/chatrelay/internal/config"
	"github.com/dkeye/chatrelay/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		cancel()
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	o := orch.New(app.NewRegistry(), app.EchoPolicyFor(cfg.EchoSelf))
	o.TimeFormat = cfg.TimestampFormat
	limiter := session.NewRateLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Interval)
	handler := session.NewHandler(o, cfg.HandshakeTimeout, limiter)

	chat := tcp.NewServer(handler, tcp.Options{
		ReadLimit:    cfg.ReadLimit,
		SendBuffer:   cfg.SendBuffer,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := chat.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		return err
	}

	var admin *http.Server
	var adminLn net.Listener
	if cfg.AdminPort > 0 {
		gateway := ws.NewGateway(ctx, handler, ws.Options{
			ReadLimit:    int64(cfg.ReadLimit),
			SendBuffer:   cfg.SendBuffer,
			WriteTimeout: cfg.WriteTimeout,
		})
		admin = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.AdminPort),
			Handler: router.SetupRouter(cfg, o, gateway),
		}
		ln, err := net.Listen("tcp", admin.Addr)
		if err != nil {
			_ = chat.Shutdown(context.Background())
			return fmt.Errorf("listen %s: %w", admin.Addr, err)
		}
		adminLn = ln
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", chat.Addr().String()).Msg("Chat server started")
		return chat.Serve(gctx)
	})

	if admin != nil {
		g.Go(func() error {
			log.Info().Str("addr", adminLn.Addr().String()).Msg("Admin API started")
			if err := admin.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		var errs []error
		if admin != nil {
			if err := admin.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("admin shutdown: %w", err))
			}
		}
		if err := chat.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("chat shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
