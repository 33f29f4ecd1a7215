package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parking-lot/internal/assistant"
	"parking-lot/internal/config"
	"parking-lot/internal/events"
	"parking-lot/internal/logging"
	"parking-lot/internal/parking"
	"parking-lot/internal/server"
	"parking-lot/internal/telemetry"
	"parking-lot/internal/weather"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "parking-lot",
		Usage: "slot allocator with a wait queue, undo/redo history and an HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mode",
				Value:   "cli",
				Usage:   "Mode to run: cli, server, or both",
				EnvVars: []string{"PARKING_MODE"},
			},
			&cli.StringFlag{
				Name:  "port",
				Usage: "Port for HTTP server (overrides config)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Optional config file (yaml, json or toml)",
				EnvVars: []string{"PARKING_CONFIG"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logging.Logger().WithError(err).Fatal("parking-lot exited")
	}
}

func run(c *cli.Context) error {
	mode := c.String("mode")
	switch mode {
	case "cli", "server", "both":
	default:
		return fmt.Errorf("invalid mode: %s. Must be cli, server, or both", mode)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Port = c.String("port")
	}

	// The shell owns stdout, so logs go to stderr.
	logging.Init(cfg.OTelServiceName, cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.New(ctx, cfg.OTelServiceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer shutdownTelemetry(tp)

	publisher := newPublisher(ctx, cfg)
	defer publisher.Close()

	pl, err := parking.NewParkingLot(cfg.TotalSlots, cfg.RatePerMinute)
	if err != nil {
		return err
	}
	lot, err := parking.NewInstrumentedParkingLot(pl, tp, publisher)
	if err != nil {
		return fmt.Errorf("instrument parking lot: %w", err)
	}
	logging.Infof(ctx, "Parking lot ready with %d slots at %.2f per minute", cfg.TotalSlots, cfg.RatePerMinute)

	switch mode {
	case "cli":
		// Scanning stdin blocks, so a signal must not wait for the next line.
		cliDone := make(chan struct{})
		go func() {
			runCLI(ctx, lot)
			close(cliDone)
		}()
		select {
		case <-cliDone:
		case <-ctx.Done():
			logging.Info(ctx, "Shutting down...")
		}
		return nil
	case "server":
		return runServer(ctx, cfg, lot, tp)
	default:
		return runBoth(ctx, stop, cfg, lot, tp)
	}
}

func newPublisher(ctx context.Context, cfg *config.Config) events.Publisher {
	if cfg.RedisURL == "" {
		return events.Nop{}
	}

	p, err := events.NewRedisPublisherFromURL(ctx, cfg.RedisURL, events.WithStream(cfg.RedisStream))
	if err != nil {
		logging.WithContext(ctx).WithError(err).Warn("Redis unavailable, action events disabled")
		return events.Nop{}
	}
	logging.Infof(ctx, "Publishing action events to Redis stream %s", p.Stream())
	return p
}

func newServer(cfg *config.Config, lot *parking.InstrumentedParkingLot, tp *telemetry.Provider) (*server.Server, error) {
	chat := assistant.New(assistant.Config{
		BaseURL: cfg.ChatBaseURL,
		APIKey:  cfg.ChatAPIKey,
		Model:   cfg.ChatModel,
	}, tp.Tracer())

	reporter := weather.New(weather.Config{
		LookupURL: cfg.IPInfoURL,
		Token:     cfg.IPInfoToken,
	}, tp.Tracer())

	return server.NewServer(server.Options{
		Port:           cfg.Port,
		ServiceName:    cfg.OTelServiceName,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, lot, chat, reporter)
}

func runCLI(ctx context.Context, lot *parking.InstrumentedParkingLot) {
	shell := parking.NewInstrumentedShell(lot, os.Stdin, os.Stdout)
	shell.Run(ctx)
}

func runServer(ctx context.Context, cfg *config.Config, lot *parking.InstrumentedParkingLot, tp *telemetry.Provider) error {
	srv, err := newServer(cfg, lot, tp)
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()
	logging.Infof(ctx, "HTTP API available at %s", srv.GetAddress())

	select {
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logging.Info(ctx, "Received shutdown signal...")
	}

	return shutdownServer(srv)
}

func runBoth(ctx context.Context, stop context.CancelFunc, cfg *config.Config, lot *parking.InstrumentedParkingLot, tp *telemetry.Provider) error {
	srv, err := newServer(cfg, lot, tp)
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()

	cliDone := make(chan struct{})
	go func() {
		runCLI(ctx, lot)
		close(cliDone)
	}()

	select {
	case err := <-serverDone:
		stop()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-cliDone:
		logging.Info(ctx, "CLI exited")
	case <-ctx.Done():
		logging.Info(ctx, "Received shutdown signal...")
	}

	stop()
	return shutdownServer(srv)
}

func shutdownServer(srv *server.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func shutdownTelemetry(tp *telemetry.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logging.Info(ctx, "Shutting down telemetry...")
	if err := tp.Shutdown(ctx); err != nil {
		logging.Errorf(ctx, "Error shutting down telemetry: %v", err)
	}
}
