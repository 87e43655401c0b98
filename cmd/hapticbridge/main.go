// Package main implements the entry point for the hapticbridge daemon.
// It connects a hardware-control server to a NATS work-signal bus: a
// non-zero signal starts ambient haptic feedback, a zero signal stops it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/hapticbridge/client"
	"github.com/c360/hapticbridge/config"
	"github.com/c360/hapticbridge/metric"
	"github.com/c360/hapticbridge/presence"
	sigbridge "github.com/c360/hapticbridge/signal"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "hapticbridge"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags win over config-file logging settings
	logLevel := cfg.Logging.Level
	if cliCfg.LogLevel != "" {
		logLevel = cliCfg.LogLevel
	}
	logFormat := cfg.Logging.Format
	if cliCfg.LogFormat != "" {
		logFormat = cliCfg.LogFormat
	}
	logger := setupLogger(logLevel, logFormat)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	instanceID := uuid.NewString()[:8]
	logger = logger.With("instance", instanceID)

	slog.Info("Starting hapticbridge",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"server_url", cfg.Server.URL)

	registry := metric.NewRegistry()

	hw, err := buildClient(cfg, logger, registry)
	if err != nil {
		return fmt.Errorf("create hardware client: %w", err)
	}

	// The bridge publishes snapshots produced by the controller; the
	// controller is constructed first, so the change callback resolves
	// the bridge lazily.
	var bridge *sigbridge.Bridge
	controller, err := presence.NewController(hw,
		presence.WithLogger(logger),
		presence.WithDevice(cfg.Presence.DefaultDevice),
		presence.WithStrength(cfg.Presence.DefaultStrength),
		presence.OnChange(func(st presence.State) {
			if bridge != nil {
				bridge.PublishState(st)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("create presence controller: %w", err)
	}

	if cfg.Signal.Enabled {
		bridge, err = sigbridge.NewBridge(cfg.Signal.NATSURL, controller,
			sigbridge.WithSubjectPrefix(cfg.Signal.SubjectPrefix),
			sigbridge.WithHeartbeat(cfg.Signal.Heartbeat),
			sigbridge.WithClientName(fmt.Sprintf("%s-%s", appName, instanceID)),
			sigbridge.WithLogger(logger),
			sigbridge.WithMetrics(registry),
		)
		if err != nil {
			return fmt.Errorf("create signal bridge: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		metricsServer := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry)
		g.Go(metricsServer.Start)
		g.Go(func() error {
			<-gctx.Done()
			return metricsServer.Stop()
		})
	}

	g.Go(func() error {
		// Best-effort initial connect; the server may not be up yet and
		// actuation paths reconnect on demand.
		if err := hw.Connect(gctx); err != nil {
			logger.Warn("initial hardware connect failed, will retry on demand", "error", err)
		}
		if bridge == nil {
			return nil
		}
		return bridge.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdown(bridge, controller, hw, cliCfg.ShutdownTimeout, logger)
		return nil
	})

	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		// Shutdown triggered by a signal, not a component failure
		err = nil
	}
	slog.Info("hapticbridge stopped")
	return err
}

func buildClient(cfg *config.Config, logger *slog.Logger, registry *metric.Registry) (*client.Client, error) {
	opts := []client.Option{
		client.WithClientName(cfg.Server.ClientName),
		client.WithLogger(logger),
		client.WithConnectTimeout(cfg.Server.ConnectTimeout),
		client.WithReadinessPoll(cfg.Server.ReadinessInterval, cfg.Server.ReadinessIterations),
		client.WithMetrics(registry),
	}
	if cfg.Server.CommandsPerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(cfg.Server.CommandsPerSecond), 1)
		opts = append(opts, client.WithRateLimiter(limiter))
	}
	return client.NewClient(cfg.Server.URL, opts...)
}

// shutdown tears the pipeline down in dependency order: stop accepting
// signals, silence the hardware, then drop the connection.
func shutdown(bridge *sigbridge.Bridge, controller *presence.Controller,
	hw *client.Client, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if bridge != nil {
		bridge.Stop()
	}
	controller.Stop(ctx)
	if err := hw.StopAll(ctx); err != nil {
		logger.Warn("stop-all on shutdown failed", "error", err)
	}
	hw.Disconnect()
}
