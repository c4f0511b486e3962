package main

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/uinuhq/uinu/internal/config"
	"github.com/uinuhq/uinu/internal/emitter"
	"github.com/uinuhq/uinu/internal/state"
	"github.com/uinuhq/uinu/internal/telemetry"
	"github.com/uinuhq/uinu/monitor"
	awsprovider "github.com/uinuhq/uinu/providers/aws"
	"github.com/uinuhq/uinu/rcon"
)

const identityTimeout = 5 * time.Second

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the game server and stop the instance when idle",
	Long: `Run the activity monitor on the game server instance.

The monitor polls the Minecraft server over RCON for the player count,
publishes the count to CloudWatch, and tracks how long the server has
been empty. Once the inactivity threshold is reached it tags the
instance with StopTime, issues the stop action and exits.

Startup fails fast on missing configuration or unreachable instance
metadata. Transient RCON or CloudWatch failures never stop the loop.`,
	Example: `  uinu monitor                          # Use /etc/uinu/config.yaml
  uinu monitor --config ./uinu.yaml     # Custom config path`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateMonitor(); err != nil {
		return err
	}

	logger := telemetry.NewLogger("uinu-monitor", cfg.Log.Level)
	ctx := context.Background()

	ictx, cancel := context.WithTimeout(ctx, identityTimeout)
	defer cancel()
	identity, err := awsprovider.FetchIdentity(ictx, awsprovider.NewIMDSClient())
	if err != nil {
		return err
	}

	password, err := cfg.RCONPassword()
	if err != nil {
		return err
	}

	provider, err := awsprovider.New(ctx, identity.Region, cfg.Metrics.Namespace)
	if err != nil {
		return err
	}

	deps := monitor.Deps{
		Source:  rcon.NewClient(cfg.RCON.Addr, password, cfg.Monitor.CallTimeout),
		Control: provider,
		Sink:    provider,
		Logger:  logger,
	}

	if cfg.Monitor.StatePath != "" {
		store, err := state.Open(cfg.Monitor.StatePath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		deps.Checkpoint = store
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return err
	}
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter)))

	deps.Observer, err = emitter.New()
	if err != nil {
		return err
	}

	mon, err := monitor.New(monitor.Config{
		InstanceID:          identity.InstanceID,
		PollInterval:        cfg.Monitor.PollInterval,
		InactivityThreshold: cfg.InactivityThreshold(),
		CallTimeout:         cfg.Monitor.CallTimeout,
	}, deps)
	if err != nil {
		return err
	}

	logger.Info().
		Str("instance_id", identity.InstanceID).
		Str("region", identity.Region).
		Str("rcon_addr", cfg.RCON.Addr).
		Msg("starting game server monitoring")

	var g run.Group
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
	g.Add(func() error {
		logger.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("starting metrics server")
		return srv.ListenAndServe()
	}, func(error) {
		_ = srv.Shutdown(context.Background())
	})

	monCtx, monCancel := context.WithCancel(ctx)
	g.Add(func() error {
		return mon.Run(monCtx)
	}, func(error) {
		monCancel()
	})

	err = g.Run()

	var sig run.SignalError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &sig):
		logger.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	case errors.Is(err, http.ErrServerClosed):
		return nil
	default:
		logger.Error().Err(err).Msg("monitor failed")
		return err
	}
}
