package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/nats-io/nats.go"

	"github.com/apresai/papercast/internal/app"
	"github.com/apresai/papercast/internal/assembly"
	"github.com/apresai/papercast/internal/bus"
	"github.com/apresai/papercast/internal/config"
	"github.com/apresai/papercast/internal/observability"
	"github.com/apresai/papercast/internal/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("PAPERCAST_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := observability.InitLogger(cfg.Telemetry.LogLevel)
	slog.SetDefault(logger)
	logger.Info("papercast server starting", "version", version, "environment", cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	tp, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName:  cfg.ServiceName,
		Version:      version,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		Stdout:       cfg.Telemetry.TraceStdout,
	}, logger)
	if err != nil {
		logger.Warn("failed to init tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("tracer shutdown error", "error", err)
			}
		}()
	}

	var metricsHandler http.Handler
	var metrics *observability.Metrics
	if cfg.Telemetry.MetricsEnabled {
		mp, h, err := observability.InitMetrics()
		if err != nil {
			return err
		}
		defer mp.Shutdown(context.Background())
		if metrics, err = observability.NewMetrics(mp); err != nil {
			return err
		}
		metricsHandler = h
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return err
	}
	observability.InstrumentAWS(&awsCfg)
	config.LoadSecrets(ctx, secretsmanager.NewFromConfig(awsCfg), &cfg, logger)

	client, stopBus, err := connectBus(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stopBus()

	var js nats.JetStreamContext
	if client != nil {
		js = client.JetStream()
	}
	objects, audio, err := app.OpenObjectStore(cfg, awsCfg, js)
	if err != nil {
		return err
	}
	st, err := app.OpenStore(ctx, cfg, awsCfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.Pipeline.ScratchDir != "" {
		if err := os.MkdirAll(cfg.Pipeline.ScratchDir, 0o755); err != nil {
			return err
		}
	}
	rt, err := app.Build(ctx, cfg, app.Options{
		Store:   objects,
		Prober:  assembly.FFProbe{},
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	// Runs derive from ctx, so a signal cancels them and they record the
	// shutdown before we exit.
	tasks := server.NewTaskManager(ctx, server.TaskDeps{
		Store:          st,
		Bus:            client,
		Orchestrator:   rt.Orchestrator,
		Producer:       rt.Producer,
		ProviderName:   rt.Provider.Name(),
		ScriptModel:    cfg.Script.Model,
		MaxInputChars:  cfg.Script.MaxInputChars,
		MaxTasks:       cfg.Pipeline.MaxTasks,
		EpisodeTimeout: cfg.Pipeline.EpisodeTimeout(),
		Logger:         logger,
	})
	srv := server.New(server.NewHandlers(tasks, st, logger), server.Options{
		Name:    cfg.ServiceName,
		Version: version,
		Metrics: metricsHandler,
		Audio:   audio,
		Bus:     client,
	}, logger)

	httpSrv := &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTP.Bind, strconv.Itoa(cfg.HTTP.Port)),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpSrv.Addr, "storage", cfg.Storage.Backend, "store", cfg.Store.Backend)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, waiting for active tasks", "running", tasks.Running())
	graceCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownGrace())
	defer cancel()
	if err := httpSrv.Shutdown(graceCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := tasks.Wait(graceCtx); err != nil {
		logger.Warn("tasks still running at shutdown", "running", tasks.Running(), "error", err)
	}
	return nil
}

// connectBus starts the embedded NATS server when configured and connects
// to the bus. Status events are optional, so a failed connection is fatal
// only when artifacts live in the bus.
func connectBus(ctx context.Context, cfg config.Config, logger *slog.Logger) (*bus.Client, func(), error) {
	emb, err := bus.StartEmbedded(cfg.Bus, logger)
	if err != nil {
		return nil, func() {}, err
	}
	busCfg := cfg.Bus
	if emb != nil {
		busCfg.Servers = []string{emb.ClientURL()}
	}

	client, err := bus.Connect(ctx, busCfg, logger)
	if err != nil {
		emb.Shutdown()
		if cfg.Storage.Backend == "nats" {
			return nil, func() {}, err
		}
		logger.Warn("bus unavailable, status events disabled", "error", err)
		return nil, func() {}, nil
	}
	return client, func() {
		client.Close()
		emb.Shutdown()
	}, nil
}
