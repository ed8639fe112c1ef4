// Command bacnet-eventgateway runs the BACnet device-event gateway: it
// consumes durable event streams describing BACnet objects and their value
// changes, mirrors them into Redis for crash recovery, and exposes them as
// live BACnet objects with COV subscription support. Wiring order follows
// trm-service's cmd/api/main.go: load config, resolve secrets, connect the
// event transport, construct the supervisor, start the HTTP surface, then
// block on a signal for graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/arc-self/bacnet-eventgateway/internal/bacnetobj"
	"github.com/arc-self/bacnet-eventgateway/internal/cachemirror"
	"github.com/arc-self/bacnet-eventgateway/internal/config"
	"github.com/arc-self/bacnet-eventgateway/internal/eventconsumer"
	"github.com/arc-self/bacnet-eventgateway/internal/httpapi"
	"github.com/arc-self/bacnet-eventgateway/internal/natsclient"
	"github.com/arc-self/bacnet-eventgateway/internal/supervisor"
	"github.com/arc-self/bacnet-eventgateway/internal/telemetry"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 on a clean shutdown, 1 on a fatal
// startup error, per spec.md §6.
func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "bacnet-eventgateway: config:", err)
		return 1
	}

	log, err := buildLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bacnet-eventgateway: logger:", err)
		return 1
	}
	defer log.Sync()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint != "" {
		tp, err := telemetry.Init(context.Background(), "bacnet-eventgateway", otelEndpoint)
		if err != nil {
			log.Error("failed to init OTel tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
			log.Info("OTel tracer initialized", zap.String("endpoint", otelEndpoint))
		}
	}

	cache, err := cachemirror.New(cachemirror.Config{
		Host:           cfg.Cache.Host,
		Port:           cfg.Cache.Port,
		Password:       cfg.Cache.Password,
		Database:       cfg.Cache.Database,
		KeyPrefix:      cfg.Cache.KeyPrefix,
		ConnectTimeout: time.Duration(cfg.Cache.ConnectionTimeoutMs) * time.Millisecond,
		CommandTimeout: time.Duration(cfg.Cache.CommandTimeoutMs) * time.Millisecond,
	}, log)
	if err != nil {
		log.Error("cache mirror connect failed", zap.Error(err))
		return 1
	}

	bacnetServer := bacnetobj.NewUDPServer(cfg.Server.DeviceInstance, cfg.LegacyTransport.Port, log)
	metrics := httpapi.NewMetrics()

	var natsConn *natsclient.Client
	transportFactory := func(device config.Device) (eventconsumer.Transport, error) {
		switch {
		case strings.HasPrefix(cfg.EventStore.ConnectionString, "nats://"):
			if natsConn == nil {
				var err error
				natsConn, err = natsclient.NewClient(cfg.EventStore.ConnectionString, log)
				if err != nil {
					return nil, fmt.Errorf("nats connect: %w", err)
				}
			}
			if err := natsConn.ProvisionStream(natsclient.StreamSpec{
				Name:     device.StreamName,
				Subjects: []string{device.StreamName + ".>"},
			}); err != nil {
				return nil, err
			}
			return eventconsumer.NewNatsTransport(natsConn.Conn, log)
		case strings.HasPrefix(cfg.EventStore.ConnectionString, "http://"), strings.HasPrefix(cfg.EventStore.ConnectionString, "https://"):
			return eventconsumer.NewHTTPTransport(cfg.EventStore.ConnectionString, 30*time.Second, log), nil
		default:
			return nil, fmt.Errorf("unsupported event-store connection string scheme: %q", cfg.EventStore.ConnectionString)
		}
	}

	sup := supervisor.New(cfg, cache, bacnetServer, metrics, transportFactory, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		log.Error("startup failed", zap.Error(err))
		return 1
	}
	log.Info("bacnet-eventgateway started",
		zap.Uint32("deviceInstance", cfg.Server.DeviceInstance),
		zap.Int("healthPort", cfg.Health.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining")
	if err := sup.Stop(); err != nil {
		log.Error("shutdown reported errors", zap.Error(err))
		return 1
	}

	log.Info("bacnet-eventgateway stopped cleanly")
	return 0
}

func buildLogger(cfg config.Logging) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "text" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapCfg.Level = level

	return zapCfg.Build()
}
