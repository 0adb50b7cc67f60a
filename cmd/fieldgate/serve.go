package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fieldgate/pkg/admin"
	"fieldgate/pkg/config"
	"fieldgate/pkg/control"
	"fieldgate/pkg/engine"
	"fieldgate/pkg/ingest"
	"fieldgate/pkg/lookup"
	"fieldgate/pkg/output"
	"fieldgate/pkg/xlog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	xlog.Configure(xlog.Config{Level: cfg.Log.Level})
	logger := xlog.Base()
	logger.Info().Str(xlog.FieldEvent, "fieldgate.starting").Str(xlog.FieldPath, configPath).Msg("initializing fieldgate")

	buffer, err := engine.NewRingBuffer(cfg.BufferSize)
	if err != nil {
		return fmt.Errorf("create buffer: %w", err)
	}

	ip := lookup.NewDefault()
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		ip.Register(lookup.NewRedisResolver(rdb, cfg.Redis.KeyPrefix))
	}

	outputs := []output.Output{output.NewConsoleOutput()}
	if cfg.MQTT != nil {
		m, err := output.NewMQTTOutput(*cfg.MQTT)
		if err != nil {
			return err
		}
		outputs = append(outputs, m)
	}
	fanout := output.NewFanOutOutput(outputs...)
	defer fanout.Close()

	pipeline := engine.NewPipeline(buffer, nil, fanout)
	pipeline.UpdateBatchSize(cfg.BatchSize)

	watcher := control.NewWatcher(rdb, pipeline, ip, control.Options{
		ConfigKey: cfg.Redis.ConfigKey,
		Channel:   cfg.Redis.Channel,
	})
	defer watcher.Close()
	watcher.SetBaseFields(cfg.Fields())

	holder := config.NewHolder(cfg, configPath)
	holder.OnReload(func(c *config.Config) {
		watcher.SetBaseFields(c.Fields())
	})

	tcp := ingest.NewTCPIngestor(fmt.Sprintf(":%d", cfg.Server.TCPPort), buffer)
	udp := ingest.NewUDPIngestor(fmt.Sprintf(":%d", cfg.Server.UDPPort), buffer)
	adm := admin.NewServer(fmt.Sprintf(":%d", cfg.Server.HTTPPort), pipeline, buffer, ip)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	pipeline.Start(gctx)
	g.Go(func() error { return tcp.Start(gctx) })
	g.Go(func() error { return udp.Start(gctx) })
	g.Go(func() error { return adm.Start(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error { return holder.Watch(gctx) })

	logger.Info().Str(xlog.FieldEvent, "fieldgate.running").Msg("fieldgate running, press Ctrl+C to stop")

	err = g.Wait()
	pipeline.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Str(xlog.FieldEvent, "fieldgate.failed").Msg("component failed")
		return err
	}
	logger.Info().Str(xlog.FieldEvent, "fieldgate.stopped").Msg("bye")
	return nil
}
