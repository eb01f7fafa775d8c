package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"regiondb/internal/server"
	"regiondb/pkg/clock"
	"regiondb/pkg/cluster"
	"regiondb/pkg/flush"
	"regiondb/pkg/metrics"
	"regiondb/pkg/region"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := initConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogger(&cfg)

	// --- durable sink for flushed buffers ---
	sink, err := flush.NewLevelSink(cfg.Region.Flush.DataDir)
	if err != nil {
		slog.Error("failed to open flush sink", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			slog.Warn("failed to close flush sink", "error", cerr)
		}
	}()

	// --- regions ---
	registry := metrics.NewRegistry()
	manager := region.NewManager(cfg.Region, sink, clock.Wall{}, registry)
	if _, err := manager.Add(nil); err != nil {
		slog.Error("failed to open root region", "error", err)
		os.Exit(1)
	}
	defer manager.Close()

	// --- ZooKeeper membership (optional) ---
	if cfg.Cluster.Enabled {
		membership, err := cluster.NewZKMembership(
			cfg.Cluster.ZKServers,
			cfg.Cluster.RootPath,
			cfg.Cluster.LocalAddr,
			cfg.Cluster.SessionTimeout,
		)
		if err != nil {
			slog.Error("failed to connect to ZooKeeper", "error", err)
			os.Exit(1)
		}
		defer membership.Close()

		if err := membership.RegisterSelf(); err != nil {
			slog.Error("failed to register in ZooKeeper", "error", err)
			os.Exit(1)
		}
		membership.WatchServers(ctx, func(servers []string) {
			slog.Info("region server membership changed", "servers", servers)
			registry.SetGauge("cluster_servers", nil, float64(len(servers)))
		})
	}

	// --- HTTP API ---
	srv := server.NewServer(manager, registry, fmt.Sprint(cfg.Server.Port))
	if err := srv.Start(); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	slog.Info("regiondb started", "port", cfg.Server.Port, "regions", manager.Len())

	<-ctx.Done()

	if err := srv.Stop(); err != nil {
		slog.Error("error stopping server", "error", err)
	}
	slog.Info("regiondb stopped")
}
