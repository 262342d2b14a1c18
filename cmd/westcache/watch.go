package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/llx1993/westcache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		report      time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run a table flusher and log control table changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, report, metricsAddr)
		},
	}
	cmd.Flags().DurationVar(&report, "report", 30*time.Second, "interval between table status reports")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090 (disabled when empty)")
	return cmd
}

// snapshotStores 注册可用的快照存储，按名称选择。
func (a *app) snapshotStores(reg *westcache.Registries) error {
	reg.Snapshots.RegisterForcely("file", westcache.NewFileSnapshotStore(a.cfg.Flusher.SnapshotDir))
	reg.Snapshots.RegisterForcely("redis", westcache.NewRedisSnapshotStore(a.redisClient()))
	if a.cfg.Storage.Endpoint != "" {
		client, err := westcache.NewObjectClient(a.cfg.Storage)
		if err != nil {
			return err
		}
		reg.Snapshots.RegisterForcely("minio", westcache.NewMinioSnapshotStore(client, a.cfg.Storage.Bucket, "snapshots"))
	}
	return nil
}

func (a *app) newFlusher(ctx context.Context, reg *westcache.Registries, metrics *westcache.Metrics) (*westcache.TableFlusher, error) {
	table, err := a.openTable(ctx)
	if err != nil {
		return nil, err
	}

	opts := []westcache.Option{
		westcache.WithLogger(a.log),
		westcache.WithRotateInterval(a.cfg.Flusher.RotateInterval),
		westcache.WithSnapshotTimeout(a.cfg.Flusher.SnapshotTimeout),
		westcache.WithMetrics(metrics),
		westcache.WithDirectValueSource(&westcache.SpecDirectSource{
			Table:   table,
			Redis:   westcache.NewRedisDirectSource(a.redisClient(), reg.Loaders, a.log),
			Loaders: reg.Loaders,
		}),
	}
	if name := a.cfg.Flusher.Snapshot; name != "" && name != "none" {
		if err := a.snapshotStores(reg); err != nil {
			return nil, err
		}
		store, ok := reg.Snapshots.Get(name)
		if !ok {
			return nil, errors.Newf("unknown snapshot store %q", name)
		}
		opts = append(opts, westcache.WithSnapshotStore(store))
	}

	f, err := westcache.NewTableFlusher(table, westcache.NewValueCache(), opts...)
	if err != nil {
		return nil, err
	}
	if err := reg.Flushers.Register(westcache.DefaultName, f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// serveMetrics 在 ln 上提供 /metrics，ctx 结束时关闭。
func serveMetrics(ctx context.Context, ln net.Listener, registry *prometheus.Registry, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server stopped", zap.Error(err))
	}
}

func (a *app) watch(ctx context.Context, report time.Duration, metricsAddr string) error {
	var metrics *westcache.Metrics
	if metricsAddr != "" {
		registry := prometheus.NewRegistry()
		metrics = westcache.NewMetrics(registry)
		ln, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			return errors.Wrapf(err, "listen on %s", metricsAddr)
		}
		go serveMetrics(ctx, ln, registry, a.log)
	}

	reg := westcache.NewRegistries()
	f, err := a.newFlusher(ctx, reg, metrics)
	if err != nil {
		return err
	}
	defer f.Close()

	key := a.cfg.Flusher.Key
	if _, err := f.IsKeyEnabled(ctx, key); err != nil {
		return errors.Wrap(err, "start table flusher")
	}
	a.log.Info("watching control table",
		zap.String("source", a.cfg.Flusher.Source),
		zap.String("key", key),
		zap.Duration("rotateInterval", a.cfg.Flusher.RotateInterval))

	// Redis 控制表有更新通知，其他来源只依赖定时轮询
	if a.cfg.Flusher.Source == "redis" {
		go func() {
			if err := f.Watch(ctx, a.redisClient()); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("watch stopped", zap.Error(err))
			}
		}()
	}

	ticker := time.NewTicker(report)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutting down")
			return nil
		case <-ticker.C:
			a.log.Info("table status",
				zap.String("state", f.State().String()),
				zap.Int("beans", f.Table().Len()),
				zap.String("fingerprint", f.Table().Fingerprint()),
				zap.Time("lastExecuted", f.LastExecuted()))
		}
	}
}
