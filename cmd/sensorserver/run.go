package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/sensorstream/cacher"
	"github.com/cyberinferno/sensorstream/config"
	"github.com/cyberinferno/sensorstream/httpserver"
	"github.com/cyberinferno/sensorstream/logger"
	"github.com/cyberinferno/sensorstream/metrics"
	"github.com/cyberinferno/sensorstream/sensorbuffer"
	"github.com/cyberinferno/sensorstream/tcpserver"
)

const shutdownTimeout = 5 * time.Second

func newLogger(cfg config.LoggingConfig) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	if cfg.Dir != "" {
		return logger.NewFileLogger("sensorserver", cfg.Dir, level)
	}

	if strings.EqualFold(cfg.Format, "json") {
		return logger.NewZerologLogger(zerolog.New(os.Stdout), "sensorserver", level), nil
	}

	return logger.NewConsoleLogger("sensorserver", level), nil
}

// newSnapshotCache returns the /data snapshot cache and a function that
// releases its backend.
func newSnapshotCache(cfg config.CacheConfig) (cacher.Cacher[string], func() error) {
	if strings.EqualFold(cfg.Backend, "redis") {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddress,
			DB:   cfg.RedisDB,
		})
		return cacher.NewRedisCacher[string](client, cfg.KeyPrefix), client.Close
	}

	return cacher.NewMemoryCacher[string](cache.NoExpiration, time.Minute), func() error { return nil }
}

// snapshotInvalidator drops the cached /data snapshot whenever a session ends
// so the finished stream is served in full without waiting for the TTL.
type snapshotInvalidator struct {
	tcpserver.Recorder
	snapshots cacher.Cacher[string]
	logger    logger.Logger
}

func (i snapshotInvalidator) SessionEnded(cause tcpserver.EndCause) {
	i.Recorder.SessionEnded(cause)

	if err := i.snapshots.Delete(context.Background(), httpserver.SnapshotKey); err != nil {
		i.logger.Warn("snapshot invalidation failed", logger.Field{Key: "error", Value: err.Error()})
	}
}

// run wires the listener, metrics and HTTP surface together and blocks until
// ctx is cancelled or the HTTP server fails.
func run(ctx context.Context, cfg config.Config, log logger.Logger) error {
	idleTimeout, err := cfg.Server.IdleTimeoutDuration()
	if err != nil {
		return fmt.Errorf("parse idle timeout: %w", err)
	}
	pollInterval, err := cfg.Server.PollIntervalDuration()
	if err != nil {
		return fmt.Errorf("parse poll interval: %w", err)
	}

	var snapshotTTL time.Duration
	if cfg.HTTP.Enabled {
		if snapshotTTL, err = cfg.HTTP.SnapshotTTLDuration(); err != nil {
			return fmt.Errorf("parse snapshot ttl: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	metricsRecorder, err := metrics.NewRecorder(registry)
	if err != nil {
		return fmt.Errorf("create metrics recorder: %w", err)
	}

	var recorder tcpserver.Recorder = metricsRecorder
	var snapshots cacher.Cacher[string]
	if cfg.HTTP.Enabled {
		var closeCache func() error
		snapshots, closeCache = newSnapshotCache(cfg.Cache)
		defer func() {
			if err := closeCache(); err != nil {
				log.Warn("snapshot cache close failed", logger.Field{Key: "error", Value: err.Error()})
			}
		}()

		recorder = snapshotInvalidator{Recorder: metricsRecorder, snapshots: snapshots, logger: log}
	}

	buffer := sensorbuffer.New()
	server, err := tcpserver.New(tcpserver.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		IdleTimeout:  idleTimeout,
		PollInterval: pollInterval,
		HistorySize:  cfg.Server.HistorySize,
	}, buffer, log, tcpserver.WithRecorder(recorder))
	if err != nil {
		return err
	}

	if err := server.Start(); err != nil {
		server.Stop()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		web := httpserver.New(httpserver.Options{
			Address:     cfg.HTTP.ListenAddress,
			SnapshotTTL: snapshotTTL,
		}, registry, snapshots, buffer, server, log)

		errCh := make(chan error, 1)
		if err := web.Start(errCh); err != nil {
			server.Stop()
			return err
		}

		g.Go(func() error {
			select {
			case err := <-errCh:
				return err
			case <-gctx.Done():
				return nil
			}
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return web.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown requested")
		server.Stop()
		return nil
	})

	err = g.Wait()
	log.Info("sensorserver exited",
		logger.Field{Key: "lines_buffered", Value: buffer.LineCount()},
		logger.Field{Key: "bytes_buffered", Value: buffer.Len()},
	)

	return err
}
