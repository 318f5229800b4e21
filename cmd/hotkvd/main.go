// Command hotkvd serves a hot-key cache over ZeroMQ: control commands on a
// REQ/REP endpoint, data plane events on a PUB endpoint and Prometheus metrics
// over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"github.com/Borislavv/go-hotkv"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/internal/telemetry"
	"github.com/Borislavv/go-hotkv/metrics/prom"
	"github.com/Borislavv/go-hotkv/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var (
		path  = flag.String("config", "hotkvd.yaml", "path to the YAML config")
		debug = flag.Bool("debug", false, "log at debug level")
	)
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := telemetry.NewZeroLogger(zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger())

	if err := run(*path, logger); err != nil {
		logger.Error("[hotkvd] exited", "err", err)
		os.Exit(1)
	}
}

func run(path string, logger *slog.Logger) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	if !cfg.Transport.Enabled() || cfg.Transport.ControlEndpoint == "" {
		return fmt.Errorf("%w: transport.control_endpoint is required", config.ErrInvalidConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cache, err := hotkv.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := prom.New(reg, "hotkv", cache, nil)

	g, ctx := errgroup.WithContext(ctx)

	srv := transport.NewServer(cfg.Transport.ControlEndpoint, metrics.Instrument(cache), cfg.Transport.Timeout, logger)
	if err = srv.Listen(ctx); err != nil {
		return err
	}
	g.Go(srv.Serve)
	g.Go(func() error {
		<-ctx.Done()
		return srv.Close()
	})

	if cfg.Transport.EventsEndpoint != "" {
		pub := transport.NewPublisher(cfg.Transport.EventsEndpoint, logger)
		if err = pub.Listen(ctx); err != nil {
			return err
		}
		sub := cache.Subscribe(0)
		g.Go(func() error {
			pub.Run(ctx, sub.C())
			cache.Unsubscribe(sub)
			return pub.Close()
		})
	}

	if cfg.Transport.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		httpSrv := &http.Server{Addr: cfg.Transport.MetricsAddr, Handler: mux, ReadHeaderTimeout: time.Second}
		g.Go(func() error {
			logger.Info("[hotkvd] metrics listening", "addr", cfg.Transport.MetricsAddr)
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("[hotkvd] serving", "control", srv.Addr(), "events", cfg.Transport.EventsEndpoint)
	return g.Wait()
}
