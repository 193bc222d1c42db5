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

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/goforj/kvcore/internal/config"
	"github.com/goforj/kvcore/metrics"
)

var (
	version = "dev"
	commit  = "unknown"
)

// CLI is the top-level command structure for kvdemo.
type CLI struct {
	Version     kong.VersionFlag `help:"Show version." short:"V"`
	Config      string           `help:"Path to the YAML config file." default:"kvdemo.yaml" type:"path"`
	MetricsAddr string           `help:"Serve Prometheus metrics on this address while the command runs." name:"metrics-addr"`

	Caching CachingCmd `cmd:"" help:"Time repeated and concurrent order lookups through the cache."`
	Pubsub  PubsubCmd  `cmd:"" help:"Publish a chat message and log what subscribers receive."`
}

// app carries what every command needs.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	closers  []func(context.Context) error
}

func (cli *CLI) setup() (*app, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if cli.MetricsAddr != "" {
		cfg.Metrics.Addr = cli.MetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector())

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(a.registry))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
		a.onClose(srv.Shutdown)
	}
	return a, nil
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close runs closers in reverse registration order.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i](ctx))
	}
	_ = a.logger.Sync()
	return err
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("config: log.level: %w", err)
		}
		zc.Level = level
	}
	return zc.Build()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("kvdemo"),
		kong.Description("Single-flight cache and topic bus demos."),
		kong.Vars{"version": version + " " + commit},
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
