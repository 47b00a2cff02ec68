// Command rkvd runs the Redis-wire-compatible key-value server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rkvd/rkvd/internal/config"
	"github.com/rkvd/rkvd/internal/logging"
	"github.com/rkvd/rkvd/internal/rerrors"
	"github.com/rkvd/rkvd/internal/server"
	"github.com/rkvd/rkvd/internal/storage"
)

const banner = `
        _             _
 _ __  | | ____ _   __| |
| '__| | |/ / _' | / _' |
| |    |   < (_| || (_| |
|_|    |_|\_\__,_(_)__,_|
`

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "rkvd",
		Short: "A Redis-wire-compatible key-value server",
		RunE:  run,
	}

	flags := root.Flags()
	flags.String("host", "", "bind host (default 127.0.0.1)")
	flags.Int("port", 0, "bind port (default 6379)")
	flags.String("storage-backend", "", "storage backend: memory, durable, remote")
	flags.String("durable-path", "", "path to the on-disk database file (durable backend)")
	flags.String("remote-bucket", "", "object store bucket name (remote backend)")
	flags.String("remote-prefix", "", "object key prefix (remote backend)")
	flags.String("remote-region", "", "object store region (remote backend)")
	flags.Int("expiry-sweep-interval", 0, "background expiry sweep interval in seconds (memory backend)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-file", "", "log file path (empty logs to stdout)")
	flags.String("metrics-addr", "", "metrics HTTP listen address")
	flags.StringVar(&configPath, "config", "", "path to a JSON config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", rerrors.WrapInit(err, "loading configuration"))
		os.Exit(1)
	}

	logging.SetOptions(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	fmt.Fprint(os.Stdout, banner)
	logging.Infof("starting rkvd: backend=%s addr=%s:%d", cfg.Backend, cfg.Host, cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := storage.New(ctx, storage.Config{
		Backend:             storage.Kind(cfg.Backend),
		ExpirySweepInterval: cfg.ExpirySweepInterval,
		DurablePath:         cfg.DurablePath,
		RemoteBucket:        cfg.RemoteBucket,
		RemotePrefix:        cfg.RemotePrefix,
		RemoteRegion:        cfg.RemoteRegion,
	})
	if err != nil {
		logging.Errorf("%v", rerrors.WrapInit(err, "initializing storage backend"))
		os.Exit(1)
	}
	defer backend.Close()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	srv := server.New(cfg, backend)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Infof("shutdown signal received")
		cancel()
	}()

	if err := srv.ListenAndServe(ctx); err != nil {
		logging.Errorf("server exited: %v", err)
		os.Exit(2)
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Warnf("metrics server stopped: %v", err)
	}
}
