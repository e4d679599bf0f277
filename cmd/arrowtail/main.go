// arrowtail - live-tails Arrow IPC trace and metric files into a queryable
// dashboard
//
//	arrowtail run       Run the tailing daemon
//	arrowtail check     Run one detection pass and print the changes
//	arrowtail version   Print the version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"arrowtail/internal/config"
	"arrowtail/internal/dashboard"
	"arrowtail/internal/engine"
	"arrowtail/internal/ingest"
	"arrowtail/internal/logging"
	"arrowtail/internal/metrics"
	"arrowtail/internal/refresh"
	"arrowtail/internal/source"
	"arrowtail/internal/view"
	"arrowtail/internal/watcher"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		cmdRun()
	case "check":
		cmdCheck()
	case "version":
		fmt.Printf("arrowtail %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`arrowtail - live dashboard over Arrow IPC trace and metric files

USAGE:
    arrowtail <command> [options]

COMMANDS:
    run         Run the tailing daemon
    check       Run one detection pass and print the changes
    version     Print the version
    help        Show this help message

OPTIONS:
    -config <path>    Config file (TOML or YAML); defaults apply without one

The daemon polls a directory or S3 bucket for Arrow IPC files, registers
each one as a queryable table, and serves a live dashboard of the traces
and metrics inside. Files may keep growing while watched; new rows stream
into the view as they land.`)
}

func loadConfig(args []string) (*config.Config, *config.Loader) {
	fs := flag.NewFlagSet("arrowtail", flag.ExitOnError)
	path := fs.String("config", "", "config file path (TOML or YAML)")
	fs.Parse(args)

	if *path == "" {
		cfg := config.DefaultConfig()
		cfg.ApplyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg, nil
	}

	loader := config.NewLoader(*path)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg, loader
}

func setupLogging(cfg *config.Config) *logging.Logger {
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	format, _ := logging.ParseFormat(cfg.Logging.Format)
	log, err := logging.New(&logging.Config{
		Level:     level,
		Format:    format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Component: "arrowtail",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(log)
	return log
}

func openSource(ctx context.Context, cfg *config.Config) (source.Source, error) {
	switch cfg.Source.Type {
	case "s3":
		return source.NewS3Source(ctx, source.S3Config{
			Endpoint:  cfg.Source.S3.Endpoint,
			Bucket:    cfg.Source.S3.Bucket,
			Prefix:    cfg.Source.S3.Prefix,
			Region:    cfg.Source.S3.Region,
			AccessKey: cfg.Source.S3.AccessKey,
			SecretKey: cfg.Source.S3.SecretKey,
		}, cfg.Watch.IncludePatterns)
	default:
		return source.NewDirSource(cfg.Source.Path, cfg.Watch.IncludePatterns)
	}
}

func cmdRun() {
	cfg, loader := loadConfig(os.Args[2:])
	if loader != nil {
		defer loader.Close()
	}

	log := setupLogging(cfg)
	defer log.Close()

	ctx := context.Background()

	src, err := openSource(ctx, cfg)
	if err != nil {
		log.Error("open source failed", "error", err)
		os.Exit(1)
	}
	defer src.Close()

	eng, err := engine.Open(cfg.Engine.Path)
	if err != nil {
		log.Error("open engine failed", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	// Settings that config hot-reload may change mid-run.
	var liveTail atomic.Bool
	liveTail.Store(cfg.View.LiveTail)
	var limits atomic.Pointer[ingest.Limits]
	limits.Store(&ingest.Limits{
		MaxLoadedTables: cfg.Engine.MaxLoadedTables,
		MaxTraces:       cfg.View.MaxTraces,
		MaxGraphPoints:  cfg.View.MaxGraphPoints,
	})
	var serviceFilter atomic.Pointer[string]
	serviceFilter.Store(&cfg.View.ServiceFilter)

	v := view.New()
	index := ingest.NewTableIndex()
	limiter := ingest.NewLimiter(eng, index, v, func() ingest.Limits { return *limits.Load() }, log)

	driver := refresh.New(eng, v, index, func() refresh.Filters {
		return refresh.Filters{Service: *serviceFilter.Load()}
	}, nil)

	// Missing-table reports arrive on the engine's channel; the reconciler
	// drops the stale index entries and resynchronizes the view.
	reconciler := ingest.NewReconciler(index, driver, log)
	reconciler.Run(eng.Missing())

	coord := ingest.NewCoordinator(src, eng, index, driver, limiter, ingest.Options{
		SettleDelay: cfg.Watch.SettleDelay(),
		MaxFileSize: cfg.Watch.MaxFileSize,
		LiveTail:    liveTail.Load,
	}, log)

	det := watcher.New(src)
	if cfg.Watch.FsHints {
		if err := det.EnableHints(); err != nil {
			log.Warn("fs hints unavailable, polling only", "error", err)
		}
	}

	// Drain failed-pass errors so detection keeps running quietly.
	go func() {
		for err := range det.Errors() {
			metrics.RecordDetectionFailure()
			log.Warn("detection pass failed", "error", err)
		}
	}()

	coord.Run(det.Events())
	det.Start(cfg.Watch.PollInterval())
	driver.StartTicker(cfg.View.RefreshInterval(), func(err error) {
		log.Error("periodic refresh failed", "error", err)
	})

	var dash *dashboard.Server
	if cfg.Dashboard.Enabled {
		dash = dashboard.New(v, index, cfg.Dashboard.StaticDir, func() dashboard.Info {
			return dashboard.Info{
				Version:      version,
				LiveTail:     liveTail.Load(),
				TrackedFiles: det.TrackedFiles(),
			}
		}, func() dashboard.Limits {
			l := limits.Load()
			return dashboard.Limits{
				MaxLoadedTables: l.MaxLoadedTables,
				MaxTraces:       l.MaxTraces,
				MaxGraphPoints:  l.MaxGraphPoints,
			}
		}, log)
		if err := dash.Start(cfg.Dashboard.Listen); err != nil {
			log.Error("start dashboard failed", "error", err)
			os.Exit(1)
		}
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
		log.Info("metrics listening", "address", cfg.Metrics.Listen)
	}

	if loader != nil {
		loader.OnChange(func(next *config.Config) {
			liveTail.Store(next.View.LiveTail)
			limits.Store(&ingest.Limits{
				MaxLoadedTables: next.Engine.MaxLoadedTables,
				MaxTraces:       next.View.MaxTraces,
				MaxGraphPoints:  next.View.MaxGraphPoints,
			})
			serviceFilter.Store(&next.View.ServiceFilter)
			det.Start(next.Watch.PollInterval())
			driver.StartTicker(next.View.RefreshInterval(), func(err error) {
				log.Error("periodic refresh failed", "error", err)
			})
			limiter.EnforceTables(ctx)
			limiter.EnforceView()
			log.Info("configuration reloaded")
		})
		if err := loader.Watch(); err != nil {
			log.Warn("config watch unavailable", "error", err)
		}
	}

	log.Info("arrowtail started",
		"version", version,
		"source", cfg.Source.Type,
		"poll_interval", cfg.Watch.PollInterval().String(),
		"live_tail", cfg.View.LiveTail)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")

	det.Stop()
	coord.Stop()
	reconciler.Stop()
	driver.StopTicker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if dash != nil {
		_ = dash.Shutdown(shutdownCtx)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func cmdCheck() {
	cfg, loader := loadConfig(os.Args[2:])
	if loader != nil {
		defer loader.Close()
	}

	log := setupLogging(cfg)
	defer log.Close()

	ctx := context.Background()
	src, err := openSource(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Open source failed: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	det := watcher.New(src)
	events, err := det.CheckForChanges(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection pass failed: %v\n", err)
		os.Exit(1)
	}

	if len(events) == 0 {
		fmt.Println("No changes.")
		return
	}
	for _, e := range events {
		fmt.Printf("%-9s %s  (%d bytes)\n", e.Kind, e.Meta.Name, e.Meta.Size)
	}
}
