package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/codefionn/sockrpc/internal/config"
	"github.com/codefionn/sockrpc/internal/dispatch"
	"github.com/codefionn/sockrpc/internal/logger"
	"github.com/codefionn/sockrpc/internal/manifest"
	"github.com/codefionn/sockrpc/internal/pidfile"
	"github.com/codefionn/sockrpc/internal/pprof"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   = flag.String("config", config.GetConfigPath(), "configuration file")
		socketPath   = flag.String("socket", "", "socket path override")
		manifestPath = flag.String("manifest", "", "manifest file override")
		watch        = flag.Bool("watch", false, "reload the manifest when it changes on disk")
		logLevelFlag = flag.String("log-level", "", "log level override (none, error, warning, info, debug)")
		logPathFlag  = flag.String("log-path", "", "log file override (default stderr)")
		pidPath      = flag.String("pidfile", config.DefaultPidPath(), "PID file path")
		pprofAddr    = flag.String("pprof-addr", "", "serve net/http/pprof on this address")
		cpuProfile   = flag.String("cpu-profile", "", "write a CPU profile to this file on shutdown")
		heapProfile  = flag.String("heap-profile", "", "write a heap profile to this file on shutdown")
		showVersion  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("sockrpcd %s\n", version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}
	if *manifestPath != "" {
		cfg.ManifestPath = *manifestPath
	}
	if *watch {
		cfg.ManifestWatch = true
	}
	if *logLevelFlag != "" {
		cfg.LogLevel = *logLevelFlag
	}
	if *logPathFlag != "" {
		cfg.LogPath = *logPathFlag
	}

	logLevel := logger.ParseLevel(cfg.LogLevel)
	if initErr := logger.Init(logLevel, cfg.LogPath); initErr != nil {
		return fmt.Errorf("failed to initialize logger: %w", initErr)
	}
	defer func() {
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()
	slog.SetDefault(slog.New(logger.NewSlogHandler(logger.Global())))

	logger.Info("sockrpcd %s starting", version)

	prof := pprof.New(pprof.Config{
		HTTPAddr:    *pprofAddr,
		CPUProfile:  *cpuProfile,
		HeapProfile: *heapProfile,
	})
	if prof.Enabled() {
		if err := prof.Start(); err != nil {
			return fmt.Errorf("failed to start profiler: %w", err)
		}
		defer func() {
			if stopErr := prof.Stop(); stopErr != nil {
				logger.Warn("Failed to stop profiler: %v", stopErr)
			}
		}()
	}

	pf := pidfile.New(*pidPath)
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer func() {
		if removeErr := pf.Remove(); removeErr != nil {
			logger.Warn("Failed to remove pidfile: %v", removeErr)
		}
	}()

	var engine *manifest.Engine
	if cfg.ManifestPath != "" {
		m, err := manifest.LoadFile(cfg.ManifestPath)
		if err != nil {
			return fmt.Errorf("failed to load manifest: %w", err)
		}
		graftBuiltins(m)
		engine = manifest.NewEngine(m)
		logger.Info("manifest loaded: %s", m.String())
	}

	srv, err := dispatch.NewServer(cfg, dispatch.NewRegistry(), engine)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	registerBuiltins(srv, engine)

	var watcher *manifest.Watcher
	if engine != nil && cfg.ManifestWatch {
		watcher, err = manifest.NewWatcher(cfg.ManifestPath, engine, nil, graftBuiltins)
		if err != nil {
			srv.Stop()
			return fmt.Errorf("failed to watch manifest: %w", err)
		}
		logger.Info("watching %s for changes", cfg.ManifestPath)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received %s, shutting down", sig)

	if watcher != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Warn("Failed to close manifest watcher: %v", closeErr)
		}
	}

	// Cancelling first interrupts in-flight handlers so Stop does not
	// wait out their full deadlines.
	cancel()
	return srv.Stop()
}
