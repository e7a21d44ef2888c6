// Package pprof exposes the daemon's runtime profiling surface. A
// Profiler can serve the net/http/pprof handlers on a debug address,
// write CPU and heap profiles to files over the daemon's lifetime, or
// both. With an empty Config it is inert.
package pprof

import (
	"context"
	"fmt"
	"net"
	"net/http"
	netpprof "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/codefionn/sockrpc/internal/logger"
)

// Config selects which profiling outputs to expose. Zero values disable
// everything.
type Config struct {
	// HTTPAddr serves the net/http/pprof handlers when non-empty,
	// e.g. "localhost:6060".
	HTTPAddr string

	// CPUProfile collects a CPU profile from Start to Stop and writes
	// it to this path.
	CPUProfile string

	// HeapProfile writes a heap profile to this path on Stop.
	HeapProfile string
}

// Profiler manages the configured profiling outputs.
type Profiler struct {
	config   Config
	server   *http.Server
	listener net.Listener
	cpuFile  *os.File

	mu      sync.Mutex
	stopped bool
}

// New creates a profiler for the given configuration.
func New(config Config) *Profiler {
	return &Profiler{config: config}
}

// Enabled reports whether any profiling output is configured.
func (p *Profiler) Enabled() bool {
	return p.config.HTTPAddr != "" || p.config.CPUProfile != "" || p.config.HeapProfile != ""
}

// Start begins CPU profiling and binds the debug listener. A failure
// leaves the profiler in an undefined state; callers should treat it as
// fatal.
func (p *Profiler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.CPUProfile != "" {
		f, err := createProfileFile(p.config.CPUProfile)
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return fmt.Errorf("failed to start CPU profiling: %w", err)
		}
		p.cpuFile = f
	}

	if p.config.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", netpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)

		ln, err := net.Listen("tcp", p.config.HTTPAddr)
		if err != nil {
			return fmt.Errorf("failed to bind pprof listener: %w", err)
		}
		p.listener = ln
		p.server = &http.Server{Handler: mux}

		go func() {
			if serveErr := p.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
				logger.Warn("pprof server error: %v", serveErr)
			}
		}()
		logger.Info("pprof listening on http://%s/debug/pprof/", ln.Addr())
	}

	return nil
}

// Addr returns the bound debug listener address, or "" when no HTTP
// listener is running. Useful with "localhost:0".
func (p *Profiler) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Stop flushes the profile files and shuts the debug listener down.
// Subsequent calls are no-ops.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true

	var errs []error

	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := p.cpuFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close CPU profile: %w", err))
		} else {
			logger.Info("CPU profile written to %s", p.config.CPUProfile)
		}
		p.cpuFile = nil
	}

	if p.config.HeapProfile != "" {
		if err := writeHeapProfile(p.config.HeapProfile); err != nil {
			errs = append(errs, err)
		} else {
			logger.Info("heap profile written to %s", p.config.HeapProfile)
		}
	}

	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down pprof server: %w", err))
		}
		p.server = nil
		p.listener = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("profiler shutdown: %v", errs)
	}
	return nil
}

func createProfileFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile file: %w", err)
	}
	return f, nil
}

func writeHeapProfile(path string) error {
	f, err := createProfileFile(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	return nil
}
