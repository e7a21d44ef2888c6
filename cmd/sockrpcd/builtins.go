package main

import (
	"context"
	"os"
	"time"

	"github.com/codefionn/sockrpc/internal/dispatch"
	"github.com/codefionn/sockrpc/internal/manifest"
	"github.com/codefionn/sockrpc/internal/protocol"
)

var started = time.Now()

// builtinSpecs declares the commands every daemon serves regardless of
// manifest.
func builtinSpecs() map[string]*manifest.Command {
	return map[string]*manifest.Command{
		"ping":   {Description: "liveness check"},
		"echo":   {Description: "returns the arguments unchanged"},
		"status": {Description: "daemon status and request counters"},
	}
}

// graftBuiltins adds the built-in command specs to a loaded manifest so
// manifest-authoritative routing keeps them reachable. Declarations in the
// file win over the defaults.
func graftBuiltins(m *manifest.Manifest) {
	for name, spec := range builtinSpecs() {
		if _, ok := m.Commands[name]; !ok {
			m.Commands[name] = spec
		}
	}
}

// registerBuiltins binds the default handlers.
func registerBuiltins(srv *dispatch.Server, engine *manifest.Engine) {
	reg := srv.Registry()

	reg.Register("ping", func(ctx context.Context, args map[string]interface{}) (interface{}, *protocol.StructuredError) {
		return map[string]interface{}{
			"pong":      true,
			"timestamp": protocol.Timestamp(),
		}, nil
	})

	reg.Register("echo", func(ctx context.Context, args map[string]interface{}) (interface{}, *protocol.StructuredError) {
		if args == nil {
			args = map[string]interface{}{}
		}
		return args, nil
	})

	reg.Register("status", func(ctx context.Context, args map[string]interface{}) (interface{}, *protocol.StructuredError) {
		stats := srv.Stats()
		result := map[string]interface{}{
			"version":        version,
			"pid":            os.Getpid(),
			"socket":         srv.SocketPath(),
			"uptime_seconds": time.Since(started).Seconds(),
			"commands":       reg.Commands(),
			"requests": map[string]interface{}{
				"received":  stats.Received,
				"completed": stats.Completed,
				"rejected":  stats.Rejected,
				"dropped":   stats.Dropped,
				"timeouts":  stats.Timeouts,
			},
		}
		if engine != nil {
			if m := engine.Current(); m != nil {
				result["manifest"] = map[string]interface{}{
					"name":    m.Name,
					"version": m.Version,
				}
			}
		}
		return result, nil
	})
}
