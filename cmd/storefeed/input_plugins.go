package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tinytelemetry/storefeed/internal/linesource"
	"github.com/tinytelemetry/storefeed/internal/tcpserver"
)

// NamedLineSource aliases the shared source abstraction to keep app-layer APIs explicit.
type NamedLineSource = linesource.LineSource

// InputSourcePlugin is a small plugin primitive for wiring streaming product inputs.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedLineSource, error)
}

// InputPluginConfig defines runtime input selection.
type InputPluginConfig struct {
	TCPEnabled   bool
	TCPAddr      string
	StdinEnabled bool
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	plugins := make([]InputSourcePlugin, 0, 2)
	plugins = append(plugins, tcpInputPlugin{
		addr:    cfg.TCPAddr,
		enabled: cfg.TCPEnabled,
	})
	plugins = append(plugins, stdinInputPlugin{enabled: cfg.StdinEnabled})
	return plugins
}

type tcpInputPlugin struct {
	addr    string
	enabled bool
}

func (p tcpInputPlugin) Name() string { return "tcp" }

func (p tcpInputPlugin) Enabled() bool { return p.enabled }

func (p tcpInputPlugin) Build(_ context.Context) (NamedLineSource, error) {
	server := tcpserver.NewServer(p.addr)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start tcp server: %w", err)
	}
	return linesource.NewTCPSource(server), nil
}

// stdinInputPlugin reads products piped into the server, e.g.
// `cat products.ndjson | storefeed`.
type stdinInputPlugin struct {
	enabled bool
}

func (p stdinInputPlugin) Name() string { return "stdin" }

func (p stdinInputPlugin) Enabled() bool {
	if !p.enabled {
		return false
	}
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func (p stdinInputPlugin) Build(ctx context.Context) (NamedLineSource, error) {
	return linesource.NewStdinSource(ctx), nil
}
