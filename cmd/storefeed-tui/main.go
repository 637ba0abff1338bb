package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/tinytelemetry/storefeed/internal/recent"
	"github.com/tinytelemetry/storefeed/internal/socketrpc"
	"github.com/tinytelemetry/storefeed/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var socketPath string
	var showVersion bool
	var guest string

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/storefeed/config.yml)")
	flag.StringVar(&socketPath, "socket", "", "override socket path to connect to storefeed service")
	flag.StringVar(&guest, "guest", "", "browse as a guest (true) or signed in (false)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("Storefeed CLI - Storefront Client\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if socketPath != "" {
		cfg.SocketPath = socketPath
	}
	switch strings.ToLower(guest) {
	case "":
	case "true", "1", "yes":
		cfg.Guest = true
	case "false", "0", "no":
		cfg.Guest = false
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid -guest value %q\n", guest)
		os.Exit(2)
	}

	if err := runTUI(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cfg cliConfig) error {
	cleanupLogger := configureClientLogger(cfg.RecentPath)
	defer cleanupLogger()

	if err := tui.InitializeSkin(cfg.Skin); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using default)\n", err)
	}

	client, err := socketrpc.Dial(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to storefeed service at %s: %w\nIs the storefeed service running? Start it with: storefeed", cfg.SocketPath, err)
	}
	defer client.Close()

	var recents recent.Store
	fileStore, err := recent.OpenFile(cfg.RecentPath, cfg.RecentCapacity)
	if err != nil {
		log.Printf("recent: %v; recently viewed will not persist", err)
		recents = recent.NewMemoryStore(cfg.RecentCapacity)
	} else {
		defer fileStore.Close()
		recents = fileStore
	}

	page := tui.NewFeedPage(client, recents, tui.FeedConfig{
		Session:            cfg.sessionConfig(),
		FetchTimeout:       cfg.FetchTimeout,
		TickInterval:       cfg.TickInterval,
		CarouselLimit:      cfg.CarouselLimit,
		ReverseScrollWheel: cfg.ReverseScrollWheel,
	})
	app := tui.NewApp(page)

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// configureClientLogger keeps log output off the terminal while Bubble Tea
// owns it. Logs go next to the recently viewed file, or nowhere.
func configureClientLogger(recentPath string) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(io.Discard)

	dir := filepath.Dir(recentPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, "storefeed-tui.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return func() {}
	}
	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}
