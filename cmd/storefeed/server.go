package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tinytelemetry/storefeed/internal/backup"
	"github.com/tinytelemetry/storefeed/internal/duckdb"
	"github.com/tinytelemetry/storefeed/internal/feed"
	"github.com/tinytelemetry/storefeed/internal/httpserver"
	"github.com/tinytelemetry/storefeed/internal/ingest"
	"github.com/tinytelemetry/storefeed/internal/journal"
	"github.com/tinytelemetry/storefeed/internal/model"
	"github.com/tinytelemetry/storefeed/internal/socketrpc"
	"golang.org/x/sync/errgroup"
)

// runServer starts the catalog service: DuckDB store, import paths, the HTTP
// API and the socket the terminal client reads from.
func runServer(cfg appConfig, importPath string) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	store, err := duckdb.NewStore(cfg.DBPath, duckdb.StoreConfig{
		QueryTimeout:       cfg.QueryTimeout,
		MaxConcurrentReads: cfg.MaxConcurrentReads,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	// Open local ingest journal for crash-safe replay and durable buffering.
	var ingestJournal *journal.Journal
	if cfg.JournalEnabled {
		ingestJournal, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open ingest journal: %w", err)
		}
		if err := replayUncommittedJournal(ingestJournal, store, cfg.InsertBatchSize); err != nil {
			_ = ingestJournal.Close()
			return fmt.Errorf("failed to replay ingest journal: %w", err)
		}
		defer ingestJournal.Close()
	}

	insertBuffer := duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
		BatchSize:      cfg.InsertBatchSize,
		FlushInterval:  cfg.InsertFlushInterval,
		FlushQueueSize: cfg.InsertFlushQueue,
		Journal:        ingestJournal,
	})
	defer insertBuffer.Stop()

	// Expired listings always leave the feed; listing-retention additionally
	// drops listings older than N days.
	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		MaxAgeDays: cfg.ListingRetention,
	})
	defer retentionCleaner.Stop()

	backupManager, err := backup.NewManager(store, backup.Config{
		Enabled:        cfg.BackupEnabled,
		Interval:       cfg.BackupInterval,
		LocalDir:       cfg.BackupLocalDir,
		KeepLast:       cfg.BackupKeepLast,
		BucketURL:      cfg.BackupBucketURL,
		S3Endpoint:     cfg.BackupS3Endpoint,
		S3Region:       cfg.BackupS3Region,
		S3AccessKey:    cfg.BackupS3AccessKey,
		S3SecretKey:    cfg.BackupS3SecretKey,
		S3SessionToken: cfg.BackupS3SessionToken,
		S3UseSSL:       cfg.BackupS3UseSSL,
		S3CreateBucket: cfg.BackupS3CreateBucket,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		defer backupManager.Stop()
	}

	if cfg.APIEnabled {
		planner := feed.NewPlanner(cfg.Rules...)
		apiServer := httpserver.NewServer(cfg.APIAddr, store, httpserver.ServerConfig{
			Planner: &planner,
			Sink:    insertBuffer,
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Socket RPC server for the terminal client.
	sockServer := socketrpc.NewServer(cfg.SocketPath, store)
	if err := sockServer.Start(); err != nil {
		log.Printf("Warning: failed to start socket server: %v", err)
	} else {
		defer sockServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	plugins := buildInputPlugins(InputPluginConfig{
		TCPEnabled: cfg.TCPEnabled,
		TCPAddr:    cfg.TCPAddr,
		// A piped stdin that is also the -import source would be read twice.
		StdinEnabled: importPath != "-",
	})

	sources := make([]NamedLineSource, 0, len(plugins))
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			log.Printf("Error initializing input plugin %q: %v", plugin.Name(), err)
			continue
		}
		sources = append(sources, src)
	}

	mux := NewSourceMultiplexer(ctx, sources, cfg.MuxBufferSize)
	mux.Start()

	printStartupBanner(cfg, mux.SourceNames())

	g, gctx := errgroup.WithContext(ctx)

	if importPath != "" {
		g.Go(func() error {
			runImport(gctx, store, insertBuffer, importPath)
			return nil
		})
	}

	// Streaming ingest: one demultiplexer over every line source.
	if mux.HasSources() {
		g.Go(func() error {
			demux := ingest.NewDemux(insertBuffer)
			for line := range mux.Lines() {
				demux.Handle(line)
			}
			stats := demux.Close()
			log.Printf("ingest: stream closed: accepted=%d rejected=%d", stats.Accepted, stats.Rejected)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	cancel()
	mux.Stop()

	// If we reach here, graceful shutdown succeeded within the deadline.
	signal.Stop(sigCh)

	return nil
}

// runImport loads a product file through the insert buffer and records the
// run. A path of "-" reads stdin.
func runImport(ctx context.Context, store *duckdb.Store, sink ingest.ProductSink, path string) {
	var (
		stats ingest.Stats
		err   error
	)
	if path == "-" {
		stats, err = ingest.Import(ctx, os.Stdin, ingest.FormatNDJSON, sink)
	} else {
		stats, err = ingest.ImportFile(ctx, path, sink)
	}
	if err != nil {
		log.Printf("ingest: import %s failed: %v", path, err)
	}
	if err := store.RecordImportRun(model.ImportRun{
		Source:   "file:" + filepath.Base(path),
		Accepted: stats.Accepted,
		Rejected: stats.Rejected,
	}); err != nil {
		log.Printf("ingest: record import run: %v", err)
	}
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "storefeed")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "storefeed.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func replayUncommittedJournal(j *journal.Journal, store *duckdb.Store, batchSize int) error {
	if j == nil {
		return nil
	}
	if batchSize <= 0 {
		batchSize = defaultInsertBatchSize
	}

	if j.Pending() == 0 {
		return nil
	}
	log.Printf("ingest journal: %d products pending since last run", j.Pending())

	batch := make([]*model.Product, 0, batchSize)
	batchMaxSeq := uint64(0)
	replayed := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.InsertProductBatch(batch); err != nil {
			return err
		}
		if batchMaxSeq > 0 {
			if err := j.Commit(batchMaxSeq); err != nil {
				return err
			}
		}
		replayed += len(batch)
		batch = make([]*model.Product, 0, batchSize)
		batchMaxSeq = 0
		return nil
	}

	if err := j.Replay(func(seq uint64, p *model.Product) error {
		copied := *p
		batch = append(batch, &copied)
		if seq > batchMaxSeq {
			batchMaxSeq = seq
		}
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	}); err != nil {
		return err
	}

	if err := flush(); err != nil {
		return err
	}
	if replayed > 0 {
		log.Printf("ingest journal: replayed %d uncommitted products", replayed)
	}
	return nil
}

func printStartupBanner(cfg appConfig, sourceNames []string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╔╦╗╔═╗╦═╗╔═╗╔═╗╔═╗╔═╗╔╦╗
    ╚═╗ ║ ║ ║╠╦╝║╣ ╠╣ ║╣ ║╣  ║║
    ╚═╝ ╩ ╚═╝╩╚═╚═╝╚  ╚═╝╚═╝═╩╝`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")

	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}

	if cfg.TCPEnabled {
		lines = append(lines, fmt.Sprintf("    %s  TCP Ingest     %s", check, cyan.Render(cfg.TCPAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  TCP Ingest     %s", dot, dim.Render("disabled")))
	}

	lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Storage"))
	lines = append(lines, "")

	lines = append(lines, fmt.Sprintf("    %s  Catalog        %s", check, dim.Render(shortenPath(cfg.DBPath))))
	if cfg.JournalEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Journal        %s", check, dim.Render(shortenPath(cfg.JournalPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Journal        %s", dot, dim.Render("disabled")))
	}
	if cfg.BackupEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", check, dim.Render(shortenPath(cfg.BackupLocalDir))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Snapshots      %s", dot, dim.Render("disabled")))
	}

	lines = append(lines, "")

	lines = append(lines, bold.Render("    Feed"))
	lines = append(lines, "")
	if len(sourceNames) > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Streams        %s", check, dim.Render(strings.Join(sourceNames, ", "))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Streams        %s", dot, dim.Render("none")))
	}
	rules := make([]string, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, r.String())
	}
	lines = append(lines, fmt.Sprintf("    %s  Carousels      %s", check, dim.Render(strings.Join(rules, "; "))))

	lines = append(lines, "")
	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
