package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tinytelemetry/storefeed/internal/feed"
	"github.com/tinytelemetry/storefeed/internal/socketrpc"
)

const (
	defaultBindHost            = "127.0.0.1"
	defaultTCPPort             = 4000
	defaultMuxBufferSize       = DefaultMuxBuffer
	defaultAPIPort             = 3000
	defaultQueryTimeout        = 30 * time.Second
	defaultMaxConcurrentReads  = 8
	defaultInsertBatchSize     = 2000
	defaultInsertFlushInterval = 100 * time.Millisecond
	defaultInsertFlushQueue    = 64
	defaultListingRetention    = 0 // days, 0 = keep listings until they expire
	defaultBackupInterval      = 6 * time.Hour
	defaultBackupKeepLast      = 5
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host                string            `mapstructure:"host"`
	TCPEnabled          bool              `mapstructure:"tcp-enabled"`
	TCPPort             int               `mapstructure:"tcp-port"`
	TCPAddr             string            `mapstructure:"tcp-addr"`
	MuxBufferSize       int               `mapstructure:"mux-buffer-size"`
	DBPath              string            `mapstructure:"db-path"`
	APIEnabled          bool              `mapstructure:"api-enabled"`
	APIPort             int               `mapstructure:"api-port"`
	APIAddr             string            `mapstructure:"api-addr"`
	QueryTimeout        time.Duration     `mapstructure:"query-timeout"`
	MaxConcurrentReads  int               `mapstructure:"max-concurrent-queries"`
	InsertBatchSize     int               `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration     `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int               `mapstructure:"insert-flush-queue-size"`
	SocketPath          string            `mapstructure:"socket-path"`
	ListingRetention    int               `mapstructure:"listing-retention"`
	JournalEnabled      bool              `mapstructure:"journal-enabled"`
	JournalPath         string            `mapstructure:"journal-path"`
	Interruptions       []feed.RuleConfig `mapstructure:"interruptions"`

	BackupEnabled        bool          `mapstructure:"backup-enabled"`
	BackupInterval       time.Duration `mapstructure:"backup-interval"`
	BackupLocalDir       string        `mapstructure:"backup-local-dir"`
	BackupKeepLast       int           `mapstructure:"backup-keep-last"`
	BackupBucketURL      string        `mapstructure:"backup-bucket-url"`
	BackupS3Endpoint     string        `mapstructure:"backup-s3-endpoint"`
	BackupS3Region       string        `mapstructure:"backup-s3-region"`
	BackupS3AccessKey    string        `mapstructure:"backup-s3-access-key"`
	BackupS3SecretKey    string        `mapstructure:"backup-s3-secret-key"`
	BackupS3SessionToken string        `mapstructure:"backup-s3-session-token"`
	BackupS3UseSSL       bool          `mapstructure:"backup-s3-use-ssl"`
	BackupS3CreateBucket bool          `mapstructure:"backup-s3-create-bucket"`

	Rules      []feed.Rule `mapstructure:"-"`
	ConfigPath string      `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	dataDir := filepath.Join(home, ".local", "share", "storefeed")

	v := viper.New()
	v.SetEnvPrefix("STOREFEED")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("host", defaultBindHost)
	v.SetDefault("tcp-enabled", true)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("mux-buffer-size", defaultMuxBufferSize)
	v.SetDefault("db-path", filepath.Join(dataDir, "storefeed.duckdb"))
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("max-concurrent-queries", defaultMaxConcurrentReads)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("insert-flush-queue-size", defaultInsertFlushQueue)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("listing-retention", defaultListingRetention)
	v.SetDefault("journal-enabled", true)
	v.SetDefault("journal-path", filepath.Join(dataDir, "ingest.journal"))
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-local-dir", filepath.Join(dataDir, "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("backup-s3-use-ssl", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "storefeed", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if cfg.TCPPort <= 0 || cfg.TCPPort > 65535 {
		return cfg, fmt.Errorf("invalid tcp-port: %d", cfg.TCPPort)
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.ListingRetention < 0 {
		return cfg, fmt.Errorf("invalid listing-retention: %d", cfg.ListingRetention)
	}

	if cfg.BackupEnabled {
		if cfg.BackupInterval <= 0 {
			return cfg, fmt.Errorf("invalid backup-interval: %s", cfg.BackupInterval)
		}
		if cfg.BackupKeepLast < 0 {
			return cfg, fmt.Errorf("invalid backup-keep-last: %d", cfg.BackupKeepLast)
		}
		if cfg.BackupBucketURL != "" && (cfg.BackupS3AccessKey == "" || cfg.BackupS3SecretKey == "") {
			return cfg, errors.New("backup-s3-access-key and backup-s3-secret-key are required with backup-bucket-url")
		}
	}

	cfg.Rules, err = feed.BuildRules(cfg.Interruptions)
	if err != nil {
		return cfg, err
	}

	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.JournalPath = expandHome(home, cfg.JournalPath)
	cfg.BackupLocalDir = expandHome(home, cfg.BackupLocalDir)

	if cfg.Host == "" {
		cfg.Host = defaultBindHost
	}
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
