package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tinytelemetry/storefeed/internal/feed"
	"github.com/tinytelemetry/storefeed/internal/model"
	"github.com/tinytelemetry/storefeed/internal/socketrpc"
)

// cliConfig holds only TUI-relevant configuration.
type cliConfig struct {
	Skin               string            `mapstructure:"skin"`
	ReverseScrollWheel bool              `mapstructure:"reverse-scroll-wheel"`
	SocketPath         string            `mapstructure:"socket-path"`
	Guest              bool              `mapstructure:"guest"`
	PageSize           int               `mapstructure:"page-size"`
	FetchTimeout       time.Duration     `mapstructure:"fetch-timeout"`
	TickInterval       time.Duration     `mapstructure:"tick-interval"`
	CarouselLimit      int               `mapstructure:"carousel-limit"`
	PromptDwell        time.Duration     `mapstructure:"prompt-dwell"`
	PromptItems        int               `mapstructure:"prompt-items"`
	RecentPath         string            `mapstructure:"recent-path"`
	RecentCapacity     int               `mapstructure:"recent-capacity"`
	Interruptions      []feed.RuleConfig `mapstructure:"interruptions"`

	Rules []feed.Rule `mapstructure:"-"`
}

func loadCLIConfig(configPath string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("STOREFEED")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("skin", model.DefaultSkin)
	v.SetDefault("reverse-scroll-wheel", false)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("guest", true)
	v.SetDefault("page-size", model.DefaultPageSize)
	v.SetDefault("fetch-timeout", model.DefaultFetchTimeout)
	v.SetDefault("tick-interval", model.DefaultTickInterval)
	v.SetDefault("carousel-limit", model.DefaultCarouselLimit)
	v.SetDefault("prompt-dwell", model.DefaultPromptDwell)
	v.SetDefault("prompt-items", model.DefaultPromptItems)
	v.SetDefault("recent-path", filepath.Join(home, ".local", "state", "storefeed", "recently_viewed.log"))
	v.SetDefault("recent-capacity", model.DefaultRecentCapacity)

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
	if cfg.PageSize <= 0 || cfg.PageSize > model.MaxPageSize {
		return cfg, fmt.Errorf("invalid page-size: %d (1-%d)", cfg.PageSize, model.MaxPageSize)
	}
	if cfg.RecentCapacity <= 0 {
		return cfg, fmt.Errorf("invalid recent-capacity: %d", cfg.RecentCapacity)
	}

	cfg.Rules, err = feed.BuildRules(cfg.Interruptions)
	if err != nil {
		return cfg, err
	}
	if strings.HasPrefix(cfg.RecentPath, "~/") {
		cfg.RecentPath = filepath.Join(home, cfg.RecentPath[2:])
	}

	return cfg, nil
}

// sessionConfig maps the CLI settings onto the feed engine.
func (c cliConfig) sessionConfig() feed.SessionConfig {
	return feed.SessionConfig{
		PageSize: c.PageSize,
		Rules:    c.Rules,
		Thresholds: &feed.Thresholds{
			Dwell: c.PromptDwell,
			Items: c.PromptItems,
		},
		Guest: c.Guest,
	}
}
