package main

import (
	stderrors "errors"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wippyai/hotpatch"
	"github.com/wippyai/hotpatch/build"
	"github.com/wippyai/hotpatch/toolchain"
)

const (
	configName = "hotpatch"
	envPrefix  = "HOTPATCH"
)

type settingsConfig struct {
	Optimize   bool `mapstructure:"optimize"`
	AltCodegen bool `mapstructure:"alt_codegen"`
}

type appConfig struct {
	CacheDir    string         `mapstructure:"cache_dir"`
	CacheTTL    time.Duration  `mapstructure:"cache_ttl"`
	SearchPaths []string       `mapstructure:"search_paths"`
	Settings    settingsConfig `mapstructure:"settings"`
	NoCache     bool           `mapstructure:"no_cache"`
	Verbose     bool           `mapstructure:"verbose"`
}

// loadConfig merges defaults, hotpatch.{toml,yaml} from the working
// directory or --config, HOTPATCH_* variables and flags, in that order.
func loadConfig(cmd *cobra.Command) (*appConfig, error) {
	v := viper.New()
	v.SetDefault("cache_dir", "")
	v.SetDefault("cache_ttl", build.CacheTTL)
	v.SetDefault("search_paths", []string{})
	v.SetDefault("settings.optimize", true)
	v.SetDefault("settings.alt_codegen", false)
	v.SetDefault("no_cache", false)
	v.SetDefault("verbose", false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !stderrors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	for key, flag := range map[string]string{
		"cache_dir":            "cache-dir",
		"no_cache":             "no-cache",
		"search_paths":         "search-path",
		"settings.optimize":    "optimize",
		"settings.alt_codegen": "alt-codegen",
		"verbose":              "verbose",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *appConfig) logger() (*zap.Logger, error) {
	if !c.Verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

func (c *appConfig) settings() toolchain.Settings {
	return toolchain.Settings{Optimize: c.Settings.Optimize, AltCodegen: c.Settings.AltCodegen}
}

func (c *appConfig) cacheDir() (string, error) {
	if c.CacheDir != "" {
		return c.CacheDir, nil
	}
	return hotpatch.DefaultCacheDir()
}

// builder creates a build.Builder from the merged configuration.
func (c *appConfig) builder() (*build.Builder, error) {
	log, err := c.logger()
	if err != nil {
		return nil, err
	}
	cfg := build.Config{
		SearchPaths: c.SearchPaths,
		Settings:    c.settings(),
		Logger:      log,
	}
	if !c.NoCache {
		dir, err := c.cacheDir()
		if err != nil {
			return nil, err
		}
		store, err := build.OpenDirCache(dir, c.CacheTTL)
		if err != nil {
			return nil, err
		}
		cfg.Cache = store
	}
	return build.New(cfg)
}
