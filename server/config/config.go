// Package config loads server settings from flags, environment and an
// optional config file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Addr           string        `mapstructure:"addr"`
	DataDir        string        `mapstructure:"data_dir"`
	LogLevel       string        `mapstructure:"log_level"`
	LogJSON        bool          `mapstructure:"log_json"`
	HighscoreRate  float64       `mapstructure:"highscore_rate"`
	HighscoreBurst int           `mapstructure:"highscore_burst"`
	AdminTokenTTL  time.Duration `mapstructure:"admin_token_ttl"`
}

// New returns a viper instance with defaults and the TETRIS_ env prefix.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("addr", ":4444")
	v.SetDefault("data_dir", "data")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("highscore_rate", 0.2)
	v.SetDefault("highscore_burst", 3)
	v.SetDefault("admin_token_ttl", 24*time.Hour)
	v.SetEnvPrefix("tetris")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// AddFlags declares the flags shared by every command.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml, toml or json)")
	fs.String("data-dir", "data", "directory for the leaderboard store and jwt key")
	fs.String("log-level", "info", "log level")
	fs.Bool("log-json", false, "log as JSON")
}

// AddServeFlags declares the flags of the serve command.
func AddServeFlags(fs *pflag.FlagSet) {
	fs.String("addr", ":4444", "listen address")
	fs.Float64("highscore-rate", 0.2, "highscore submissions per second per client")
	fs.Int("highscore-burst", 3, "highscore submission burst per client")
}

// Load binds the flags in fs, reads the config file if one was given and
// decodes the result.
func Load(v *viper.Viper, fs *pflag.FlagSet) (Config, error) {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		if bindErr := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); bindErr != nil && err == nil {
			err = bindErr
		}
	})
	if err != nil {
		return Config{}, err
	}
	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.HighscoreRate <= 0 || cfg.HighscoreBurst <= 0 {
		return Config{}, fmt.Errorf("highscore rate and burst must be positive")
	}
	return cfg, nil
}

// SetupLogging configures the global logrus logger.
func SetupLogging(cfg Config) error {
	lvl, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)
	if cfg.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
