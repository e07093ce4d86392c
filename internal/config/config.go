// Package config loads server configuration from the environment.
package config

import (
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Address the WebSocket server listens on.
	Addr string `envconfig:"CHAT_ADDR" default:":3001"`
	// Optional raw TCP listener; empty disables it.
	TCPAddr string `envconfig:"CHAT_TCP_ADDR"`
	// Directory for the Badger-backed history; empty keeps history
	// in-memory only.
	HistoryDir string `envconfig:"CHAT_HISTORY_DIR"`
	LogLevel   string `envconfig:"CHAT_LOG_LEVEL" default:"info"`
}

func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

// SlogLevel maps the configured level name onto a slog.Level, defaulting to
// info for unknown names.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
