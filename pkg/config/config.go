package config

import internalconfig "github.com/SmitUplenchwar2687/sockreplay/internal/config"

// Config is the top-level configuration for a sockreplay session.
type Config = internalconfig.Config

// ServerConfig holds the Socket.IO listener settings.
type ServerConfig = internalconfig.ServerConfig

// ReplayConfig controls how the recording is turned into a scenario.
type ReplayConfig = internalconfig.ReplayConfig

// StoreConfig selects where named recordings live.
type StoreConfig = internalconfig.StoreConfig

// RedisConfig configures the Redis recording store.
type RedisConfig = internalconfig.RedisConfig

// LogConfig holds logger settings.
type LogConfig = internalconfig.LogConfig

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig = internalconfig.MetricsConfig

// Duration is a time.Duration written as a string such as "25s".
type Duration = internalconfig.Duration

// Default returns a Config with sensible defaults.
func Default() Config {
	return internalconfig.Default()
}

// LoadFile reads a JSON, JSONC or YAML config file and merges it with defaults.
func LoadFile(path string) (Config, error) {
	return internalconfig.LoadFile(path)
}

// ApplyEnv overrides cfg with SOCKREPLAY_* environment variables.
func ApplyEnv(cfg *Config) error {
	return internalconfig.ApplyEnv(cfg)
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	return internalconfig.WriteExample(path)
}
