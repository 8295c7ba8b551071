package config

import (
	"encoding/json"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/SmitUplenchwar2687/sockreplay/internal/observability"
	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
)

// EnvPrefix prefixes every environment override, e.g. SOCKREPLAY_SERVER_PORT.
const EnvPrefix = "SOCKREPLAY_"

// Config is the top-level configuration for a sockreplay session.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server" envPrefix:"SERVER_"`
	Replay  ReplayConfig  `json:"replay" yaml:"replay" envPrefix:"REPLAY_"`
	Store   StoreConfig   `json:"store" yaml:"store" envPrefix:"STORE_"`
	Log     LogConfig     `json:"log" yaml:"log" envPrefix:"LOG_"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" envPrefix:"METRICS_"`
}

// ServerConfig holds the Socket.IO listener settings.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" env:"HOST"`
	Port int    `json:"port" yaml:"port" env:"PORT"`
}

// Addr returns host:port. An empty host listens on all interfaces.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ReplayConfig controls how the recording is turned into a scenario.
type ReplayConfig struct {
	Speed         float64  `json:"speed" yaml:"speed" env:"SPEED"`
	RecordingPath string   `json:"recording,omitempty" yaml:"recording,omitempty" env:"RECORDING"`
	RequestID     string   `json:"request_id,omitempty" yaml:"request_id,omitempty" env:"REQUEST_ID"`
	Namespace     string   `json:"namespace,omitempty" yaml:"namespace,omitempty" env:"NAMESPACE"`
	NoDisconnect  bool     `json:"no_disconnect,omitempty" yaml:"no_disconnect,omitempty" env:"NO_DISCONNECT"`
	PingInterval  Duration `json:"ping_interval" yaml:"ping_interval" env:"PING_INTERVAL"`
	PingTimeout   Duration `json:"ping_timeout" yaml:"ping_timeout" env:"PING_TIMEOUT"`
}

// StoreConfig selects where named recordings live.
type StoreConfig struct {
	Backend string      `json:"backend" yaml:"backend" env:"BACKEND"`
	Redis   RedisConfig `json:"redis" yaml:"redis" envPrefix:"REDIS_"`
}

// RedisConfig configures the Redis recording store.
type RedisConfig struct {
	Host         string   `json:"host" yaml:"host" env:"HOST"`
	Port         int      `json:"port" yaml:"port" env:"PORT"`
	Password     string   `json:"password,omitempty" yaml:"password,omitempty" env:"PASSWORD"`
	DB           int      `json:"db" yaml:"db" env:"DB"`
	Cluster      bool     `json:"cluster" yaml:"cluster" env:"CLUSTER"`
	ClusterNodes []string `json:"cluster_nodes,omitempty" yaml:"cluster_nodes,omitempty" env:"CLUSTER_NODES" envSeparator:","`
	PoolSize     int      `json:"pool_size" yaml:"pool_size" env:"POOL_SIZE"`
	MaxRetries   int      `json:"max_retries" yaml:"max_retries" env:"MAX_RETRIES"`
	DialTimeout  Duration `json:"dial_timeout" yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	TTL          Duration `json:"ttl,omitempty" yaml:"ttl,omitempty" env:"TTL"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `json:"level" yaml:"level" env:"LEVEL"`
}

// MetricsConfig holds the Prometheus endpoint settings. An empty Addr
// disables the endpoint.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty" env:"ADDR"`
}

// Duration is a time.Duration written as a string such as "25s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 3000},
		Replay: ReplayConfig{
			Speed:        1,
			PingInterval: Duration(25 * time.Second),
			PingTimeout:  Duration(20 * time.Second),
		},
		Store: StoreConfig{
			Backend: recording.BackendMemory,
			Redis: RedisConfig{
				Host:        "localhost",
				Port:        6379,
				PoolSize:    20,
				MaxRetries:  3,
				DialTimeout: Duration(5 * time.Second),
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !(c.Replay.Speed > 0) || math.IsInf(c.Replay.Speed, 1) {
		return errors.Errorf("replay.speed must be positive, got %v", c.Replay.Speed)
	}
	if c.Replay.PingInterval <= 0 || c.Replay.PingTimeout <= 0 {
		return errors.New("replay.ping_interval and replay.ping_timeout must be positive")
	}
	if c.Replay.Namespace != "" && !strings.HasPrefix(c.Replay.Namespace, "/") {
		return errors.Errorf("replay.namespace must start with /, got %q", c.Replay.Namespace)
	}
	if !observability.ValidLevel(c.Log.Level) {
		return errors.Errorf("unknown log.level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch c.Store.Backend {
	case recording.BackendMemory:
		if c.Replay.RequestID != "" {
			return errors.Errorf("replay.request_id %q needs store.backend redis: the memory store starts empty", c.Replay.RequestID)
		}
	case recording.BackendRedis:
		r := c.Store.Redis
		if r.Cluster && len(r.ClusterNodes) == 0 {
			return errors.New("store.redis.cluster_nodes is required when cluster=true")
		}
		if !r.Cluster && (r.Host == "" || r.Port <= 0) {
			return errors.New("store.redis.host and store.redis.port are required")
		}
	default:
		return errors.Errorf("unknown store.backend %q, must be one of: memory, redis", c.Store.Backend)
	}
	return nil
}

// RedisStoreConfig converts the Redis settings for recording.NewRedisStore.
func (c Config) RedisStoreConfig() *recording.RedisConfig {
	r := c.Store.Redis
	return &recording.RedisConfig{
		Host:         r.Host,
		Port:         r.Port,
		Password:     r.Password,
		DB:           r.DB,
		Cluster:      r.Cluster,
		ClusterNodes: append([]string(nil), r.ClusterNodes...),
		PoolSize:     r.PoolSize,
		MaxRetries:   r.MaxRetries,
		DialTimeout:  r.DialTimeout.Std(),
		TTL:          r.TTL.Std(),
	}
}

// LoadFile reads a config file and merges it with defaults. Fields not
// specified in the file retain their default values. .yaml and .yml files
// are read as YAML; anything else as JSON, where comments and trailing
// commas are allowed.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "reading config file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrap(err, "parsing config file")
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return cfg, errors.Wrap(err, "parsing config file")
		}
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any SOCKREPLAY_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.Wrap(err, "parsing environment")
	}
	return nil
}

// WriteExample writes an example config file to the given path, as YAML
// when the extension asks for it and JSON otherwise.
func WriteExample(path string) error {
	example := Default()
	example.Replay.RecordingPath = "recording.json"

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(example)
	default:
		data, err = json.MarshalIndent(example, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.Wrap(err, "encoding example config")
	}
	return os.WriteFile(path, data, 0o644)
}
