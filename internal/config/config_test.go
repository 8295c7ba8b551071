package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 3000 {
		t.Errorf("default port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Replay.Speed != 1 {
		t.Errorf("default speed = %v, want 1", cfg.Replay.Speed)
	}
	if cfg.Store.Backend != recording.BackendMemory {
		t.Errorf("default store backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Replay.PingInterval.Std() != 25*time.Second {
		t.Errorf("default ping interval = %s, want 25s", cfg.Replay.PingInterval.Std())
	}
	if got := cfg.Server.Addr(); got != ":3000" {
		t.Errorf("Addr() = %q, want :3000", got)
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := map[string]func(*Config){
		"zero port":         func(c *Config) { c.Server.Port = 0 },
		"port too big":      func(c *Config) { c.Server.Port = 70000 },
		"zero speed":        func(c *Config) { c.Replay.Speed = 0 },
		"negative speed":    func(c *Config) { c.Replay.Speed = -1 },
		"zero ping":         func(c *Config) { c.Replay.PingInterval = 0 },
		"bad namespace":     func(c *Config) { c.Replay.Namespace = "chat" },
		"bad log level":     func(c *Config) { c.Log.Level = "loud" },
		"unknown backend":   func(c *Config) { c.Store.Backend = "etcd" },
		"redis no host":     func(c *Config) { c.Store.Backend = recording.BackendRedis; c.Store.Redis.Host = "" },
		"cluster no nodes":  func(c *Config) { c.Store.Backend = recording.BackendRedis; c.Store.Redis.Cluster = true },
		"nan speed":         func(c *Config) { c.Replay.Speed = math.NaN() },
		"infinite speed":    func(c *Config) { c.Replay.Speed = math.Inf(1) },
		"request id memory": func(c *Config) { c.Replay.RequestID = "req-1" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  // local replay
  "server": {"port": 4000},
  "replay": {"speed": 2.5, "recording": "rec.json", "ping_interval": "5s",},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.Replay.Speed != 2.5 {
		t.Errorf("speed = %v, want 2.5", cfg.Replay.Speed)
	}
	if cfg.Replay.PingInterval.Std() != 5*time.Second {
		t.Errorf("ping interval = %s, want 5s", cfg.Replay.PingInterval.Std())
	}
	// Unspecified fields keep their defaults.
	if cfg.Replay.PingTimeout.Std() != 20*time.Second {
		t.Errorf("ping timeout = %s, want default 20s", cfg.Replay.PingTimeout.Std())
	}
	if cfg.Store.Backend != recording.BackendMemory {
		t.Errorf("backend = %q, want memory", cfg.Store.Backend)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  host: 127.0.0.1
  port: 5000
store:
  backend: redis
  redis:
    host: cache
    ttl: 1h
    cluster_nodes: ["a:7000", "b:7001"]
log:
  level: debug
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr() != "127.0.0.1:5000" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Store.Backend != recording.BackendRedis || cfg.Store.Redis.Host != "cache" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Store.Redis.Port != 6379 {
		t.Errorf("redis port = %d, want default 6379", cfg.Store.Redis.Port)
	}
	rc := cfg.RedisStoreConfig()
	if rc.TTL != time.Hour || len(rc.ClusterNodes) != 2 || rc.DialTimeout != 5*time.Second {
		t.Errorf("RedisStoreConfig() = %+v", rc)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFile(writeConfig(t, "bad.json", `{"server":`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := LoadFile(writeConfig(t, "bad.json", `{"replay": {"ping_timeout": "soon"}}`)); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SOCKREPLAY_SERVER_PORT", "4100")
	t.Setenv("SOCKREPLAY_REPLAY_SPEED", "3")
	t.Setenv("SOCKREPLAY_REPLAY_NO_DISCONNECT", "true")
	t.Setenv("SOCKREPLAY_REPLAY_PING_TIMEOUT", "2s")
	t.Setenv("SOCKREPLAY_STORE_REDIS_CLUSTER_NODES", "a:1,b:2")
	t.Setenv("SOCKREPLAY_LOG_LEVEL", "warn")

	cfg := Default()
	cfg.Replay.RecordingPath = "from-file.json"
	if err := ApplyEnv(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 4100 || cfg.Replay.Speed != 3 || !cfg.Replay.NoDisconnect {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Replay.PingTimeout.Std() != 2*time.Second {
		t.Errorf("ping timeout = %s, want 2s", cfg.Replay.PingTimeout.Std())
	}
	if len(cfg.Store.Redis.ClusterNodes) != 2 {
		t.Errorf("cluster nodes = %v", cfg.Store.Redis.ClusterNodes)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Replay.RecordingPath != "from-file.json" {
		t.Error("unset env vars should not clear existing values")
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("SOCKREPLAY_SERVER_PORT", "not-a-number")
	cfg := Default()
	if err := ApplyEnv(&cfg); err == nil {
		t.Error("expected error for invalid port")
	}
}

func TestWriteExample(t *testing.T) {
	for _, name := range []string{"example.json", "example.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := WriteExample(path); err != nil {
				t.Fatal(err)
			}
			cfg, err := LoadFile(path)
			if err != nil {
				t.Fatalf("example config should load: %v", err)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("example config should be valid: %v", err)
			}
			if cfg.Replay.RecordingPath != "recording.json" {
				t.Errorf("recording = %q", cfg.Replay.RecordingPath)
			}
		})
	}
}

func TestValidate_RequestIDWithRedis(t *testing.T) {
	cfg := Default()
	cfg.Replay.RequestID = "req-1"
	cfg.Store.Backend = recording.BackendRedis
	if err := cfg.Validate(); err != nil {
		t.Errorf("request id with redis backend should be valid, got %v", err)
	}
}
