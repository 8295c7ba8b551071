package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/SmitUplenchwar2687/sockreplay/internal/config"
	"github.com/SmitUplenchwar2687/sockreplay/internal/recording"
	"github.com/SmitUplenchwar2687/sockreplay/internal/scenario"
)

// loadConfig reads the optional config file and applies SOCKREPLAY_*
// environment overrides. Flags are applied afterwards by each command.
func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.LoadFile(path)
		if err != nil {
			return cfg, err
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type storeOptions struct {
	backend           string
	redisHost         string
	redisPort         int
	redisPassword     string
	redisDB           int
	redisCluster      bool
	redisClusterNodes []string
	redisPoolSize     int
	redisMaxRetries   int
	redisDialTimeout  time.Duration
	redisTTL          time.Duration
}

func (o *storeOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.backend, "store", recording.BackendMemory, "recording store backend (memory, redis)")
	fs.StringVar(&o.redisHost, "redis-host", "localhost", "redis host (or host:port)")
	fs.IntVar(&o.redisPort, "redis-port", 6379, "redis port")
	fs.StringVar(&o.redisPassword, "redis-password", "", "redis password")
	fs.IntVar(&o.redisDB, "redis-db", 0, "redis database index")
	fs.BoolVar(&o.redisCluster, "redis-cluster", false, "enable redis cluster mode")
	fs.StringSliceVar(&o.redisClusterNodes, "redis-cluster-nodes", nil, "redis cluster nodes host:port list")
	fs.IntVar(&o.redisPoolSize, "redis-pool-size", 20, "redis connection pool size")
	fs.IntVar(&o.redisMaxRetries, "redis-max-retries", 3, "redis max retries")
	fs.DurationVar(&o.redisDialTimeout, "redis-dial-timeout", 5*time.Second, "redis dial timeout")
	fs.DurationVar(&o.redisTTL, "redis-ttl", 0, "expire stored recordings after this long (0 = never)")
}

// applyChangedFlags copies every flag the user set over the config values.
func (o *storeOptions) applyChangedFlags(fs *pflag.FlagSet, cfg *config.StoreConfig) error {
	changed := fs.Changed
	if changed("store") {
		cfg.Backend = o.backend
	}
	if changed("redis-host") {
		cfg.Redis.Host = o.redisHost
	}
	if changed("redis-port") {
		cfg.Redis.Port = o.redisPort
	}
	if changed("redis-password") {
		cfg.Redis.Password = o.redisPassword
	}
	if changed("redis-db") {
		cfg.Redis.DB = o.redisDB
	}
	if changed("redis-cluster") {
		cfg.Redis.Cluster = o.redisCluster
	}
	if changed("redis-cluster-nodes") {
		cfg.Redis.ClusterNodes = append([]string(nil), o.redisClusterNodes...)
	}
	if changed("redis-pool-size") {
		cfg.Redis.PoolSize = o.redisPoolSize
	}
	if changed("redis-max-retries") {
		cfg.Redis.MaxRetries = o.redisMaxRetries
	}
	if changed("redis-dial-timeout") {
		cfg.Redis.DialTimeout = config.Duration(o.redisDialTimeout)
	}
	if changed("redis-ttl") {
		cfg.Redis.TTL = config.Duration(o.redisTTL)
	}

	if cfg.Backend != recording.BackendRedis || cfg.Redis.Cluster {
		return nil
	}
	host, port, err := normalizeRedisHostPort(cfg.Redis.Host, cfg.Redis.Port)
	if err != nil {
		return err
	}
	cfg.Redis.Host = host
	cfg.Redis.Port = port
	return nil
}

func normalizeRedisHostPort(host string, port int) (string, int, error) {
	if strings.Contains(host, ":") {
		h, p, err := net.SplitHostPort(host)
		if err != nil {
			return "", 0, fmt.Errorf("invalid --redis-host value %q: %w", host, err)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid redis port in --redis-host %q: %w", host, err)
		}
		host = h
		port = n
	}

	if host == "" {
		return "", 0, fmt.Errorf("redis host cannot be empty")
	}
	if port <= 0 {
		return "", 0, fmt.Errorf("redis port must be positive, got %d", port)
	}

	return host, port, nil
}

// openStore connects the configured recording store.
func openStore(ctx context.Context, cfg config.Config) (recording.Store, error) {
	switch cfg.Store.Backend {
	case recording.BackendMemory:
		return recording.NewMemoryStore(), nil
	case recording.BackendRedis:
		store, err := recording.NewRedisStore(ctx, cfg.RedisStoreConfig())
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// replayOptions are the flags shared by every command that loads a
// recording and turns it into a scenario.
type replayOptions struct {
	configPath    string
	recordingPath string
	requestID     string
	speed         float64
	namespace     string
	noDisconnect  bool
	noReject      bool
	events        []string
	exclude       []string
	store         storeOptions
}

func (o *replayOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.configPath, "config", "", "path to a JSON, JSONC or YAML config file")
	cmd.Flags().StringVar(&o.recordingPath, "recording", "", "recording file (.json, .yaml, .cbor, optionally .gz or .zst)")
	cmd.Flags().StringVar(&o.requestID, "request-id", "", "load the recording with this id from the store instead of a file")
	cmd.Flags().Float64Var(&o.speed, "speed", 1, "replay speed (1 = recorded timing, 10 = 10x faster)")
	cmd.Flags().StringVar(&o.namespace, "namespace", "", "serve this namespace instead of the recorded one")
	cmd.Flags().BoolVar(&o.noDisconnect, "no-disconnect", false, "keep sockets open instead of replaying the recorded disconnect")
	cmd.Flags().BoolVar(&o.noReject, "no-reject", false, "accept connections even if the recording rejected the handshake")
	cmd.Flags().StringSliceVar(&o.events, "events", nil, "only replay server events matching these names (comma-separated)")
	cmd.Flags().StringSliceVar(&o.exclude, "exclude", nil, "drop server events matching these names (comma-separated)")
	o.store.addFlags(cmd.Flags())
}

// resolve builds the effective config: defaults, then the config file,
// then environment, then any flag the user set.
func (o *replayOptions) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("recording") {
		cfg.Replay.RecordingPath = o.recordingPath
	}
	if changed("request-id") {
		cfg.Replay.RequestID = o.requestID
	}
	if changed("speed") {
		cfg.Replay.Speed = o.speed
	}
	if changed("namespace") {
		cfg.Replay.Namespace = o.namespace
	}
	if changed("no-disconnect") {
		cfg.Replay.NoDisconnect = o.noDisconnect
	}
	if err := o.store.applyChangedFlags(cmd.Flags(), &cfg.Store); err != nil {
		return cfg, err
	}

	if cfg.Replay.RecordingPath == "" && cfg.Replay.RequestID == "" {
		return cfg, fmt.Errorf("one of --recording or --request-id is required")
	}
	if cfg.Replay.RecordingPath != "" && cfg.Replay.RequestID != "" {
		return cfg, fmt.Errorf("--recording and --request-id are mutually exclusive")
	}
	if cfg.Replay.Namespace != "" && !strings.HasPrefix(cfg.Replay.Namespace, "/") {
		cfg.Replay.Namespace = "/" + cfg.Replay.Namespace
	}
	return cfg, cfg.Validate()
}

// transformers returns the scenario rewrites selected by cfg and flags.
func (o *replayOptions) transformers(cfg config.Config) []scenario.Transformer {
	var ts []scenario.Transformer
	if cfg.Replay.Namespace != "" {
		ts = append(ts, scenario.WithNamespace(cfg.Replay.Namespace))
	}
	if cfg.Replay.NoDisconnect {
		ts = append(ts, scenario.WithoutDisconnect())
	}
	if o.noReject {
		ts = append(ts, scenario.WithoutHandshakeReject())
	}
	if len(o.events) > 0 || len(o.exclude) > 0 {
		ts = append(ts, scenario.FilterEvents(scenario.Filter{Events: o.events, Exclude: o.exclude}))
	}
	return ts
}

// loadScenario reads the recording selected by cfg and builds its scenario
// without serving it.
func (o *replayOptions) loadScenario(ctx context.Context, cfg config.Config) (scenario.Scenario, error) {
	var (
		src recording.Source
		err error
	)
	if cfg.Replay.RequestID != "" {
		store, serr := openStore(ctx, cfg)
		if serr != nil {
			return scenario.Scenario{}, serr
		}
		defer store.Close()
		src, err = recording.NewStoreSource(store, cfg.Replay.RequestID)
	} else {
		src, err = recording.NewFileSource(cfg.Replay.RecordingPath)
	}
	if err != nil {
		return scenario.Scenario{}, err
	}

	rec, err := src.Load(ctx)
	if err != nil {
		return scenario.Scenario{}, err
	}
	sc := scenario.NewBuilder(1).Build(*rec, scenario.Options{Speed: cfg.Replay.Speed})
	return scenario.Apply(sc, o.transformers(cfg)...), nil
}
