package recording

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPoolSize    = 20
	defaultRedisMaxRetries  = 3
	defaultRedisDialTimeout = 5 * time.Second
	// The hash tag keeps every key in one cluster slot so transactions work
	// in cluster mode.
	defaultRedisKeyPrefix = "{sockreplay}:"
)

// RedisConfig configures the Redis-backed Store.
type RedisConfig struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	Password     string        `json:"password,omitempty" yaml:"password,omitempty"`
	DB           int           `json:"db" yaml:"db"`
	Cluster      bool          `json:"cluster" yaml:"cluster"`
	ClusterNodes []string      `json:"cluster_nodes,omitempty" yaml:"cluster_nodes,omitempty"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	KeyPrefix    string        `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	// TTL expires stored recordings. Zero keeps them forever.
	TTL time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// RedisStore keeps each recording as a JSON string under <prefix>rec:<id>
// and tracks ids in the set <prefix>recs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewRedisStore connects to Redis and verifies the connection with a
// bounded ping retry.
func NewRedisStore(ctx context.Context, cfg *RedisConfig) (*RedisStore, error) {
	conf, err := normalizeRedisConfig(cfg)
	if err != nil {
		return nil, err
	}

	s := &RedisStore{
		client: newRedisClient(conf),
		prefix: conf.KeyPrefix,
		ttl:    conf.TTL,
	}

	if err := s.pingWithRetry(ctx, conf.MaxRetries); err != nil {
		_ = s.client.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}
	return s, nil
}

func (s *RedisStore) recordKey(id string) string { return s.prefix + "rec:" + id }
func (s *RedisStore) indexKey() string           { return s.prefix + "recs" }

func (s *RedisStore) Put(ctx context.Context, rec *Recording) error {
	data, err := encodeForStore(rec)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.RequestID), data, s.ttl)
		pipe.SAdd(ctx, s.indexKey(), rec.RequestID)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "storing recording %q", rec.RequestID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, requestID string) (*Recording, error) {
	data, err := s.client.Get(ctx, s.recordKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(ErrNotFound, requestID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "fetching recording %q", requestID)
	}
	return decodeFromStore(data)
}

// List returns ids from the index set, skipping ids whose record expired.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, errors.Wrap(err, "listing recordings")
	}
	live := ids[:0]
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.recordKey(id)).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "checking recording %q", id)
		}
		if n > 0 {
			live = append(live, id)
		}
	}
	sort.Strings(live)
	return live, nil
}

func (s *RedisStore) Delete(ctx context.Context, requestID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(requestID))
		pipe.SRem(ctx, s.indexKey(), requestID)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "deleting recording %q", requestID)
	}
	return nil
}

// Close releases Redis resources. It is idempotent.
func (s *RedisStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

func (s *RedisStore) pingWithRetry(ctx context.Context, maxRetries int) error {
	attempts := maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	backoff := 100 * time.Millisecond
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := s.client.Ping(ctx).Err(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
	}

	if lastErr == nil {
		lastErr = errors.New("ping failed with unknown error")
	}
	return lastErr
}

func normalizeRedisConfig(cfg *RedisConfig) (*RedisConfig, error) {
	if cfg == nil {
		return nil, errors.Wrap(ErrInvalidArgs, "redis config is required")
	}

	conf := *cfg
	if conf.PoolSize <= 0 {
		conf.PoolSize = defaultRedisPoolSize
	}
	if conf.MaxRetries <= 0 {
		conf.MaxRetries = defaultRedisMaxRetries
	}
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = defaultRedisDialTimeout
	}
	if conf.KeyPrefix == "" {
		conf.KeyPrefix = defaultRedisKeyPrefix
	}
	if conf.TTL < 0 {
		return nil, errors.Wrapf(ErrInvalidArgs, "ttl must be non-negative, got %s", conf.TTL)
	}

	if conf.Cluster {
		if len(conf.ClusterNodes) == 0 {
			return nil, errors.Wrap(ErrInvalidArgs, "cluster_nodes is required when cluster=true")
		}
	} else {
		if conf.Host == "" {
			return nil, errors.Wrap(ErrInvalidArgs, "host is required when cluster=false")
		}
		if conf.Port <= 0 {
			return nil, errors.Wrapf(ErrInvalidArgs, "port must be positive when cluster=false, got %d", conf.Port)
		}
	}

	return &conf, nil
}

func newRedisClient(cfg *RedisConfig) redis.UniversalClient {
	if cfg.Cluster {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:       cfg.ClusterNodes,
			Password:    cfg.Password,
			PoolSize:    cfg.PoolSize,
			MaxRetries:  cfg.MaxRetries,
			DialTimeout: cfg.DialTimeout,
		})
	}

	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	})
}
