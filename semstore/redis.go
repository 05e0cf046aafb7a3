package semstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings for the Redis-backed store.
type RedisConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// RedisStore is a Redis-backed Store implementation. Facts are kept as JSON
// entries in one list per subject, with a set tracking known subjects so
// wildcard-subject queries stay bounded to a single SMEMBERS plus one LRANGE
// per subject.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "agenthub:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "fact:",
	}, nil
}

// NewRedisStoreFromClient wraps an existing client. Used by tests.
func NewRedisStoreFromClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "agenthub:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix + "fact:"}
}

func (s *RedisStore) subjectKey(subject string) string {
	return s.keyPrefix + "subj:" + subject
}

func (s *RedisStore) subjectsKey() string {
	return s.keyPrefix + "subjects"
}

// AddFact persists a fact.
func (s *RedisStore) AddFact(ctx context.Context, f Fact) error {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal fact: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.subjectKey(f.Subject), data)
	pipe.SAdd(ctx, s.subjectsKey(), f.Subject)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store fact: %w", err)
	}
	return nil
}

// QueryFacts returns all facts matching the pattern.
func (s *RedisStore) QueryFacts(ctx context.Context, p Pattern) ([]Fact, error) {
	subjects := []string{p.Subject}
	if p.Subject == "" {
		var err error
		subjects, err = s.client.SMembers(ctx, s.subjectsKey()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list subjects: %w", err)
		}
	}

	var out []Fact
	for _, subject := range subjects {
		entries, err := s.client.LRange(ctx, s.subjectKey(subject), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read facts for %s: %w", subject, err)
		}
		for _, raw := range entries {
			var f Fact
			if err := json.Unmarshal([]byte(raw), &f); err != nil {
				continue // skip corrupt entries rather than failing the query
			}
			if p.Matches(f) {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// ExportSnapshot serializes every stored fact.
func (s *RedisStore) ExportSnapshot(ctx context.Context, format string) ([]byte, error) {
	facts, err := s.QueryFacts(ctx, Pattern{})
	if err != nil {
		return nil, err
	}
	return encodeSnapshot(facts, format)
}

// Ping checks backend health.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
