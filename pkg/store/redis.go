package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentapi-dev/agentapi/internal/agent"
	"github.com/agentapi-dev/agentapi/internal/metrics"
)

// RedisStore implements Store using Redis. It is suitable for deployments
// where agent state must survive a restart or be shared across nodes.
type RedisStore struct {
	client *redis.Client
	prefix string
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all store keys (default: "agentapi:").
	Prefix string
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "agentapi:"
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

// NewRedisStoreFromClient wraps an existing client. This is useful for
// testing with miniredis.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "agentapi:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Key helpers
func (s *RedisStore) agentKey(name string) string {
	return s.prefix + "agent:" + name
}

func (s *RedisStore) agentIndexKey() string {
	return s.prefix + "agents"
}

func (s *RedisStore) messagesKey(agentName string) string {
	return s.prefix + "messages:" + agentName
}

func (s *RedisStore) metricsKey() string {
	return s.prefix + "metrics"
}

func (s *RedisStore) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveAgent creates or updates an agent record.
func (s *RedisStore) SaveAgent(ctx context.Context, rec *AgentRecord) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	clone := *rec
	if existing, err := s.LoadAgent(ctx, rec.Name); err == nil {
		clone.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, ErrNotFound) {
		return err
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	clone.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(&clone)
	if err != nil {
		return fmt.Errorf("marshal agent record: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.agentKey(rec.Name), data, 0)
	pipe.SAdd(ctx, s.agentIndexKey(), rec.Name)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save agent: %w", err)
	}
	return nil
}

// LoadAgent retrieves an agent record by name.
func (s *RedisStore) LoadAgent(ctx context.Context, name string) (*AgentRecord, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.agentKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}

	var rec AgentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal agent record: %w", err)
	}
	return &rec, nil
}

// DeleteAgent removes an agent record and its message history.
func (s *RedisStore) DeleteAgent(ctx context.Context, name string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.agentKey(name))
	pipe.Del(ctx, s.messagesKey(name))
	pipe.SRem(ctx, s.agentIndexKey(), name)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

// Agents returns all stored agent records.
func (s *RedisStore) Agents(ctx context.Context) ([]*AgentRecord, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	names, err := s.client.SMembers(ctx, s.agentIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	out := make([]*AgentRecord, 0, len(names))
	for _, name := range names {
		rec, err := s.LoadAgent(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Record was deleted, clean up index
				s.client.SRem(ctx, s.agentIndexKey(), name)
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveMessage appends the message to the history of its sender and receiver.
func (s *RedisStore) SaveMessage(ctx context.Context, msg *agent.Message) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, name := range []string{msg.Sender, msg.Receiver} {
		if name == "" {
			continue
		}
		pipe.RPush(ctx, s.messagesKey(name), data)
		pipe.LTrim(ctx, s.messagesKey(name), -maxHistoryPerAgent, -1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// Messages returns the newest messages involving the agent, newest first.
func (s *RedisStore) Messages(ctx context.Context, agentName string, limit int) ([]*agent.Message, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	data, err := s.client.LRange(ctx, s.messagesKey(agentName), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	out := make([]*agent.Message, 0, len(data))
	for i := len(data) - 1; i >= 0; i-- {
		var msg agent.Message
		if err := json.Unmarshal([]byte(data[i]), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, nil
}

// SaveMetrics appends a metrics snapshot to the history list.
func (s *RedisStore) SaveMetrics(ctx context.Context, snap metrics.Snapshot) error {
	if err := s.checkClosed(); err != nil {
		return err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal metrics snapshot: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.metricsKey(), data)
	pipe.LTrim(ctx, s.metricsKey(), -maxMetricsHistory, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	return nil
}

// MetricsHistory returns snapshots recorded at or after since, oldest first.
func (s *RedisStore) MetricsHistory(ctx context.Context, since time.Time) ([]metrics.Snapshot, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	data, err := s.client.LRange(ctx, s.metricsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load metrics history: %w", err)
	}

	var out []metrics.Snapshot
	for _, d := range data {
		var snap metrics.Snapshot
		if err := json.Unmarshal([]byte(d), &snap); err != nil {
			return nil, fmt.Errorf("unmarshal metrics snapshot: %w", err)
		}
		if !snap.Timestamp.Before(since) {
			out = append(out, snap)
		}
	}
	return out, nil
}

// Ping checks if the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
