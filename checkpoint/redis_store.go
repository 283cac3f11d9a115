package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStoreConfig configures the Redis-backed checkpoint store.
type RedisStoreConfig struct {
	// Addr is the Redis server address ("host:port").
	Addr string
	// Password is the optional Redis password.
	Password string
	// DB is the Redis database number.
	DB int
	// PoolSize is the connection pool size.
	PoolSize int
	// MinIdleConns is the minimum idle connection count.
	MinIdleConns int
	// KeyPrefix prefixes every checkpoint key. Defaults to "answerflow:checkpoint:".
	KeyPrefix string
	// TTL expires idle sessions. Zero disables expiry.
	TTL time.Duration
	// MaxTurns bounds turns kept per session. Defaults to 20.
	MaxTurns int
}

// RedisStore is a Redis-based implementation of Store.
// Suitable for distributed production deployments.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	maxTurns  int
}

// NewRedisStore creates a new Redis-backed checkpoint store and
// verifies connectivity.
func NewRedisStore(config RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "answerflow:checkpoint:"
	}
	maxTurns := config.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 20
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       config.TTL,
		maxTurns:  maxTurns,
	}, nil
}

// Close closes the store
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// sessionKey returns the Redis key for a session checkpoint
func (s *RedisStore) sessionKey(sessionID string) string {
	return s.keyPrefix + sessionID
}

// SaveTurn appends a turn to the session checkpoint. Turns are stored
// as a Redis list so concurrent saves on the same session never lose
// writes: append, trim, and TTL refresh run in one transactional
// pipeline.
func (s *RedisStore) SaveTurn(ctx context.Context, sessionID string, turn Turn) error {
	if sessionID == "" {
		return ErrInvalidInput
	}
	if turn.AskedAt.IsZero() {
		turn.AskedAt = time.Now()
	}

	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	key := s.sessionKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// Load retrieves a session checkpoint by ID
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, ErrInvalidInput
	}

	values, err := s.client.LRange(ctx, s.sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}

	turns := make([]Turn, 0, len(values))
	for _, value := range values {
		var turn Turn
		if err := json.Unmarshal([]byte(value), &turn); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		turns = append(turns, turn)
	}

	return &Session{
		SessionID: sessionID,
		Turns:     turns,
		UpdatedAt: turns[len(turns)-1].AskedAt,
	}, nil
}

// Delete removes a session checkpoint
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidInput
	}
	return s.client.Del(ctx, s.sessionKey(sessionID)).Err()
}
