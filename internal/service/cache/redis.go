package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/streamchat/internal/model/chat"
)

const redisKeyPrefix = "streamchat:conv:"

// RedisClient is the subset of go-redis used by RedisStore.
type RedisClient = redis.UniversalClient

// RedisStore keeps conversations in Redis and lets Redis expire them.
type RedisStore struct {
	rc  RedisClient
	ttl time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rc RedisClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rc: rc, ttl: ttl}
}

// DialRedis parses uri, connects and pings the server.
func DialRedis(ctx context.Context, uri string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}
	rc := redis.NewClient(opt)
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(rc, ttl), nil
}

func (s *RedisStore) Set(ctx context.Context, sessionID string, messages []chat.Message) error {
	entry := chat.StoredConversation{
		SessionID: sessionID,
		Messages:  messages,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.rc.Set(ctx, redisKeyPrefix+sessionID, b, s.ttl).Err(); err != nil {
		logger().Infow("set conversation fail", "sid", sessionID, "err", err)
		return err
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (chat.StoredConversation, bool, error) {
	var entry chat.StoredConversation
	b, err := s.rc.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	if err := json.Unmarshal(b, &entry); err != nil {
		return entry, false, fmt.Errorf("decode conversation %s: %w", sessionID, err)
	}
	return entry, true, nil
}

// Sweep is a no-op: keys carry their own TTL.
func (s *RedisStore) Sweep(context.Context) (int, error) {
	return 0, nil
}

func (s *RedisStore) Sessions(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := s.rc.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, redisKeyPrefix))
		}
		if next == 0 {
			return ids, nil
		}
		cursor = next
	}
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.rc.Close()
}
