package resultimport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "labimport:session:"
	lockKeyPrefix    = "labimport:session-lock:"
	// lockTTL bounds how long a crashed pass can keep a session busy.
	lockTTL = 5 * time.Minute
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore shares sessions between server replicas.
func NewRedisStore(client *redis.Client, ttl time.Duration) SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &redisStore{client: client, ttl: ttl}
}

// NewRedisClient parses url and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func (r *redisStore) Save(ctx context.Context, s *Session) error {
	s.ExpiresAt = time.Now().Add(r.ttl)
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return r.client.Set(ctx, sessionKeyPrefix+s.ID, data, r.ttl).Err()
}

func (r *redisStore) Get(ctx context.Context, id string) (*Session, error) {
	val, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		r.client.Del(ctx, sessionKeyPrefix+id)
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (r *redisStore) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, sessionKeyPrefix+id, lockKeyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *redisStore) Acquire(ctx context.Context, id string) (string, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, lockKeyPrefix+id, token, lockTTL).Result()
	if err != nil {
		return "", fmt.Errorf("lock session: %w", err)
	}
	if !ok {
		return "", ErrImportInProgress
	}
	return token, nil
}

// releaseLock deletes the lock only while it still holds the caller's token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *redisStore) Release(ctx context.Context, id, token string) error {
	if err := releaseLock.Run(ctx, r.client, []string{lockKeyPrefix + id}, token).Err(); err != nil {
		return fmt.Errorf("unlock session: %w", err)
	}
	return nil
}
