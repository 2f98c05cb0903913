package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"

	authclient "github.com/goliatone/go-auth-client"
)

var _ authclient.TokenStore = (*RedisStore)(nil)

// RedisStore keeps credentials in Redis, which lets several processes
// (workers, schedulers) share one authenticated session against the API.
// An optional TTL bounds how long abandoned credentials linger.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisStoreOption customizes a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces the Redis keys, e.g. per environment.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL sets an expiry on stored credentials. Zero means no expiry.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, goerrors.New("redis client is required", goerrors.CategoryBadInput)
	}

	s := &RedisStore{
		client: client,
		prefix: "authclient",
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s, nil
}

func (s *RedisStore) Save(ctx context.Context, pair authclient.TokenPair) error {
	return s.set(ctx, s.key("tokens"), pair)
}

func (s *RedisStore) Load(ctx context.Context) (*authclient.TokenPair, error) {
	pair := &authclient.TokenPair{}
	ok, err := s.get(ctx, s.key("tokens"), pair)
	if err != nil || !ok {
		return nil, err
	}
	return pair, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.del(ctx, s.key("tokens"))
}

func (s *RedisStore) SaveUser(ctx context.Context, user *authclient.User) error {
	if user == nil {
		return s.del(ctx, s.key("user"))
	}
	return s.set(ctx, s.key("user"), user)
}

func (s *RedisStore) LoadUser(ctx context.Context) (*authclient.User, error) {
	user := &authclient.User{}
	ok, err := s.get(ctx, s.key("user"), user)
	if err != nil || !ok {
		return nil, err
	}
	return user, nil
}

func (s *RedisStore) ClearUser(ctx context.Context) error {
	return s.del(ctx, s.key("user"))
}

func (s *RedisStore) key(suffix string) string {
	return s.prefix + ":" + suffix
}

func (s *RedisStore) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode credentials")
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to store credentials")
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to load credentials")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to decode credentials")
	}
	return true, nil
}

func (s *RedisStore) del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to clear credentials")
	}
	return nil
}
