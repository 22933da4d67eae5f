package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/MikhailRaia/shortcode/internal/model"
	"github.com/MikhailRaia/shortcode/internal/storage"
)

const keyPrefix = "shortcode:"

// RedisClient is the subset of *redis.Client used by the cache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// NewRedisClient connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	return client, nil
}

// Storage is a read-through Redis cache in front of another URLStorage.
// Redis failures are logged and never fail a request the inner store can serve.
type Storage struct {
	inner  storage.URLStorage
	client RedisClient
	ttl    time.Duration
	now    func() time.Time
}

// NewStorage wraps inner with a cache whose entries live at most ttl.
func NewStorage(inner storage.URLStorage, client RedisClient, ttl time.Duration) *Storage {
	return &Storage{
		inner:  inner,
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *Storage) Save(ctx context.Context, m model.URLMapping) error {
	if err := s.inner.Save(ctx, m); err != nil {
		return err
	}
	s.put(ctx, m)
	return nil
}

func (s *Storage) Get(ctx context.Context, code string) (model.URLMapping, error) {
	data, err := s.client.Get(ctx, keyPrefix+code).Bytes()
	switch {
	case err == nil:
		var m model.URLMapping
		if jsonErr := json.Unmarshal(data, &m); jsonErr == nil {
			return m, nil
		}
		log.Warn().Str("code", code).Msg("Dropping undecodable cache entry")
		s.client.Del(ctx, keyPrefix+code)
	case errors.Is(err, redis.Nil):
	default:
		log.Warn().Err(err).Str("code", code).Msg("Cache read failed")
	}

	m, err := s.inner.Get(ctx, code)
	if err != nil {
		return model.URLMapping{}, err
	}
	s.put(ctx, m)
	return m, nil
}

func (s *Storage) FindPermanent(ctx context.Context, originalURL string) (model.URLMapping, error) {
	return s.inner.FindPermanent(ctx, originalURL)
}

func (s *Storage) List(ctx context.Context, limit, offset int) ([]model.URLMapping, error) {
	return s.inner.List(ctx, limit, offset)
}

func (s *Storage) DeleteExpired(ctx context.Context, codes []string, now time.Time) (int, error) {
	n, err := s.inner.DeleteExpired(ctx, codes, now)
	if len(codes) > 0 {
		keys := make([]string, len(codes))
		for i, code := range codes {
			keys[i] = keyPrefix + code
		}
		if delErr := s.client.Del(ctx, keys...).Err(); delErr != nil {
			log.Warn().Err(delErr).Int("keys", len(keys)).Msg("Cache eviction failed")
		}
	}
	return n, err
}

// Ping reports the health of the inner store only; a Redis outage degrades to cache misses.
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("Cache ping failed")
	}
	return s.inner.Ping(ctx)
}

func (s *Storage) Close() error {
	innerErr := s.inner.Close()
	clientErr := s.client.Close()
	return errors.Join(innerErr, clientErr)
}

// put caches m until the sooner of the cache TTL and the mapping's own expiry.
func (s *Storage) put(ctx context.Context, m model.URLMapping) {
	ttl := s.ttl
	if m.ExpiresAt != nil {
		left := m.ExpiresAt.Sub(s.now())
		if left <= 0 {
			return
		}
		if ttl <= 0 || left < ttl {
			ttl = left
		}
	}

	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, keyPrefix+m.Code, data, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("code", m.Code).Msg("Cache write failed")
	}
}
