package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTokenPrefix = "lumina:token:"

// RedisTokenStore keeps session tokens in Redis with a per-key TTL, letting
// Redis handle expiry. Opt-in for deployments that want sessions to survive
// panel restarts or to be shared between replicas.
type RedisTokenStore struct {
	client *redis.Client
	ttl    time.Duration
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRedisTokenStore(host, port, username, password string, ttl time.Duration) (*RedisTokenStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Username: username,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	store := &RedisTokenStore{
		client: client,
		ttl:    ttl,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := client.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, err
	}
	return store, nil
}

func (st *RedisTokenStore) Issue() (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	if err := st.client.Set(st.ctx, redisTokenPrefix+token, "1", st.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (st *RedisTokenStore) Validate(token string) bool {
	if token == "" {
		return false
	}
	n, err := st.client.Exists(st.ctx, redisTokenPrefix+token).Result()
	return err == nil && n > 0
}

func (st *RedisTokenStore) Revoke(token string) {
	st.client.Del(st.ctx, redisTokenPrefix+token)
}

func (st *RedisTokenStore) RevokeAll(keep string) int {
	keepKey := redisTokenPrefix + keep
	removed := 0

	iter := st.client.Scan(st.ctx, 0, redisTokenPrefix+"*", 100).Iterator()
	for iter.Next(st.ctx) {
		key := iter.Val()
		if key == keepKey {
			continue
		}
		if n, err := st.client.Del(st.ctx, key).Result(); err == nil {
			removed += int(n)
		}
	}
	return removed
}

func (st *RedisTokenStore) CountActive() int {
	count := 0
	iter := st.client.Scan(st.ctx, 0, redisTokenPrefix+"*", 100).Iterator()
	for iter.Next(st.ctx) {
		count++
	}
	return count
}

func (st *RedisTokenStore) Close() error {
	st.cancel()
	return st.client.Close()
}
