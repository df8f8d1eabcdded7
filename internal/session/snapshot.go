package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Snapshotter persists serialized session state outside the process. Live
// state stays in memory; snapshots exist for inspection and warm restarts.
type Snapshotter interface {
	Save(sess *Session) error
	Load(id string) (*Session, error)
	Delete(id string) error
}

const snapshotKeyPrefix = "webscout:session:"

// RedisSnapshotter stores session JSON under a per-session key with a TTL.
type RedisSnapshotter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSnapshotter connects and pings the Redis instance.
func NewRedisSnapshotter(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisSnapshotter, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s): %w", addr, err)
	}
	return &RedisSnapshotter{rdb: rdb, ttl: ttl}, nil
}

func (r *RedisSnapshotter) Save(sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}
	return r.rdb.Set(context.Background(), snapshotKeyPrefix+sess.ID, data, r.ttl).Err()
}

func (r *RedisSnapshotter) Load(id string) (*Session, error) {
	data, err := r.rdb.Get(context.Background(), snapshotKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}
	return &sess, nil
}

func (r *RedisSnapshotter) Delete(id string) error {
	return r.rdb.Del(context.Background(), snapshotKeyPrefix+id).Err()
}

// Close releases the underlying connection pool.
func (r *RedisSnapshotter) Close() error { return r.rdb.Close() }
