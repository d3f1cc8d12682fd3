// Package cache keeps each room's live playback state in Redis so that a
// restarted process can serve late joiners the last-known position.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/hoangvu12/kaguya-socket/internal/core"
	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

const keyPrefix = "kaguya:room:"

// RedisSnapshots satisfies core.SnapshotCache on a go-redis client.
// Entries carry a TTL so abandoned rooms age out on their own.
type RedisSnapshots struct {
	client *redis.Client
	ttl    time.Duration
}

var _ core.SnapshotCache = (*RedisSnapshots)(nil)

func Open(url string, ttl time.Duration) (*RedisSnapshots, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisSnapshots{client: c, ttl: ttl}, nil
}

func (r *RedisSnapshots) Close() error { return r.client.Close() }

func (r *RedisSnapshots) Load(ctx context.Context, id domain.RoomID) (domain.PlaybackState, bool, error) {
	raw, err := r.client.Get(ctx, keyPrefix+string(id)).Result()
	if err == redis.Nil {
		return domain.PlaybackState{}, false, nil
	}
	if err != nil {
		return domain.PlaybackState{}, false, fmt.Errorf("redis: get %s: %w", id, err)
	}
	var st domain.PlaybackState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return domain.PlaybackState{}, false, fmt.Errorf("redis: decode %s: %w", id, err)
	}
	return st, true, nil
}

func (r *RedisSnapshots) Save(ctx context.Context, id domain.RoomID, st domain.PlaybackState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", id, err)
	}
	if err := r.client.Set(ctx, keyPrefix+string(id), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", id, err)
	}
	return nil
}

func (r *RedisSnapshots) Forget(ctx context.Context, id domain.RoomID) error {
	if err := r.client.Del(ctx, keyPrefix+string(id)).Err(); err != nil {
		return fmt.Errorf("redis: del %s: %w", id, err)
	}
	return nil
}
