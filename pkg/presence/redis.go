package presence

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const onlineKey = "presence:online"

// RedisOnlineSet keeps online user ids in a Redis set.
type RedisOnlineSet struct {
	rdb *redis.Client
	key string
}

func NewRedisOnlineSet(rdb *redis.Client) *RedisOnlineSet {
	return &RedisOnlineSet{rdb: rdb, key: onlineKey}
}

func (s *RedisOnlineSet) Add(ctx context.Context, userID string) error {
	return s.rdb.SAdd(ctx, s.key, userID).Err()
}

func (s *RedisOnlineSet) Remove(ctx context.Context, userID string) error {
	return s.rdb.SRem(ctx, s.key, userID).Err()
}

func (s *RedisOnlineSet) Members(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, s.key).Result()
}

var _ OnlineSet = (*RedisOnlineSet)(nil)
