package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceCache 记录订阅了某个笔记本的会话，跨实例共享
type PresenceCache interface {
	Join(ctx context.Context, notebookID, sid string, ttl time.Duration) error
	Leave(ctx context.Context, notebookID, sid string) error
	Sessions(ctx context.Context, notebookID string) ([]string, error)
}

type redisPresence struct {
	rdb redis.UniversalClient
}

func NewRedisPresence(rdb redis.UniversalClient) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// 清理过期成员
// KEYS[1] = roomKey(notebookID)
// ARGV[1] = now (unix seconds)
var cleanupScript = redis.NewScript(`
local expired = redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
return expired
`)

// Join 续期也直接调用 Join；score 为 expireAt，表达逻辑 TTL
func (p *redisPresence) Join(ctx context.Context, notebookID, sid string, ttl time.Duration) error {
	expireAt := time.Now().Add(ttl)
	tx := p.rdb.TxPipeline()
	tx.ZAdd(ctx, roomKey(notebookID), redis.Z{Score: float64(expireAt.Unix()), Member: sid})
	// 整个房间无人续期时由 redis 回收
	tx.ExpireAt(ctx, roomKey(notebookID), expireAt)
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) Leave(ctx context.Context, notebookID, sid string) error {
	return p.rdb.ZRem(ctx, roomKey(notebookID), sid).Err()
}

func (p *redisPresence) Sessions(ctx context.Context, notebookID string) ([]string, error) {
	now := time.Now().Unix()
	if err := cleanupScript.Run(ctx, p.rdb, []string{roomKey(notebookID)}, now).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	sids, err := p.rdb.ZRangeByScore(ctx, roomKey(notebookID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10), // > now
		Max: "+inf",
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	return sids, nil
}
