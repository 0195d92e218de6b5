package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"notebookCollab/backend/internal/notebook"
)

const (
	BaseTTL          = 30 * time.Minute // 基础过期时间
	Jitter           = 5 * time.Minute  // 随机抖动范围
	EmptyCacheMarker = "-"              // 空值标记
	EmptyCacheTTL    = time.Minute
)

// 获取随机 TTL，防止大量快照同时过期
func randomTTL() time.Duration {
	return BaseTTL + time.Duration(rand.Int63n(int64(Jitter)))
}

// ETag 是笔记本 JSON 的 blake3 摘要
func ETag(nb *notebook.Notebook) (string, error) {
	b, err := json.Marshal(nb)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	return `"` + hex.EncodeToString(sum[:16]) + `"`, nil
}

type SnapshotCache struct {
	rdb redis.UniversalClient
	sf  singleflight.Group
}

func NewSnapshotCache(rdb redis.UniversalClient) *SnapshotCache {
	return &SnapshotCache{rdb: rdb}
}

type loaded struct {
	nb *notebook.Notebook
	ok bool
}

// read 的返回值：hit 表示缓存命中，命中空值标记时 nb 为 nil
func (c *SnapshotCache) read(ctx context.Context, id string) (*notebook.Notebook, bool, error) {
	b, err := c.rdb.Get(ctx, snapshotKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if string(b) == EmptyCacheMarker {
		return nil, true, nil
	}
	var nb notebook.Notebook
	if err := json.Unmarshal(b, &nb); err != nil {
		return nil, false, err
	}
	return &nb, true, nil
}

// GetOrLoad 读缓存，未命中时回源；同一笔记本的并发回源只执行一次
func (c *SnapshotCache) GetOrLoad(ctx context.Context, id string, fetch func() (*notebook.Notebook, bool, error)) (*notebook.Notebook, bool, error) {
	v, err, _ := c.sf.Do(id, func() (interface{}, error) {
		nb, hit, err := c.read(ctx, id)
		if err != nil {
			// 缓存不可用时直接回源
			log.Printf("snapshot cache read failed id=%s err=%v", id, err)
		} else if hit {
			return loaded{nb: nb, ok: nb != nil}, nil
		}

		nb, ok, err := fetch()
		if err != nil {
			return nil, err
		}
		if !ok {
			// 空值缓存，防止缓存穿透
			_ = c.rdb.Set(ctx, snapshotKey(id), EmptyCacheMarker, EmptyCacheTTL).Err()
			return loaded{}, nil
		}
		if err := c.Put(ctx, nb); err != nil {
			log.Printf("snapshot cache write failed id=%s err=%v", id, err)
		}
		return loaded{nb: nb, ok: true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	l, ok := v.(loaded)
	if !ok {
		return nil, false, errors.New("internal type error")
	}
	return l.nb, l.ok, nil
}

func (c *SnapshotCache) Put(ctx context.Context, nb *notebook.Notebook) error {
	b, err := json.Marshal(nb)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, snapshotKey(nb.ID), b, randomTTL()).Err()
}

func (c *SnapshotCache) Invalidate(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, snapshotKey(id)).Err()
}
