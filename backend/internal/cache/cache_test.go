package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"notebookCollab/backend/internal/notebook"
)

func testRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	// 若 Redis 未启动则跳过
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestETag(t *testing.T) {
	a := &notebook.Notebook{ID: "nb", Title: "one"}
	b := &notebook.Notebook{ID: "nb", Title: "two"}
	ea, err := ETag(a)
	if err != nil {
		t.Fatalf("ETag: %v", err)
	}
	again, _ := ETag(&notebook.Notebook{ID: "nb", Title: "one"})
	eb, _ := ETag(b)
	if ea != again {
		t.Fatalf("ETag not stable: %s vs %s", ea, again)
	}
	if ea == eb {
		t.Fatalf("different notebooks share ETag %s", ea)
	}
	if len(ea) != 34 || ea[0] != '"' || ea[33] != '"' {
		t.Fatalf("ETag = %s", ea)
	}
}

func TestRandomTTL(t *testing.T) {
	for i := 0; i < 100; i++ {
		ttl := randomTTL()
		if ttl < BaseTTL || ttl >= BaseTTL+Jitter {
			t.Fatalf("ttl %v out of range", ttl)
		}
	}
}

func TestSnapshotCacheGetOrLoad(t *testing.T) {
	rdb := testRedis(t)
	c := NewSnapshotCache(rdb)
	ctx := context.Background()
	id := uniqueID("nb")
	t.Cleanup(func() { rdb.Del(ctx, snapshotKey(id)) })

	var calls int32
	fetch := func() (*notebook.Notebook, bool, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return &notebook.Notebook{ID: id, Title: "loaded", Revision: 2}, true, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nb, ok, err := c.GetOrLoad(ctx, id, fetch)
			if err != nil || !ok || nb.Title != "loaded" {
				t.Errorf("GetOrLoad = %+v, %v, %v", nb, ok, err)
			}
		}()
	}
	wg.Wait()
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("fetch called %d times", n)
	}

	// 之后直接命中缓存
	nb, ok, err := c.GetOrLoad(ctx, id, func() (*notebook.Notebook, bool, error) {
		return nil, false, errors.New("should not be called")
	})
	if err != nil || !ok || nb.Revision != 2 {
		t.Fatalf("cached = %+v, %v, %v", nb, ok, err)
	}
	ttl, err := rdb.TTL(ctx, snapshotKey(id)).Result()
	if err != nil || ttl <= 0 || ttl > BaseTTL+Jitter {
		t.Fatalf("ttl = %v, %v", ttl, err)
	}
}

func TestSnapshotCacheRemembersMissing(t *testing.T) {
	rdb := testRedis(t)
	c := NewSnapshotCache(rdb)
	ctx := context.Background()
	id := uniqueID("missing")
	t.Cleanup(func() { rdb.Del(ctx, snapshotKey(id)) })

	miss := func() (*notebook.Notebook, bool, error) { return nil, false, nil }
	if _, ok, err := c.GetOrLoad(ctx, id, miss); ok || err != nil {
		t.Fatalf("GetOrLoad = %v, %v", ok, err)
	}
	if _, ok, err := c.GetOrLoad(ctx, id, func() (*notebook.Notebook, bool, error) {
		return nil, false, errors.New("should not be called")
	}); ok || err != nil {
		t.Fatalf("second GetOrLoad = %v, %v", ok, err)
	}

	// 写入快照后覆盖空值标记
	if err := c.Put(ctx, &notebook.Notebook{ID: id, Title: "now here"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	nb, ok, err := c.GetOrLoad(ctx, id, miss)
	if err != nil || !ok || nb.Title != "now here" {
		t.Fatalf("after Put = %+v, %v, %v", nb, ok, err)
	}
	if err := c.Invalidate(ctx, id); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if n, _ := rdb.Exists(ctx, snapshotKey(id)).Result(); n != 0 {
		t.Fatalf("key still present")
	}
}

func TestPresence(t *testing.T) {
	rdb := testRedis(t)
	p := NewRedisPresence(rdb)
	ctx := context.Background()
	id := uniqueID("nb")
	t.Cleanup(func() { rdb.Del(ctx, roomKey(id)) })

	if err := p.Join(ctx, id, "s1", time.Minute); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := p.Join(ctx, id, "s2", time.Minute); err != nil {
		t.Fatalf("Join: %v", err)
	}
	// 已过期的会话不再返回
	if err := rdb.ZAdd(ctx, roomKey(id), redis.Z{Score: float64(time.Now().Add(-time.Minute).Unix()), Member: "stale"}).Err(); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}
	if err := p.Leave(ctx, id, "s2"); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	sids, err := p.Sessions(ctx, id)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sids) != 1 || sids[0] != "s1" {
		t.Fatalf("sessions = %v", sids)
	}
	if n, _ := rdb.ZCard(ctx, roomKey(id)).Result(); n != 1 {
		t.Fatalf("stale member not cleaned, zcard = %d", n)
	}
}
