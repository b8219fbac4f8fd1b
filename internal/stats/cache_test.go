package stats

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

type keyspaceStub struct {
	redis.Cmdable
	keys    []string
	match   string
	deleted []string
}

func (k *keyspaceStub) Scan(_ context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	k.match = match
	return redis.NewScanCmdResult(k.keys, 0, nil)
}

func (k *keyspaceStub) Del(_ context.Context, keys ...string) *redis.IntCmd {
	k.deleted = append(k.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisCache_InvalidateDropsPrefixedKeys(t *testing.T) {
	rdb := &keyspaceStub{keys: []string{"medicall:stats:summary", "medicall:stats:urgency"}}
	if err := NewRedisCache(rdb, "").Invalidate(context.Background()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if rdb.match != "medicall:stats:*" {
		t.Fatalf("unexpected match pattern %q", rdb.match)
	}
	if len(rdb.deleted) != 2 {
		t.Fatalf("expected cached results deleted, got %v", rdb.deleted)
	}
}
